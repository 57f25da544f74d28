package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"sitegen/internal/domain"
	"sitegen/internal/ports"
)

// FFMPEGCapture records the microphone as opus-in-ogg using ffmpeg.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

// Acquire resolves the recorder binary and applies capture defaults. Failures
// are reported as domain.ErrDeviceUnavailable.
func (c *FFMPEGCapture) Acquire(_ context.Context, cfg ports.AudioConfig) (ports.AudioDevice, error) {
	path, err := exec.LookPath(c.command)
	if err != nil {
		return nil, fmt.Errorf("%w: recorder %q not found: %v", domain.ErrDeviceUnavailable, c.command, err)
	}

	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = 128000
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	return &ffmpegDevice{command: path, cfg: cfg}, nil
}

type ffmpegDevice struct {
	command string
	cfg     ports.AudioConfig

	mu       sync.Mutex
	released bool
}

func (d *ffmpegDevice) Record(ctx context.Context) (ports.AudioSession, error) {
	d.mu.Lock()
	released := d.released
	d.mu.Unlock()
	if released {
		return nil, fmt.Errorf("%w: device already released", domain.ErrDeviceUnavailable)
	}

	cmd := exec.CommandContext(ctx, d.command, recordArgs(d.cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start ffmpeg: %v", domain.ErrDeviceUnavailable, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		detail := strings.TrimSpace(stderr.String())
		if err != nil {
			return nil, fmt.Errorf("%w: ffmpeg exited before capture started: %v: %s", domain.ErrDeviceUnavailable, err, detail)
		}
		return nil, fmt.Errorf("%w: ffmpeg exited before capture started", domain.ErrDeviceUnavailable)
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

func (d *ffmpegDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	return nil
}

// recordArgs maps capture constraints onto ffmpeg filters. ffmpeg has no
// echo canceller, so EchoCancellation only selects a high-pass filter that
// removes low-frequency speaker bleed.
func recordArgs(cfg ports.AudioConfig) []string {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
	}

	var filters []string
	if cfg.EchoCancellation {
		filters = append(filters, "highpass=f=100")
	}
	if cfg.NoiseSuppression {
		filters = append(filters, "afftdn")
	}
	if cfg.AutoGainControl {
		filters = append(filters, "dynaudnorm")
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	return append(args,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-c:a", "libopus",
		"-b:a", strconv.Itoa(cfg.Bitrate),
		"-f", "ogg",
		"-",
	)
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

// Stop interrupts ffmpeg so it flushes its encoder, then reaps it.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
