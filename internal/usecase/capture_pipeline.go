package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"sitegen/internal/domain"
	"sitegen/internal/logging"
	"sitegen/internal/ports"
)

const (
	MicrophoneAccessMessage = "Please allow microphone access"
	RecordingFailedMessage  = "Failed to start recording"

	defaultFrameInterval = 5 * time.Second
	defaultReadSize      = 4096
)

var ErrPipelineReleased = errors.New("capture pipeline already released")

// PipelineConfig controls microphone capture and frame cadence.
type PipelineConfig struct {
	Audio         ports.AudioConfig
	FrameInterval time.Duration
	ReadSize      int
}

// RecordingObserver is told about every recording state or message change.
type RecordingObserver func(state domain.RecordingState, message string)

type frameTicker interface {
	C() <-chan time.Time
	Stop()
}

type clockTicker struct{ t *time.Ticker }

func (c clockTicker) C() <-chan time.Time { return c.t.C }
func (c clockTicker) Stop()               { c.t.Stop() }

// CapturePipeline owns the microphone device and turns buffered audio into
// frames at a fixed cadence.
type CapturePipeline struct {
	capture  ports.AudioCapture
	sink     ports.FrameSink
	cfg      PipelineConfig
	logger   *slog.Logger
	observer RecordingObserver

	newTicker func(time.Duration) frameTicker

	mu       sync.Mutex
	device   ports.AudioDevice
	state    domain.RecordingState
	message  string
	active   *recording
	released bool
}

type recording struct {
	audio  ports.AudioSession
	ticker frameTicker
	cancel context.CancelFunc

	bufMu sync.Mutex
	buf   bytes.Buffer

	// sendMu keeps tick flushes and the final flush in production order.
	sendMu sync.Mutex

	stop     chan struct{}
	tickDone chan struct{}
	readDone chan struct{}
}

func NewCapturePipeline(
	capture ports.AudioCapture,
	sink ports.FrameSink,
	cfg PipelineConfig,
	logger *slog.Logger,
	observer RecordingObserver,
) *CapturePipeline {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = defaultFrameInterval
	}
	if cfg.ReadSize < 256 {
		cfg.ReadSize = defaultReadSize
	}
	if observer == nil {
		observer = func(domain.RecordingState, string) {}
	}
	return &CapturePipeline{
		capture:  capture,
		sink:     sink,
		cfg:      cfg,
		logger:   logging.OrDiscard(logger),
		observer: observer,
		newTicker: func(d time.Duration) frameTicker {
			return clockTicker{t: time.NewTicker(d)}
		},
		state: domain.RecordingIdle,
	}
}

// Start acquires the microphone if it has not been acquired yet. It never
// starts recording on its own.
func (p *CapturePipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	err := p.acquireLocked(ctx)
	state, message := p.state, p.message
	p.mu.Unlock()

	p.observer(state, message)
	return err
}

// Toggle flips between Idle and Recording. While no device is held it only
// retries acquisition.
func (p *CapturePipeline) Toggle(ctx context.Context) error {
	p.mu.Lock()
	var err error
	switch {
	case p.released:
		err = ErrPipelineReleased
	case p.device == nil:
		err = p.acquireLocked(ctx)
	case p.active != nil:
		p.stopLocked()
	default:
		err = p.startRecordingLocked(ctx)
	}
	state, message := p.state, p.message
	p.mu.Unlock()

	p.observer(state, message)
	return err
}

// Release stops any recording, flushes the partial frame and releases the
// device. It is idempotent.
func (p *CapturePipeline) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	p.released = true

	if p.active != nil {
		p.stopLocked()
	}
	if p.device == nil {
		return nil
	}
	err := p.device.Release()
	p.device = nil
	return err
}

// State returns the recording state and any pending user-facing message.
func (p *CapturePipeline) State() (domain.RecordingState, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.message
}

func (p *CapturePipeline) acquireLocked(ctx context.Context) error {
	if p.released {
		return ErrPipelineReleased
	}
	if p.device != nil {
		return nil
	}

	device, err := p.capture.Acquire(ctx, p.cfg.Audio)
	if err != nil {
		p.message = MicrophoneAccessMessage
		p.logger.Warn("microphone unavailable", "error", err)
		if !errors.Is(err, domain.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
		}
		return err
	}

	p.device = device
	p.message = ""
	p.logger.Info("microphone acquired", "sample_rate", p.cfg.Audio.SampleRate, "channels", p.cfg.Audio.Channels)
	return nil
}

func (p *CapturePipeline) startRecordingLocked(ctx context.Context) error {
	recCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	audio, err := p.device.Record(recCtx)
	if err != nil {
		cancel()
		if errors.Is(err, domain.ErrDeviceUnavailable) {
			_ = p.device.Release()
			p.device = nil
			p.message = MicrophoneAccessMessage
		} else {
			p.message = RecordingFailedMessage
		}
		p.logger.Warn("failed to start recording", "error", err)
		return err
	}

	rec := &recording{
		audio:    audio,
		ticker:   p.newTicker(p.cfg.FrameInterval),
		cancel:   cancel,
		stop:     make(chan struct{}),
		tickDone: make(chan struct{}),
		readDone: make(chan struct{}),
	}
	p.active = rec
	p.state = domain.RecordingRecording
	p.message = ""

	go p.readAudio(rec)
	go p.emitFrames(rec)

	p.logger.Info("recording started", "frame_interval", p.cfg.FrameInterval)
	return nil
}

func (p *CapturePipeline) stopLocked() {
	rec := p.active
	p.active = nil

	close(rec.stop)
	<-rec.tickDone
	rec.ticker.Stop()

	if err := rec.audio.Stop(); err != nil {
		p.logger.Warn("failed to stop audio capture cleanly", "error", err)
	}
	<-rec.readDone
	rec.cancel()

	p.flush(rec)
	p.state = domain.RecordingIdle
	p.logger.Info("recording stopped")
}

func (p *CapturePipeline) readAudio(rec *recording) {
	defer close(rec.readDone)

	buf := make([]byte, p.cfg.ReadSize)
	for {
		n, err := rec.audio.Read(buf)
		if n > 0 {
			rec.bufMu.Lock()
			rec.buf.Write(buf[:n])
			rec.bufMu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.logger.Warn("audio capture error", "error", err)
			}
			return
		}
	}
}

func (p *CapturePipeline) emitFrames(rec *recording) {
	defer close(rec.tickDone)

	for {
		select {
		case <-rec.ticker.C():
			p.flush(rec)
		case <-rec.stop:
			return
		}
	}
}

// flush hands everything buffered so far to the sink as one frame. The sink
// drops frames while its channel is not open.
func (p *CapturePipeline) flush(rec *recording) {
	rec.sendMu.Lock()
	defer rec.sendMu.Unlock()

	rec.bufMu.Lock()
	if rec.buf.Len() == 0 {
		rec.bufMu.Unlock()
		return
	}
	frame := make(domain.AudioFrame, rec.buf.Len())
	copy(frame, rec.buf.Bytes())
	rec.buf.Reset()
	rec.bufMu.Unlock()

	if err := p.sink.Send(frame); err != nil {
		p.logger.Warn("failed to send audio frame", "error", err, "bytes", len(frame))
	}
}

func (p *CapturePipeline) buffered() int {
	p.mu.Lock()
	rec := p.active
	p.mu.Unlock()
	if rec == nil {
		return 0
	}
	rec.bufMu.Lock()
	defer rec.bufMu.Unlock()
	return rec.buf.Len()
}
