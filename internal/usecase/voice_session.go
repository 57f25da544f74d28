package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"sitegen/internal/domain"
	"sitegen/internal/logging"
	"sitegen/internal/ports"
)

const ConnectionErrorMessage = "Connection error occurred"

var ErrVoiceUnmounted = errors.New("voice session is unmounted")

// TranscriptTarget receives dictated text, normally the generation session.
type TranscriptTarget interface {
	AppendTranscription(text string)
}

// VoiceSession is one mount of the voice feature. It owns the transcription
// channel and the capture pipeline and tears both down on Unmount.
type VoiceSession struct {
	id     string
	target TranscriptTarget
	rules  ports.TranscriptRules
	events ports.EventSink
	logger *slog.Logger

	channel  ports.TranscriptionChannel
	pipeline *CapturePipeline
	appender *transcriptAppender

	mu           sync.Mutex
	connection   domain.ConnectionState
	recording    domain.RecordingState
	channelError string
	micMessage   string
	unmounted    bool
}

// MountVoiceSession opens the transcription channel and makes the initial
// automatic microphone acquisition attempt. A failed attempt leaves the
// session mounted with a pending error message.
func MountVoiceSession(
	ctx context.Context,
	dialer ports.ChannelDialer,
	capture ports.AudioCapture,
	target TranscriptTarget,
	rules ports.TranscriptRules,
	events ports.EventSink,
	cfg PipelineConfig,
	logger *slog.Logger,
) *VoiceSession {
	id := uuid.NewString()
	logger = logging.OrDiscard(logger).With("voice_session", id)

	s := &VoiceSession{
		id:         id,
		target:     target,
		rules:      rules,
		events:     events,
		logger:     logger,
		appender:   newTranscriptAppender(),
		connection: domain.ConnectionConnecting,
		recording:  domain.RecordingIdle,
	}

	s.channel = dialer.Open(ctx, s)
	s.pipeline = NewCapturePipeline(capture, s.channel, cfg, logger, s.recordingChanged)

	if err := s.pipeline.Start(ctx); err != nil {
		s.reportError(domain.ErrorCodeMicrophone, err)
	}
	return s
}

// ID identifies the session in logs.
func (s *VoiceSession) ID() string {
	return s.id
}

// Toggle starts or stops recording, or retries microphone acquisition when
// no device is held.
func (s *VoiceSession) Toggle(ctx context.Context) error {
	s.mu.Lock()
	unmounted := s.unmounted
	s.mu.Unlock()
	if unmounted {
		return ErrVoiceUnmounted
	}

	if err := s.pipeline.Toggle(ctx); err != nil {
		s.reportError(domain.ErrorCodeMicrophone, err)
		return err
	}
	return nil
}

// Status returns the combined channel/recorder state.
func (s *VoiceSession) Status() domain.VoiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Unmount stops capture, flushes the last partial frame, then closes the
// channel. No event sink or target callback fires once it returns.
func (s *VoiceSession) Unmount() {
	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		return
	}
	s.unmounted = true
	s.mu.Unlock()

	if err := s.pipeline.Release(); err != nil {
		s.logger.Warn("failed to release microphone", "error", err)
	}
	if err := s.channel.Close(); err != nil {
		s.logger.Warn("failed to close transcription channel", "error", err)
	}

	s.mu.Lock()
	s.connection = domain.ConnectionClosed
	s.recording = domain.RecordingIdle
	s.mu.Unlock()
	s.logger.Info("voice session unmounted")
}

// Transcription implements ports.ChannelListener.
func (s *VoiceSession) Transcription(event domain.TranscriptionEvent) {
	if s.isUnmounted() {
		return
	}

	text := event.Text
	if s.rules != nil {
		transformed, err := s.rules.Apply(text)
		if err != nil {
			s.logger.Warn("dictation rules failed, using raw transcription", "error", err)
		} else {
			text = transformed
		}
	}

	accepted, ok := s.appender.Accept(text)
	if !ok {
		s.logger.Debug("skipping transcription", "text", text)
		return
	}
	if s.isUnmounted() {
		return
	}
	s.target.AppendTranscription(accepted)
}

// ChannelStateChanged implements ports.ChannelListener.
func (s *VoiceSession) ChannelStateChanged(state domain.ConnectionState, err error) {
	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		return
	}
	s.connection = state
	if state == domain.ConnectionErrored {
		s.channelError = ConnectionErrorMessage
	} else if state == domain.ConnectionOpen {
		s.channelError = ""
	}
	status := s.statusLocked()
	s.mu.Unlock()

	if err != nil {
		s.events.SessionError(domain.ErrorCodeConnection, err.Error())
	}
	s.events.VoiceStateChanged(status)
}

func (s *VoiceSession) recordingChanged(state domain.RecordingState, message string) {
	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		return
	}
	s.recording = state
	s.micMessage = message
	status := s.statusLocked()
	s.mu.Unlock()

	s.events.VoiceStateChanged(status)
}

func (s *VoiceSession) reportError(code domain.ErrorCode, err error) {
	if s.isUnmounted() {
		return
	}
	s.events.SessionError(code, err.Error())
}

func (s *VoiceSession) statusLocked() domain.VoiceStatus {
	message := s.micMessage
	if message == "" {
		message = s.channelError
	}
	return domain.VoiceStatus{
		Connection:          s.connection,
		Recording:           s.recording,
		PendingErrorMessage: message,
	}
}

func (s *VoiceSession) isUnmounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unmounted
}
