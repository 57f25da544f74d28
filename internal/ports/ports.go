package ports

import (
	"context"
	"io"

	"sitegen/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate       int
	Channels         int
	Bitrate          int
	InputFormat      string
	InputDevice      string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// AudioSession is a live recording on an acquired device.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioDevice is an acquired microphone that can be recorded repeatedly.
type AudioDevice interface {
	Record(ctx context.Context) (AudioSession, error)
	Release() error
}

// AudioCapture acquires microphone devices.
type AudioCapture interface {
	Acquire(ctx context.Context, cfg AudioConfig) (AudioDevice, error)
}

// FrameSink receives audio frames in production order.
type FrameSink interface {
	Send(frame domain.AudioFrame) error
}

// ChannelListener is the single receiver of a transcription channel's events.
type ChannelListener interface {
	Transcription(event domain.TranscriptionEvent)
	ChannelStateChanged(state domain.ConnectionState, err error)
}

// TranscriptionChannel is a live bidirectional connection to the transcription endpoint.
type TranscriptionChannel interface {
	FrameSink
	State() domain.ConnectionState
	Close() error
}

// ChannelDialer opens transcription channels.
type ChannelDialer interface {
	Open(ctx context.Context, listener ChannelListener) TranscriptionChannel
}

// Generator turns a description plus images into HTML.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error)
}

// WebsiteStore lists and creates saved websites.
type WebsiteStore interface {
	List(ctx context.Context) ([]domain.SavedWebsite, error)
	Create(ctx context.Context, draft domain.WebsiteDraft) (domain.SavedWebsite, error)
}

// TranscriptRules transforms dictated text before it reaches the description.
type TranscriptRules interface {
	Apply(text string) (string, error)
}

// EventSink emits state changes to the front end.
type EventSink interface {
	GenerationStateChanged(state domain.GenerationState, reason domain.GenerationReason)
	DescriptionChanged(description string)
	VoiceStateChanged(status domain.VoiceStatus)
	CatalogRefreshed(sites []domain.SavedWebsite)
	WebsiteSaved(site domain.SavedWebsite, shareURL string)
	SessionError(code domain.ErrorCode, detail string)
}
