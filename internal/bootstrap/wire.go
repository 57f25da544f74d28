package bootstrap

import (
	"context"
	"io"
	"log/slog"

	"sitegen/internal/audio"
	"sitegen/internal/config"
	"sitegen/internal/logging"
	"sitegen/internal/ports"
	"sitegen/internal/preview"
	"sitegen/internal/providers/sitegen"
	"sitegen/internal/providers/transcribe"
	"sitegen/internal/rules"
	"sitegen/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Logger     *slog.Logger
	Generation *usecase.GenerationSession
	Catalog    *usecase.Catalog
	Preview    *preview.Server

	events   ports.EventSink
	dialer   ports.ChannelDialer
	capture  ports.AudioCapture
	rules    ports.TranscriptRules
	pipeline usecase.PipelineConfig
}

// Build wires all dependencies for the current runtime. Logs go to logOutput.
func Build(eventSink ports.EventSink, logOutput io.Writer) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	logger := logging.New(logOutput, cfg.LogLevel)

	rulesEngine, err := rules.NewEngine(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	client := sitegen.NewClient(sitegen.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	}, logger.With("component", "api"))
	catalog := usecase.NewCatalog(client, eventSink, logger.With("component", "catalog"))
	generation := usecase.NewGenerationSession(client, catalog, eventSink, cfg.API.PublicOrigin, logger.With("component", "generation"))

	return Services{
		Config:     cfg,
		Logger:     logger,
		Generation: generation,
		Catalog:    catalog,
		Preview:    preview.NewServer(generation, logger.With("component", "preview")),
		events:     eventSink,
		dialer: transcribe.NewDialer(transcribe.Config{
			URL: cfg.Transcribe.URL,
		}, logger.With("component", "transcribe")),
		capture: audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		rules:   rulesEngine,
		pipeline: usecase.PipelineConfig{
			Audio: ports.AudioConfig{
				SampleRate:       cfg.Audio.SampleRate,
				Channels:         cfg.Audio.Channels,
				Bitrate:          cfg.Audio.Bitrate,
				InputFormat:      cfg.Audio.InputFormat,
				InputDevice:      cfg.Audio.InputDevice,
				EchoCancellation: cfg.Audio.EchoCancellation,
				NoiseSuppression: cfg.Audio.NoiseSuppression,
				AutoGainControl:  cfg.Audio.AutoGainControl,
			},
			FrameInterval: cfg.Audio.FrameInterval,
		},
	}, nil
}

// MountVoice opens a transcription channel and microphone pipeline whose
// transcriptions are appended to the generation session's description.
func (s Services) MountVoice(ctx context.Context) *usecase.VoiceSession {
	return usecase.MountVoiceSession(
		ctx,
		s.dialer,
		s.capture,
		s.Generation,
		s.rules,
		s.events,
		s.pipeline,
		s.Logger.With("component", "voice"),
	)
}
