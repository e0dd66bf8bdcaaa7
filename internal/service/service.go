// Package service wires configuration into the render pipeline and its
// external collaborators.
package service

import (
	"github.com/book-expert/logger"

	"github.com/book-expert/toon-service/internal/audio"
	"github.com/book-expert/toon-service/internal/config"
	"github.com/book-expert/toon-service/internal/export"
	"github.com/book-expert/toon-service/internal/metrics"
	"github.com/book-expert/toon-service/internal/pipeline"
	"github.com/book-expert/toon-service/internal/tts"
	"github.com/book-expert/toon-service/internal/whisper"
)

// Stages builds the HTTP clients and ffmpeg wrappers named by cfg.
func Stages(cfg *config.Config, log *logger.Logger) (pipeline.Stages, error) {
	runner := export.ExecRunner{}

	converter, converterErr := audio.NewConverter(cfg.Audio, runner, log)
	if converterErr != nil {
		return pipeline.Stages{}, converterErr
	}

	return pipeline.Stages{
		Synthesizer: tts.NewClient(cfg.TTSClientConfig()),
		Converter:   converter,
		Aligner:     whisper.NewClient(cfg.WhisperClientConfig(), log),
		Encoder:     export.NewFFmpeg(cfg.Encoder, runner, log),
	}, nil
}

// NewPipeline loads the rig descriptor and assembles a pipeline recording
// on m.
func NewPipeline(cfg *config.Config, log *logger.Logger, m *metrics.Manager) (*pipeline.Pipeline, error) {
	desc, descErr := cfg.Descriptor()
	if descErr != nil {
		return nil, descErr
	}

	stages, stagesErr := Stages(cfg, log)
	if stagesErr != nil {
		return nil, stagesErr
	}

	log.Info("Rig '%s' at %s, canvas %dx%d", desc.Name, desc.Root, desc.Canvas.Width, desc.Canvas.Height)

	return pipeline.New(cfg.PipelineConfig(), desc, stages, log, pipeline.WithMetrics(m))
}
