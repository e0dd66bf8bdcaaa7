package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/book-expert/toon-service/internal/audio"
	"github.com/book-expert/toon-service/internal/pipeline"
	"github.com/book-expert/toon-service/internal/render"
	"github.com/book-expert/toon-service/internal/service"
	"github.com/book-expert/toon-service/internal/text"
	"github.com/book-expert/toon-service/internal/timeline"
	"github.com/book-expert/toon-service/internal/tts"
	"github.com/book-expert/toon-service/internal/whisper"
)

const (
	defaultSpeechFile = "speech.mp3"
	defaultVideoFile  = "toon.mp4"
	filePermissions   = 0o600
	dirPermissions    = 0o750
)

func newHealthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the speech synthesis credentials and voice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := tts.NewClient(a.cfg.TTSClientConfig()).HealthCheck(cmd.Context())
			if err != nil {
				a.log.Error("Health check failed: %v", err)

				return fmt.Errorf("TTS service is not healthy: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "TTS service is healthy")

			return nil
		},
	}
}

func newSynthesizeCommand(a *app) *cobra.Command {
	var textFlag, transcriptPath, output string

	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Voice a transcript into MPEG audio",
		Long:  "Strip pose and emotion tags from the transcript, normalize it for speech and synthesize it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readTranscript(textFlag, transcriptPath)
			if err != nil {
				return err
			}

			clean := text.NewPreprocessor().Normalize(text.Parse(raw).Clean())

			speech, err := tts.NewClient(a.cfg.TTSClientConfig()).Synthesize(cmd.Context(), clean)
			if err != nil {
				a.log.Error("Failed to synthesize speech: %v", err)

				return err
			}

			output = a.outputPath(output, defaultSpeechFile)

			writeErr := writeFile(output, speech)
			if writeErr != nil {
				return writeErr
			}

			a.log.Info("Synthesized %d bytes of speech into %s", len(speech), output)
			fmt.Fprintf(cmd.OutOrStdout(), "Generated: %s\n", output)

			return nil
		},
	}

	cmd.Flags().StringVar(&textFlag, flagText, "", "Text to convert to speech")
	cmd.Flags().StringVar(&transcriptPath, flagTranscript, "", "Transcript file to convert to speech")
	cmd.Flags().StringVarP(&output, flagOutput, "o", "", "Output file path (.mp3)")

	return cmd
}

func newAlignCommand(a *app) *cobra.Command {
	var transcriptPath, output string

	cmd := &cobra.Command{
		Use:   "align AUDIO",
		Short: "Time every spoken word in an audio file",
		Long: `Convert the audio to 16 kHz mono WAV and align its words. When the aligner
fails, a single segment spanning the audio is written from --transcript and
the command exits with status 2.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := service.Stages(a.cfg, a.log)
			if err != nil {
				return err
			}

			scratch, err := os.MkdirTemp("", "toon-align-*")
			if err != nil {
				return fmt.Errorf("failed to create scratch directory: %w", err)
			}

			defer func() { _ = os.RemoveAll(scratch) }()

			wavPath := filepath.Join(scratch, pipeline.WaveFile)

			convertErr := stages.Converter.Convert(cmd.Context(), args[0], wavPath)
			if convertErr != nil {
				return convertErr
			}

			words, alignErr := stages.Aligner.Align(cmd.Context(), wavPath)
			if alignErr != nil {
				words, err = a.fallbackWords(transcriptPath, wavPath, alignErr)
				if err != nil {
					return err
				}
			}

			writeErr := timeline.WriteWords(output, words)
			if writeErr != nil {
				return writeErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Aligned %d words into %s\n", len(words), output)

			if alignErr != nil {
				return fmt.Errorf("%w: alignment failed: %w", pipeline.ErrDegraded, alignErr)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&transcriptPath, flagTranscript, "", "Transcript written into the fallback segment")
	cmd.Flags().StringVarP(&output, flagOutput, "o", pipeline.WordsFile, "Word track output")

	return cmd
}

func (a *app) fallbackWords(transcriptPath, wavPath string, alignErr error) (timeline.WordTrack, error) {
	length, err := audio.Duration(wavPath)
	if err != nil {
		return nil, err
	}

	var clean string

	if transcriptPath != "" {
		raw, readErr := readTranscript("", transcriptPath)
		if readErr != nil {
			return nil, readErr
		}

		clean = text.Parse(raw).Clean()
	}

	a.log.Warn("Word alignment failed, writing a single %.2fs segment: %v", length.Seconds(), alignErr)

	return whisper.Fallback(clean, length.Seconds()), nil
}

func newPhonemesCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "phonemes WORDS",
		Short: "Split a word track into dictionary phonemes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			words, err := timeline.ReadWords(args[0])
			if err != nil {
				return err
			}

			renderPipeline, err := a.pipeline()
			if err != nil {
				return err
			}

			phonemes, report := renderPipeline.Phonemes(words)

			writeErr := timeline.WritePhonemes(output, phonemes)
			if writeErr != nil {
				return writeErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Mapped %d words to %d phonemes into %s\n", report.Words, report.Phonemes, output)

			if len(report.Unmatched) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Unmatched: %s\n", strings.Join(report.Unmatched, ", "))
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, flagOutput, "o", pipeline.PhonemesFile, "Phoneme track output")

	return cmd
}

func newVisemesCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "visemes PHONEMES",
		Short: "Map a phoneme track onto the rig's mouth shapes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phonemes, err := timeline.ReadPhonemes(args[0])
			if err != nil {
				return err
			}

			renderPipeline, err := a.pipeline()
			if err != nil {
				return err
			}

			visemes := renderPipeline.Visemes(phonemes)

			writeErr := timeline.WriteVisemes(output, visemes)
			if writeErr != nil {
				return writeErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Mapped %d phonemes into %s\n", len(visemes), output)

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, flagOutput, "o", pipeline.VisemesFile, "Viseme track output")

	return cmd
}

func newPosesCommand(a *app) *cobra.Command {
	var document string

	cmd := &cobra.Command{
		Use:   "poses TRANSCRIPT WORDS",
		Short: "Merge the transcript's pose and emotion tags into a pose document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readTranscript("", args[0])
			if err != nil {
				return err
			}

			words, err := timeline.ReadWords(args[1])
			if err != nil {
				return err
			}

			desc, err := a.cfg.Descriptor()
			if err != nil {
				return err
			}

			cues, report := text.Parse(raw).Cues(words, desc, a.log)

			merged, err := timeline.MergePoses(document, cues)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added %d poses and %d emotions, %s now holds %d entries\n",
				report.Poses, report.Emotions, document, len(merged))

			if len(report.Skipped) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Skipped emotions: %s\n", strings.Join(report.Skipped, ", "))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&document, flagPoses, pipeline.PosesFile, "Pose document to merge into")

	return cmd
}

func newRenderCommand(a *app) *cobra.Command {
	var (
		posesPath, audioPath, output string
		duration                     float64
		seed                         uint64
	)

	cmd := &cobra.Command{
		Use:   "render VISEMES",
		Short: "Composite a viseme track into a video",
		Long: `Render frames for the viseme track and encode them. The length is taken from
--duration, then from the WAV given with --audio, then from the last viseme.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracks, err := readTracks(args[0], posesPath)
			if err != nil {
				return err
			}

			if duration <= 0 {
				duration, err = trackDuration(tracks, audioPath)
				if err != nil {
					return err
				}
			}

			renderPipeline, err := a.pipeline()
			if err != nil {
				return err
			}

			output = a.outputPath(output, defaultVideoFile)

			missing, frames, err := renderPipeline.Render(cmd.Context(), pipeline.RenderRequest{
				Tracks:     tracks,
				Duration:   duration,
				Seed:       seed,
				AudioPath:  audioPath,
				OutputPath: output,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d frames into %s\n", frames, output)

			if len(missing) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Placeholders: %s\n", strings.Join(missing, ", "))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&posesPath, flagPoses, "", "Pose document to render")
	cmd.Flags().StringVar(&audioPath, flagAudio, "", "WAV audio to mux into the video")
	cmd.Flags().Float64Var(&duration, flagDuration, 0, "Video length in seconds")
	cmd.Flags().Uint64Var(&seed, flagSeed, 0, "Blink and idle motion seed (0 picks one)")
	cmd.Flags().StringVarP(&output, flagOutput, "o", "", "Output video path")

	return cmd
}

func newPipelineCommand(a *app) *cobra.Command {
	var transcriptPath, textFlag, audioPath, workDir, posesPath, output string

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run every stage from transcript to video",
		Long: `Synthesize, align, map and render a transcript. A run that fell back to
silent audio or a single segment still writes its video and exits with
status 2.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readTranscript(textFlag, transcriptPath)
			if err != nil && audioPath == "" {
				return err
			}

			renderPipeline, err := a.pipeline()
			if err != nil {
				return err
			}

			if workDir == "" {
				workDir = a.cfg.Paths.WorkDir
			}

			report, runErr := renderPipeline.Run(cmd.Context(), pipeline.Request{
				Transcript:   raw,
				AudioPath:    audioPath,
				WorkDir:      workDir,
				OutputPath:   a.outputPath(output, defaultVideoFile),
				PoseDocument: posesPath,
			})
			if report != nil && (runErr == nil || errors.Is(runErr, pipeline.ErrDegraded)) {
				fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d frames (%.2fs) into %s\n",
					report.Frames, report.Duration, report.OutputPath)
			}

			return runErr
		},
	}

	cmd.Flags().StringVar(&transcriptPath, flagTranscript, "", "Transcript file")
	cmd.Flags().StringVar(&textFlag, flagText, "", "Transcript text")
	cmd.Flags().StringVar(&audioPath, flagAudio, "", "Existing narration; skips synthesis")
	cmd.Flags().StringVar(&workDir, flagWorkDir, "", "Directory keeping the session documents")
	cmd.Flags().StringVar(&posesPath, flagPoses, "", "Pose document merged with the transcript tags")
	cmd.Flags().StringVarP(&output, flagOutput, "o", "", "Output video path")

	return cmd
}

// readTranscript returns the text flag or the contents of path. Exactly one
// must be set.
func readTranscript(textFlag, path string) (string, error) {
	if (textFlag == "") == (path == "") {
		return "", errEitherTextOrTranscript
	}

	if textFlag != "" {
		return textFlag, nil
	}

	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}

	return string(data), nil
}

func readTracks(visemesPath, posesPath string) (render.Tracks, error) {
	visemes, err := timeline.ReadVisemes(visemesPath)
	if err != nil {
		return render.Tracks{}, err
	}

	tracks := render.Tracks{Visemes: visemes}

	if posesPath != "" {
		tracks.Poses, err = timeline.ReadPoses(posesPath)
		if err != nil {
			return render.Tracks{}, err
		}
	}

	return tracks, nil
}

func trackDuration(tracks render.Tracks, audioPath string) (float64, error) {
	if audioPath != "" {
		length, err := audio.Duration(audioPath)
		if err != nil {
			return 0, err
		}

		return length.Seconds(), nil
	}

	return tracks.Visemes.End(), nil
}

// outputPath defaults a bare file name into the configured output directory.
func (a *app) outputPath(path, fallback string) string {
	if path != "" {
		return path
	}

	return filepath.Join(a.cfg.Paths.OutputDir, fallback)
}

func writeFile(path string, data []byte) error {
	mkdirErr := os.MkdirAll(filepath.Dir(path), dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create output directory: %w", mkdirErr)
	}

	writeErr := os.WriteFile(path, data, filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write %s: %w", path, writeErr)
	}

	return nil
}
