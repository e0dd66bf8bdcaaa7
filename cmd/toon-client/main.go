// main package for the toon-client, a command line driver that runs the
// render pipeline end to end or one stage at a time.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/spf13/cobra"

	"github.com/book-expert/toon-service/internal/config"
	"github.com/book-expert/toon-service/internal/metrics"
	"github.com/book-expert/toon-service/internal/pipeline"
	"github.com/book-expert/toon-service/internal/service"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailed   = 1
	exitDegraded = 2
)

// Flag names.
const (
	flagConfig     = "config"
	flagVerbose    = "verbose"
	flagOutput     = "output"
	flagText       = "text"
	flagTranscript = "transcript"
	flagAudio      = "audio"
	flagPoses      = "poses"
	flagDuration   = "duration"
	flagSeed       = "seed"
	flagWorkDir    = "work-dir"
)

// File names.
const (
	logFileNameDefault = "toon-client.log"
	logFileNameVerbose = "toon-client-verbose.log"
	bootstrapLogFile   = "toon-client-bootstrap.log"
)

var errEitherTextOrTranscript = errors.New("exactly one of --text or --transcript must be provided")

// app carries the state shared by every subcommand. It is populated by the
// root command's PersistentPreRunE and closed by the caller of Execute.
type app struct {
	configPath string
	verbose    bool

	cfg *config.Config
	log *logger.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := &app{}

	err := newRootCommand(a).ExecuteContext(ctx)

	a.close()
	stop()

	code := exitCode(err)
	if code != exitOK {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	os.Exit(code)
}

// exitCode maps a command result onto the process status. Degraded runs
// wrote their output but still report failure to the caller.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrDegraded):
		return exitDegraded
	default:
		return exitFailed
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "toon-client",
		Short: "Render lip-synced toon videos from transcripts",
		Long: `toon-client turns a transcript into a lip-synced character video.

Run the whole chain with 'pipeline', or a single stage with 'synthesize',
'align', 'phonemes', 'visemes', 'poses' and 'render'. Stage commands read and
write the same JSON documents the pipeline keeps in its work directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, flagConfig, "", "Path to project.toml (defaults to the configurator search)")
	root.PersistentFlags().BoolVar(&a.verbose, flagVerbose, false, "Enable verbose logging")

	root.AddCommand(
		newHealthCommand(a),
		newSynthesizeCommand(a),
		newAlignCommand(a),
		newPhonemesCommand(a),
		newVisemesCommand(a),
		newPosesCommand(a),
		newRenderCommand(a),
		newPipelineCommand(a),
	)

	return root
}

// setup loads the configuration and opens the log file.
func (a *app) setup() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	logFileName := logFileNameDefault
	if a.verbose {
		logFileName = logFileNameVerbose
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg, a.log = cfg, log

	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	if a.configPath != "" {
		return config.LoadFile(a.configPath)
	}

	bootstrapLog, err := logger.New(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

func (a *app) close() {
	if a.log != nil {
		_ = a.log.Close()
	}
}

func (a *app) pipeline() (*pipeline.Pipeline, error) {
	return service.NewPipeline(a.cfg, a.log, metrics.New())
}
