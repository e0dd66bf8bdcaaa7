// Package worker provides a NATS worker that renders toon videos for
// incoming speech and transcript events.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/toon-service/internal/core"
	"github.com/book-expert/toon-service/internal/pipeline"
)

// DefaultHandleTimeout bounds one render when no timeout is configured.
const DefaultHandleTimeout = 10 * time.Minute

const videoExtension = ".mp4"

var (
	// ErrAudioKeyEmpty indicates an audio event without an audio key.
	ErrAudioKeyEmpty = errors.New("audio key cannot be empty")
	// ErrTextKeyEmpty indicates a text event without a text key.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
)

// VideoRenderedEvent is published when a video is ready in the video bucket.
type VideoRenderedEvent struct {
	Header     events.EventHeader `json:"header"`
	VideoKey   string             `json:"video_key"`
	SourceKey  string             `json:"source_key"`
	PageNumber int                `json:"page_number"`
	TotalPages int                `json:"total_pages"`
	Duration   float64            `json:"duration"`
	Frames     int                `json:"frames"`
	Degraded   bool               `json:"degraded"`
	Reasons    []string           `json:"reasons,omitempty"`
}

// Renderer runs one render request.
type Renderer interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Report, error)
}

// Subjects names the subjects the worker listens and publishes on.
type Subjects struct {
	AudioChunkCreated string
	TextProcessed     string
	VideoRendered     string
}

// Stores names the buckets the worker reads inputs from and writes videos to.
// Text may be nil when only audio events are consumed.
type Stores struct {
	Audio core.ObjectStore
	Text  core.ObjectStore
	Video core.ObjectStore
}

// NatsWorker listens for render jobs on NATS subjects and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subjects       Subjects
	stores         Stores
	renderer       Renderer
	log            *logger.Logger
	timeout        time.Duration
	scratchDir     string
}

// Option configures a NatsWorker.
type Option func(*NatsWorker)

// WithTimeout bounds each job.
func WithTimeout(timeout time.Duration) Option {
	return func(w *NatsWorker) {
		if timeout > 0 {
			w.timeout = timeout
		}
	}
}

// WithScratchDir places per-job files under dir.
func WithScratchDir(dir string) Option {
	return func(w *NatsWorker) {
		w.scratchDir = dir
	}
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subjects Subjects,
	stores Stores,
	renderer Renderer,
	log *logger.Logger,
	opts ...Option,
) *NatsWorker {
	w := &NatsWorker{
		natsConnection: natsConnection,
		subjects:       subjects,
		stores:         stores,
		renderer:       renderer,
		log:            log,
		timeout:        DefaultHandleTimeout,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run subscribes to every configured subject and blocks until ctx ends.
func (w *NatsWorker) Run(ctx context.Context) error {
	handlers := map[string]nats.MsgHandler{
		w.subjects.AudioChunkCreated: w.handleAudio,
	}

	if w.stores.Text != nil {
		handlers[w.subjects.TextProcessed] = w.handleText
	}

	subscriptions := make([]*nats.Subscription, 0, len(handlers))

	for subject, handler := range handlers {
		if subject == "" {
			continue
		}

		sub, err := w.natsConnection.Subscribe(subject, handler)
		if err != nil {
			_ = drain(subscriptions)

			return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
		}

		w.log.Info("Listening for render jobs on subject: %s", subject)

		subscriptions = append(subscriptions, sub)
	}

	<-ctx.Done()

	drainErr := drain(subscriptions)
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func drain(subscriptions []*nats.Subscription) error {
	var errs []error

	for _, sub := range subscriptions {
		errs = append(errs, sub.Drain())
	}

	return errors.Join(errs...)
}

func (w *NatsWorker) handleAudio(msg *nats.Msg) {
	var event events.AudioChunkCreatedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		w.log.Error("Failed to parse audio event: %v", err)

		return
	}

	if event.AudioKey == "" {
		w.log.Error("Rejected audio event for workflow %s: %v", event.Header.WorkflowID, ErrAudioKeyEmpty)

		return
	}

	w.process(msg, job{
		header:     event.Header,
		sourceKey:  event.AudioKey,
		pageNumber: event.PageNumber,
		totalPages: event.TotalPages,
		audio:      true,
	})
}

func (w *NatsWorker) handleText(msg *nats.Msg) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		w.log.Error("Failed to parse text event: %v", err)

		return
	}

	if event.TextKey == "" {
		w.log.Error("Rejected text event for workflow %s: %v", event.Header.WorkflowID, ErrTextKeyEmpty)

		return
	}

	w.process(msg, job{
		header:     event.Header,
		sourceKey:  event.TextKey,
		pageNumber: event.PageNumber,
		totalPages: event.TotalPages,
	})
}

type job struct {
	header     events.EventHeader
	sourceKey  string
	pageNumber int
	totalPages int
	audio      bool
}

func (w *NatsWorker) process(msg *nats.Msg, j job) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	reply, err := w.render(ctx, j)
	if err != nil {
		w.log.Error("Failed to render video for workflow %s: %v", j.header.WorkflowID, err)

		return
	}

	publishErr := w.publishReplyEvent(msg, reply)
	if publishErr != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", j.header.WorkflowID, publishErr)
	}
}

// render downloads the job input, runs the pipeline and uploads the video.
func (w *NatsWorker) render(ctx context.Context, j job) (*VideoRenderedEvent, error) {
	dir, tempErr := os.MkdirTemp(w.scratchDir, "toon-job-*")
	if tempErr != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", tempErr)
	}

	defer func() {
		removeErr := os.RemoveAll(dir)
		if removeErr != nil {
			w.log.Warn("Failed to remove job directory '%s': %v", dir, removeErr)
		}
	}()

	source := w.stores.Audio
	if !j.audio {
		source = w.stores.Text
	}

	data, downloadErr := source.Download(ctx, j.sourceKey)
	if downloadErr != nil {
		return nil, fmt.Errorf("failed to download input for key '%s': %w", j.sourceKey, downloadErr)
	}

	req := pipeline.Request{OutputPath: filepath.Join(dir, "toon"+videoExtension)}

	if j.audio {
		req.AudioPath = filepath.Join(dir, "input"+filepath.Ext(j.sourceKey))

		writeErr := os.WriteFile(req.AudioPath, data, 0o600)
		if writeErr != nil {
			return nil, fmt.Errorf("failed to stage audio: %w", writeErr)
		}
	} else {
		req.Transcript = string(data)
	}

	report, runErr := w.renderer.Run(ctx, req)
	if runErr != nil && !errors.Is(runErr, pipeline.ErrDegraded) {
		return nil, runErr
	}

	video, readErr := os.ReadFile(req.OutputPath)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read rendered video: %w", readErr)
	}

	videoKey := uuid.NewString() + videoExtension

	uploadErr := w.stores.Video.Upload(ctx, videoKey, video)
	if uploadErr != nil {
		return nil, fmt.Errorf("failed to upload video for key '%s': %w", videoKey, uploadErr)
	}

	w.log.Info("Rendered %s from %s (%d frames, degraded=%t)", videoKey, j.sourceKey, report.Frames, report.Degraded)

	return &VideoRenderedEvent{
		Header:     replyHeader(j.header),
		VideoKey:   videoKey,
		SourceKey:  j.sourceKey,
		PageNumber: j.pageNumber,
		TotalPages: j.totalPages,
		Duration:   report.Duration,
		Frames:     report.Frames,
		Degraded:   report.Degraded,
		Reasons:    report.Reasons,
	}, nil
}

func replyHeader(in events.EventHeader) events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: in.WorkflowID,
		EventID:    uuid.NewString(),
		UserID:     in.UserID,
		TenantID:   in.TenantID,
	}
}

// publishReplyEvent responds to the request when it carries a reply subject
// and publishes on the rendered subject when one is configured.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *VideoRenderedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	var errs []string

	if msg.Reply != "" {
		respondErr := msg.Respond(replyData)
		if respondErr != nil {
			errs = append(errs, respondErr.Error())
		}
	}

	if w.subjects.VideoRendered != "" {
		publishErr := w.natsConnection.Publish(w.subjects.VideoRendered, replyData)
		if publishErr != nil {
			errs = append(errs, publishErr.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to publish reply event: %s", strings.Join(errs, "; "))
	}

	return nil
}
