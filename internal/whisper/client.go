// Package whisper aligns synthesized speech to words with the Whisper
// transcription API.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/toon-service/internal/timeline"
)

// Defaults.
const (
	DefaultBaseURL  = "https://api.openai.com/v1/audio/transcriptions"
	DefaultModel    = "whisper-1"
	DefaultLanguage = "en"
	DefaultTimeout  = 120 * time.Second

	// EnvAPIKey is read when the configuration carries no key.
	EnvAPIKey = "OPENAI_API_KEY"

	responseFormatVerbose = "verbose_json"
	granularityWord       = "word"
	maxErrorBody          = 4096
)

// Error messages.
const (
	errFmtOpenFile        = "failed to open audio file: %w"
	errFmtCreateFormFile  = "failed to create form file: %w"
	errFmtCopyFileData    = "failed to copy file data: %w"
	errFmtWriteField      = "failed to write %s field: %w"
	errFmtCloseWriter     = "failed to close multipart writer: %w"
	errFmtCreateRequest   = "failed to create request: %w"
	errFmtMakeRequest     = "failed to make request to %s: %w"
	errFmtAPIStatus       = "%w: status %d: %s"
	errFmtDecodeResponse  = "failed to decode response: %w"
	logFmtCloseFileFailed = "Failed to close audio file %s: %v"
)

// HTTP headers.
const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
)

// Form field names.
const (
	formFieldFile           = "file"
	formFieldModel          = "model"
	formFieldLanguage       = "language"
	formFieldResponseFormat = "response_format"
	formFieldGranularities  = "timestamp_granularities[]"
)

var (
	// ErrMissingAPIKey is returned when neither the configuration nor the
	// environment supplies a key.
	ErrMissingAPIKey = errors.New(EnvAPIKey + " environment variable not set")

	// ErrRequestFailed wraps every non-OK API response.
	ErrRequestFailed = errors.New("transcription request failed")

	// ErrNoWords is returned when a transcription yields no timed words.
	ErrNoWords = errors.New("transcription contains no words")
)

// Config configures the client.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// Word is one timed word of a verbose transcription.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is one timed phrase of a verbose transcription.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Response is the verbose_json transcription document.
type Response struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Words    []Word    `json:"words"`
	Segments []Segment `json:"segments"`
}

// Client calls the transcription API.
type Client struct {
	httpClient *http.Client
	log        *logger.Logger
	cfg        Config
}

// NewClient creates a client. Zero fields take their defaults and an empty
// key is read from OPENAI_API_KEY.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvAPIKey)
	}

	return &Client{
		cfg:        cfg,
		log:        log,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Align transcribes audioPath and returns its word timings. A transcription
// without words is reported as ErrNoWords so callers can fall back.
func (c *Client) Align(ctx context.Context, audioPath string) (timeline.WordTrack, error) {
	resp, err := c.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	words := resp.WordTrack()
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoWords, audioPath)
	}

	return words, nil
}

// Transcribe uploads audioPath and requests word-level timestamps.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*Response, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, contentType, formErr := c.buildForm(audioPath)
	if formErr != nil {
		return nil, formErr
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, body)
	if reqErr != nil {
		return nil, fmt.Errorf(errFmtCreateRequest, reqErr)
	}

	req.Header.Set(headerAuthorization, "Bearer "+c.cfg.APIKey)
	req.Header.Set(headerContentType, contentType)

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf(errFmtMakeRequest, c.cfg.BaseURL, doErr)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return nil, fmt.Errorf(errFmtAPIStatus, ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var transcription Response

	decodeErr := json.NewDecoder(resp.Body).Decode(&transcription)
	if decodeErr != nil {
		return nil, fmt.Errorf(errFmtDecodeResponse, decodeErr)
	}

	return &transcription, nil
}

func (c *Client) buildForm(audioPath string) (*bytes.Buffer, string, error) {
	file, openErr := os.Open(audioPath) // #nosec G304
	if openErr != nil {
		return nil, "", fmt.Errorf(errFmtOpenFile, openErr)
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil && c.log != nil {
			c.log.Warn(logFmtCloseFileFailed, audioPath, closeErr)
		}
	}()

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, partErr := writer.CreateFormFile(formFieldFile, filepath.Base(audioPath))
	if partErr != nil {
		return nil, "", fmt.Errorf(errFmtCreateFormFile, partErr)
	}

	_, copyErr := io.Copy(part, file)
	if copyErr != nil {
		return nil, "", fmt.Errorf(errFmtCopyFileData, copyErr)
	}

	fields := [][2]string{
		{formFieldModel, c.cfg.Model},
		{formFieldLanguage, c.cfg.Language},
		{formFieldResponseFormat, responseFormatVerbose},
		{formFieldGranularities, granularityWord},
	}

	for _, field := range fields {
		if field[1] == "" {
			continue
		}

		fieldErr := writer.WriteField(field[0], field[1])
		if fieldErr != nil {
			return nil, "", fmt.Errorf(errFmtWriteField, field[0], fieldErr)
		}
	}

	closeErr := writer.Close()
	if closeErr != nil {
		return nil, "", fmt.Errorf(errFmtCloseWriter, closeErr)
	}

	return &buf, writer.FormDataContentType(), nil
}
