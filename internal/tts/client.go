// Package tts provides the speech synthesis client used to voice a
// transcript before it is aligned and animated.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API endpoints and paths.
const (
	DefaultBaseURL  = "https://api.elevenlabs.io"
	apiTextToSpeech = "/v1/text-to-speech/"
	apiVoices       = "/v1/voices/"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerAPIKey      = "xi-api-key"
	contentTypeJSON   = "application/json"
	contentTypeMPEG   = "audio/mpeg"
)

// Default values.
const (
	DefaultModelID         = "eleven_monolingual_v1"
	DefaultStability       = 0.5
	DefaultSimilarityBoost = 0.75
	DefaultTimeout         = 60 * time.Second
	maxErrorBody           = 4096
)

// Error messages.
const (
	errFmtServiceStatus = "%w: %s: %s"
	errFmtSendRequest   = "failed to send request to TTS service at %s: %w"
)

// Static errors.
var (
	ErrTextEmpty     = errors.New("text cannot be empty")
	ErrMissingAPIKey = errors.New("TTS API key is not set")
	ErrMissingVoice  = errors.New("TTS voice id is not set")
	ErrAuthFailed    = errors.New("TTS authentication failed")
	ErrUnknownVoice  = errors.New("TTS voice not found")
	ErrServer        = errors.New("TTS service error")
	ErrEmptyAudio    = errors.New("received empty audio data")
)

// Config configures the client.
type Config struct {
	BaseURL         string
	APIKey          string
	VoiceID         string
	ModelID         string
	Stability       float64
	SimilarityBoost float64
	Timeout         time.Duration
}

// VoiceSettings tune the synthesized voice.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Request is the JSON payload of a synthesis call.
type Request struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// errorResponse is the service's error envelope. Detail is either a string
// or an object carrying status and message.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Client calls the speech synthesis HTTP API.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// NewClient creates a client. Zero fields take their defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}

	if cfg.Stability == 0 {
		cfg.Stability = DefaultStability
	}

	if cfg.SimilarityBoost == 0 {
		cfg.SimilarityBoost = DefaultSimilarityBoost
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Synthesize converts text to MPEG audio with the configured voice.
// Authentication failures wrap ErrAuthFailed, an unknown voice wraps
// ErrUnknownVoice and every other non-OK response wraps ErrServer.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrTextEmpty
	}

	credentialsErr := c.checkCredentials()
	if credentialsErr != nil {
		return nil, credentialsErr
	}

	requestBody, marshalErr := json.Marshal(Request{
		Text:    text,
		ModelID: c.cfg.ModelID,
		VoiceSettings: VoiceSettings{
			Stability:       c.cfg.Stability,
			SimilarityBoost: c.cfg.SimilarityBoost,
		},
	})
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", marshalErr)
	}

	endpoint := c.cfg.BaseURL + apiTextToSpeech + url.PathEscape(c.cfg.VoiceID)

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create request: %w", reqErr)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeMPEG)
	httpReq.Header.Set(headerAPIKey, c.cfg.APIKey)

	resp, doErr := c.httpClient.Do(httpReq)
	if doErr != nil {
		return nil, fmt.Errorf(errFmtSendRequest, c.cfg.BaseURL, doErr)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	audioData, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", readErr)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// HealthCheck verifies the API key and voice by fetching the voice record.
func (c *Client) HealthCheck(ctx context.Context) error {
	credentialsErr := c.checkCredentials()
	if credentialsErr != nil {
		return credentialsErr
	}

	endpoint := c.cfg.BaseURL + apiVoices + url.PathEscape(c.cfg.VoiceID)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if reqErr != nil {
		return fmt.Errorf("failed to create health check request: %w", reqErr)
	}

	req.Header.Set(headerAPIKey, c.cfg.APIKey)

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.cfg.BaseURL, doErr)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	return nil
}

func (c *Client) checkCredentials() error {
	if c.cfg.APIKey == "" {
		return ErrMissingAPIKey
	}

	if c.cfg.VoiceID == "" {
		return ErrMissingVoice
	}

	return nil
}

// parseErrorResponse classifies a non-OK response and keeps the service's
// message for diagnostics.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	sentinel := ErrServer

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrAuthFailed
	case http.StatusNotFound:
		sentinel = ErrUnknownVoice
	}

	return fmt.Errorf(errFmtServiceStatus, sentinel, resp.Status, errorMessage(body))
}

func errorMessage(body []byte) string {
	var envelope errorResponse

	unmarshalErr := json.Unmarshal(body, &envelope)
	if unmarshalErr != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var detail errorDetail

	objectErr := json.Unmarshal(envelope.Detail, &detail)
	if objectErr == nil && detail.Message != "" {
		if detail.Status != "" {
			return detail.Message + " (" + detail.Status + ")"
		}

		return detail.Message
	}

	var text string

	stringErr := json.Unmarshal(envelope.Detail, &text)
	if stringErr == nil {
		return text
	}

	return strings.TrimSpace(string(body))
}
