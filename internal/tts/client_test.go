// Package tts_test tests the speech synthesis client against a fake service.
package tts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/toon-service/internal/tts"
)

const (
	testAPIKey  = "test-key"
	testVoiceID = "voice-123"
	testText    = "Hello, world!"
	testAudio   = "ID3 fake mpeg"
)

func newTestClient(serverURL string) *tts.Client {
	return tts.NewClient(tts.Config{
		BaseURL: serverURL,
		APIKey:  testAPIKey,
		VoiceID: testVoiceID,
		Timeout: 5 * time.Second,
	})
}

func TestClient_Synthesize_Success(t *testing.T) {
	t.Parallel()

	var received tts.Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/text-to-speech/"+testVoiceID, r.URL.Path)
		assert.Equal(t, testAPIKey, r.Header.Get("xi-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte(testAudio))
	}))
	defer server.Close()

	audio, err := newTestClient(server.URL).Synthesize(context.Background(), testText)
	require.NoError(t, err)

	assert.Equal(t, testAudio, string(audio))
	assert.Equal(t, testText, received.Text)
	assert.Equal(t, tts.DefaultModelID, received.ModelID)
	assert.InDelta(t, tts.DefaultStability, received.VoiceSettings.Stability, 1e-9)
	assert.InDelta(t, tts.DefaultSimilarityBoost, received.VoiceSettings.SimilarityBoost, 1e-9)
}

func TestClient_Synthesize_ClassifiesFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		status  int
		body    string
		want    error
		message string
	}{
		{
			name:    "auth",
			status:  http.StatusUnauthorized,
			body:    `{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`,
			want:    tts.ErrAuthFailed,
			message: "Invalid API key (invalid_api_key)",
		},
		{
			name:    "voice",
			status:  http.StatusNotFound,
			body:    `{"detail":"voice not found"}`,
			want:    tts.ErrUnknownVoice,
			message: "voice not found",
		},
		{
			name:    "server",
			status:  http.StatusInternalServerError,
			body:    "upstream exploded",
			want:    tts.ErrServer,
			message: "upstream exploded",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Synthesize(context.Background(), testText)
			require.ErrorIs(t, err, tc.want)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestClient_Synthesize_ValidatesInput(t *testing.T) {
	t.Parallel()

	client := newTestClient("http://127.0.0.1:0")

	_, err := client.Synthesize(context.Background(), "   ")
	require.ErrorIs(t, err, tts.ErrTextEmpty)

	_, err = tts.NewClient(tts.Config{VoiceID: testVoiceID}).Synthesize(context.Background(), testText)
	require.ErrorIs(t, err, tts.ErrMissingAPIKey)

	_, err = tts.NewClient(tts.Config{APIKey: testAPIKey}).Synthesize(context.Background(), testText)
	require.ErrorIs(t, err, tts.ErrMissingVoice)
}

func TestClient_Synthesize_EmptyAudio(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Synthesize(context.Background(), testText)
	require.ErrorIs(t, err, tts.ErrEmptyAudio)
}

func TestClient_Synthesize_UnreachableService(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	serverURL := server.URL
	server.Close()

	_, err := newTestClient(serverURL).Synthesize(context.Background(), testText)
	require.Error(t, err)
	assert.Contains(t, err.Error(), serverURL)
}

func TestClient_HealthCheck(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)

		if r.URL.Path != "/v1/voices/"+testVoiceID {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		_, _ = w.Write([]byte(`{"voice_id":"voice-123"}`))
	}))
	defer server.Close()

	require.NoError(t, newTestClient(server.URL).HealthCheck(context.Background()))

	other := tts.NewClient(tts.Config{BaseURL: server.URL, APIKey: testAPIKey, VoiceID: "missing"})
	require.ErrorIs(t, other.HealthCheck(context.Background()), tts.ErrUnknownVoice)
}
