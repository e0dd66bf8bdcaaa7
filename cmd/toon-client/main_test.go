package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/toon-service/internal/pipeline"
	"github.com/book-expert/toon-service/internal/timeline"
)

func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "project.toml")

	content := fmt.Sprintf(`
[paths]
base_logs_dir = %q
assets_dir = %q
output_dir = %q
%s`, filepath.Join(dir, "logs"), filepath.Join(dir, "assets"), filepath.Join(dir, "out"), extra)

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path, dir
}

// execute runs the command tree and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	a := &app{}
	t.Cleanup(a.close)

	var stdout bytes.Buffer

	root := newRootCommand(a)
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)

	err := root.Execute()

	return stdout.String(), err
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitDegraded, exitCode(fmt.Errorf("%w: alignment failed", pipeline.ErrDegraded)))
	assert.Equal(t, exitFailed, exitCode(errors.New("boom")))
}

func TestRootCommand_RegistersEveryStage(t *testing.T) {
	t.Parallel()

	root := newRootCommand(&app{})

	names := make([]string, 0, len(root.Commands()))
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}

	for _, want := range []string{"health", "synthesize", "align", "phonemes", "visemes", "poses", "render", "pipeline"} {
		assert.Contains(t, names, want)
	}
}

func TestReadTranscript(t *testing.T) {
	t.Parallel()

	_, err := readTranscript("", "")
	require.ErrorIs(t, err, errEitherTextOrTranscript)

	_, err = readTranscript("hi", "file.txt")
	require.ErrorIs(t, err, errEitherTextOrTranscript)

	got, err := readTranscript("hi", "")
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	path := filepath.Join(t.TempDir(), "transcript.txt")
	require.NoError(t, os.WriteFile(path, []byte("(smile) Hello"), 0o600))

	got, err = readTranscript("", path)
	require.NoError(t, err)
	assert.Equal(t, "(smile) Hello", got)

	_, err = readTranscript("", filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPhonemesThenVisemes(t *testing.T) {
	t.Parallel()

	configPath, dir := writeConfig(t, "")
	wordsPath := filepath.Join(dir, "words.json")
	phonemesPath := filepath.Join(dir, "phonemes.json")
	visemesPath := filepath.Join(dir, "visemes.json")

	require.NoError(t, timeline.WriteWords(wordsPath, timeline.WordTrack{
		{Start: 0, End: 0.6, Value: "Hello"},
		{Start: 0.6, End: 1.0, Value: "xyzzy123"},
	}))

	out, err := execute(t, "--config", configPath, "phonemes", wordsPath, "-o", phonemesPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Mapped 2 words to 5 phonemes")
	assert.Contains(t, out, "Unmatched: xyzzy123")

	phonemes, err := timeline.ReadPhonemes(phonemesPath)
	require.NoError(t, err)
	require.Len(t, phonemes, 5)
	assert.Equal(t, "SIL", phonemes[4].Value)

	_, err = execute(t, "--config", configPath, "visemes", phonemesPath, "-o", visemesPath)
	require.NoError(t, err)

	visemes, err := timeline.ReadVisemes(visemesPath)
	require.NoError(t, err)
	require.Len(t, visemes, 5)
	assert.Equal(t, "neutral", visemes[4].Value)
}

func TestPosesMergesIntoDocument(t *testing.T) {
	t.Parallel()

	configPath, dir := writeConfig(t, "")
	transcriptPath := filepath.Join(dir, "transcript.txt")
	wordsPath := filepath.Join(dir, "words.json")
	document := filepath.Join(dir, "poses.json")

	require.NoError(t, os.WriteFile(transcriptPath, []byte("(smile)Hello world <att_2_point>"), 0o600))
	require.NoError(t, timeline.WriteWords(wordsPath, timeline.WordTrack{
		{Start: 0, End: 0.5, Value: "Hello"},
		{Start: 0.5, End: 1.0, Value: "world"},
	}))

	out, err := execute(t, "--config", configPath, "poses", transcriptPath, wordsPath, "--poses", document)
	require.NoError(t, err)
	assert.Contains(t, out, "Added 1 poses and 1 emotions")

	_, err = execute(t, "--config", configPath, "poses", transcriptPath, wordsPath, "--poses", document)
	require.NoError(t, err)

	poses, err := timeline.ReadPoses(document)
	require.NoError(t, err)
	assert.Len(t, poses, 4, "second run appends to the document")
}

func TestHealth(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		_, _ = w.Write([]byte(`{"voice_id":"narrator"}`))
	}))
	defer server.Close()

	configPath, _ := writeConfig(t, fmt.Sprintf(`
[tts]
base_url = %q
api_key = "key"
voice_id = "narrator"
`, server.URL))

	out, err := execute(t, "--config", configPath, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "TTS service is healthy")

	badPath, _ := writeConfig(t, fmt.Sprintf(`
[tts]
base_url = %q
api_key = "wrong"
voice_id = "narrator"
`, server.URL))

	_, err = execute(t, "--config", badPath, "health")
	require.Error(t, err)
	assert.Equal(t, exitFailed, exitCode(err))
}

func TestSynthesizeWritesSpeech(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ID3 speech"))
	}))
	defer server.Close()

	configPath, dir := writeConfig(t, fmt.Sprintf(`
[tts]
base_url = %q
api_key = "key"
voice_id = "narrator"
`, server.URL))

	out, err := execute(t, "--config", configPath, "synthesize", "--text", "(smile) Hello <wave> world")
	require.NoError(t, err)

	output := filepath.Join(dir, "out", defaultSpeechFile)
	assert.Contains(t, out, output)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "ID3 speech", string(data))

	_, err = execute(t, "--config", configPath, "synthesize")
	require.ErrorIs(t, err, errEitherTextOrTranscript)
}
