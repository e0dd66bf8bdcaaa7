// Package phoneme_test tests dictionary loading and word-to-phoneme mapping.
package phoneme_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/toon-service/internal/phoneme"
	"github.com/book-expert/toon-service/internal/timeline"
)

const sampleDictionary = `;;; sample CMU dictionary
;;; comments are ignored
hello HH AH L OW
read R IY D
read(2) R EH D
tomato(2) T AH M AA T OW
tomato(1) T AH M EY T OW
don't D OW N T # contraction
`

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "phoneme-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func TestParseDictionary(t *testing.T) {
	t.Parallel()

	dict, err := phoneme.ParseDictionary(strings.NewReader(sampleDictionary))
	require.NoError(t, err)

	phonemes, ok := dict.Lookup("HELLO")
	require.True(t, ok)
	assert.Equal(t, []string{"HH", "AH", "L", "OW"}, phonemes)

	phonemes, ok = dict.Lookup("READ")
	require.True(t, ok)
	assert.Equal(t, []string{"R", "IY", "D"}, phonemes, "exact entry wins over variants")

	phonemes, ok = dict.Lookup("TOMATO")
	require.True(t, ok)
	assert.Equal(t, []string{"T", "AH", "M", "EY", "T", "OW"}, phonemes, "lowest variant wins")

	phonemes, ok = dict.Lookup("DON'T")
	require.True(t, ok)
	assert.Equal(t, []string{"D", "OW", "N", "T"}, phonemes)

	_, ok = dict.Lookup(";;;")
	assert.False(t, ok)
}

func TestParseDictionary_Empty(t *testing.T) {
	t.Parallel()

	_, err := phoneme.ParseDictionary(strings.NewReader(";;; nothing here\n"))
	require.ErrorIs(t, err, phoneme.ErrEmptyDictionary)
}

func TestLoadDictionary_MissingFileUsesFallback(t *testing.T) {
	t.Parallel()

	dict := phoneme.LoadDictionary(filepath.Join(t.TempDir(), "missing.dict"), newTestLogger(t))
	require.NotNil(t, dict)

	phonemes, ok := dict.Lookup("ANIMATION")
	require.True(t, ok)
	assert.Len(t, phonemes, 8)
}

func TestLoadDictionary_ReadsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cmudict-en-us.dict")
	require.NoError(t, os.WriteFile(path, []byte(sampleDictionary), 0o600))

	dict := phoneme.LoadDictionary(path, newTestLogger(t))

	_, ok := dict.Lookup("TOMATO")
	assert.True(t, ok)

	_, ok = dict.Lookup("ANIMATION")
	assert.False(t, ok, "file dictionary replaces the fallback")
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		" Hello,":   "HELLO",
		"(world)!":  "WORLD",
		"\"quote\"": "QUOTE",
		"don't":     "DON'T",
		"1999":      "",
		"  ":        "",
	}

	for input, want := range cases {
		assert.Equal(t, want, phoneme.Normalize(input), "input %q", input)
	}
}

func TestMapper_HelloSplitsIntoEqualIntervals(t *testing.T) {
	t.Parallel()

	mapper := phoneme.NewMapper(phoneme.NewDictionary(map[string][]string{
		"HELLO": {"HH", "AH", "L", "OW"},
	}), newTestLogger(t))

	words := timeline.WordTrack{{Start: 0.0, End: 0.6, Value: "Hello"}}

	track, report := mapper.Map(words)
	require.Len(t, track, 4)
	assert.Empty(t, report.Unmatched)

	boundaries := []float64{0.0, 0.15, 0.30, 0.45, 0.60}
	for i, event := range track {
		assert.InDelta(t, boundaries[i], event.Start, 1e-9)
		assert.InDelta(t, boundaries[i+1], event.End, 1e-9)
		assert.InDelta(t, 0.15, event.Duration(), 1e-9)
	}

	assert.Equal(t, []string{"HH", "AH", "L", "OW"}, []string{
		track[0].Value, track[1].Value, track[2].Value, track[3].Value,
	})
}

func TestMapper_PartitionIsGapFree(t *testing.T) {
	t.Parallel()

	mapper := phoneme.NewMapper(phoneme.FallbackDictionary(), newTestLogger(t))

	words := timeline.WordTrack{
		{Start: 0.11, End: 0.97, Value: "transcript"},
		{Start: 1.0, End: 1.33, Value: "for"},
		{Start: 1.4, End: 2.05, Value: "animation."},
	}

	track, _ := mapper.Map(words)
	require.NoError(t, track.Validate())

	offset := 0

	for _, word := range words {
		phonemes, found := mapper.Phonemes(word.Value)
		require.True(t, found)

		sum := 0.0
		for i := range phonemes {
			event := track[offset+i]
			sum += event.Duration()

			if i > 0 {
				assert.InDelta(t, track[offset+i-1].End, event.Start, 1e-12, "contiguous")
			}
		}

		assert.InDelta(t, word.Duration(), sum, 1e-9)
		assert.InDelta(t, word.End, track[offset+len(phonemes)-1].End, 0)

		offset += len(phonemes)
	}
}

func TestMapper_UnmatchedWordFallsBackToSilence(t *testing.T) {
	t.Parallel()

	mapper := phoneme.NewMapper(phoneme.FallbackDictionary(), newTestLogger(t))

	track, report := mapper.Map(timeline.WordTrack{{Start: 1.2, End: 1.9, Value: "xyzzy123"}})
	require.Len(t, track, 1)
	assert.Equal(t, phoneme.Silence, track[0].Value)
	assert.InDelta(t, 1.2, track[0].Start, 0)
	assert.InDelta(t, 1.9, track[0].End, 0)
	assert.Contains(t, report.Unmatched, "xyzzy123")
}

func TestMapper_ReportDoesNotChangeOutput(t *testing.T) {
	t.Parallel()

	mapper := phoneme.NewMapper(nil, newTestLogger(t))
	words := timeline.WordTrack{
		{Start: 0, End: 0.5, Value: "hello"},
		{Start: 0.5, End: 1, Value: "qwertyuiop"},
	}

	first, firstReport := mapper.Map(words)
	second, secondReport := mapper.Map(words)

	assert.Equal(t, first, second)
	assert.Equal(t, firstReport, secondReport)
	assert.Equal(t, 5, firstReport.Phonemes)
}
