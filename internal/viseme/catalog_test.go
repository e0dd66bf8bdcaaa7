// Package viseme_test tests the phoneme to mouth shape catalog.
package viseme_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/toon-service/internal/timeline"
	"github.com/book-expert/toon-service/internal/viseme"
)

func TestCatalog_LookupIsTotalAndDeterministic(t *testing.T) {
	t.Parallel()

	catalog := viseme.DefaultCatalog()

	symbols := []string{"AA", "AE", "AO", "B", "M", "P", "F", "V", "L", "R", "W", "SH", "CH", "JH", "TH", "DH", "SIL"}
	for _, symbol := range symbols {
		first := catalog.Lookup(symbol)
		assert.NotEmpty(t, first)
		assert.Equal(t, first, catalog.Lookup(symbol), "symbol %s", symbol)
	}

	assert.Equal(t, viseme.BMP, catalog.Lookup("M"))
	assert.Equal(t, viseme.O, catalog.Lookup("OW"))
	assert.Equal(t, viseme.Neutral, catalog.Lookup("SIL"))
}

func TestCatalog_UnknownSymbolUsesDefault(t *testing.T) {
	t.Parallel()

	catalog := viseme.DefaultCatalog()

	assert.Equal(t, viseme.Neutral, catalog.Lookup("???"))
	assert.Equal(t, viseme.Neutral, catalog.Lookup(""))
	assert.Equal(t, catalog.Default(), catalog.Lookup("XX"))
}

func TestCatalog_IgnoresStressDigits(t *testing.T) {
	t.Parallel()

	catalog := viseme.DefaultCatalog()

	assert.Equal(t, catalog.Lookup("AH"), catalog.Lookup("AH0"))
	assert.Equal(t, catalog.Lookup("OW"), catalog.Lookup("ow1"))
}

func TestCatalog_Overrides(t *testing.T) {
	t.Parallel()

	catalog := viseme.NewCatalog(map[string]string{"eh": "aei.png"}, "closed.png")

	assert.Equal(t, viseme.AEI, catalog.Lookup("EH"))
	assert.Equal(t, "closed", catalog.Lookup("NOPE"))
	assert.Equal(t, viseme.EE, viseme.DefaultCatalog().Lookup("EH"), "default catalog is unaffected")
}

func TestCatalog_MapCopiesIntervalsAndIsIdempotent(t *testing.T) {
	t.Parallel()

	phonemes := timeline.PhonemeTrack{
		{Start: 0, End: 0.15, Value: "HH"},
		{Start: 0.15, End: 0.3, Value: "AH"},
		{Start: 0.3, End: 0.45, Value: "L"},
		{Start: 0.45, End: 0.6, Value: "OW"},
	}

	catalog := viseme.DefaultCatalog()
	visemes := catalog.Map(phonemes)
	require.Len(t, visemes, len(phonemes))

	for i := range phonemes {
		assert.InDelta(t, phonemes[i].Start, visemes[i].Start, 0)
		assert.InDelta(t, phonemes[i].End, visemes[i].End, 0)
	}

	first, err := timeline.EncodeLabeled(catalog.Map(phonemes), timeline.KeyViseme)
	require.NoError(t, err)

	second, err := timeline.EncodeLabeled(catalog.Map(phonemes), timeline.KeyViseme)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCanonical(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "o", viseme.Canonical("o.png"))
	assert.Equal(t, "o", viseme.Canonical("visemes/o.png"))
	assert.Equal(t, "neutral", viseme.Canonical(" neutral "))
	assert.Empty(t, viseme.Canonical(""))
}
