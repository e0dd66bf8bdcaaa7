package phoneme

import (
	"strings"
	"unicode"

	"github.com/book-expert/logger"

	"github.com/book-expert/toon-service/internal/timeline"
)

// Silence is the phoneme emitted for words missing from the dictionary.
const Silence = "SIL"

// maxReportedWords bounds how many unmatched words are listed in the log.
const maxReportedWords = 10

// Report summarizes a mapping run.
type Report struct {
	Words     int
	Phonemes  int
	Unmatched []string
}

// Mapper converts word tracks into phoneme tracks.
type Mapper struct {
	dict     *Dictionary
	fallback string
	log      *logger.Logger
}

// NewMapper creates a mapper over dict. A nil dict uses the built-in
// fallback dictionary.
func NewMapper(dict *Dictionary, log *logger.Logger) *Mapper {
	if dict == nil {
		dict = FallbackDictionary()
	}

	return &Mapper{dict: dict, fallback: Silence, log: log}
}

// Normalize strips surrounding punctuation, digits, brackets and whitespace
// and upper-cases the word to match dictionary keys.
func Normalize(word string) string {
	trimmed := strings.TrimFunc(word, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsDigit(r) || unicode.IsSymbol(r)
	})

	return strings.ToUpper(trimmed)
}

// Phonemes returns the phoneme sequence for a raw word and whether the
// dictionary knew it. Unknown words yield the single fallback phoneme.
func (m *Mapper) Phonemes(word string) ([]string, bool) {
	key := Normalize(word)
	if key != "" {
		if phonemes, ok := m.dict.Lookup(key); ok && len(phonemes) > 0 {
			return phonemes, true
		}
	}

	return []string{m.fallback}, false
}

// Map distributes each word's interval evenly across its phonemes. Words
// that cannot be found produce one fallback phoneme spanning the whole word
// and are listed in the report; they never fail the mapping.
func (m *Mapper) Map(words timeline.WordTrack) (timeline.PhonemeTrack, Report) {
	report := Report{Words: len(words)}
	track := make(timeline.PhonemeTrack, 0, len(words)*4)

	for _, word := range words {
		phonemes, found := m.Phonemes(word.Value)
		if !found {
			unmatched := strings.ToLower(strings.TrimSpace(word.Value))
			report.Unmatched = append(report.Unmatched, unmatched)
			m.log.Warn("Word '%s' not found in pronunciation dictionary, using fallback '%s'", unmatched, m.fallback)
		}

		track = append(track, split(word, phonemes)...)
	}

	report.Phonemes = len(track)
	m.logSummary(report)

	return track, report
}

// split partitions [start, end) into len(phonemes) equal, contiguous
// intervals. The last interval ends exactly at end.
func split(word timeline.Event[string], phonemes []string) timeline.PhonemeTrack {
	count := len(phonemes)
	step := word.Duration() / float64(count)
	out := make(timeline.PhonemeTrack, count)

	for i, phoneme := range phonemes {
		start := word.Start + float64(i)*step
		end := word.Start + float64(i+1)*step

		if i == count-1 {
			end = word.End
		}

		out[i] = timeline.Event[string]{Start: start, End: end, Value: phoneme}
	}

	return out
}

func (m *Mapper) logSummary(report Report) {
	m.log.Info("Generated %d phoneme entries from %d words", report.Phonemes, report.Words)

	if len(report.Unmatched) == 0 {
		return
	}

	if len(report.Unmatched) > maxReportedWords {
		m.log.Warn("Unmatched words: %d, first %d: %v", len(report.Unmatched), maxReportedWords,
			report.Unmatched[:maxReportedWords])

		return
	}

	m.log.Warn("Unmatched words: %d: %v", len(report.Unmatched), report.Unmatched)
}
