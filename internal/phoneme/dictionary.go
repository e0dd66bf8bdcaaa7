// Package phoneme maps timed words to timed ARPABET phonemes using a CMU
// style pronunciation dictionary.
package phoneme

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/book-expert/logger"
)

// Dictionary format markers.
const (
	commentPrefix  = ";;;"
	inlineComment  = "#"
	variantOpening = "("
)

// ErrEmptyDictionary is returned when a dictionary source holds no entries.
var ErrEmptyDictionary = errors.New("dictionary has no entries")

// Dictionary maps upper-case words, including "WORD(n)" variants, to their
// phoneme sequences.
type Dictionary struct {
	entries     map[string][]string
	variants    map[string][]string
	variantKeys map[string]string
}

// NewDictionary builds a dictionary from entries. Keys are upper-cased.
func NewDictionary(entries map[string][]string) *Dictionary {
	dict := &Dictionary{
		entries:     make(map[string][]string, len(entries)),
		variants:    make(map[string][]string),
		variantKeys: make(map[string]string),
	}

	for word, phonemes := range entries {
		dict.add(word, phonemes)
	}

	return dict
}

// FallbackDictionary returns the small built-in dictionary used when no
// dictionary file can be read.
func FallbackDictionary() *Dictionary {
	return NewDictionary(map[string][]string{
		"HELLO":      {"HH", "AH", "L", "OW"},
		"WORLD":      {"W", "ER", "L", "D"},
		"THIS":       {"DH", "IH", "S"},
		"IS":         {"IH", "Z"},
		"A":          {"AH"},
		"TEST":       {"T", "EH", "S", "T"},
		"TRANSCRIPT": {"T", "R", "AE", "N", "S", "K", "R", "IH", "P", "T"},
		"FOR":        {"F", "AO", "R"},
		"ANIMATION":  {"AE", "N", "AH", "M", "EY", "SH", "AH", "N"},
	})
}

// ParseDictionary reads "WORD  PH1 PH2 ..." lines. Lines starting with ";;;"
// and text after "#" are ignored.
func ParseDictionary(r io.Reader) (*Dictionary, error) {
	dict := NewDictionary(nil)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, commentPrefix) {
			continue
		}

		if idx := strings.Index(line, inlineComment); idx >= 0 {
			line = line[:idx]
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		dict.add(fields[0], fields[1:])
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return nil, fmt.Errorf("failed to scan dictionary: %w", scanErr)
	}

	if dict.Len() == 0 {
		return nil, ErrEmptyDictionary
	}

	return dict, nil
}

// LoadDictionary reads the dictionary at path. Any failure to read or parse
// the file is logged and the built-in fallback dictionary is returned, so
// the result is never nil.
func LoadDictionary(path string, log *logger.Logger) *Dictionary {
	file, err := os.Open(path)
	if err != nil {
		log.Warn("Pronunciation dictionary %s unavailable, using built-in fallback: %v", path, err)

		return FallbackDictionary()
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			log.Warn("Failed to close dictionary %s: %v", path, closeErr)
		}
	}()

	dict, parseErr := ParseDictionary(file)
	if parseErr != nil {
		log.Warn("Pronunciation dictionary %s unreadable, using built-in fallback: %v", path, parseErr)

		return FallbackDictionary()
	}

	log.Info("Loaded %d entries from pronunciation dictionary %s", dict.Len(), path)

	return dict
}

// Len returns the number of entries, variants included.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// Lookup returns the phonemes for an upper-case word: the exact entry when
// present, otherwise the lowest "WORD(n)" variant.
func (d *Dictionary) Lookup(word string) ([]string, bool) {
	if phonemes, ok := d.entries[word]; ok {
		return phonemes, true
	}

	if phonemes, ok := d.variants[word]; ok {
		return phonemes, true
	}

	return nil, false
}

func (d *Dictionary) add(word string, phonemes []string) {
	key := strings.ToUpper(word)
	seq := make([]string, len(phonemes))

	for i, phoneme := range phonemes {
		seq[i] = strings.ToUpper(phoneme)
	}

	d.entries[key] = seq

	base, _, isVariant := strings.Cut(key, variantOpening)
	if !isVariant || base == "" {
		return
	}

	// Keep the lexically smallest variant so lookups do not depend on file
	// or map order.
	current, exists := d.variantKeys[base]
	if !exists || key < current {
		d.variants[base] = seq
		d.variantKeys[base] = key
	}
}

// Words returns the dictionary's words in sorted order.
func (d *Dictionary) Words() []string {
	words := make([]string, 0, len(d.entries))

	for word := range d.entries {
		words = append(words, word)
	}

	sort.Strings(words)

	return words
}
