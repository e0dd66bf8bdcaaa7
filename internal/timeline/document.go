package timeline

import (
	"encoding/json"
	"fmt"
	"os"
)

// labeledRecord is one entry of a word, phoneme or viseme document. The
// label key is written first to keep the documents readable by hand.
type labeledRecord struct {
	label string
	value string
	start float64
	end   float64
}

func (r labeledRecord) MarshalJSON() ([]byte, error) {
	label, err := json.Marshal(r.value)
	if err != nil {
		return nil, err
	}

	key, err := json.Marshal(r.label)
	if err != nil {
		return nil, err
	}

	start, err := json.Marshal(r.start)
	if err != nil {
		return nil, err
	}

	end, err := json.Marshal(r.end)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(label)+len(key)+len(start)+len(end)+48)
	out = append(out, '{')
	out = append(out, key...)
	out = append(out, ':')
	out = append(out, label...)
	out = append(out, `,"`+KeyStartTime+`":`...)
	out = append(out, start...)
	out = append(out, `,"`+KeyEndTime+`":`...)
	out = append(out, end...)
	out = append(out, '}')

	return out, nil
}

// EncodeLabeled renders a string track as a JSON array whose entries carry
// the value under label.
func EncodeLabeled(tr Track[string], label string) ([]byte, error) {
	records := make([]labeledRecord, len(tr))

	for i, event := range tr {
		records[i] = labeledRecord{label: label, value: event.Value, start: event.Start, end: event.End}
	}

	return encodeJSON(records)
}

// DecodeLabeled parses a JSON array of labelled events. The first key of
// labels found in an entry supplies its value; source names the document in
// errors.
func DecodeLabeled(data []byte, source string, labels ...string) (Track[string], error) {
	var entries []map[string]json.RawMessage

	err := parseJSON(data, &entries)
	if err != nil {
		return nil, &DocumentError{Path: source, Err: err}
	}

	track := make(Track[string], 0, len(entries))

	for i, entry := range entries {
		value, valueErr := decodeLabel(entry, source, i, labels)
		if valueErr != nil {
			return nil, valueErr
		}

		start, startErr := decodeNumber(entry, source, i, KeyStartTime)
		if startErr != nil {
			return nil, startErr
		}

		end, endErr := decodeNumber(entry, source, i, KeyEndTime)
		if endErr != nil {
			return nil, endErr
		}

		track = append(track, Event[string]{Start: start, End: end, Value: value})
	}

	return track, nil
}

func decodeLabel(entry map[string]json.RawMessage, source string, index int, labels []string) (string, error) {
	for _, label := range labels {
		raw, ok := entry[label]
		if !ok {
			continue
		}

		var value string

		err := json.Unmarshal(raw, &value)
		if err != nil {
			return "", &DocumentError{Path: source, Index: index, Key: label, Err: err}
		}

		return value, nil
	}

	return "", &DocumentError{Path: source, Index: index, Key: labels[0], Err: ErrMissingKey}
}

func decodeNumber(entry map[string]json.RawMessage, source string, index int, key string) (float64, error) {
	raw, ok := entry[key]
	if !ok {
		return 0, &DocumentError{Path: source, Index: index, Key: key, Err: ErrMissingKey}
	}

	var value float64

	err := json.Unmarshal(raw, &value)
	if err != nil {
		return 0, &DocumentError{Path: source, Index: index, Key: key, Err: err}
	}

	return value, nil
}

func readLabeled(path string, labels ...string) (Track[string], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return DecodeLabeled(data, path, labels...)
}

func writeLabeled(path string, tr Track[string], label string) error {
	data, err := EncodeLabeled(tr, label)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	return writeFileAtomic(path, data)
}

// ReadWords loads a word track document.
func ReadWords(path string) (WordTrack, error) {
	return readLabeled(path, KeyWord)
}

// WriteWords saves a word track document.
func WriteWords(path string, tr WordTrack) error {
	return writeLabeled(path, tr, KeyWord)
}

// ReadPhonemes loads a phoneme track document.
func ReadPhonemes(path string) (PhonemeTrack, error) {
	return readLabeled(path, KeyPhoneme)
}

// WritePhonemes saves a phoneme track document.
func WritePhonemes(path string, tr PhonemeTrack) error {
	return writeLabeled(path, tr, KeyPhoneme)
}

// ReadVisemes loads a viseme track document. Older documents label the
// value mouth_shape and are accepted as well.
func ReadVisemes(path string) (VisemeTrack, error) {
	return readLabeled(path, KeyViseme, KeyMouthShape)
}

// WriteVisemes saves a viseme track document.
func WriteVisemes(path string, tr VisemeTrack) error {
	return writeLabeled(path, tr, KeyViseme)
}
