package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
)

// Report summarizes one session.
type Report struct {
	SessionID       string   `json:"session_id"`
	Seed            uint64   `json:"seed"`
	WorkDir         string   `json:"work_dir"`
	OutputPath      string   `json:"output_path"`
	Duration        float64  `json:"duration"`
	Frames          int      `json:"frames"`
	Words           int      `json:"words"`
	Phonemes        int      `json:"phonemes"`
	Visemes         int      `json:"visemes"`
	Poses           int      `json:"poses"`
	Degraded        bool     `json:"degraded"`
	Reasons         []string `json:"reasons,omitempty"`
	UnmatchedWords  []string `json:"unmatched_words,omitempty"`
	SkippedEmotions []string `json:"skipped_emotions,omitempty"`
	MissingAssets   []string `json:"missing_assets,omitempty"`
}

func (r *Report) degrade(format string, args ...any) {
	r.Degraded = true
	r.Reasons = append(r.Reasons, fmt.Sprintf(format, args...))
}

// Write stores the report as indented JSON.
func (r *Report) Write(path string) error {
	data, marshalErr := json.MarshalIndent(r, "", "  ")
	if marshalErr != nil {
		return fmt.Errorf("failed to encode report: %w", marshalErr)
	}

	writeErr := os.WriteFile(path, append(data, '\n'), 0o600)
	if writeErr != nil {
		return fmt.Errorf("failed to write report %s: %w", path, writeErr)
	}

	return nil
}
