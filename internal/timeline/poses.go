package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Pose document keys.
const (
	KeyPoseFolder    = "pose_folder"
	KeyPoseImage     = "pose_image"
	KeyPoseStartTime = "pose_start_time"
	KeyPoseEndTime   = "pose_end_time"
)

// Pose names the overlay image shown while a pose or emotion is active.
// Image is relative to the rig's asset root, e.g. "pose_1/wave.png".
type Pose struct {
	Folder string
	Image  string
}

// PoseTrack holds pose and emotion overlays.
type PoseTrack = Track[Pose]

type poseRecord struct {
	Folder string  `json:"pose_folder"`
	Image  string  `json:"pose_image"`
	Start  float64 `json:"pose_start_time"`
	End    float64 `json:"pose_end_time"`
}

var requiredPoseKeys = []string{KeyPoseFolder, KeyPoseImage, KeyPoseStartTime, KeyPoseEndTime}

// documentLocks serializes read-modify-write cycles per document path.
var documentLocks sync.Map

func lockDocument(path string) func() {
	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}

	value, _ := documentLocks.LoadOrStore(key, &sync.Mutex{})
	mutex, _ := value.(*sync.Mutex)
	mutex.Lock()

	return mutex.Unlock
}

// EncodePoses renders a pose track document.
func EncodePoses(tr PoseTrack) ([]byte, error) {
	records := make([]poseRecord, len(tr))

	for i, event := range tr {
		records[i] = poseRecord{
			Folder: event.Value.Folder,
			Image:  event.Value.Image,
			Start:  event.Start,
			End:    event.End,
		}
	}

	return encodeJSON(records)
}

// DecodePoses parses a pose track document, requiring every key on every
// entry.
func DecodePoses(data []byte, source string) (PoseTrack, error) {
	var entries []map[string]json.RawMessage

	err := parseJSON(data, &entries)
	if err != nil {
		return nil, &DocumentError{Path: source, Err: err}
	}

	track := make(PoseTrack, 0, len(entries))

	for i, entry := range entries {
		for _, key := range requiredPoseKeys {
			if _, ok := entry[key]; !ok {
				return nil, &DocumentError{Path: source, Index: i, Key: key, Err: ErrMissingKey}
			}
		}

		raw, marshalErr := json.Marshal(entry)
		if marshalErr != nil {
			return nil, &DocumentError{Path: source, Index: i, Err: marshalErr}
		}

		var record poseRecord

		recordErr := json.Unmarshal(raw, &record)
		if recordErr != nil {
			return nil, &DocumentError{Path: source, Index: i, Err: recordErr}
		}

		track = append(track, Event[Pose]{
			Start: record.Start,
			End:   record.End,
			Value: Pose{Folder: record.Folder, Image: record.Image},
		})
	}

	return track, nil
}

// ReadPoses loads a pose track document.
func ReadPoses(path string) (PoseTrack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return DecodePoses(data, path)
}

// WritePoses saves a pose track document sorted by start time.
func WritePoses(path string, tr PoseTrack) error {
	data, err := EncodePoses(tr.Sorted())
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	return writeFileAtomic(path, data)
}

// MergePoses appends additions to the document at path, creating it when
// absent, and saves the combined track sorted by start time. Concurrent
// merges to the same path within the process run one at a time.
func MergePoses(path string, additions PoseTrack) (PoseTrack, error) {
	unlock := lockDocument(path)
	defer unlock()

	existing, err := ReadPoses(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		existing = nil
	}

	combined := make(PoseTrack, 0, len(existing)+len(additions))
	combined = append(combined, existing...)
	combined = append(combined, additions...)
	combined = combined.Sorted()

	writeErr := WritePoses(path, combined)
	if writeErr != nil {
		return nil, writeErr
	}

	return combined, nil
}
