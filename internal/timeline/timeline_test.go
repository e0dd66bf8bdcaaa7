// Package timeline_test tests tracks and interchange documents.
package timeline_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/book-expert/toon-service/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrack_ValueAt_FirstMatchWins(t *testing.T) {
	t.Parallel()

	track := timeline.Track[string]{
		{Start: 0.0, End: 1.0, Value: "a"},
		{Start: 0.5, End: 1.5, Value: "b"},
		{Start: 2.0, End: 3.0, Value: "c"},
	}

	assert.Equal(t, "a", track.ValueAt(0.0, "neutral"))
	assert.Equal(t, "a", track.ValueAt(0.75, "neutral"))
	assert.Equal(t, "b", track.ValueAt(1.0, "neutral"), "end is exclusive")
	assert.Equal(t, "neutral", track.ValueAt(1.75, "neutral"))
	assert.Equal(t, "c", track.ValueAt(2.5, "neutral"))
	assert.Equal(t, -1, track.IndexAt(3.0))
	assert.InDelta(t, 3.0, track.End(), 1e-9)
}

func TestTrack_Validate(t *testing.T) {
	t.Parallel()

	valid := timeline.Track[string]{{Start: 0, End: 1}, {Start: 1, End: 1}}
	require.NoError(t, valid.Validate())

	inverted := timeline.Track[string]{{Start: 1, End: 0.5}}
	require.ErrorIs(t, inverted.Validate(), timeline.ErrInvertedInterval)

	unsorted := timeline.Track[string]{{Start: 1, End: 2}, {Start: 0, End: 1}}
	require.ErrorIs(t, unsorted.Validate(), timeline.ErrUnsorted)
	require.NoError(t, unsorted.Sorted().Validate())
}

func TestLabeledDocument_RoundTripAndKeyOrder(t *testing.T) {
	t.Parallel()

	track := timeline.VisemeTrack{
		{Start: 0, End: 0.15, Value: "aei"},
		{Start: 0.15, End: 0.3, Value: "l"},
	}

	data, err := timeline.EncodeLabeled(track, timeline.KeyViseme)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"viseme": "aei",`)

	again, err := timeline.EncodeLabeled(track, timeline.KeyViseme)
	require.NoError(t, err)
	assert.Equal(t, data, again)

	decoded, err := timeline.DecodeLabeled(data, "mem", timeline.KeyViseme)
	require.NoError(t, err)
	assert.Equal(t, track, decoded)
}

func TestReadVisemes_AcceptsMouthShape(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "viseme_data.json")
	doc := `[{"mouth_shape": "o.png", "start_time": 0.1, "end_time": 0.2}]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	track, err := timeline.ReadVisemes(path)
	require.NoError(t, err)
	require.Len(t, track, 1)
	assert.Equal(t, "o.png", track[0].Value)
}

func TestDecodeLabeled_MissingKeyNamesPathAndKey(t *testing.T) {
	t.Parallel()

	_, err := timeline.DecodeLabeled([]byte(`[{"word": "hi", "start_time": 0}]`), "words.json", timeline.KeyWord)
	require.Error(t, err)

	var docErr *timeline.DocumentError

	require.True(t, errors.As(err, &docErr))
	assert.Equal(t, "words.json", docErr.Path)
	assert.Equal(t, timeline.KeyEndTime, docErr.Key)
	assert.ErrorIs(t, err, timeline.ErrMissingKey)
	assert.Contains(t, err.Error(), "words.json")
}

func TestDecodeLabeled_InvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := timeline.DecodeLabeled([]byte(`{not json`), "broken.json", timeline.KeyWord)

	var docErr *timeline.DocumentError

	require.ErrorAs(t, err, &docErr)
	assert.Equal(t, "broken.json", docErr.Path)
}

func TestDecodePoses_RequiresAllKeys(t *testing.T) {
	t.Parallel()

	doc := `[{"pose_folder": "pose_1", "pose_image": "pose_1/wave.png", "pose_start_time": 1.0}]`

	_, err := timeline.DecodePoses([]byte(doc), "pose_data.json")

	var docErr *timeline.DocumentError

	require.ErrorAs(t, err, &docErr)
	assert.Equal(t, timeline.KeyPoseEndTime, docErr.Key)
}

func TestMergePoses_AppendsAndSorts(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pose_data.json")

	first := timeline.PoseTrack{
		{Start: 2.0, End: 2.5, Value: timeline.Pose{Folder: "pose_1", Image: "pose_1/wave.png"}},
	}
	second := timeline.PoseTrack{
		{Start: 0.5, End: 1.5, Value: timeline.Pose{Folder: "emotions", Image: "emotions/smile.png"}},
	}

	_, err := timeline.MergePoses(path, first)
	require.NoError(t, err)

	merged, err := timeline.MergePoses(path, second)
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.Equal(t, "emotions/smile.png", merged[0].Value.Image)

	loaded, err := timeline.ReadPoses(path)
	require.NoError(t, err)
	assert.Equal(t, merged, loaded)
	require.NoError(t, loaded.Validate())
}

func TestMergePoses_ConcurrentWritersKeepEveryEntry(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pose_data.json")

	const writers = 8

	var wg sync.WaitGroup

	for i := range writers {
		wg.Add(1)

		go func(offset int) {
			defer wg.Done()

			_, err := timeline.MergePoses(path, timeline.PoseTrack{{
				Start: float64(offset),
				End:   float64(offset) + 0.5,
				Value: timeline.Pose{Folder: "pose_1", Image: "pose_1/att1.png"},
			}})
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	loaded, err := timeline.ReadPoses(path)
	require.NoError(t, err)
	assert.Len(t, loaded, writers)
	require.NoError(t, loaded.Validate())
}
