package text_test

import (
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/toon-service/internal/rig"
	"github.com/book-expert/toon-service/internal/text"
	"github.com/book-expert/toon-service/internal/timeline"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "text-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

var helloWorld = timeline.WordTrack{
	{Start: 0, End: 0.5, Value: "Hello"},
	{Start: 0.5, End: 1.0, Value: "world"},
}

func TestParse_FindsTagsInOrder(t *testing.T) {
	t.Parallel()

	transcript := text.Parse("(smile)Hello world <att_2_point> ( ) <>")

	assert.Equal(t, []text.Tag{
		{Kind: text.KindEmotion, Name: "smile", Offset: 0},
		{Kind: text.KindPose, Name: "att_2_point", Offset: 19},
	}, transcript.Tags)
	assert.Equal(t, "Hello world", transcript.Clean())
}

func TestParse_OffsetsCountRunes(t *testing.T) {
	t.Parallel()

	transcript := text.Parse("Café <wave>")

	require.Len(t, transcript.Tags, 1)
	assert.Equal(t, 5, transcript.Tags[0].Offset)
}

func TestTranscript_Cues(t *testing.T) {
	t.Parallel()

	desc := rig.DefaultDescriptor(t.TempDir())
	transcript := text.Parse("(smile)Hello world <att_2_point>")

	cues, report := transcript.Cues(helloWorld, desc, newTestLogger(t))

	assert.Equal(t, timeline.PoseTrack{
		{Start: 0, End: 1.5, Value: timeline.Pose{Folder: "emotions", Image: "emotions/smile.png"}},
		{Start: 0.5, End: 1.5, Value: timeline.Pose{Folder: "pose_2", Image: "pose_2/att_2_point.png"}},
	}, cues)
	assert.Equal(t, 1, report.Poses)
	assert.Equal(t, 1, report.Emotions)
	require.NoError(t, cues.Validate())
}

func TestTranscript_Cues_DefaultPoseFolder(t *testing.T) {
	t.Parallel()

	desc := rig.DefaultDescriptor(t.TempDir())
	cues, _ := text.Parse("<wave>Hello world").Cues(helloWorld, desc, newTestLogger(t))

	require.Len(t, cues, 1)
	assert.Equal(t, timeline.Pose{Folder: "pose_1", Image: "pose_1/wave.png"}, cues[0].Value)
	assert.InDelta(t, 1.0, cues[0].End, 1e-9)
}

func TestTranscript_Cues_SkipsUnknownEmotions(t *testing.T) {
	t.Parallel()

	desc := rig.DefaultDescriptor(t.TempDir())
	cues, report := text.Parse("Hello (angry) world").Cues(helloWorld, desc, newTestLogger(t))

	assert.Empty(t, cues)
	assert.Equal(t, []string{"angry"}, report.Skipped)
}

func TestTranscript_Cues_NoWords(t *testing.T) {
	t.Parallel()

	desc := rig.DefaultDescriptor(t.TempDir())
	cues, _ := text.Parse("<wave> hi").Cues(nil, desc, newTestLogger(t))

	assert.Empty(t, cues)
}

func TestPreprocessor_Normalize(t *testing.T) {
	t.Parallel()

	preprocessor := text.NewPreprocessor()

	cases := map[string]string{
		"Dr. Smith has 3 cats":            "Doctor Smith has three cats.",
		"Call me in  1250   seconds!":     "Call me in one thousand two hundred fifty seconds!",
		"It’s “fine” — really…":           `It's "fine" - really...`,
		"Mr. Jones paid 42 , then left ,": "Mister Jones paid forty two, then left.",
		"":                                "",
	}

	for input, want := range cases {
		assert.Equal(t, want, preprocessor.Normalize(input), input)
	}
}
