package text

import (
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/book-expert/logger"

	"github.com/book-expert/toon-service/internal/rig"
	"github.com/book-expert/toon-service/internal/timeline"
)

// Tag timing extensions past the end of the anchoring word, in seconds.
const (
	PoseHold    = 0.5
	EmotionHold = 1.0
)

// tagPattern matches <pose> and (emotion) tags.
var tagPattern = regexp.MustCompile(`<([^<>]*)>|\(([^()]*)\)`)

// Kind distinguishes pose tags from emotion tags.
type Kind int

const (
	KindPose Kind = iota
	KindEmotion
)

func (k Kind) String() string {
	if k == KindEmotion {
		return "emotion"
	}

	return "pose"
}

// Tag is one stage direction found in a transcript. Offset counts runes from
// the start of the raw transcript.
type Tag struct {
	Kind   Kind
	Name   string
	Offset int
}

// Transcript is a raw script with its stage tags located.
type Transcript struct {
	Raw  string
	Tags []Tag
}

// Parse locates every pose and emotion tag in raw.
func Parse(raw string) Transcript {
	var tags []Tag

	for _, loc := range tagPattern.FindAllStringSubmatchIndex(raw, -1) {
		tag := Tag{Offset: utf8.RuneCountInString(raw[:loc[0]])}

		if loc[2] >= 0 {
			tag.Kind = KindPose
			tag.Name = strings.TrimSpace(raw[loc[2]:loc[3]])
		} else {
			tag.Kind = KindEmotion
			tag.Name = strings.TrimSpace(raw[loc[4]:loc[5]])
		}

		if tag.Name != "" {
			tags = append(tags, tag)
		}
	}

	return Transcript{Raw: raw, Tags: tags}
}

// Clean returns the transcript with every tag removed and whitespace
// collapsed.
func (t Transcript) Clean() string {
	return strings.Join(strings.Fields(tagPattern.ReplaceAllString(t.Raw, " ")), " ")
}

// CueReport counts what tag extraction produced.
type CueReport struct {
	Poses    int
	Emotions int
	Skipped  []string
}

// Cues converts the tags into pose track entries anchored on words. A tag's
// time is its proportional character offset scaled to the end of the last
// word; the entry starts at the word whose start is closest to that time and
// holds past that word's end. Emotions outside the rig's whitelist are
// skipped with a warning.
func (t Transcript) Cues(words timeline.WordTrack, desc rig.Descriptor, log *logger.Logger) (timeline.PoseTrack, CueReport) {
	var report CueReport

	length := utf8.RuneCountInString(t.Raw)
	if len(t.Tags) == 0 || len(words) == 0 || length == 0 {
		if len(t.Tags) > 0 {
			log.Warn("Transcript has %d tags but no word timings; tags ignored", len(t.Tags))
		}

		return timeline.PoseTrack{}, report
	}

	total := words[len(words)-1].End
	track := make(timeline.PoseTrack, 0, len(t.Tags))

	for _, tag := range t.Tags {
		anchor := closestWord(words, float64(tag.Offset)/float64(length)*total)

		switch tag.Kind {
		case KindEmotion:
			if !desc.IsEmotion(tag.Name) {
				log.Warn("Emotion '%s' not in valid emotions list. Skipping...", tag.Name)
				report.Skipped = append(report.Skipped, tag.Name)

				continue
			}

			track = append(track, timeline.Event[timeline.Pose]{
				Start: anchor.Start,
				End:   anchor.End + EmotionHold,
				Value: timeline.Pose{
					Folder: desc.EmotionFolder,
					Image:  path.Join(desc.EmotionFolder, desc.ImageName(tag.Name)),
				},
			})
			report.Emotions++
		default:
			folder := desc.Poses.Folder(tag.Name)

			track = append(track, timeline.Event[timeline.Pose]{
				Start: anchor.Start,
				End:   anchor.End + PoseHold,
				Value: timeline.Pose{Folder: folder, Image: path.Join(folder, desc.ImageName(tag.Name))},
			})
			report.Poses++
		}
	}

	log.Info("Extracted %d poses and %d emotions from transcript (%d skipped)",
		report.Poses, report.Emotions, len(report.Skipped))

	return track.Sorted(), report
}

// closestWord returns the first word whose start is nearest to position.
func closestWord(words timeline.WordTrack, position float64) timeline.Event[string] {
	best := words[0]
	bestDistance := distance(best.Start, position)

	for _, word := range words[1:] {
		if d := distance(word.Start, position); d < bestDistance {
			best, bestDistance = word, d
		}
	}

	return best
}

func distance(a, b float64) float64 {
	if a > b {
		return a - b
	}

	return b - a
}
