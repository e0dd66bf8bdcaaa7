package whisper

import (
	"strings"

	"github.com/book-expert/toon-service/internal/phoneme"
	"github.com/book-expert/toon-service/internal/timeline"
)

// WordTrack converts the transcription into a sorted word track. Word
// timestamps are used when present. Otherwise each segment's text is split
// into words sharing the segment interval equally.
func (r *Response) WordTrack() timeline.WordTrack {
	if len(r.Words) > 0 {
		track := make(timeline.WordTrack, 0, len(r.Words))

		for _, word := range r.Words {
			text := strings.TrimSpace(word.Word)
			if text == "" {
				continue
			}

			track = append(track, timeline.Event[string]{Start: word.Start, End: max(word.End, word.Start), Value: text})
		}

		return track.Sorted()
	}

	var track timeline.WordTrack

	for _, segment := range r.Segments {
		track = append(track, spread(segment)...)
	}

	return track.Sorted()
}

func spread(segment Segment) timeline.WordTrack {
	words := strings.Fields(segment.Text)
	if len(words) == 0 || segment.End < segment.Start {
		return nil
	}

	step := (segment.End - segment.Start) / float64(len(words))
	track := make(timeline.WordTrack, len(words))

	for i, word := range words {
		end := segment.Start + float64(i+1)*step
		if i == len(words)-1 {
			end = segment.End
		}

		track[i] = timeline.Event[string]{Start: segment.Start + float64(i)*step, End: end, Value: word}
	}

	return track
}

// Fallback is the single-segment track used when alignment fails: one entry
// spanning [0, duration) carrying text, or the silence symbol when text is
// blank.
func Fallback(text string, duration float64) timeline.WordTrack {
	value := strings.Join(strings.Fields(text), " ")
	if value == "" {
		value = phoneme.Silence
	}

	return timeline.WordTrack{{Start: 0, End: max(duration, 0), Value: value}}
}
