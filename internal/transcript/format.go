package transcript

import (
	"strconv"
	"strings"
)

// Segment is one speaker-attributed utterance returned by the transcription provider
type Segment struct {
	SpeakerID int    `json:"speaker"`
	Content   string `json:"content"`
}

// SpeakerProfile is the user-supplied identity for one speaker id
type SpeakerProfile struct {
	Title     string `json:"title"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// Block is one contiguous run of same-speaker segments
type Block struct {
	SpeakerLabel string `json:"speakerLabel"`
	Text         string `json:"text"`
}

// Format merges consecutive segments of the same speaker into labelled blocks.
// Every segment contributes its content followed by a single space. A segment
// whose speaker id has no entry in speakers panics with an index out of range.
func Format(segments []Segment, speakers []SpeakerProfile) []Block {
	if len(segments) == 0 {
		return []Block{}
	}

	blocks := make([]Block, 0)
	var buf strings.Builder
	current := -1

	for _, seg := range segments {
		if seg.SpeakerID != current {
			if current != -1 {
				blocks = append(blocks, Block{
					SpeakerLabel: Label(current, speakers[current]),
					Text:         buf.String(),
				})
				buf.Reset()
			}
			current = seg.SpeakerID
		}
		buf.WriteString(seg.Content)
		buf.WriteByte(' ')
	}

	blocks = append(blocks, Block{
		SpeakerLabel: Label(current, speakers[current]),
		Text:         buf.String(),
	})

	return blocks
}

// Label resolves the display label for speaker id.
func Label(id int, profile SpeakerProfile) string {
	if profile.FirstName == "" && profile.LastName == "" {
		return "Speaker " + strconv.Itoa(id)
	}

	var b strings.Builder
	if profile.Title != "" {
		b.WriteString(profile.Title)
		b.WriteByte(' ')
	}
	b.WriteString(profile.FirstName)
	if profile.FirstName != "" && profile.LastName != "" {
		b.WriteByte(' ')
	}
	b.WriteString(profile.LastName)

	return b.String()
}
