package transcription

import (
	"errors"
	"fmt"
	"strings"

	"github.com/easytranscription/easy-transcription/internal/transcript"
)

// listenResponse is the subset of the Deepgram pre-recorded response we consume
type listenResponse struct {
	Metadata struct {
		RequestID string  `json:"request_id"`
		Duration  float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string      `json:"transcript"`
				Paragraphs *paragraphs `json:"paragraphs"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

type paragraphs struct {
	Transcript string      `json:"transcript"`
	Paragraphs []paragraph `json:"paragraphs"`
}

type paragraph struct {
	Speaker   *int       `json:"speaker"`
	Start     float64    `json:"start"`
	End       float64    `json:"end"`
	Sentences []sentence `json:"sentences"`
}

type sentence struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

var errNoParagraphs = errors.New("response carries no paragraphs")

// toResult flattens the first alternative of the first channel into one
// segment per paragraph, its sentences joined by a single space
func (r *listenResponse) toResult() (*Result, error) {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return nil, errNoParagraphs
	}
	alt := r.Results.Channels[0].Alternatives[0]
	if alt.Paragraphs == nil {
		return nil, errNoParagraphs
	}

	segments := make([]transcript.Segment, 0, len(alt.Paragraphs.Paragraphs))
	for i, p := range alt.Paragraphs.Paragraphs {
		speaker := 0
		if p.Speaker != nil {
			speaker = *p.Speaker
		}
		if speaker < 0 {
			return nil, fmt.Errorf("paragraph %d has negative speaker %d", i, speaker)
		}

		texts := make([]string, 0, len(p.Sentences))
		for _, s := range p.Sentences {
			texts = append(texts, s.Text)
		}

		segments = append(segments, transcript.Segment{
			SpeakerID: speaker,
			Content:   strings.Join(texts, " "),
		})
	}

	return &Result{
		RequestID: r.Metadata.RequestID,
		Segments:  segments,
		Duration:  r.Metadata.Duration,
	}, nil
}
