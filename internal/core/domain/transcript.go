package domain

import "strings"

// Segment is one time-aligned piece of a transcript, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the speech-to-text output for one audio file.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Clone deep-copies the segment slice.
func (t Transcript) Clone() Transcript {
	if t.Segments != nil {
		t.Segments = append([]Segment(nil), t.Segments...)
	}
	return t
}

// Normalize trims text fields and fills the language fallback.
// Segments are never nil after normalization.
func (t Transcript) Normalize() Transcript {
	out := Transcript{
		Text:     strings.TrimSpace(t.Text),
		Segments: make([]Segment, 0, len(t.Segments)),
		Language: strings.TrimSpace(t.Language),
	}
	for _, seg := range t.Segments {
		out.Segments = append(out.Segments, Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	if out.Language == "" {
		out.Language = UnknownLanguage
	}
	return out
}
