// Package edifact implements the segment syntax used for invoice exchange:
// a UNA delimiter advice followed by tagged segments made of element groups.
// It knows nothing about the meaning of any tag.
package edifact

import "errors"

// ErrMalformedMessage is returned for any text that cannot be decoded.
var ErrMalformedMessage = errors.New("malformed message")

// Segment is a tag plus its ordered element groups. Each group holds one or
// more fields (components).
type Segment struct {
	Tag      string     `json:"tag"`
	Elements [][]string `json:"elements,omitempty"`
}

// NewSegment builds a segment where every element group has exactly one field.
func NewSegment(tag string, elements ...string) Segment {
	seg := Segment{Tag: tag}
	for _, e := range elements {
		seg.Elements = append(seg.Elements, []string{e})
	}
	return seg
}

// NewComposite builds a segment with a single element group holding
// components in order.
func NewComposite(tag string, components ...string) Segment {
	return Segment{Tag: tag, Elements: [][]string{append([]string(nil), components...)}}
}

// Element returns the element group at index i.
func (s Segment) Element(i int) ([]string, bool) {
	if i < 0 || i >= len(s.Elements) {
		return nil, false
	}
	return s.Elements[i], true
}

// Field returns component j of element group i.
func (s Segment) Field(i, j int) (string, bool) {
	group, ok := s.Element(i)
	if !ok || j < 0 || j >= len(group) {
		return "", false
	}
	return group[j], true
}

// Message is an ordered list of segments together with the delimiters used to
// serialize them. The UNA advice is implied by Delimiters and never appears in
// Segments.
type Message struct {
	Delimiters Delimiters
	Segments   []Segment
}
