package edifact

import (
	"fmt"
	"strings"
)

// Decode parses text into a Message. The text must open with a UNA advice;
// its characters become the delimiters for the rest of the message. CR and LF
// between segments are ignored and a final segment may omit its terminator.
// Unknown tags are kept as they are.
func Decode(text string) (Message, error) {
	text = strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(text, ServiceStringAdvice) {
		return Message{}, fmt.Errorf("%w: missing %s service string advice", ErrMalformedMessage, ServiceStringAdvice)
	}

	adviceLen := len(ServiceStringAdvice) + 6
	if len(text) < adviceLen {
		return Message{}, fmt.Errorf("%w: %s declares %d of 6 service characters",
			ErrMalformedMessage, ServiceStringAdvice, len(text)-len(ServiceStringAdvice))
	}

	chars := text[len(ServiceStringAdvice):adviceLen]
	d := Delimiters{
		Component:  chars[0],
		Element:    chars[1],
		Decimal:    chars[2],
		Release:    chars[3],
		Reserved:   chars[4],
		Terminator: chars[5],
	}
	if err := d.Validate(); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	segments, err := d.split(text[adviceLen:])
	if err != nil {
		return Message{}, err
	}
	return Message{Delimiters: d, Segments: segments}, nil
}

type segmentScanner struct {
	segments []Segment
	groups   [][]string
	group    []string
	field    strings.Builder
	started  bool
}

func (s *segmentScanner) endField() {
	s.group = append(s.group, s.field.String())
	s.field.Reset()
}

func (s *segmentScanner) endGroup() {
	s.endField()
	s.groups = append(s.groups, s.group)
	s.group = nil
}

func (s *segmentScanner) endSegment() error {
	s.endGroup()
	groups := s.groups
	s.groups = nil
	s.started = false

	tag := groups[0]
	if len(tag) != 1 || tag[0] == "" {
		return fmt.Errorf("%w: segment %d has no tag", ErrMalformedMessage, len(s.segments)+1)
	}
	seg := Segment{Tag: tag[0]}
	if len(groups) > 1 {
		seg.Elements = groups[1:]
	}
	s.segments = append(s.segments, seg)
	return nil
}

func (d Delimiters) split(body string) ([]Segment, error) {
	var s segmentScanner
	for i := 0; i < len(body); i++ {
		c := body[i]
		if !s.started && (c == '\r' || c == '\n') {
			continue
		}
		s.started = true

		switch c {
		case d.Release:
			i++
			if i >= len(body) {
				return nil, fmt.Errorf("%w: release character at end of message", ErrMalformedMessage)
			}
			s.field.WriteByte(body[i])
		case d.Terminator:
			if err := s.endSegment(); err != nil {
				return nil, err
			}
		case d.Element:
			s.endGroup()
		case d.Component:
			s.endField()
		default:
			s.field.WriteByte(c)
		}
	}
	if s.started {
		if err := s.endSegment(); err != nil {
			return nil, err
		}
	}
	return s.segments, nil
}
