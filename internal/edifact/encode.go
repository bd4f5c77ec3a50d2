package edifact

import (
	"fmt"
	"strings"
)

// Encode serializes m. A zero Delimiters value means DefaultDelimiters.
// Fields containing a structural character are escaped with the release
// character; tags may not contain one at all.
func (m Message) Encode() (string, error) {
	d := m.Delimiters
	if d.isZero() {
		d = DefaultDelimiters
	}
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("invalid delimiters: %w", err)
	}

	var b strings.Builder
	b.WriteString(d.Advice())
	for i, seg := range m.Segments {
		if err := d.writeSegment(&b, seg); err != nil {
			return "", fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return b.String(), nil
}

func (d Delimiters) writeSegment(b *strings.Builder, seg Segment) error {
	if seg.Tag == "" {
		return fmt.Errorf("empty tag")
	}
	for i := 0; i < len(seg.Tag); i++ {
		if d.special(seg.Tag[i]) {
			return fmt.Errorf("tag %q contains delimiter %q", seg.Tag, seg.Tag[i])
		}
	}

	b.WriteString(seg.Tag)
	for i, group := range seg.Elements {
		if len(group) == 0 {
			return fmt.Errorf("%s element %d has no fields", seg.Tag, i)
		}
		b.WriteByte(d.Element)
		for j, field := range group {
			if j > 0 {
				b.WriteByte(d.Component)
			}
			d.escape(b, field)
		}
	}
	b.WriteByte(d.Terminator)
	return nil
}

func (d Delimiters) escape(b *strings.Builder, field string) {
	for i := 0; i < len(field); i++ {
		c := field[i]
		if d.special(c) {
			b.WriteByte(d.Release)
		}
		b.WriteByte(c)
	}
}
