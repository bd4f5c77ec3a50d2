package edifact

import (
	"fmt"
	"strings"
)

// ServiceStringAdvice is the tag of the delimiter-declaration segment that
// must open every message.
const ServiceStringAdvice = "UNA"

// Delimiters holds the service characters a message declares in its UNA
// segment. They apply to every segment that follows it.
type Delimiters struct {
	Component  byte // separates fields inside an element group
	Element    byte // separates element groups
	Decimal    byte // decimal mark for numeric values
	Release    byte // escapes the next character
	Reserved   byte // repetition separator, carried verbatim
	Terminator byte // ends a segment
}

// DefaultDelimiters are the UNOC defaults the library has always emitted.
var DefaultDelimiters = Delimiters{
	Component:  ':',
	Element:    '+',
	Decimal:    ',',
	Release:    '?',
	Reserved:   ' ',
	Terminator: '\'',
}

// Advice renders the UNA segment for d. It carries no terminator of its own.
func (d Delimiters) Advice() string {
	return ServiceStringAdvice + string([]byte{d.Component, d.Element, d.Decimal, d.Release, d.Reserved, d.Terminator})
}

// Validate rejects delimiter sets where the structural characters collide.
func (d Delimiters) Validate() error {
	structural := []struct {
		name string
		c    byte
	}{
		{"component separator", d.Component},
		{"element separator", d.Element},
		{"release character", d.Release},
		{"segment terminator", d.Terminator},
	}
	for i := range structural {
		for j := i + 1; j < len(structural); j++ {
			if structural[i].c == structural[j].c {
				return fmt.Errorf("%s and %s are both %q", structural[i].name, structural[j].name, structural[i].c)
			}
		}
	}
	return nil
}

func (d Delimiters) isZero() bool {
	return d == Delimiters{}
}

func (d Delimiters) special(c byte) bool {
	return c == d.Component || c == d.Element || c == d.Release || c == d.Terminator
}

// FormatDecimal rewrites a dot-separated number with the declared decimal mark.
func (d Delimiters) FormatDecimal(s string) string {
	if d.Decimal == 0 || d.Decimal == '.' {
		return s
	}
	return strings.Replace(s, ".", string(d.Decimal), 1)
}

// NormalizeDecimal is the inverse of FormatDecimal.
func (d Delimiters) NormalizeDecimal(s string) string {
	if d.Decimal == 0 || d.Decimal == '.' {
		return s
	}
	return strings.Replace(s, string(d.Decimal), ".", 1)
}
