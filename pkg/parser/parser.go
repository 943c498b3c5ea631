// Package parser turns raw timing log lines into timing events.
//
// A line looks like
//
//	23:49:08.277      038 – F.MASSA                           1		1:02.852                        44,275
//
// i.e. time of day, pilot code, an optional en-dash marker, pilot name, lap
// number, lap time and average speed. Pilot names cannot contain spaces.
package parser

import (
	"errors"
	"fmt"
	"racestandings/pkg/model"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	decorationMarker = "–"
	minFields        = 6
)

var (
	ErrMalformedLine = errors.New("parser: malformed line")
	// ErrBlankLine is returned for empty and comment lines, which carry no event.
	ErrBlankLine = errors.New("parser: blank line")
)

type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parser: %s: %q", e.Reason, e.Line)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformedLine
}

func ParseLine(line string) (model.TimingEvent, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return model.TimingEvent{}, ErrBlankLine
	}

	fields := make([]string, 0, minFields)
	for _, f := range strings.Fields(trimmed) {
		if f == decorationMarker {
			continue
		}
		fields = append(fields, f)
	}

	if len(fields) < minFields {
		return model.TimingEvent{}, &ParseError{
			Line:   line,
			Reason: fmt.Sprintf("expected at least %d fields, got %d", minFields, len(fields)),
		}
	}

	lapNumber, err := strconv.Atoi(fields[3])
	if err != nil || lapNumber < 1 {
		return model.TimingEvent{}, &ParseError{
			Line:   line,
			Reason: fmt.Sprintf("lap number %q is not a positive integer", fields[3]),
		}
	}

	return model.TimingEvent{
		TimeOfDay:    fields[0],
		Code:         fields[1],
		PilotName:    fields[2],
		LapNumber:    lapNumber,
		LapTime:      fields[4],
		AverageSpeed: fields[5],
		Raw:          line,
	}, nil
}

// IsHeader reports whether line looks like the column header some timing
// systems print at the top of a log ("Hora Piloto Nº Volta ...").
func IsHeader(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(fields[0])
	return !unicode.IsDigit(first)
}
