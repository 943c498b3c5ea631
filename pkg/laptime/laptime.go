// Package laptime converts between the timing log's lap time notation and
// canonical millisecond durations.
package laptime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedDuration = errors.New("laptime: malformed duration")

type FormatError struct {
	Text   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("laptime: cannot parse %q: %s", e.Text, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return ErrMalformedDuration
}

type GapPolicy string

const (
	// GapSigned renders negative gaps with a leading minus sign.
	GapSigned GapPolicy = "signed"
	// GapSaturate renders negative gaps as zero.
	GapSaturate GapPolicy = "saturate"
)

func (p GapPolicy) Valid() bool {
	return p == GapSigned || p == GapSaturate
}

// maxMinutes bounds both the minute field and the seconds field (in minutes)
// so the millisecond total cannot overflow.
const maxMinutes = 999999

// ParseDuration reads "M:SS.mmm" into milliseconds. The minute and fractional
// parts may be omitted; the seconds part may not.
func ParseDuration(text string) (int64, error) {
	text = strings.TrimSpace(text)

	minutesPart, rest, found := strings.Cut(text, ":")
	if !found {
		return 0, &FormatError{Text: text, Reason: "missing seconds component"}
	}

	secondsPart, fractionPart, _ := strings.Cut(rest, ".")
	if secondsPart == "" {
		return 0, &FormatError{Text: text, Reason: "missing seconds component"}
	}

	var minutes int64
	if minutesPart != "" {
		m, err := parseDigits(minutesPart)
		if err != nil {
			return 0, &FormatError{Text: text, Reason: "minutes: " + err.Error()}
		}
		if m > maxMinutes {
			return 0, &FormatError{Text: text, Reason: "minutes out of range"}
		}
		minutes = m
	}

	seconds, err := parseDigits(secondsPart)
	if err != nil {
		return 0, &FormatError{Text: text, Reason: "seconds: " + err.Error()}
	}
	if seconds > maxMinutes*60 {
		return 0, &FormatError{Text: text, Reason: "seconds out of range"}
	}

	var millis int64
	if fractionPart != "" {
		if len(fractionPart) > 3 {
			fractionPart = fractionPart[:3]
		} else {
			fractionPart += strings.Repeat("0", 3-len(fractionPart))
		}
		millis, err = parseDigits(fractionPart)
		if err != nil {
			return 0, &FormatError{Text: text, Reason: "fraction: " + err.Error()}
		}
	}

	return minutes*60000 + seconds*1000 + millis, nil
}

func parseDigits(s string) (int64, error) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("unexpected character %q", r)
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

// FormatGap renders ms as HH:MM:SS.mmm. Negative values are treated as zero.
func FormatGap(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3600000
	ms -= hours * 3600000
	minutes := ms / 60000
	ms -= minutes * 60000
	seconds := ms / 1000
	ms -= seconds * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, ms)
}

// FormatSignedGap applies policy to a possibly negative gap.
func FormatSignedGap(ms int64, policy GapPolicy) string {
	if ms < 0 && policy == GapSigned {
		return "-" + FormatGap(-ms)
	}
	return FormatGap(ms)
}

// FormatLapTime renders ms in the log's own "M:SS.mmm" notation.
func FormatLapTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	minutes := ms / 60000
	ms -= minutes * 60000
	seconds := ms / 1000
	ms -= seconds * 1000
	return fmt.Sprintf("%d:%02d.%03d", minutes, seconds, ms)
}
