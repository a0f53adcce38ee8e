package aprs

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/strftime"
)

// TimestampFormat identifies which of the four APRS timestamp encodings a
// Timestamp was decoded from or should be encoded as.
type TimestampFormat byte

const (
	// TimestampDHMUTC is DDHHMMz: day-of-month, hour, minute, UTC.
	TimestampDHMUTC TimestampFormat = 'z'
	// TimestampDHMLocal is DDHHMM/: day-of-month, hour, minute, local time.
	TimestampDHMLocal TimestampFormat = '/'
	// TimestampHMS is HHMMSSh: hour, minute, second, UTC.
	TimestampHMS TimestampFormat = 'h'
	// TimestampMDHM is MMDDHHMM with no trailing letter: month, day, hour,
	// minute, UTC.
	TimestampMDHM TimestampFormat = 0
)

// Timestamp is a decoded APRS timestamp. Day-of-month/month-based formats
// carry no year; Resolve anchors them to a reference time.
type Timestamp struct {
	Format TimestampFormat

	Month, Day     int
	Hour, Min, Sec int
}

// DecodeTimestamp parses a 7 or 8 character APRS timestamp field per the
// four formats in use: DDHHMMz, DDHHMM/, HHMMSSh, and the unsuffixed
// 8-character MMDDHHMM.
func DecodeTimestamp(s string) (Timestamp, error) {
	switch {
	case len(s) == 7 && s[6] == 'z':
		return decodeDHM(s, TimestampDHMUTC)
	case len(s) == 7 && s[6] == '/':
		return decodeDHM(s, TimestampDHMLocal)
	case len(s) == 7 && s[6] == 'h':
		return decodeHMS(s)
	case len(s) == 8:
		return decodeMDHM(s)
	default:
		return Timestamp{}, fmt.Errorf("aprs: unrecognised timestamp %q", s)
	}
}

func decodeDHM(s string, format TimestampFormat) (Timestamp, error) {
	day, err1 := atoi2(s[0:2])
	hour, err2 := atoi2(s[2:4])
	minute, err3 := atoi2(s[4:6])

	if err1 != nil || err2 != nil || err3 != nil {
		return Timestamp{}, fmt.Errorf("aprs: malformed timestamp %q", s)
	}

	return Timestamp{Format: format, Day: day, Hour: hour, Min: minute}, nil
}

func decodeHMS(s string) (Timestamp, error) {
	hour, err1 := atoi2(s[0:2])
	minute, err2 := atoi2(s[2:4])
	sec, err3 := atoi2(s[4:6])

	if err1 != nil || err2 != nil || err3 != nil {
		return Timestamp{}, fmt.Errorf("aprs: malformed timestamp %q", s)
	}

	return Timestamp{Format: TimestampHMS, Hour: hour, Min: minute, Sec: sec}, nil
}

func decodeMDHM(s string) (Timestamp, error) {
	month, err1 := atoi2(s[0:2])
	day, err2 := atoi2(s[2:4])
	hour, err3 := atoi2(s[4:6])
	minute, err4 := atoi2(s[6:8])

	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return Timestamp{}, fmt.Errorf("aprs: malformed timestamp %q", s)
	}

	return Timestamp{Format: TimestampMDHM, Month: month, Day: day, Hour: hour, Min: minute}, nil
}

func atoi2(s string) (int, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("aprs: expected 2 digits, got %q", s)
	}

	v := 0

	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("aprs: non-digit %q", s)
		}

		v = v*10 + int(c-'0')
	}

	return v, nil
}

// Resolve anchors a decoded timestamp to a concrete instant, using ref to
// supply the year (and, for day-of-month formats, month/year rollover:
// if the resolved date would fall more than a day in the future relative
// to ref, the previous month is assumed instead).
func (t Timestamp) Resolve(ref time.Time) time.Time {
	switch t.Format {
	case TimestampDHMUTC:
		return resolveDHM(ref.UTC(), t, time.UTC)
	case TimestampDHMLocal:
		return resolveDHM(ref.Local(), t, time.Local)
	case TimestampHMS:
		return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Min, t.Sec, 0, time.UTC)
	case TimestampMDHM:
		y := ref.Year()
		candidate := time.Date(y, time.Month(t.Month), t.Day, t.Hour, t.Min, 0, 0, time.UTC)

		if candidate.After(ref.Add(24 * time.Hour)) {
			candidate = time.Date(y-1, time.Month(t.Month), t.Day, t.Hour, t.Min, 0, 0, time.UTC)
		}

		return candidate
	default:
		return time.Time{}
	}
}

func resolveDHM(ref time.Time, t Timestamp, loc *time.Location) time.Time {
	y, m, _ := ref.Date()
	candidate := time.Date(y, m, t.Day, t.Hour, t.Min, 0, 0, loc)

	if candidate.After(ref.Add(24 * time.Hour)) {
		candidate = candidate.AddDate(0, -1, 0)
	}

	return candidate
}

// Encode renders t back to its wire form.
func (t Timestamp) Encode() string {
	switch t.Format {
	case TimestampDHMUTC:
		return fmt.Sprintf("%02d%02d%02dz", t.Day, t.Hour, t.Min)
	case TimestampDHMLocal:
		return fmt.Sprintf("%02d%02d%02d/", t.Day, t.Hour, t.Min)
	case TimestampHMS:
		return fmt.Sprintf("%02d%02d%02dh", t.Hour, t.Min, t.Sec)
	case TimestampMDHM:
		return fmt.Sprintf("%02d%02d%02d%02d", t.Month, t.Day, t.Hour, t.Min)
	default:
		return ""
	}
}

// FormatTime renders the resolved instant using a strftime layout, for
// display purposes (logs, CLI output) distinct from the wire Encode form.
func (t Timestamp) FormatTime(ref time.Time, layout string) (string, error) {
	f, err := strftime.New(layout)
	if err != nil {
		return "", fmt.Errorf("aprs: bad timestamp layout %q: %w", layout, err)
	}

	return f.FormatString(t.Resolve(ref)), nil
}
