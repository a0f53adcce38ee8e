package aprs

import (
	"fmt"
	"strings"

	"github.com/vk4msl/goax25kiss/internal/ax25"
)

// StatusFrame is a decoded APRS status report (data type '>'): free text,
// optionally led by a DHM-zulu timestamp.
type StatusFrame struct {
	ui *ax25.UIFrame

	Timestamp *Timestamp
	Text      string
}

func (s *StatusFrame) UI() *ax25.UIFrame { return s.ui }

func decodeStatus(ui *ax25.UIFrame) (Frame, error) {
	body := string(ui.Payload[1:])

	st := &StatusFrame{ui: ui, Text: body}

	// APRS 1.0.1 chapter 16: a status may begin with a zulu day-hour-minute
	// timestamp. Anything that doesn't parse as one is plain text.
	if len(body) >= 7 && body[6] == 'z' {
		if ts, err := DecodeTimestamp(body[:7]); err == nil {
			st.Timestamp = &ts
			st.Text = body[7:]
		}
	}

	return st, nil
}

const objectNameWidth = 9

// ObjectFrame is a decoded APRS object report (data type ';'): a named,
// timestamped position originated on behalf of something other than the
// sending station.
type ObjectFrame struct {
	ui *ax25.UIFrame

	Name string
	// Live is true for a live object ('*'), false for a killed one ('_').
	Live      bool
	Timestamp Timestamp
	Position  *PositionFrame
}

func (o *ObjectFrame) UI() *ax25.UIFrame { return o.ui }

func decodeObject(ui *ax25.UIFrame) (Frame, error) {
	// ';' + 9-char name + '*'/'_' + 7-char timestamp + position.
	payload := ui.Payload
	if len(payload) < 1+objectNameWidth+1+7 {
		return nil, fmt.Errorf("aprs: truncated object frame")
	}

	name := strings.TrimRight(string(payload[1:1+objectNameWidth]), " ")

	var live bool

	switch payload[1+objectNameWidth] {
	case '*':
		live = true
	case '_':
		live = false
	default:
		return nil, fmt.Errorf("aprs: object live/killed indicator %q", payload[1+objectNameWidth])
	}

	ts, err := DecodeTimestamp(string(payload[1+objectNameWidth+1 : 1+objectNameWidth+1+7]))
	if err != nil {
		return nil, err
	}

	rest := payload[1+objectNameWidth+1+7:]
	pos := &PositionFrame{ui: ui, Timestamp: &ts}

	switch {
	case len(rest) >= 19 && rest[4] == '.':
		if err := decodeUncompressed(pos, rest); err != nil {
			return nil, err
		}
	case len(rest) >= 13:
		if err := decodeCompressed(pos, rest); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("aprs: truncated object position")
	}

	return &ObjectFrame{ui: ui, Name: name, Live: live, Timestamp: ts, Position: pos}, nil
}
