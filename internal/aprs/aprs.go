// Package aprs implements APRS frame dissection and synthesis on top of
// AX.25 UI frames: the data-type registry, message/position/timestamp
// codecs, and the base-91 compression scheme used by compressed positions.
package aprs

import (
	"fmt"

	"github.com/vk4msl/goax25kiss/internal/ax25"
)

// PID is the AX.25 protocol ID APRS frames carry: "no layer 3".
const PID byte = 0xf0

// DefaultDestination is the generic APRS destination callsign used when a
// station has no product-specific tocall registered.
var DefaultDestination = ax25.NewAddress("APRS", 0)

// DataType is the single ASCII data-type identifier that begins every
// APRS information field.
type DataType byte

// Data-type identifiers from the APRS 1.0.1 specification that this
// package's registry understands.
const (
	DataTypePositionNoTS         DataType = '!'
	DataTypePositionNoTSMsgCap   DataType = '='
	DataTypePositionTS           DataType = '/'
	DataTypePositionTSMsgCap     DataType = '@'
	DataTypeMessage              DataType = ':'
	DataTypeObject                DataType = ';'
	DataTypeStatus                DataType = '>'
)

// Frame is any decoded APRS application-layer frame.
type Frame interface {
	UI() *ax25.UIFrame
}

// OpaqueFrame wraps a UI frame whose payload isn't APRS (wrong PID) or
// whose data-type code the registry doesn't dissect; the UI frame passes
// through unchanged.
type OpaqueFrame struct {
	ui *ax25.UIFrame
}

func (o *OpaqueFrame) UI() *ax25.UIFrame { return o.ui }

// Decode dissects ui's payload as an APRS frame. Payloads whose PID isn't
// 0xF0, or whose data-type code the registry doesn't recognise, come back
// as an *OpaqueFrame carrying the UI unchanged.
func Decode(ui *ax25.UIFrame) (Frame, error) {
	if ui.PID != PID {
		return &OpaqueFrame{ui: ui}, nil
	}

	if len(ui.Payload) == 0 {
		return nil, fmt.Errorf("aprs: empty payload")
	}

	switch DataType(ui.Payload[0]) {
	case DataTypeMessage:
		return decodeMessage(ui)
	case DataTypePositionNoTS, DataTypePositionNoTSMsgCap, DataTypePositionTS, DataTypePositionTSMsgCap:
		return decodePosition(ui)
	case DataTypeStatus:
		return decodeStatus(ui)
	case DataTypeObject:
		return decodeObject(ui)
	default:
		return &OpaqueFrame{ui: ui}, nil
	}
}
