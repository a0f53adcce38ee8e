package aprs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk4msl/goax25kiss/internal/aprs"
	"github.com/vk4msl/goax25kiss/internal/ax25"
)

func TestDecodeUncompressedPosition(t *testing.T) {
	payload := "!4903.50N/07201.75W-Test comment"
	ui := &ax25.UIFrame{PID: aprs.PID, Payload: []byte(payload)}

	f, err := aprs.Decode(ui)
	require.NoError(t, err)
	require.NotNil(t, f)

	p, ok := f.(*aprs.PositionFrame)
	require.True(t, ok)

	assert.False(t, p.Compressed)
	assert.InDelta(t, 49.0583, p.Lat, 1e-3)
	assert.InDelta(t, -72.0292, p.Lon, 1e-3)
	assert.Equal(t, byte('/'), p.SymbolTable)
	assert.Equal(t, byte('-'), p.SymbolCode)
	assert.Equal(t, "Test comment", p.Comment)
	assert.Equal(t, 0, p.Ambiguity)
}

func TestDecodeUncompressedPositionWithTimestamp(t *testing.T) {
	payload := "/092345z4903.50N/07201.75W-"
	ui := &ax25.UIFrame{PID: aprs.PID, Payload: []byte(payload)}

	f, err := aprs.Decode(ui)
	require.NoError(t, err)

	p := f.(*aprs.PositionFrame)
	require.NotNil(t, p.Timestamp)
	assert.Equal(t, aprs.TimestampDHMUTC, p.Timestamp.Format)
}

func TestDecodeUncompressedPositionAmbiguity(t *testing.T) {
	payload := "!4903.  N/07201.75W-"
	ui := &ax25.UIFrame{PID: aprs.PID, Payload: []byte(payload)}

	f, err := aprs.Decode(ui)
	require.NoError(t, err)

	p := f.(*aprs.PositionFrame)
	assert.Equal(t, 2, p.Ambiguity)
}

func TestCompressedPositionRoundTrip(t *testing.T) {
	encoded := aprs.EncodeCompressedPosition('!', nil, 49.5, -72.75, '/', '>', nil, nil, "moving")

	ui := &ax25.UIFrame{PID: aprs.PID, Payload: encoded}

	f, err := aprs.Decode(ui)
	require.NoError(t, err)

	p := f.(*aprs.PositionFrame)
	assert.True(t, p.Compressed)
	assert.InDelta(t, 49.5, p.Lat, 1e-3)
	assert.InDelta(t, -72.75, p.Lon, 1e-3)
	assert.Equal(t, byte('/'), p.SymbolTable)
	assert.Equal(t, byte('>'), p.SymbolCode)
	assert.Equal(t, "moving", p.Comment)
	assert.Nil(t, p.Course)
	assert.Nil(t, p.SpeedKnots)
}
