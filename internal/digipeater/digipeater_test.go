package digipeater_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk4msl/goax25kiss/internal/ax25"
	"github.com/vk4msl/goax25kiss/internal/digipeater"
)

func mustAddr(t *testing.T, s string) ax25.Address {
	t.Helper()

	a, err := ax25.DecodeAddressString(s)
	require.NoError(t, err)

	return a
}

func TestDigipeatWideN1(t *testing.T) {
	mycall := mustAddr(t, "VK4MSL-1")
	d := digipeater.New(digipeater.Config{MyCall: mycall})

	frame := &ax25.UIFrame{
		Header: ax25.Header{
			Source:      mustAddr(t, "VK4ABC-9"),
			Destination: mustAddr(t, "APRS"),
			Repeaters:   ax25.Path{mustAddr(t, "WIDE1-1")},
		},
		Payload: []byte("!test"),
	}

	out, ok := d.Process(frame)
	require.True(t, ok)
	require.Len(t, out.Header.Repeaters, 1)
	assert.Equal(t, "VK4MSL-1*", out.Header.Repeaters[0].String())
}

func TestDigipeatWideN2Decrements(t *testing.T) {
	mycall := mustAddr(t, "VK4MSL-1")
	d := digipeater.New(digipeater.Config{MyCall: mycall})

	frame := &ax25.UIFrame{
		Header: ax25.Header{
			Source:      mustAddr(t, "VK4ABC-9"),
			Destination: mustAddr(t, "APRS"),
			Repeaters:   ax25.Path{mustAddr(t, "WIDE2-2")},
		},
		Payload: []byte("!test"),
	}

	out, ok := d.Process(frame)
	require.True(t, ok)
	require.Len(t, out.Header.Repeaters, 2)
	assert.Equal(t, "VK4MSL-1*", out.Header.Repeaters[0].String())
	assert.Equal(t, "WIDE2-1", out.Header.Repeaters[1].String())
}

func TestDigipeatRefusesOwnSource(t *testing.T) {
	mycall := mustAddr(t, "VK4MSL-1")
	d := digipeater.New(digipeater.Config{MyCall: mycall})

	frame := &ax25.UIFrame{
		Header: ax25.Header{
			Source:      mustAddr(t, "VK4MSL-1"),
			Destination: mustAddr(t, "APRS"),
			Repeaters:   ax25.Path{mustAddr(t, "WIDE1-1")},
		},
	}

	_, ok := d.Process(frame)
	assert.False(t, ok)
}

func TestDigipeatDedupesRepeatedFrame(t *testing.T) {
	mycall := mustAddr(t, "VK4MSL-1")
	d := digipeater.New(digipeater.Config{MyCall: mycall})

	frame := &ax25.UIFrame{
		Header: ax25.Header{
			Source:      mustAddr(t, "VK4ABC-9"),
			Destination: mustAddr(t, "APRS"),
			Repeaters:   ax25.Path{mustAddr(t, "WIDE1-1")},
		},
		Payload: []byte("!dup"),
	}

	_, ok := d.Process(frame)
	require.True(t, ok)

	frame2 := &ax25.UIFrame{
		Header: ax25.Header{
			Source:      mustAddr(t, "VK4ABC-9"),
			Destination: mustAddr(t, "APRS"),
			Repeaters:   ax25.Path{mustAddr(t, "WIDE2-1")},
		},
		Payload: []byte("!dup"),
	}

	_, ok = d.Process(frame2)
	assert.False(t, ok, "same source/dest/payload via a different path should be suppressed")
}

func TestDigipeatMyDigiAlias(t *testing.T) {
	mycall := mustAddr(t, "VK4MSL-1")
	d := digipeater.New(digipeater.Config{MyCall: mycall, Aliases: []ax25.Address{mustAddr(t, "RELAY")}})

	frame := &ax25.UIFrame{
		Header: ax25.Header{
			Source:      mustAddr(t, "VK4ABC-9"),
			Destination: mustAddr(t, "APRS"),
			Repeaters:   ax25.Path{mustAddr(t, "RELAY")},
		},
		Payload: []byte("!test"),
	}

	out, ok := d.Process(frame)
	require.True(t, ok)
	assert.Equal(t, "VK4MSL-1*", out.Header.Repeaters[0].String())
}

// TestDigipeatAliasHonoursSSID pins the mydigi matching to the full
// callsign+SSID: WIDE2-2 in the path must not match a WIDE2-1 alias (it
// falls through to the WIDEn-N hop-decrement rule instead).
func TestDigipeatAliasHonoursSSID(t *testing.T) {
	mycall := mustAddr(t, "VK4MSL-10")
	d := digipeater.New(digipeater.Config{
		MyCall:  mycall,
		Aliases: []ax25.Address{mustAddr(t, "WIDE1-1"), mustAddr(t, "WIDE2-1")},
	})

	frame := &ax25.UIFrame{
		Header: ax25.Header{
			Source:      mustAddr(t, "VK4ABC-9"),
			Destination: mustAddr(t, "APRS"),
			Repeaters:   ax25.Path{mustAddr(t, "WIDE2-2"), mustAddr(t, "WIDE1-1")},
		},
		Payload: []byte("!test"),
	}

	out, ok := d.Process(frame)
	require.True(t, ok)
	require.Len(t, out.Header.Repeaters, 3)
	assert.Equal(t, "VK4MSL-10*", out.Header.Repeaters[0].String())
	assert.Equal(t, "WIDE2-1", out.Header.Repeaters[1].String())
	assert.Equal(t, "WIDE1-1", out.Header.Repeaters[2].String())
}

func TestDigipeatSSIDQualifiedAliasMatches(t *testing.T) {
	mycall := mustAddr(t, "VK4MSL-10")
	d := digipeater.New(digipeater.Config{
		MyCall:  mycall,
		Aliases: []ax25.Address{mustAddr(t, "WIDE1-1"), mustAddr(t, "WIDE2-1")},
	})

	frame := &ax25.UIFrame{
		Header: ax25.Header{
			Source:      mustAddr(t, "VK4ABC-9"),
			Destination: mustAddr(t, "APRS"),
			Repeaters:   ax25.Path{mustAddr(t, "WIDE2-1")},
		},
		Payload: []byte("!test"),
	}

	out, ok := d.Process(frame)
	require.True(t, ok)
	require.Len(t, out.Header.Repeaters, 1)
	assert.Equal(t, "VK4MSL-10*", out.Header.Repeaters[0].String())
}
