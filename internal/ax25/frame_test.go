package ax25_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/vk4msl/goax25kiss/internal/ax25"
)

func hdr(t *rapid.T) ax25.Header {
	return ax25.Header{
		Destination: genAddress(t),
		Source:      genAddress(t),
	}
}

func fixedHeader() ax25.Header {
	return ax25.Header{
		Destination: ax25.NewAddress("VK4BWI", 0),
		Source:      ax25.NewAddress("VK4MSL", 5),
	}
}

// TestUIFrameEncodeScenario1 encodes a UI frame VK4BWI<-VK4MSL, no
// repeaters, PID 0xF0, payload "This is a test". The wire form begins with
// the destination address bytes AC 96 68 84 AE 92 E0 and ends with the
// control+PID prefix 03 F0 followed by the ASCII payload.
func TestUIFrameEncodeScenario1(t *testing.T) {
	dest := ax25.NewAddress("VK4BWI", 0)
	src := ax25.NewAddress("VK4MSL", 0)

	f := &ax25.UIFrame{
		Header: ax25.Header{
			Destination: dest,
			Source:      src,
			DestCR:      true,
		},
		PID:     0xf0,
		Payload: []byte("This is a test"),
	}

	out := f.Encode()

	wantPrefix := []byte{0xac, 0x96, 0x68, 0x84, 0xae, 0x92, 0xe0}

	assert.Equal(t, wantPrefix, out[:7])
	assert.Contains(t, string(out), "\x03\xf0This is a test")
}

// TestIFrameDecodeScenario2 decodes an I-frame VK4MSL->VK4BWI carrying
// N(R)=6, N(S)=2, P/F set, PID 0xFF and payload "This is a test".
func TestIFrameDecodeScenario2(t *testing.T) {
	wire := []byte{
		0xac, 0x96, 0x68, 0x84, 0xae, 0x92, 0xe0,
		0xac, 0x96, 0x68, 0x9a, 0xa6, 0x98, 0x61,
		0xd4,
		0xff,
	}
	wire = append(wire, []byte("This is a test")...)

	modulo128 := false

	f, err := ax25.Decode(wire, &modulo128)
	require.NoError(t, err)

	ifr, ok := f.(*ax25.IFrame)
	require.True(t, ok, "expected *ax25.IFrame, got %T", f)

	assert.Equal(t, uint8(6), ifr.NR)
	assert.Equal(t, uint8(2), ifr.NS)
	assert.True(t, ifr.PF)
	assert.Equal(t, byte(0xff), ifr.PID)
	assert.Equal(t, "This is a test", string(ifr.Payload))
	assert.Equal(t, "VK4MSL", ifr.Source.Callsign)
	assert.Equal(t, "VK4BWI", ifr.Destination.Callsign)
}

func TestIFrameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		modulo128 := rapid.Bool().Draw(t, "modulo128")

		maxSeq := uint8(7)
		if modulo128 {
			maxSeq = 127
		}

		f := &ax25.IFrame{
			Header:    hdr(t),
			Modulo128: modulo128,
			NR:        uint8(rapid.UintRange(0, uint(maxSeq)).Draw(t, "nr")),
			NS:        uint8(rapid.UintRange(0, uint(maxSeq)).Draw(t, "ns")),
			PF:        rapid.Bool().Draw(t, "pf"),
			PID:       byte(rapid.UintRange(0, 255).Draw(t, "pid")),
			Payload:   []byte(rapid.String().Draw(t, "payload")),
		}

		m := modulo128
		got, err := ax25.Decode(f.Encode(), &m)
		require.NoError(t, err)

		gi, ok := got.(*ax25.IFrame)
		require.True(t, ok)
		assert.Equal(t, f.NR, gi.NR)
		assert.Equal(t, f.NS, gi.NS)
		assert.Equal(t, f.PF, gi.PF)
		assert.Equal(t, f.PID, gi.PID)
		assert.Equal(t, f.Payload, gi.Payload)
	})
}

func TestSFrameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		modulo128 := rapid.Bool().Draw(t, "modulo128")

		maxSeq := uint8(7)
		if modulo128 {
			maxSeq = 127
		}

		f := &ax25.SFrame{
			Header:    hdr(t),
			Modulo128: modulo128,
			NR:        uint8(rapid.UintRange(0, uint(maxSeq)).Draw(t, "nr")),
			PF:        rapid.Bool().Draw(t, "pf"),
			Code:      ax25.SCode(rapid.UintRange(0, 3).Draw(t, "code")),
		}

		m := modulo128
		got, err := ax25.Decode(f.Encode(), &m)
		require.NoError(t, err)

		gs, ok := got.(*ax25.SFrame)
		require.True(t, ok)
		assert.Equal(t, f.NR, gs.NR)
		assert.Equal(t, f.PF, gs.PF)
		assert.Equal(t, f.Code, gs.Code)
	})
}

func TestUnnumberedFrameRoundTrip(t *testing.T) {
	type ctor func(h ax25.Header, pf bool) ax25.Frame

	variants := []ctor{
		func(h ax25.Header, pf bool) ax25.Frame { return &ax25.SABMFrame{Header: h, PF: pf} },
		func(h ax25.Header, pf bool) ax25.Frame { return &ax25.SABMEFrame{Header: h, PF: pf} },
		func(h ax25.Header, pf bool) ax25.Frame { return &ax25.DISCFrame{Header: h, PF: pf} },
		func(h ax25.Header, pf bool) ax25.Frame { return &ax25.DMFrame{Header: h, PF: pf} },
		func(h ax25.Header, pf bool) ax25.Frame { return &ax25.UAFrame{Header: h, PF: pf} },
	}

	rapid.Check(t, func(t *rapid.T) {
		i := rapid.IntRange(0, len(variants)-1).Draw(t, "variant")
		pf := rapid.Bool().Draw(t, "pf")

		// The C bits travel in DestCR/SrcCR and the extension bits follow
		// from the header layout, so the address flags must agree with them.
		h := hdr(t)
		h.DestCR = h.Destination.CH
		h.SrcCR = h.Source.CH
		h.Destination.Extension = false
		h.Source.Extension = true

		f := variants[i](h, pf)
		got, err := ax25.Decode(f.Encode(), nil)
		require.NoError(t, err)

		// Created is stamped at decode time; it is not carried on the wire.
		got.GetHeader().Created = f.GetHeader().Created
		assert.Equal(t, f, got)
	})
}

func TestXIDFrameRoundTrip(t *testing.T) {
	f := &ax25.XIDFrame{
		Header: fixedHeader(),
		PF:     true,
		FI:     0x82,
		GI:     0xf0,
		Params: []ax25.XIDParam{
			ax25.ClassesOfProcedure(true, false),
			ax25.HDLCOptionalFunctions(false, true, false, true),
			ax25.BigEndianParam(ax25.PIIFieldLengthReceive, 256*8, 2),
			ax25.BigEndianParam(ax25.PIWindowSizeReceive, 7, 1),
		},
	}

	got, err := ax25.Decode(f.Encode(), nil)
	require.NoError(t, err)

	gx, ok := got.(*ax25.XIDFrame)
	require.True(t, ok)
	assert.Equal(t, f.FI, gx.FI)
	assert.Equal(t, f.GI, gx.GI)
	require.Len(t, gx.Params, len(f.Params))

	full, half := ax25.DecodeClassesOfProcedure(gx.Params[0])
	assert.True(t, full)
	assert.False(t, half)
}

func TestFRMRFrameRoundTrip(t *testing.T) {
	f := &ax25.FRMRFrame{
		Header: fixedHeader(), PF: true,
		W: true, X: false, Y: true, Z: false,
		VR: 3, VS: 5, FRMRCR: true, RejectControl: 0x2f,
	}
	// No repeaters, so the encoder sets the source extension bit.
	f.Source.Extension = true

	got, err := ax25.Decode(f.Encode(), nil)
	require.NoError(t, err)

	// Created is stamped at decode time; it is not carried on the wire.
	got.GetHeader().Created = f.Created
	assert.Equal(t, f, got)
}

func TestUnknownModifierDecodesAsGenericUFrame(t *testing.T) {
	h := fixedHeader()
	raw := append(h.Destination.Encode(), h.Source.Encode()...)
	raw[13] |= 0x01 // source extension: no repeaters
	raw = append(raw, 0xff)

	got, err := ax25.Decode(raw, nil)
	require.Error(t, err)

	uf, ok := got.(*ax25.UFrame)
	require.True(t, ok)
	assert.Equal(t, byte(0xff&^0x10), uf.Modifier)
}

func TestSFrameMustHaveEmptyPayload(t *testing.T) {
	h := fixedHeader()
	raw := append(h.Destination.Encode(), h.Source.Encode()...)
	raw[13] |= 0x01 // source extension: no repeaters
	raw = append(raw, 0x01, 0xaa) // RR control byte + stray payload byte

	modulo128 := false
	_, err := ax25.Decode(raw, &modulo128)
	assert.ErrorIs(t, err, ax25.ErrInvalidLayout)
}
