package ax25

import "time"

// Header carries the fields every frame variant has in common.
type Header struct {
	Destination Address
	Source      Address
	Repeaters   Path
	DestCR      bool // C bit of the destination address
	SrcCR       bool // C bit of the source address
	Created     time.Time
	Deadline    *time.Time // optional monotonic transmit deadline
}

func (h Header) encodeAddresses() []byte {
	dest := h.Destination
	dest.CH = h.DestCR
	dest.Extension = false

	src := h.Source
	src.CH = h.SrcCR
	src.Extension = len(h.Repeaters) == 0

	out := append([]byte{}, dest.Encode()...)
	out = append(out, src.Encode()...)
	out = append(out, h.Repeaters.Encode()...)

	return out
}

// Frame is the tagged-union interface every concrete frame variant
// implements. Variant discrimination is a compile-time Go type switch, not
// a runtime registry, except for the one place a registry is genuinely
// warranted: U-frame modifier-byte dispatch, which maps an 8-bit wire value
// (not a Go type) to a constructor.
type Frame interface {
	GetHeader() *Header
	// Encode serialises the frame, including its address header, to wire
	// bytes.
	Encode() []byte
}

// RawFrame is returned when the control-field width cannot yet be
// determined (no modulo context supplied to Decode). An undefined U-frame
// modifier decodes to *UFrame instead.
type RawFrame struct {
	Header
	Control []byte // whatever control-field bytes were present, unparsed
	Payload []byte
}

func (f *RawFrame) GetHeader() *Header { return &f.Header }

func (f *RawFrame) Encode() []byte {
	out := f.encodeAddresses()
	out = append(out, f.Control...)
	out = append(out, f.Payload...)

	return out
}

// Decode parses raw wire bytes into a typed Frame. modulo128 is a
// three-valued flag: nil means "undetermined" (an I/S-frame control field
// cannot be sized, so a Raw frame comes back); non-nil selects 8-bit or
// 16-bit I/S control fields.
func Decode(b []byte, modulo128 *bool) (Frame, error) {
	dest, destN, err := decodeHeaderAddress(b)
	if err != nil {
		return nil, err
	}

	b = b[destN:]

	src, srcN, err := decodeHeaderAddress(b)
	if err != nil {
		return nil, err
	}

	b = b[srcN:]

	hdr := Header{Destination: dest, Source: src, DestCR: dest.CH, SrcCR: src.CH, Created: time.Now()}

	if !src.Extension {
		repeaters, repN, rerr := DecodePath(b)
		if rerr != nil {
			return nil, rerr
		}

		b = b[repN:]
		hdr.Repeaters = repeaters
	}

	return decodeControl(hdr, b, modulo128)
}

func decodeHeaderAddress(b []byte) (Address, int, error) {
	if len(b) < 7 {
		return Address{}, 0, ErrTruncatedFrame
	}

	a, err := DecodeAddress(b[:7])

	return a, 7, err
}

func decodeControl(hdr Header, b []byte, modulo128 *bool) (Frame, error) {
	if len(b) < 1 {
		return nil, ErrTruncatedFrame
	}

	if b[0]&0x03 == 0x03 {
		return decodeUFrame(hdr, b)
	}

	if modulo128 == nil {
		return &RawFrame{Header: hdr, Control: append([]byte{}, b...)}, nil
	}

	if *modulo128 {
		return decode16BitFrame(hdr, b)
	}

	return decode8BitFrame(hdr, b)
}

func decode8BitFrame(hdr Header, b []byte) (Frame, error) {
	if len(b) < 1 {
		return nil, ErrTruncatedFrame
	}

	ctl := b[0]
	nr := (ctl & 0xe0) >> 5
	pf := ctl&0x10 != 0

	if ctl&0x01 == 0 {
		// I-frame
		ns := (ctl & 0x0e) >> 1
		if len(b) < 2 {
			return nil, ErrTruncatedFrame
		}

		pid := b[1]
		payload := append([]byte{}, b[2:]...)

		return &IFrame{Header: hdr, Modulo128: false, NR: nr, NS: ns, PF: pf, PID: pid, Payload: payload}, nil
	}

	// S-frame
	code := SCode((ctl & 0x0c) >> 2)
	if len(b) != 1 {
		return nil, ErrInvalidLayout
	}

	return &SFrame{Header: hdr, Modulo128: false, NR: nr, PF: pf, Code: code}, nil
}

func decode16BitFrame(hdr Header, b []byte) (Frame, error) {
	if len(b) < 2 {
		return nil, ErrTruncatedFrame
	}

	ctl := uint16(b[0]) | uint16(b[1])<<8
	nr := uint8((ctl & 0xfe00) >> 9)
	pf := ctl&0x0100 != 0

	if ctl&0x0001 == 0 {
		ns := uint8((ctl & 0x00fe) >> 1)
		if len(b) < 3 {
			return nil, ErrTruncatedFrame
		}

		pid := b[2]
		payload := append([]byte{}, b[3:]...)

		return &IFrame{Header: hdr, Modulo128: true, NR: nr, NS: ns, PF: pf, PID: pid, Payload: payload}, nil
	}

	code := SCode((ctl & 0x000c) >> 2)
	if len(b) != 2 {
		return nil, ErrInvalidLayout
	}

	return &SFrame{Header: hdr, Modulo128: true, NR: nr, PF: pf, Code: code}, nil
}
