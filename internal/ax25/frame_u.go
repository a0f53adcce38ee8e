package ax25

import "fmt"

// U-frame modifier byte values with P/F cleared, per AX.25 2.2 §4. pfMask
// is bit 4; a modifier's "base" value never has it set.
const (
	pfMask = 0x10

	ModifierSABM  byte = 0x6f
	ModifierSABME byte = 0x2f
	ModifierDISC  byte = 0x43
	ModifierDM    byte = 0x0f
	ModifierUA    byte = 0x63
	ModifierUI    byte = 0x03
	ModifierFRMR  byte = 0x87
	ModifierXID   byte = 0xaf
	ModifierTEST  byte = 0xe3
)

func uControl(modifier byte, pf bool) byte {
	if pf {
		return modifier | pfMask
	}

	return modifier
}

// UFrame is the fallback representation for a U-frame whose modifier byte
// isn't one AX.25 2.2 defines; it decodes as a generic U-frame alongside a
// non-nil error identifying the unrecognised modifier.
type UFrame struct {
	Header
	PF       bool
	Modifier byte
	Payload  []byte
}

func (f *UFrame) GetHeader() *Header { return &f.Header }

func (f *UFrame) Encode() []byte {
	out := f.encodeAddresses()
	out = append(out, uControl(f.Modifier, f.PF))
	out = append(out, f.Payload...)

	return out
}

type SABMFrame struct {
	Header
	PF bool
}

func (f *SABMFrame) GetHeader() *Header { return &f.Header }
func (f *SABMFrame) Encode() []byte {
	return append(f.encodeAddresses(), uControl(ModifierSABM, f.PF))
}

type SABMEFrame struct {
	Header
	PF bool
}

func (f *SABMEFrame) GetHeader() *Header { return &f.Header }
func (f *SABMEFrame) Encode() []byte {
	return append(f.encodeAddresses(), uControl(ModifierSABME, f.PF))
}

type DISCFrame struct {
	Header
	PF bool
}

func (f *DISCFrame) GetHeader() *Header { return &f.Header }
func (f *DISCFrame) Encode() []byte {
	return append(f.encodeAddresses(), uControl(ModifierDISC, f.PF))
}

type DMFrame struct {
	Header
	PF bool
}

func (f *DMFrame) GetHeader() *Header { return &f.Header }
func (f *DMFrame) Encode() []byte {
	return append(f.encodeAddresses(), uControl(ModifierDM, f.PF))
}

type UAFrame struct {
	Header
	PF bool
}

func (f *UAFrame) GetHeader() *Header { return &f.Header }
func (f *UAFrame) Encode() []byte {
	return append(f.encodeAddresses(), uControl(ModifierUA, f.PF))
}

// UIFrame is an Unnumbered Information frame: connectionless data with a
// PID, the carrier of all APRS traffic.
type UIFrame struct {
	Header
	PF      bool
	PID     byte
	Payload []byte
}

func (f *UIFrame) GetHeader() *Header { return &f.Header }

// Control returns the frame's control byte as it appears on the wire.
func (f *UIFrame) Control() byte { return uControl(ModifierUI, f.PF) }

func (f *UIFrame) Encode() []byte {
	out := f.encodeAddresses()
	out = append(out, uControl(ModifierUI, f.PF))
	out = append(out, f.PID)
	out = append(out, f.Payload...)

	return out
}

// TESTFrame carries a free-form payload used to probe a peer's presence; a
// station answers these unconditionally.
type TESTFrame struct {
	Header
	PF      bool
	Payload []byte
}

func (f *TESTFrame) GetHeader() *Header { return &f.Header }

func (f *TESTFrame) Encode() []byte {
	out := f.encodeAddresses()
	out = append(out, uControl(ModifierTEST, f.PF))
	out = append(out, f.Payload...)

	return out
}

// FRMRFrame signals a protocol violation with a 3-byte diagnostic: the
// W/X/Y/Z cause bits, the peer's V(R)/V(S) and its own C/R bit, and the
// control field of the frame that caused the reject.
type FRMRFrame struct {
	Header
	PF            bool
	W, X, Y, Z    bool
	VR, VS        uint8
	FRMRCR        bool
	RejectControl byte
}

func (f *FRMRFrame) GetHeader() *Header { return &f.Header }

func (f *FRMRFrame) Encode() []byte {
	out := f.encodeAddresses()
	out = append(out, uControl(ModifierFRMR, f.PF))

	var wxyz byte
	if f.W {
		wxyz |= 0x01
	}

	if f.X {
		wxyz |= 0x02
	}

	if f.Y {
		wxyz |= 0x04
	}

	if f.Z {
		wxyz |= 0x08
	}

	vrcrvs := (f.VR&0x07)<<5 | (f.VS&0x07)<<1

	if f.FRMRCR {
		vrcrvs |= 0x10
	}

	return append(out, wxyz, vrcrvs, f.RejectControl)
}

// XIDParam is a single XID negotiable parameter.
type XIDParam struct {
	PI byte
	PV []byte
}

// XIDFrame carries the FI/GI header and a length-prefixed parameter list
// used to negotiate connection parameters between two stations.
type XIDFrame struct {
	Header
	PF     bool
	FI     byte
	GI     byte
	Params []XIDParam
}

func (f *XIDFrame) GetHeader() *Header { return &f.Header }

func (f *XIDFrame) Encode() []byte {
	out := f.encodeAddresses()
	out = append(out, uControl(ModifierXID, f.PF))
	out = append(out, f.FI, f.GI)

	var params []byte
	for _, p := range f.Params {
		params = append(params, p.PI, byte(len(p.PV)))
		params = append(params, p.PV...)
	}

	gl := len(params)
	out = append(out, byte(gl>>8), byte(gl)) // GL is big-endian
	out = append(out, params...)

	return out
}

// Param returns the first parameter with the given PI, if any.
func (f *XIDFrame) Param(pi byte) (XIDParam, bool) {
	for _, p := range f.Params {
		if p.PI == pi {
			return p, true
		}
	}

	return XIDParam{}, false
}

func decodeUFrame(hdr Header, b []byte) (Frame, error) {
	ctl := b[0]
	pf := ctl&pfMask != 0
	base := ctl &^ byte(pfMask)
	rest := b[1:]

	switch base {
	case ModifierSABM:
		if len(rest) != 0 {
			return nil, ErrInvalidLayout
		}

		return &SABMFrame{Header: hdr, PF: pf}, nil
	case ModifierSABME:
		if len(rest) != 0 {
			return nil, ErrInvalidLayout
		}

		return &SABMEFrame{Header: hdr, PF: pf}, nil
	case ModifierDISC:
		if len(rest) != 0 {
			return nil, ErrInvalidLayout
		}

		return &DISCFrame{Header: hdr, PF: pf}, nil
	case ModifierDM:
		if len(rest) != 0 {
			return nil, ErrInvalidLayout
		}

		return &DMFrame{Header: hdr, PF: pf}, nil
	case ModifierUA:
		if len(rest) != 0 {
			return nil, ErrInvalidLayout
		}

		return &UAFrame{Header: hdr, PF: pf}, nil
	case ModifierUI:
		if len(rest) < 1 {
			return nil, ErrInvalidLayout
		}

		return &UIFrame{Header: hdr, PF: pf, PID: rest[0], Payload: append([]byte{}, rest[1:]...)}, nil
	case ModifierTEST:
		return &TESTFrame{Header: hdr, PF: pf, Payload: append([]byte{}, rest...)}, nil
	case ModifierFRMR:
		if len(rest) != 3 {
			return nil, ErrInvalidLayout
		}

		return &FRMRFrame{
			Header: hdr, PF: pf,
			W: rest[0]&0x01 != 0, X: rest[0]&0x02 != 0, Y: rest[0]&0x04 != 0, Z: rest[0]&0x08 != 0,
			VR: (rest[1] & 0xe0) >> 5, FRMRCR: rest[1]&0x10 != 0, VS: (rest[1] & 0x0e) >> 1,
			RejectControl: rest[2],
		}, nil
	case ModifierXID:
		return decodeXID(hdr, pf, rest)
	default:
		return &UFrame{Header: hdr, PF: pf, Modifier: base, Payload: append([]byte{}, rest...)},
			fmt.Errorf("%w: 0x%02x", ErrUnknownModifier, base)
	}
}

func decodeXID(hdr Header, pf bool, data []byte) (Frame, error) {
	if len(data) < 4 {
		return nil, ErrTruncatedFrame
	}

	fi := data[0]
	gi := data[1]
	gl := int(data[2])<<8 | int(data[3])
	data = data[4:]

	if len(data) != gl {
		return nil, ErrTruncatedFrame
	}

	var params []XIDParam

	for len(data) > 0 {
		if len(data) < 2 {
			return nil, ErrTruncatedFrame
		}

		pi := data[0]
		pl := int(data[1])
		data = data[2:]

		if len(data) < pl {
			return nil, ErrTruncatedFrame
		}

		params = append(params, XIDParam{PI: pi, PV: append([]byte{}, data[:pl]...)})
		data = data[pl:]
	}

	return &XIDFrame{Header: hdr, PF: pf, FI: fi, GI: gi, Params: params}, nil
}
