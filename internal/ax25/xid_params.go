package ax25

import (
	ucodec "github.com/vk4msl/goax25kiss/internal/uint"
)

// XID parameter identifiers defined by AX.25 2.2.
const (
	PIClassesOfProcedure    byte = 2
	PIHDLCOptionalFunctions byte = 3
	PIIFieldLengthTransmit  byte = 5
	PIIFieldLengthReceive   byte = 6
	PIWindowSizeTransmit    byte = 7
	PIWindowSizeReceive     byte = 8
	PIAcknowledgeTimer      byte = 9
	PIRetries               byte = 10
)

// Classes of Procedure bits (little-endian 16-bit PV).
const (
	copFullDuplex byte = 0x40
	copHalfDuplex byte = 0x20
)

// HDLC Optional Functions bits this package negotiates (little-endian
// 24-bit PV); the remaining bits defined by AX.25 2.2 are left clear.
const (
	hdlcREJ       uint32 = 1 << 1
	hdlcSREJ      uint32 = 1 << 2
	hdlcModulo8   uint32 = 1 << 10
	hdlcModulo128 uint32 = 1 << 11
)

// ClassesOfProcedure builds the PI 2 parameter's full/half duplex bits. A
// malformed PV (both set or both clear, once decoded) reads back as neither
// side supporting full duplex.
func ClassesOfProcedure(full, half bool) XIDParam {
	var v uint64
	if full {
		v |= uint64(copFullDuplex)
	}

	if half {
		v |= uint64(copHalfDuplex)
	}

	return XIDParam{PI: PIClassesOfProcedure, PV: ucodec.Encode(v, 2, false)}
}

// DecodeClassesOfProcedure returns (fullDuplex, halfDuplex) as decoded from
// the parameter's raw bits.
func DecodeClassesOfProcedure(p XIDParam) (full, half bool) {
	v := ucodec.Decode(p.PV, false)

	return v&uint64(copFullDuplex) != 0, v&uint64(copHalfDuplex) != 0
}

// HDLCOptionalFunctions builds the PI 3 parameter advertising REJ/SREJ and
// modulo-8/128 support; other AX.25-defined bits in the PV are left clear.
func HDLCOptionalFunctions(rej, srej, modulo8, modulo128 bool) XIDParam {
	var v uint32
	if rej {
		v |= uint32(hdlcREJ)
	}

	if srej {
		v |= uint32(hdlcSREJ)
	}

	if modulo8 {
		v |= uint32(hdlcModulo8)
	}

	if modulo128 {
		v |= uint32(hdlcModulo128)
	}

	return XIDParam{PI: PIHDLCOptionalFunctions, PV: ucodec.Encode(uint64(v), 3, false)}
}

// DecodeHDLCOptionalFunctions extracts the REJ/SREJ/modulo bits.
func DecodeHDLCOptionalFunctions(p XIDParam) (rej, srej, modulo8, modulo128 bool) {
	v := uint32(ucodec.Decode(p.PV, false))

	return v&uint32(hdlcREJ) != 0, v&uint32(hdlcSREJ) != 0,
		v&uint32(hdlcModulo8) != 0, v&uint32(hdlcModulo128) != 0
}

// BigEndianParam builds a simple big-endian integer parameter, used for
// I-field length, window size, acknowledge timer, and retries, which all
// share one encoding.
func BigEndianParam(pi byte, v uint64, length int) XIDParam {
	return XIDParam{PI: pi, PV: ucodec.Encode(v, length, true)}
}

// DecodeBigEndianParam is the inverse of BigEndianParam.
func DecodeBigEndianParam(p XIDParam) uint64 {
	return ucodec.Decode(p.PV, true)
}
