package aprs

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"

	"github.com/vk4msl/goax25kiss/internal/ax25"
)

// NMEASource identifies which NMEA sentence a compressed position's
// course/speed/range/altitude field was derived from.
type NMEASource int

const (
	NMEAOther NMEASource = iota
	NMEAGLL
	NMEAGGA
	NMEARMC
)

// CompressionType decodes the trailing byte of a compressed position,
// describing the GPS fix quality and data origin.
type CompressionType struct {
	GPSFixOld  bool
	NMEASource NMEASource
	Origin     int
}

func decodeCompressionType(b byte) CompressionType {
	return CompressionType{
		GPSFixOld:  b&0x20 != 0,
		NMEASource: NMEASource((b & 0x18) >> 3),
		Origin:     int(b & 0x07),
	}
}

func (c CompressionType) encode() byte {
	b := byte(c.Origin & 0x07)
	b |= byte(c.NMEASource&0x03) << 3

	if c.GPSFixOld {
		b |= 0x20
	}

	return b
}

// PositionFrame is a decoded APRS position report (data types '!', '=',
// '/', '@'), uncompressed or compressed.
type PositionFrame struct {
	ui *ax25.UIFrame

	Timestamp *Timestamp
	Messaging bool

	Lat, Lon float64
	// Ambiguity is 0-4: the number of trailing position digits the sender
	// blanked out, per the uncompressed-format ambiguity convention. Always
	// 0 for compressed positions.
	Ambiguity int

	Compressed  bool
	SymbolTable byte
	SymbolCode  byte
	Comment     string

	CompressionType *CompressionType
	Course          *int
	SpeedKnots      *float64
	RangeMiles      *float64
	AltitudeFeet    *float64
}

func (p *PositionFrame) UI() *ax25.UIFrame { return p.ui }

// LatLng returns the position as an s2.LatLng, for callers doing
// great-circle geometry against other reports.
func (p *PositionFrame) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lon)
}

// earthRadiusMiles is s2's unit-sphere angle scaled to statute miles.
const earthRadiusMiles = 3958.8

// DistanceMiles returns the great-circle distance between two position
// reports.
func (p *PositionFrame) DistanceMiles(other *PositionFrame) float64 {
	return float64(p.LatLng().Distance(other.LatLng())) * earthRadiusMiles
}

func decodePosition(ui *ax25.UIFrame) (Frame, error) {
	payload := ui.Payload
	if len(payload) < 1 {
		return nil, fmt.Errorf("aprs: empty position payload")
	}

	dt := DataType(payload[0])
	idx := 1
	hasTS := dt == DataTypePositionTS || dt == DataTypePositionTSMsgCap
	messaging := dt == DataTypePositionNoTSMsgCap || dt == DataTypePositionTSMsgCap

	var ts *Timestamp

	if hasTS {
		if len(payload) < idx+7 {
			return nil, fmt.Errorf("aprs: truncated position timestamp")
		}

		t, err := DecodeTimestamp(string(payload[idx : idx+7]))
		if err != nil {
			return nil, err
		}

		ts = &t
		idx += 7
	}

	rest := payload[idx:]
	pos := &PositionFrame{ui: ui, Timestamp: ts, Messaging: messaging}

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
		return nil, fmt.Errorf("aprs: truncated position payload")
	}

	return pos, nil
}

// decodeUncompressed parses "DDMM.mmH" + table + "DDDMM.mmH" + symbol +
// comment, honouring positional ambiguity (spaces in place of trailing
// digits).
func decodeUncompressed(pos *PositionFrame, rest []byte) error {
	if len(rest) < 19 {
		return fmt.Errorf("aprs: truncated uncompressed position")
	}

	latField := rest[0:8]
	table := rest[8]
	lonField := rest[9:18]
	symcode := rest[18]
	comment := rest[19:]

	lat, ambig, err := parseLat(latField)
	if err != nil {
		return err
	}

	lon, _, err := parseLon(lonField)
	if err != nil {
		return err
	}

	pos.Lat = lat
	pos.Lon = lon
	pos.Ambiguity = ambig
	pos.SymbolTable = table
	pos.SymbolCode = symcode
	pos.Comment = string(comment)

	return nil
}

// digit reads a single position digit, treating a space as ambiguous (0,
// counted into *ambig).
func digit(c byte, ambig *int) (int, error) {
	if c == ' ' {
		*ambig++
		return 0, nil
	}

	if c < '0' || c > '9' {
		return 0, fmt.Errorf("aprs: non-digit %q in position", c)
	}

	return int(c - '0'), nil
}

func parseLat(f []byte) (float64, int, error) {
	if len(f) != 8 {
		return 0, 0, fmt.Errorf("aprs: malformed latitude field")
	}

	var ambig int

	d1, err := digit(f[0], &ambig)
	if err != nil {
		return 0, 0, err
	}

	d2, err := digit(f[1], &ambig)
	if err != nil {
		return 0, 0, err
	}

	m1, err := digit(f[2], &ambig)
	if err != nil {
		return 0, 0, err
	}

	m2, err := digit(f[3], &ambig)
	if err != nil {
		return 0, 0, err
	}

	if f[4] != '.' {
		return 0, 0, fmt.Errorf("aprs: malformed latitude field")
	}

	mf1, err := digit(f[5], &ambig)
	if err != nil {
		return 0, 0, err
	}

	mf2, err := digit(f[6], &ambig)
	if err != nil {
		return 0, 0, err
	}

	hemi := f[7]
	if hemi != 'N' && hemi != 'S' {
		return 0, 0, fmt.Errorf("aprs: bad latitude hemisphere %q", hemi)
	}

	degrees := float64(d1*10 + d2)
	minutes := float64(m1*10+m2) + float64(mf1*10+mf2)/100

	v := degrees + minutes/60
	if hemi == 'S' {
		v = -v
	}

	return v, ambig, nil
}

func parseLon(f []byte) (float64, int, error) {
	if len(f) != 9 {
		return 0, 0, fmt.Errorf("aprs: malformed longitude field")
	}

	var ambig int

	d := make([]int, 0, 7)

	for _, idx := range []int{0, 1, 2, 3, 4} {
		v, err := digit(f[idx], &ambig)
		if err != nil {
			return 0, 0, err
		}

		d = append(d, v)
	}

	if f[5] != '.' {
		return 0, 0, fmt.Errorf("aprs: malformed longitude field")
	}

	for _, idx := range []int{6, 7} {
		v, err := digit(f[idx], &ambig)
		if err != nil {
			return 0, 0, err
		}

		d = append(d, v)
	}

	hemi := f[8]
	if hemi != 'E' && hemi != 'W' {
		return 0, 0, fmt.Errorf("aprs: bad longitude hemisphere %q", hemi)
	}

	degrees := float64(d[0]*100 + d[1]*10 + d[2])
	minutes := float64(d[3]*10+d[4]) + float64(d[5]*10+d[6])/100

	v := degrees + minutes/60
	if hemi == 'W' {
		v = -v
	}

	return v, ambig, nil
}

// Compressed position constants per the APRS 1.0.1 compressed-format
// specification: 4 base-91 digits each for latitude and longitude, scaled
// against a reference corner of the earth.
const (
	compressedLatScale = 380926.0
	compressedLonScale = 190463.0
)

func decodeCompressed(pos *PositionFrame, rest []byte) error {
	if len(rest) < 13 {
		return fmt.Errorf("aprs: truncated compressed position")
	}

	table := rest[0]
	latBytes := rest[1:5]
	lonBytes := rest[5:9]
	symcode := rest[9]
	cs := rest[10:12]
	ctypeByte := rest[12]
	comment := rest[13:]

	pos.Compressed = true
	pos.SymbolTable = table
	pos.SymbolCode = symcode
	pos.Comment = string(comment)

	pos.Lat = 90 - float64(decompressBase91(latBytes))/compressedLatScale
	pos.Lon = -180 + float64(decompressBase91(lonBytes))/compressedLonScale

	if cs[0] == ' ' {
		return nil
	}

	ctype := decodeCompressionType(ctypeByte)
	pos.CompressionType = &ctype

	c0 := int(cs[0]) - byteValueOffset
	c1 := int(cs[1]) - byteValueOffset

	switch {
	case ctype.NMEASource == NMEAGGA:
		alt := math.Pow(1.002, float64(decompressBase91(cs)))
		pos.AltitudeFeet = &alt
	case c0 == 90:
		rng := 2 * math.Pow(1.08, float64(c1))
		pos.RangeMiles = &rng
	default:
		course := c0 * 4
		speed := math.Pow(1.08, float64(c1)) - 1
		pos.Course = &course
		pos.SpeedKnots = &speed
	}

	return nil
}

// EncodeCompressedPosition renders a compressed position report. course and
// speed are optional (nil skips the course/speed CST field, emitting the
// space-filled sentinel instead).
func EncodeCompressedPosition(dt DataType, ts *Timestamp, lat, lon float64, table, symcode byte, course *int, speedKnots *float64, comment string) []byte {
	var out []byte

	out = append(out, byte(dt))

	if ts != nil {
		out = append(out, []byte(ts.Encode())...)
	}

	out = append(out, table)

	latVal := int64(math.Round((90 - lat) * compressedLatScale))
	lonVal := int64(math.Round((lon + 180) * compressedLonScale))

	out = append(out, compressBase91(latVal, 4)...)
	out = append(out, compressBase91(lonVal, 4)...)
	out = append(out, symcode)

	if course != nil && speedKnots != nil {
		c0 := byte(*course/4) + byteValueOffset
		c1 := byte(math.Round(math.Log(*speedKnots+1)/math.Log(1.08))) + byteValueOffset
		out = append(out, c0, c1)
		out = append(out, decodeCompressionType(0).encode())
	} else {
		out = append(out, ' ', ' ', byte(0))
	}

	out = append(out, []byte(comment)...)

	return out
}
