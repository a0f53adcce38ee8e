package ax25

// Path is the ordered, immutable repeater list of a frame header.
type Path []Address

// DecodePath consumes 7-byte addresses from b until one has Extension set,
// returning the consumed path and the number of bytes read. The header
// decoder calls it for the repeater section after destination+source; an
// empty b yields an empty path.
func DecodePath(b []byte) (Path, int, error) {
	var path Path

	if len(b) == 0 {
		return path, 0, nil
	}

	consumed := 0

	for {
		if len(b) < 7 {
			return nil, 0, ErrTruncatedFrame
		}

		addr, err := DecodeAddress(b[:7])
		if err != nil {
			return nil, 0, err
		}

		path = append(path, addr)
		b = b[7:]
		consumed += 7

		if addr.Extension {
			break
		}
	}

	return path, consumed, nil
}

// Encode packs the path back to wire form, setting Extension on the final
// address (the header decoder/encoder is responsible for the
// destination/source extension-bit interaction).
func (p Path) Encode() []byte {
	out := make([]byte, 0, len(p)*7)

	for i, a := range p {
		a.Extension = i == len(p)-1
		out = append(out, a.Encode()...)
	}

	return out
}

// Reply returns the reverse-order sub-sequence of addresses whose H bit is
// set, each with H cleared: the path a reply should traverse.
func (p Path) Reply() Path {
	var out Path

	for i := len(p) - 1; i >= 0; i-- {
		if !p[i].CH {
			continue
		}

		a := p[i]
		a.CH = false
		out = append(out, a)
	}

	return out
}

// Replace returns a new path with the given normalised alias substituted by
// concrete wherever it appears (matched on normalised form so C/H/extension
// differences in the stored path don't block the match).
func (p Path) Replace(alias, concrete Address) Path {
	out := make(Path, len(p))

	aliasNorm := alias.Normalised()

	for i, a := range p {
		if a.Normalised().Equal(aliasNorm) {
			out[i] = concrete
		} else {
			out[i] = a
		}
	}

	return out
}

// Clone returns an independent copy, since Path values are meant to be
// treated as immutable once built into a Frame.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)

	return out
}
