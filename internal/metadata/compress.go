package metadata

import "fmt"

// MaxCompressed is the largest value a compressed unsigned integer holds.
const MaxCompressed = 0x1FFFFFFF

// AppendCompressed appends v in the ECMA-335 compressed unsigned form
// (1, 2 or 4 bytes, big-endian).
func AppendCompressed(dst []byte, v uint32) ([]byte, error) {
	switch {
	case v <= 0x7F:
		return append(dst, byte(v)), nil
	case v <= 0x3FFF:
		return append(dst, byte(v>>8)|0x80, byte(v)), nil
	case v <= MaxCompressed:
		return append(dst, byte(v>>24)|0xC0, byte(v>>16), byte(v>>8), byte(v)), nil
	}
	return dst, fmt.Errorf("value %#x does not fit a compressed integer", v)
}

// ReadCompressed decodes a compressed unsigned integer and returns it with
// the number of bytes consumed.
func ReadCompressed(b []byte) (uint32, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("compressed integer: empty input")
	}
	switch {
	case b[0]&0x80 == 0:
		return uint32(b[0]), 1, nil
	case b[0]&0xC0 == 0x80:
		if len(b) < 2 {
			return 0, 0, fmt.Errorf("compressed integer: truncated")
		}
		return uint32(b[0]&0x3F)<<8 | uint32(b[1]), 2, nil
	case b[0]&0xE0 == 0xC0:
		if len(b) < 4 {
			return 0, 0, fmt.Errorf("compressed integer: truncated")
		}
		return uint32(b[0]&0x1F)<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), 4, nil
	}
	return 0, 0, fmt.Errorf("compressed integer: bad lead byte %#x", b[0])
}
