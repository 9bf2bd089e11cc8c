package wire

import "github.com/nbcluster/nbcluster/pkg/ncerr"

// RawNameLen is the 15-byte padded name plus the 1-byte type selector
// that together form the 16 raw bytes a NetBIOS name encodes.
const RawNameLen = 16

// encodedNameLen is the length of the first-level encoded form: each of
// the 16 raw bytes expands to two nibbles, each nibble becomes one
// ASCII byte in the range 'A'..'P'.
const encodedNameLen = RawNameLen * 2

// EncodeName writes the RFC1001 half-ASCII first-level encoding of a
// 16-byte raw NetBIOS name (length-prefixed label, no scope, terminated
// by a zero-length label) to buf.
func EncodeName(buf []byte, raw [RawNameLen]byte) []byte {
	buf = append(buf, byte(encodedNameLen))
	for _, b := range raw {
		buf = append(buf, 'A'+(b>>4), 'A'+(b&0x0f))
	}
	buf = append(buf, 0x00)
	return buf
}

// DecodeName reads a half-ASCII encoded name starting at buf[offset] and
// returns the raw 16 bytes plus the number of bytes consumed (including
// the length prefix and terminating zero label).
func DecodeName(buf []byte, offset int) ([RawNameLen]byte, int, error) {
	var raw [RawNameLen]byte
	if offset >= len(buf) {
		return raw, 0, ncerr.New("wire.DecodeName", ncerr.MalformedPacket)
	}
	length := int(buf[offset])
	if length != encodedNameLen {
		return raw, 0, ncerr.New("wire.DecodeName", ncerr.MalformedPacket)
	}
	start := offset + 1
	end := start + encodedNameLen
	if end+1 > len(buf) {
		return raw, 0, ncerr.New("wire.DecodeName", ncerr.MalformedPacket)
	}
	for i := 0; i < RawNameLen; i++ {
		hi := buf[start+2*i]
		lo := buf[start+2*i+1]
		if hi < 'A' || hi > 'P' || lo < 'A' || lo > 'P' {
			return raw, 0, ncerr.New("wire.DecodeName", ncerr.MalformedPacket)
		}
		raw[i] = (hi-'A')<<4 | (lo - 'A')
	}
	if buf[end] != 0x00 {
		return raw, 0, ncerr.New("wire.DecodeName", ncerr.MalformedPacket)
	}
	return raw, end + 1 - offset, nil
}

// PadName builds the 16 raw bytes for a NetBIOS name from its printable
// form and a type byte, space-padding the name to 15 bytes.
func PadName(name string, nameType byte) [RawNameLen]byte {
	var raw [RawNameLen]byte
	for i := 0; i < 15; i++ {
		if i < len(name) {
			raw[i] = name[i]
		} else {
			raw[i] = ' '
		}
	}
	raw[15] = nameType
	return raw
}

// UnpadName splits raw into its printable name (trailing spaces
// trimmed) and type byte.
func UnpadName(raw [RawNameLen]byte) (string, byte) {
	end := 15
	for end > 0 && raw[end-1] == ' ' {
		end--
	}
	return string(raw[:end]), raw[15]
}
