package wire

import (
	"encoding/binary"

	"github.com/nbcluster/nbcluster/pkg/ncerr"
)

// HeaderSize is the fixed 12-byte length of a NetBIOS name service header.
const HeaderSize = 12

// Header is the 12-byte fixed header in front of every name service
// datagram. All fields are network byte order (big-endian) on the wire.
type Header struct {
	TransactionID uint16
	Response      bool
	Opcode        Opcode
	Authoritative bool
	Truncated     bool
	RecursionDes  bool
	RecursionAva  bool
	Broadcast     bool
	RCode         uint8
	QDCount       uint16
	ANCount       uint16
	NSCount       uint16
	ARCount       uint16
}

// EncodeHeader appends the 12-byte wire encoding of h to buf.
func EncodeHeader(buf []byte, h *Header) []byte {
	var flags uint16
	if h.Response {
		flags |= 1 << 15
	}
	flags |= uint16(h.Opcode&0x0f) << 11
	if h.Authoritative {
		flags |= 1 << 10
	}
	if h.Truncated {
		flags |= 1 << 9
	}
	if h.RecursionDes {
		flags |= 1 << 8
	}
	if h.RecursionAva {
		flags |= 1 << 7
	}
	if h.Broadcast {
		flags |= 1 << 4
	}
	flags |= uint16(h.RCode & 0x0f)

	var tmp [HeaderSize]byte
	binary.BigEndian.PutUint16(tmp[0:2], h.TransactionID)
	binary.BigEndian.PutUint16(tmp[2:4], flags)
	binary.BigEndian.PutUint16(tmp[4:6], h.QDCount)
	binary.BigEndian.PutUint16(tmp[6:8], h.ANCount)
	binary.BigEndian.PutUint16(tmp[8:10], h.NSCount)
	binary.BigEndian.PutUint16(tmp[10:12], h.ARCount)
	return append(buf, tmp[:]...)
}

// DecodeHeader reads the fixed header from the front of buf.
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, ncerr.New("wire.DecodeHeader", ncerr.MalformedPacket)
	}
	flags := binary.BigEndian.Uint16(buf[2:4])
	h := &Header{
		TransactionID: binary.BigEndian.Uint16(buf[0:2]),
		Response:      flags&(1<<15) != 0,
		Opcode:        Opcode((flags >> 11) & 0x0f),
		Authoritative: flags&(1<<10) != 0,
		Truncated:     flags&(1<<9) != 0,
		RecursionDes:  flags&(1<<8) != 0,
		RecursionAva:  flags&(1<<7) != 0,
		Broadcast:     flags&(1<<4) != 0,
		RCode:         uint8(flags & 0x0f),
		QDCount:       binary.BigEndian.Uint16(buf[4:6]),
		ANCount:       binary.BigEndian.Uint16(buf[6:8]),
		NSCount:       binary.BigEndian.Uint16(buf[8:10]),
		ARCount:       binary.BigEndian.Uint16(buf[10:12]),
	}
	return h, nil
}
