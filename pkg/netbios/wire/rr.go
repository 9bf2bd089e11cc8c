package wire

import (
	"encoding/binary"
	"net"

	"github.com/nbcluster/nbcluster/pkg/ncerr"
)

// Question is a name service query entry (the question section).
type Question struct {
	Name   [RawNameLen]byte
	QType  uint16
	QClass uint16
}

// ResourceRecord is a name, type, class, TTL, RDATA tuple appearing in
// the answer, authority, or additional sections.
type ResourceRecord struct {
	Name  [RawNameLen]byte
	Type  uint16
	Class uint16
	TTL   uint32
	RData []byte
}

// NBAddressEntry is one owner address inside an NB record's RDATA.
type NBAddressEntry struct {
	Flags uint16
	Addr  net.IP // 4-byte IPv4
}

// EncodeNBRData packs the NB record RDATA: a flags/address pair per
// owner. RDATA fields are little-endian, matching the source's reuse of
// its "Intel" helpers for this section (the 12-byte header above is
// big-endian).
func EncodeNBRData(entries []NBAddressEntry) []byte {
	out := make([]byte, 0, len(entries)*6)
	for _, e := range entries {
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], e.Flags)
		out = append(out, tmp[:]...)
		ip4 := e.Addr.To4()
		if ip4 == nil {
			ip4 = net.IPv4zero.To4()
		}
		out = append(out, ip4...)
	}
	return out
}

// DecodeNBRData unpacks the NB record RDATA produced by EncodeNBRData.
func DecodeNBRData(rdata []byte) ([]NBAddressEntry, error) {
	if len(rdata)%6 != 0 {
		return nil, ncerr.New("wire.DecodeNBRData", ncerr.MalformedPacket)
	}
	entries := make([]NBAddressEntry, 0, len(rdata)/6)
	for i := 0; i < len(rdata); i += 6 {
		flags := binary.LittleEndian.Uint16(rdata[i : i+2])
		addr := net.IPv4(rdata[i+2], rdata[i+3], rdata[i+4], rdata[i+5])
		entries = append(entries, NBAddressEntry{Flags: flags, Addr: addr})
	}
	return entries, nil
}

// NodeNameEntry is one entry of an NBSTAT (adapter status) reply: a
// name this node owns, plus its flags.
type NodeNameEntry struct {
	Raw   [RawNameLen]byte
	Flags uint16
}

// EncodeNBSTATRData packs the NBSTAT RDATA: a one-byte count followed by
// 18-byte (15 name + 1 type + 2 flags) entries, little-endian flags.
func EncodeNBSTATRData(entries []NodeNameEntry) []byte {
	out := make([]byte, 0, 1+len(entries)*18)
	out = append(out, byte(len(entries)))
	for _, e := range entries {
		out = append(out, e.Raw[:]...)
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], e.Flags)
		out = append(out, tmp[:]...)
	}
	return out
}

func encodeQuestion(buf []byte, q Question) []byte {
	buf = EncodeName(buf, q.Name)
	var tmp [4]byte
	binary.BigEndian.PutUint16(tmp[0:2], q.QType)
	binary.BigEndian.PutUint16(tmp[2:4], q.QClass)
	return append(buf, tmp[:]...)
}

func decodeQuestion(buf []byte, offset int) (Question, int, error) {
	raw, consumed, err := DecodeName(buf, offset)
	if err != nil {
		return Question{}, 0, err
	}
	end := offset + consumed
	if end+4 > len(buf) {
		return Question{}, 0, ncerr.New("wire.decodeQuestion", ncerr.MalformedPacket)
	}
	q := Question{
		Name:   raw,
		QType:  binary.BigEndian.Uint16(buf[end : end+2]),
		QClass: binary.BigEndian.Uint16(buf[end+2 : end+4]),
	}
	return q, consumed + 4, nil
}

func encodeRR(buf []byte, rr ResourceRecord) []byte {
	buf = EncodeName(buf, rr.Name)
	var tmp [10]byte
	binary.BigEndian.PutUint16(tmp[0:2], rr.Type)
	binary.BigEndian.PutUint16(tmp[2:4], rr.Class)
	binary.BigEndian.PutUint32(tmp[4:8], rr.TTL)
	binary.BigEndian.PutUint16(tmp[8:10], uint16(len(rr.RData)))
	buf = append(buf, tmp[:]...)
	return append(buf, rr.RData...)
}

func decodeRR(buf []byte, offset int) (ResourceRecord, int, error) {
	raw, consumed, err := DecodeName(buf, offset)
	if err != nil {
		return ResourceRecord{}, 0, err
	}
	end := offset + consumed
	if end+10 > len(buf) {
		return ResourceRecord{}, 0, ncerr.New("wire.decodeRR", ncerr.MalformedPacket)
	}
	rrType := binary.BigEndian.Uint16(buf[end : end+2])
	rrClass := binary.BigEndian.Uint16(buf[end+2 : end+4])
	ttl := binary.BigEndian.Uint32(buf[end+4 : end+8])
	rdlen := binary.BigEndian.Uint16(buf[end+8 : end+10])
	rdataStart := end + 10
	rdataEnd := rdataStart + int(rdlen)
	if rdataEnd > len(buf) {
		return ResourceRecord{}, 0, ncerr.New("wire.decodeRR", ncerr.MalformedPacket)
	}
	rdata := make([]byte, rdlen)
	copy(rdata, buf[rdataStart:rdataEnd])
	rr := ResourceRecord{Name: raw, Type: rrType, Class: rrClass, TTL: ttl, RData: rdata}
	return rr, rdataEnd - offset, nil
}
