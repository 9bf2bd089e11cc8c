// Package wire implements the RFC1001 NetBIOS name service datagram
// codec: the 12-byte header, half-ASCII name encoding, and the
// question/answer/authority/additional resource record sections.
package wire

import "github.com/nbcluster/nbcluster/pkg/ncerr"

// Packet is a fully decoded (or to-be-encoded) NetBIOS name service
// datagram.
type Packet struct {
	Header     Header
	Questions  []Question
	Answers    []ResourceRecord
	Authority  []ResourceRecord
	Additional []ResourceRecord
}

// Encode serializes pkt to its wire form.
func Encode(pkt *Packet) []byte {
	h := pkt.Header
	h.QDCount = uint16(len(pkt.Questions))
	h.ANCount = uint16(len(pkt.Answers))
	h.NSCount = uint16(len(pkt.Authority))
	h.ARCount = uint16(len(pkt.Additional))

	buf := make([]byte, 0, HeaderSize+64)
	buf = EncodeHeader(buf, &h)
	for _, q := range pkt.Questions {
		buf = encodeQuestion(buf, q)
	}
	for _, rr := range pkt.Answers {
		buf = encodeRR(buf, rr)
	}
	for _, rr := range pkt.Authority {
		buf = encodeRR(buf, rr)
	}
	for _, rr := range pkt.Additional {
		buf = encodeRR(buf, rr)
	}
	return buf
}

// Decode parses a wire-format datagram. Any short read or malformed
// section yields MalformedPacket.
func Decode(buf []byte) (*Packet, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	offset := HeaderSize
	pkt := &Packet{Header: *h}

	for i := 0; i < int(h.QDCount); i++ {
		q, n, err := decodeQuestion(buf, offset)
		if err != nil {
			return nil, err
		}
		pkt.Questions = append(pkt.Questions, q)
		offset += n
	}
	for i := 0; i < int(h.ANCount); i++ {
		rr, n, err := decodeRR(buf, offset)
		if err != nil {
			return nil, err
		}
		pkt.Answers = append(pkt.Answers, rr)
		offset += n
	}
	for i := 0; i < int(h.NSCount); i++ {
		rr, n, err := decodeRR(buf, offset)
		if err != nil {
			return nil, err
		}
		pkt.Authority = append(pkt.Authority, rr)
		offset += n
	}
	for i := 0; i < int(h.ARCount); i++ {
		rr, n, err := decodeRR(buf, offset)
		if err != nil {
			return nil, err
		}
		pkt.Additional = append(pkt.Additional, rr)
		offset += n
	}
	if offset > len(buf) {
		return nil, ncerr.New("wire.Decode", ncerr.MalformedPacket)
	}
	return pkt, nil
}
