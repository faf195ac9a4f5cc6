// Package simulator adapts MPEG transport-stream packet parsing into
// a file-backed TunerDriver/PlayerDriver/DemuxDriver trio for
// dvbstc, plus a synthetic encoder for building test fixtures and
// demo streams.
package simulator

import "errors"

// MpegTsPacketSize is the standard (non-FEC) transport stream packet
// size in bytes. https://en.wikipedia.org/wiki/MPEG_transport_stream
const MpegTsPacketSize = 188

// Sync byte every transport stream packet begins with.
const syncByte = 0x47

// ErrPacketMustStartWithASyncByte is returned by parsePacket when the
// packet buffer's first byte isn't the sync byte.
var ErrPacketMustStartWithASyncByte = errors.New("simulator: packet must start with a sync byte")

// PacketHeader is the 4-byte fixed header of a transport stream
// packet.
type PacketHeader struct {
	TransportErrorIndicator   bool
	PayloadUnitStartIndicator bool // Set when a PSI section begins immediately following the header (or pointer field).
	PID                       uint16
	HasAdaptationField        bool
	HasPayload                bool
	ContinuityCounter         uint8
}

// Packet is one parsed 188-byte transport stream packet.
type Packet struct {
	Header  PacketHeader
	Payload []byte // Nil if HasPayload is false.
}

// parsePacket parses one MpegTsPacketSize-byte transport stream
// packet. Adaptation field content beyond its length byte is skipped:
// this engine never needs PCR or private data, only payload bytes.
func parsePacket(buf []byte) (*Packet, error) {
	if len(buf) < MpegTsPacketSize {
		return nil, errors.New("simulator: packet shorter than 188 bytes")
	}
	if buf[0] != syncByte {
		return nil, ErrPacketMustStartWithASyncByte
	}

	p := &Packet{}
	h := &p.Header
	h.TransportErrorIndicator = buf[1]&0x80 > 0
	h.PayloadUnitStartIndicator = buf[1]&0x40 > 0
	h.PID = uint16(buf[1]&0x1f)<<8 | uint16(buf[2])
	h.HasAdaptationField = buf[3]&0x20 > 0
	h.HasPayload = buf[3]&0x10 > 0
	h.ContinuityCounter = buf[3] & 0x0f

	offset := 4
	if h.HasAdaptationField {
		adaptationLength := int(buf[4])
		offset += 1 + adaptationLength
	}
	if h.HasPayload && offset < MpegTsPacketSize {
		p.Payload = buf[offset:MpegTsPacketSize]
	}
	return p, nil
}
