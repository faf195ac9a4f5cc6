package simulator

import (
	"bytes"
	"encoding/binary"

	"github.com/icza/bitio"
)

// Table ids this encoder produces sections for, mirroring dvbstc's
// unexported PAT/PMT/EIT table-id constants.
const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02
	tableIDEIT = 0x4e
)

// PATEntry is one program_number/PID pair for EncodePATSection.
type PATEntry struct {
	ProgramNumber uint16
	PID           uint16
}

// EncodePATSection builds a complete PAT section, CRC included, for
// the given transport stream id and service list.
func EncodePATSection(transportStreamID uint16, entries []PATEntry) []byte {
	body := make([]byte, 0, 5+4*len(entries))
	body = append(body, byte(transportStreamID>>8), byte(transportStreamID))
	body = append(body, 0xc1, 0x00, 0x00) // version 0, current_next=1, section/last_section 0.
	for _, e := range entries {
		body = append(body, byte(e.ProgramNumber>>8), byte(e.ProgramNumber))
		body = append(body, 0xe0|byte(e.PID>>8&0x1f), byte(e.PID))
	}
	return buildSection(tableIDPAT, body, len(body))
}

// PMTStream is one elementary stream entry for EncodePMTSection.
// Descriptors carries pre-encoded descriptor bytes for this stream
// (see EncodeTeletextDescriptor), concatenated as-is.
type PMTStream struct {
	StreamType  uint8
	PID         uint16
	Descriptors []byte
}

// EncodePMTSection builds a complete PMT section, CRC included, with
// no program-level descriptor loop (this domain never needs one).
func EncodePMTSection(programNumber, pcrPID uint16, streams []PMTStream) []byte {
	body := make([]byte, 0, 12)
	body = append(body, byte(programNumber>>8), byte(programNumber))
	body = append(body, 0xc1, 0x00, 0x00)
	body = append(body, 0xe0|byte(pcrPID>>8&0x1f), byte(pcrPID))
	body = append(body, 0xf0, 0x00)
	for _, s := range streams {
		body = append(body, s.StreamType)
		body = append(body, 0xe0|byte(s.PID>>8&0x1f), byte(s.PID))
		esInfoLength := len(s.Descriptors)
		body = append(body, 0xf0|byte(esInfoLength>>8&0x0f), byte(esInfoLength))
		body = append(body, s.Descriptors...)
	}
	return buildSection(tableIDPMT, body, len(body))
}

// EITEvent is one event entry for EncodeEITSection. StartTime and
// Duration are raw DVB-encoded bytes, the same representation
// EitEventInfo keeps them in.
type EITEvent struct {
	EventID       uint16
	StartTime     [5]byte
	Duration      [3]byte
	RunningStatus uint8 // 3 bits.
	FreeCAMode    bool
	Descriptors   []byte // pre-encoded descriptor bytes, concatenated.
}

// EncodeEITSection builds a complete present/following EIT section,
// CRC included, for the actual transport stream.
func EncodeEITSection(serviceID, transportStreamID, originalNetworkID uint16, events []EITEvent) []byte {
	body := make([]byte, 0, 11+15*len(events))
	body = append(body, byte(serviceID>>8), byte(serviceID))
	body = append(body, 0xc1, 0x00, 0x00)
	body = append(body, byte(transportStreamID>>8), byte(transportStreamID))
	body = append(body, byte(originalNetworkID>>8), byte(originalNetworkID))
	body = append(body, 0x00, 0x4e) // segment_last_section_number, last_table_id.
	for _, e := range events {
		body = append(body, byte(e.EventID>>8), byte(e.EventID))
		body = append(body, e.StartTime[:]...)
		body = append(body, e.Duration[:]...)
		descLoopLength := len(e.Descriptors)
		statusAndCA := e.RunningStatus << 5
		if e.FreeCAMode {
			statusAndCA |= 0x10
		}
		body = append(body, statusAndCA|byte(descLoopLength>>8&0x0f), byte(descLoopLength))
		body = append(body, e.Descriptors...)
	}
	// eit.go's offsetSectionsEnd subtracts one extra byte beyond the
	// CRC the PAT/PMT decoders already exclude; match it here so
	// round-tripping an encoded section through ParseEIT lands exactly
	// on the events the caller asked for.
	return buildSection(tableIDEIT, body, len(body)+1)
}

// EncodeShortEventDescriptor builds a short_event_descriptor (tag
// 0x4d) naming an event.
func EncodeShortEventDescriptor(languageCode [3]byte, name, text string) []byte {
	d := make([]byte, 0, 4+len(name)+len(text))
	d = append(d, 0x4d, 0x00)
	d = append(d, languageCode[:]...)
	d = append(d, byte(len(name)))
	d = append(d, name...)
	d = append(d, byte(len(text)))
	d = append(d, text...)
	d[1] = byte(len(d) - 2)
	return d
}

// EncodeTeletextDescriptor builds an empty teletext_descriptor (tag
// 0x56): dvbstc only checks for its presence, never its content.
func EncodeTeletextDescriptor() []byte {
	return []byte{0x56, 0x00}
}

// EncodeContentDescriptor builds a content_descriptor (tag 0x54) with
// one unspecified genre entry: dvbstc only checks for its presence.
func EncodeContentDescriptor() []byte {
	return []byte{0x54, 0x02, 0x00, 0x00}
}

func buildSection(tableID uint8, body []byte, length int) []byte {
	section := make([]byte, 3+len(body)+4)
	section[0] = tableID
	section[1] = 0xb0 | byte(length>>8&0x0f)
	section[2] = byte(length)
	copy(section[3:], body)
	crc := computeCRC32(section[:3+len(body)])
	binary.BigEndian.PutUint32(section[3+len(body):], crc)
	return section
}

// PacketizeSection splits a single PSI/SI section (as produced by the
// EncodeXSection functions) into one or more MpegTsPacketSize-byte
// transport stream packets on the given PID, starting a new section
// with the pointer_field convention and padding the final packet with
// stuffing bytes (0xff). startCC is the continuity_counter of the
// first packet; it increments by one per packet, wrapping at 16.
func PacketizeSection(pid uint16, section []byte, startCC uint8) [][]byte {
	data := make([]byte, 0, len(section)+1)
	data = append(data, 0x00) // pointer_field: section starts immediately.
	data = append(data, section...)

	const payloadSize = MpegTsPacketSize - 4
	var packets [][]byte
	cc := startCC & 0x0f
	for offset := 0; offset < len(data); offset += payloadSize {
		end := offset + payloadSize
		pusi := offset == 0

		pkt, err := packetizeHeader(pid, pusi, cc)
		if err != nil {
			panic(err) // writing to a bytes.Buffer never fails.
		}

		n := copy(pkt[4:], data[offset:min(end, len(data))])
		for i := 4 + n; i < MpegTsPacketSize; i++ {
			pkt[i] = 0xff
		}
		packets = append(packets, pkt)
		cc = (cc + 1) & 0x0f
	}
	return packets
}

// packetizeHeader writes the 4-byte transport stream packet header
// bitfield by bitfield, the way the teacher's binary.go drives a
// bitio.Writer over each PSI/SI field rather than hand-rolling shifts.
func packetizeHeader(pid uint16, pusi bool, cc uint8) ([]byte, error) {
	buf := make([]byte, MpegTsPacketSize)
	var w bytes.Buffer
	bw := bitio.NewWriter(&w)

	if err := bw.WriteByte(syncByte); err != nil {
		return nil, err
	}
	if err := bw.WriteBool(false); err != nil { // transport_error_indicator
		return nil, err
	}
	if err := bw.WriteBool(pusi); err != nil {
		return nil, err
	}
	if err := bw.WriteBool(false); err != nil { // transport_priority
		return nil, err
	}
	if err := bw.WriteBits(uint64(pid), 13); err != nil {
		return nil, err
	}
	if err := bw.WriteBits(0, 2); err != nil { // transport_scrambling_control
		return nil, err
	}
	if err := bw.WriteBits(0b01, 2); err != nil { // adaptation_field_control: payload only
		return nil, err
	}
	if err := bw.WriteBits(uint64(cc), 4); err != nil {
		return nil, err
	}
	if err := bw.Close(); err != nil {
		return nil, err
	}

	copy(buf, w.Bytes())
	return buf, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
