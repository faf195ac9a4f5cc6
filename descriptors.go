package dvbstc

// Descriptor tags this engine recognizes. Per §1's non-goals, no other
// descriptor is decoded — teletext presence and short-event text are
// the only ones the design calls for, plus the content descriptor used
// for genre, whose presence is recorded and whose first nibble pair
// FindContentGenreCode extracts.
const (
	descriptorTagTeletext   = 0x56
	descriptorTagShortEvent = 0x4d
	descriptorTagContent    = 0x54
)

// ShortEventDescriptor is the decoded form of a short-event descriptor
// (tag 0x4d): a language code and an event name.
type ShortEventDescriptor struct {
	ISO639LanguageCode [3]byte
	EventName          []byte // Up to 255 bytes, not copied beyond descriptor_length.
}

// scanForDescriptorTag walks a descriptor loop looking for a single
// tag's presence. It tolerates and skips any tag it doesn't recognize
// by its length byte, per §4.1's "parser is tolerant" rule. It never
// mutates buf.
func scanForDescriptorTag(buf []byte, wantTag uint8) bool {
	offset := 0
	for offset+2 <= len(buf) {
		tag := buf[offset]
		length := int(buf[offset+1])
		offset += 2
		if tag == wantTag {
			return true
		}
		offset += length
	}
	return false
}

// hasContentDescriptor reports whether the descriptor loop carries a
// content descriptor (tag 0x54). Full genre decoding is a non-goal
// (§1); recognizing its presence is sufficient (§3).
func hasContentDescriptor(buf []byte) bool {
	return scanForDescriptorTag(buf, descriptorTagContent)
}

// FindContentGenreCode scans a descriptor loop for a content
// descriptor (tag 0x54) and returns the content_nibble_level_1/2 pair
// of its first genre entry. The core event cache never calls this
// (full genre decoding is a non-goal, §1); it exists for callers like
// cmd/dvbstc-probe that want a human-readable genre via internal/genre.
func FindContentGenreCode(buf []byte) (level1, level2 uint8, ok bool) {
	offset := 0
	for offset+2 <= len(buf) {
		tag := buf[offset]
		length := int(buf[offset+1])
		bodyStart := offset + 2
		bodyEnd := bodyStart + length
		if bodyEnd > len(buf) {
			return 0, 0, false
		}
		if tag == descriptorTagContent && length >= 1 {
			b := buf[bodyStart]
			return b >> 4, b & 0x0f, true
		}
		offset = bodyEnd
	}
	return 0, 0, false
}

// findShortEventDescriptor scans a descriptor loop for a short-event
// descriptor (tag 0x4d) and decodes it if present. Other tags,
// including the content descriptor, are skipped by their length byte
// without aborting the scan (§4.1).
func findShortEventDescriptor(buf []byte) (*ShortEventDescriptor, bool) {
	offset := 0
	for offset+2 <= len(buf) {
		tag := buf[offset]
		length := int(buf[offset+1])
		bodyStart := offset + 2
		bodyEnd := bodyStart + length
		if bodyEnd > len(buf) {
			return nil, false
		}

		if tag == descriptorTagShortEvent {
			body := buf[bodyStart:bodyEnd]
			if len(body) < 4 {
				return nil, false
			}
			d := &ShortEventDescriptor{}
			copy(d.ISO639LanguageCode[:], body[:3])
			nameLen := int(body[3])
			nameStart := 4
			nameEnd := nameStart + nameLen
			if nameEnd > len(body) {
				return nil, false
			}
			d.EventName = append([]byte(nil), body[nameStart:nameEnd]...)
			return d, true
		}

		offset = bodyEnd
	}
	return nil, false
}
