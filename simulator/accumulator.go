package simulator

// sectionAccumulator reassembles one complete PSI/SI section per PID
// from a sequence of transport stream packet payloads, honoring the
// pointer_field a payload-unit-start packet uses to mark where a new
// section begins. It is not safe for concurrent use.
type sectionAccumulator struct {
	buf  []byte
	want int // -1 until the 3-byte section header has been seen.
	it   *NoAllocBytesIterator
}

func newSectionAccumulator() *sectionAccumulator {
	return &sectionAccumulator{want: -1, it: NewNoAllocBytesIterator(nil)}
}

// feed processes one packet's payload for this accumulator's PID,
// returning every section completed by it. A single packet can
// complete more than one short section. The per-PID iterator is reset
// rather than reallocated on each call: this runs once per incoming
// packet for the life of a stream.
func (a *sectionAccumulator) feed(payload []byte, pusi bool) [][]byte {
	if len(payload) == 0 {
		return nil
	}
	if pusi {
		a.it.Reset(payload)
		pointerField, err := a.it.NextByte()
		if err != nil {
			return nil
		}
		if _, err := a.it.NextBytesNoCopy(int(pointerField)); err != nil {
			return nil
		}
		payload = a.it.Dump()
		a.buf = a.buf[:0]
		a.want = -1
	}

	a.buf = append(a.buf, payload...)

	var sections [][]byte
	for {
		if a.want == -1 {
			if len(a.buf) < 3 {
				break
			}
			if a.buf[0] == 0xff {
				// Stuffing bytes pad the rest of the TS packet.
				a.buf = a.buf[:0]
				break
			}
			a.it.Reset(a.buf)
			header, err := a.it.NextBytesNoCopy(3)
			if err != nil {
				break
			}
			// section_length as buildSection writes it stops before the
			// 4-byte CRC, so the CRC is added to take in the whole
			// section. EncodeEITSection declares one byte more, so an
			// EIT section comes out with one extra trailing byte, which
			// ParseEIT ignores.
			a.want = 3 + (int(header[1]&0x0f)<<8 | int(header[2])) + 4
		}
		if len(a.buf) < a.want {
			break
		}

		section := make([]byte, a.want)
		copy(section, a.buf[:a.want])
		sections = append(sections, section)

		a.buf = append([]byte(nil), a.buf[a.want:]...)
		a.want = -1
	}
	return sections
}
