package simulator

import (
	"io"
	"os"

	"github.com/go-dvb/dvbstc"
)

// Snapshot is a one-shot decode of a recorded transport stream file:
// the PAT, and every PMT/EIT section seen for any program along the
// way, keyed by program_number / service_id respectively.
type Snapshot struct {
	PAT *dvbstc.PatTable
	PMT map[uint16]*dvbstc.PmtTable
	EIT map[uint16]*dvbstc.EitTable
}

// ScanFile reads path once, end to end, reassembling every PID's
// sections and classifying them by table_id. Unlike FileSource, which
// streams indefinitely for a live Controller, ScanFile stops at EOF:
// it backs cmd/dvbstc-probe's static channel dump.
func ScanFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snap := &Snapshot{
		PMT: make(map[uint16]*dvbstc.PmtTable),
		EIT: make(map[uint16]*dvbstc.EitTable),
	}
	accumulators := make(map[uint16]*sectionAccumulator)

	buf := make([]byte, MpegTsPacketSize)
	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}

		pkt, err := parsePacket(buf)
		if err != nil || pkt.Payload == nil {
			continue
		}

		acc, ok := accumulators[pkt.Header.PID]
		if !ok {
			acc = newSectionAccumulator()
			accumulators[pkt.Header.PID] = acc
		}

		for _, section := range acc.feed(pkt.Payload, pkt.Header.PayloadUnitStartIndicator) {
			if len(section) == 0 {
				continue
			}
			switch section[0] {
			case tableIDPAT:
				if pat, err := dvbstc.ParsePAT(section); err == nil {
					snap.PAT = pat
				}
			case tableIDPMT:
				if pmt, err := dvbstc.ParsePMT(section); err == nil {
					snap.PMT[pmt.Header.ProgramNumber] = pmt
				}
			case tableIDEIT:
				if eit, err := dvbstc.ParseEIT(section); err == nil {
					snap.EIT[eit.Header.ServiceID] = eit
				}
			}
		}
	}
	return snap, nil
}
