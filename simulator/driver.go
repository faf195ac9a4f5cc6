package simulator

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-dvb/dvbstc"
)

// FileSource streams packets from a pre-recorded MPEG transport stream
// file, looping back to the start on EOF, and implements dvbstc's
// TunerDriver, PlayerDriver, and DemuxDriver interfaces on top of it.
// It stands in for the native driver stack in tests and the cmd/dvbstc-*
// tools: LockToFrequency always locks instantly, and section filters
// are served from the recorded file rather than a real demultiplexer.
type FileSource struct {
	path       string
	packetRate time.Duration // delay between packets; 0 replays as fast as possible.

	mu           sync.Mutex
	statusCB     dvbstc.TunerStatusFunc
	sectionCB    dvbstc.SectionFunc
	filters      map[dvbstc.FilterHandle]filterEntry
	nextFilter   dvbstc.FilterHandle
	accumulators map[uint16]*sectionAccumulator
	volume       uint32

	streamsMu  sync.Mutex
	streams    map[dvbstc.StreamHandle]streamInfo
	nextStream dvbstc.StreamHandle

	pumpMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type filterEntry struct {
	pid     uint16
	tableID uint8
}

type streamInfo struct {
	pid  uint16
	kind int
}

// NewFileSource builds a FileSource reading packets from path. A zero
// packetRate replays the file without pacing, which is what the test
// suite wants; cmd/dvbstc-run passes its --packet-rate-us value
// (default 0), so a nonzero rate lets stdin-driven channel changes race
// against in-flight acquisition the way they would against a real tuner.
func NewFileSource(path string, packetRate time.Duration) *FileSource {
	return &FileSource{
		path:         path,
		packetRate:   packetRate,
		filters:      make(map[dvbstc.FilterHandle]filterEntry),
		accumulators: make(map[uint16]*sectionAccumulator),
		streams:      make(map[dvbstc.StreamHandle]streamInfo),
	}
}

// Init satisfies both TunerDriver and PlayerDriver; FileSource needs no
// setup beyond what LockToFrequency/SourceOpen already do.
func (f *FileSource) Init(ctx context.Context) error { return nil }

// Deinit satisfies both TunerDriver and PlayerDriver. It stops the
// packet pump the first time either driver role calls it; later calls
// are no-ops.
func (f *FileSource) Deinit() error {
	f.pumpMu.Lock()
	cancel, done := f.cancel, f.done
	f.pumpMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (f *FileSource) RegisterStatusCallback(cb dvbstc.TunerStatusFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCB = cb
}

// LockToFrequency starts the packet pump and reports an immediate
// lock. Frequency, bandwidth, and modulation are accepted but unused:
// a recorded file carries one stream regardless of what it was tuned
// from.
func (f *FileSource) LockToFrequency(freqHz, bandwidthMHz uint32, mod dvbstc.Modulation) error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	f.pumpMu.Lock()
	f.cancel = cancel
	f.done = done
	f.pumpMu.Unlock()

	go f.pump(ctx, done)

	f.mu.Lock()
	cb := f.statusCB
	f.mu.Unlock()
	if cb != nil {
		go cb(dvbstc.TunerStatusLocked)
	}
	return nil
}

func (f *FileSource) pump(ctx context.Context, done chan struct{}) {
	defer close(done)

	file, err := os.Open(f.path)
	if err != nil {
		log.Printf("simulator: open %s: %v", f.path, err)
		return
	}
	defer file.Close()

	buf := make([]byte, MpegTsPacketSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := io.ReadFull(file, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				if _, err := file.Seek(0, io.SeekStart); err != nil {
					log.Printf("simulator: rewind %s: %v", f.path, err)
					return
				}
				continue
			}
			log.Printf("simulator: read %s: %v", f.path, err)
			return
		}

		pkt, err := parsePacket(buf)
		if err != nil {
			continue
		}
		f.dispatch(pkt)

		if f.packetRate > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.packetRate):
			}
		}
	}
}

func (f *FileSource) dispatch(pkt *Packet) {
	if pkt.Payload == nil {
		return
	}

	f.mu.Lock()
	var tableID uint8
	matched := false
	for _, fl := range f.filters {
		if fl.pid == pkt.Header.PID {
			tableID, matched = fl.tableID, true
			break
		}
	}
	if !matched {
		f.mu.Unlock()
		return
	}
	acc, ok := f.accumulators[pkt.Header.PID]
	if !ok {
		acc = newSectionAccumulator()
		f.accumulators[pkt.Header.PID] = acc
	}
	cb := f.sectionCB
	f.mu.Unlock()

	if cb == nil {
		return
	}
	for _, section := range acc.feed(pkt.Payload, pkt.Header.PayloadUnitStartIndicator) {
		if len(section) > 0 && section[0] == tableID {
			cb(section)
		}
	}
}

// RegisterSectionCallback implements DemuxDriver.
func (f *FileSource) RegisterSectionCallback(cb dvbstc.SectionFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sectionCB = cb
}

// SetFilter implements DemuxDriver. Installing a filter resets any
// in-flight reassembly for its PID so a stale partial section from a
// previous filter on the same PID can't bleed into the new one.
func (f *FileSource) SetFilter(pid uint16, tableID uint8) (dvbstc.FilterHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextFilter++
	h := f.nextFilter
	f.filters[h] = filterEntry{pid: pid, tableID: tableID}
	delete(f.accumulators, pid)
	return h, nil
}

// FreeFilter implements DemuxDriver.
func (f *FileSource) FreeFilter(h dvbstc.FilterHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.filters, h)
	return nil
}

// SourceOpen implements PlayerDriver. FileSource has no separate
// source handle to open.
func (f *FileSource) SourceOpen() error { return nil }

// SourceClose implements PlayerDriver.
func (f *FileSource) SourceClose() error { return nil }

// StreamCreate implements PlayerDriver, handing out a monotonically
// increasing handle per open stream.
func (f *FileSource) StreamCreate(pid uint16, kind int) (dvbstc.StreamHandle, error) {
	f.streamsMu.Lock()
	defer f.streamsMu.Unlock()
	f.nextStream++
	f.streams[f.nextStream] = streamInfo{pid: pid, kind: kind}
	return f.nextStream, nil
}

// StreamRemove implements PlayerDriver.
func (f *FileSource) StreamRemove(h dvbstc.StreamHandle) error {
	f.streamsMu.Lock()
	defer f.streamsMu.Unlock()
	delete(f.streams, h)
	return nil
}

// VolumeSet implements PlayerDriver, recording the scaled level the
// Controller computed from Controller.SetVolume.
func (f *FileSource) VolumeSet(level uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = level
	return nil
}

// Volume returns the last level passed to VolumeSet, for tests.
func (f *FileSource) Volume() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}
