package dvbstc

import "context"

// Modulation selects the terrestrial DVB variant a Config tunes for.
type Modulation uint8

const (
	ModulationDVBT Modulation = iota
	ModulationDVBT2
)

func (m Modulation) String() string {
	switch m {
	case ModulationDVBT:
		return "DVB_T"
	case ModulationDVBT2:
		return "DVB_T2"
	default:
		return "unknown"
	}
}

// Elementary-stream types passed to PlayerDriver.StreamCreate, named
// after the native driver API's VIDEO_TYPE_*/AUDIO_TYPE_* constants
// (§6).
const (
	StreamKindVideoMPEG2 = iota
	StreamKindAudioMPEGAudio
)

// TunerStatus is reported asynchronously by TunerDriver through the
// callback registered with RegisterStatusCallback.
type TunerStatus uint8

const (
	TunerStatusUnlocked TunerStatus = iota
	TunerStatusLocked
	TunerStatusFailed
)

// TunerStatusFunc receives tuner status transitions. It must not
// block: the driver invokes it from its own callback context (§5).
type TunerStatusFunc func(TunerStatus)

// TunerDriver abstracts the native tuner API (§6). Implementations
// live outside this package; the simulator package provides one
// backed by a recorded transport-stream file.
type TunerDriver interface {
	Init(ctx context.Context) error
	Deinit() error
	RegisterStatusCallback(cb TunerStatusFunc)
	LockToFrequency(freqHz, bandwidthMHz uint32, mod Modulation) error
}

// StreamHandle identifies a created audio or video elementary stream.
// Zero is never a valid handle.
type StreamHandle uint32

// PlayerDriver abstracts the native player API (§6).
type PlayerDriver interface {
	Init(ctx context.Context) error
	Deinit() error
	SourceOpen() error
	SourceClose() error
	StreamCreate(pid uint16, kind int) (StreamHandle, error)
	StreamRemove(h StreamHandle) error
	VolumeSet(level uint32) error
}

// FilterHandle identifies an installed demux section filter. Zero is
// never a valid handle.
type FilterHandle uint32

// SectionFunc receives complete section bytes beginning at table_id,
// as they arrive from an installed filter. Implementations must not
// block (§5): their sole synchronous work is parse, cache update, and
// signal.
type SectionFunc func(section []byte)

// DemuxDriver abstracts the native demultiplexer API (§6).
type DemuxDriver interface {
	RegisterSectionCallback(cb SectionFunc)
	SetFilter(pid uint16, tableID uint8) (FilterHandle, error)
	FreeFilter(h FilterHandle) error
}

// PID and table-id constants used by the acquisition sequence (§4.3).
const (
	pidPAT = 0x0000
	pidEIT = 0x0012

	// VolumeScale preserves the original volume-curve semantics:
	// set_volume(0..=10) is forwarded to the player multiplied by
	// this constant (§4.3).
	VolumeScale = 160_400_000
)
