// Package dvbstc implements a DVB set-top-box stream-control engine:
// byte-exact PSI/SI section decoders for PAT, PMT, and EIT; an
// in-memory event cache keyed by service id; and a StreamController
// state machine that coordinates tuner lock, PAT/PMT/EIT acquisition,
// and channel switching against a pluggable tuner/player/demux driver
// API.
//
// The package has no hard dependency on any particular driver
// implementation; see the simulator subpackage for a file-backed
// TunerDriver/PlayerDriver/DemuxDriver trio used in tests and by the
// cmd/dvbstc-* tools.
package dvbstc
