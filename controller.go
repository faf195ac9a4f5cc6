package dvbstc

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is a StreamController lifecycle state (§3).
type State int

const (
	StateUninit State = iota
	StateTuning
	StatePatPending
	StateRunning
	StateChannelSwitching
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "Uninit"
	case StateTuning:
		return "Tuning"
	case StatePatPending:
		return "PatPending"
	case StateRunning:
		return "Running"
	case StateChannelSwitching:
		return "ChannelSwitching"
	case StateStopping:
		return "Stopping"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Acquisition timeouts (§4.3, §5). The PAT wait is a bounded deadline
// added per §9's redesign note; the original source waited untimed.
const (
	tunerLockTimeout  = 10 * time.Second
	patAcquireTimeout = 5 * time.Second
	pmtAcquireTimeout = 5 * time.Second
	eitAcquireTimeout = 5 * time.Second
)

// errChannelAcquireFailed is returned internally by startChannel when
// a non-initial acquisition fails under the default failure policy: it
// signals the caller to keep serving the previous channel rather than
// treat the error as fatal.
var errChannelAcquireFailed = errors.New("dvbstc: channel acquisition failed, remaining on previous channel")

// ChannelInfo is the published snapshot of the last fully-acquired
// channel (§3).
type ChannelInfo struct {
	ProgramNumber uint16
	AudioPID      int16 // -1 if none.
	VideoPID      int16 // -1 if none.
	HasTeletext   bool
	EventName     string
	EventGenre    string
}

// ProgramTypeCallback is invoked once per channel acquisition after a
// video stream decision is made; videoPID == -1 signals a radio-only
// channel (§6).
type ProgramTypeCallback func(videoPID int16)

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithFailFastOnAcquireError restores the historical behavior (§9) of
// escalating any start_channel driver failure to a full deinit. The
// default, recommended policy instead logs the failure and keeps
// serving the previously-acquired channel.
func WithFailFastOnAcquireError() Option {
	return func(c *Controller) { c.failFastOnAcquireError = true }
}

// WithProgramTypeCallback registers the program-type callback at
// construction time; equivalent to calling RegisterProgramTypeCallback
// before Init.
func WithProgramTypeCallback(cb ProgramTypeCallback) Option {
	return func(c *Controller) { c.programTypeCallback = cb }
}

// WithMetrics registers m to receive section, tuner, and channel-change
// observability events. Without this option, a Controller reports to a
// no-op implementation.
func WithMetrics(m Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller is the stream-control state machine (§4.3). It owns the
// tuner, player, and demux handles, drives channel acquisition and
// switching, and publishes the currently-acquired channel. The zero
// value is not usable; construct with New.
type Controller struct {
	tuner  TunerDriver
	player PlayerDriver
	demux  DemuxDriver

	failFastOnAcquireError bool

	mu                  sync.Mutex
	state               State
	config              Config
	pat                 *PatTable
	pmt                 *PmtTable
	eventCache          *EventCache
	currentProgramIndex int16
	currentChannel      ChannelInfo
	filterHandle        FilterHandle
	audioHandle         StreamHandle
	videoHandle         StreamHandle
	volume              uint32
	programTypeCallback ProgramTypeCallback
	metrics             Metrics
	acquiredCh          chan struct{}

	lockCh   chan struct{}
	patCh    chan struct{}
	pmtCh    chan struct{}
	eitCh    chan struct{}
	changeCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// New constructs a Controller over the given driver set. Init must be
// called before any other operation.
func New(tuner TunerDriver, player PlayerDriver, demux DemuxDriver, opts ...Option) *Controller {
	c := &Controller{
		tuner:      tuner,
		player:     player,
		demux:      demux,
		volume:     5, // Mid-scale default (§4.3).
		metrics:    noopMetrics{},
		lockCh:     make(chan struct{}, 1),
		patCh:      make(chan struct{}, 1),
		pmtCh:      make(chan struct{}, 1),
		eitCh:      make(chan struct{}, 1),
		changeCh:   make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		acquiredCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init spawns the worker, performs tuner lock and PAT and initial
// channel acquisition, and returns once that sequence succeeds or
// fails fatally. The worker continues running the Running/
// ChannelSwitching loop after Init returns.
func (c *Controller) Init(ctx context.Context, cfg Config) error {
	c.mu.Lock()
	if c.state != StateUninit {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	c.config = cfg
	idx := int16(cfg.InitialProgramNumber) - 1
	if idx < 0 {
		idx = 0
	}
	c.currentProgramIndex = idx
	c.state = StateTuning
	c.mu.Unlock()

	ready := make(chan error, 1)
	go c.run(ctx, ready)
	return <-ready
}

func (c *Controller) run(ctx context.Context, ready chan<- error) {
	defer close(c.doneCh)

	if err := c.tuner.Init(ctx); err != nil {
		c.setState(StateTerminated)
		ready <- &DriverError{Call: "tuner_init", Err: err}
		return
	}
	c.tuner.RegisterStatusCallback(c.handleTunerStatus)
	lockStart := time.Now()
	if err := c.tuner.LockToFrequency(c.config.FrequencyHz, c.config.BandwidthMHz, c.config.Modulation); err != nil {
		_ = c.tuner.Deinit()
		c.setState(StateTerminated)
		ready <- &DriverError{Call: "tuner_lock_to_frequency", Err: err}
		return
	}

	if !waitSignal(c.lockCh, tunerLockTimeout) {
		_ = c.tuner.Deinit()
		c.setState(StateTerminated)
		ready <- newTimeoutError("tuner lock")
		return
	}
	c.metrics.TunerLockDuration(time.Since(lockStart))

	if err := c.player.Init(ctx); err != nil {
		_ = c.tuner.Deinit()
		c.setState(StateTerminated)
		ready <- &DriverError{Call: "player_init", Err: err}
		return
	}
	if err := c.player.SourceOpen(); err != nil {
		_ = c.player.Deinit()
		_ = c.tuner.Deinit()
		c.setState(StateTerminated)
		ready <- &DriverError{Call: "player_source_open", Err: err}
		return
	}

	c.mu.Lock()
	volume := c.volume
	c.mu.Unlock()
	if err := c.player.VolumeSet(volume * VolumeScale); err != nil {
		logger.Printf("dvbstc: player_volume_set(default) failed: %v", err)
	}

	c.demux.RegisterSectionCallback(c.handleSection)
	patFilter, err := c.demux.SetFilter(pidPAT, patTableID)
	if err != nil {
		_ = c.player.SourceClose()
		_ = c.player.Deinit()
		_ = c.tuner.Deinit()
		c.setState(StateTerminated)
		ready <- &DriverError{Call: "demux_set_filter", Err: err}
		return
	}
	c.mu.Lock()
	c.filterHandle = patFilter
	c.mu.Unlock()
	c.setState(StatePatPending)

	if !waitSignal(c.patCh, patAcquireTimeout) {
		_ = c.demux.FreeFilter(patFilter)
		_ = c.player.SourceClose()
		_ = c.player.Deinit()
		_ = c.tuner.Deinit()
		c.setState(StateTerminated)
		ready <- newTimeoutError("PAT acquisition")
		return
	}

	c.mu.Lock()
	idx := c.currentProgramIndex
	c.mu.Unlock()
	if err := c.startChannel(idx, true); err != nil {
		c.teardown()
		c.setState(StateTerminated)
		ready <- err
		return
	}

	c.setState(StateRunning)
	ready <- nil

	c.serve(ctx)
}

func (c *Controller) serve(ctx context.Context) {
	for {
		select {
		case <-c.stopCh:
			c.teardown()
			c.setState(StateTerminated)
			return
		case <-ctx.Done():
			c.teardown()
			c.setState(StateTerminated)
			return
		case <-c.changeCh:
			c.mu.Lock()
			idx := c.currentProgramIndex
			c.mu.Unlock()
			c.setState(StateChannelSwitching)
			if err := c.startChannel(idx, false); err != nil && !errors.Is(err, errChannelAcquireFailed) {
				logger.Printf("dvbstc: fatal channel acquisition error, tearing down: %v", err)
				c.teardown()
				c.setState(StateTerminated)
				return
			}
			c.setState(StateRunning)
		}
	}
}

// startChannel runs the per-channel acquisition sequence (§4.3). initial
// marks the very first acquisition performed from Init, whose failures
// are always fatal regardless of WithFailFastOnAcquireError (§4.3
// Failure model: "failures during acquisition are fatal to the current
// init").
func (c *Controller) startChannel(index int16, initial bool) error {
	c.mu.Lock()
	pat := c.pat
	oldFilter := c.filterHandle
	c.mu.Unlock()

	if pat == nil || index < 0 || int(index)+1 >= pat.ServiceCount {
		return c.acquireFailure("start_channel", newParseError("PAT", "channel index out of range"), initial)
	}

	if oldFilter != 0 {
		if err := c.demux.FreeFilter(oldFilter); err != nil {
			return c.acquireFailure("demux_free_filter", err, initial)
		}
		c.mu.Lock()
		c.filterHandle = 0
		c.mu.Unlock()
	}

	service := pat.Services[index+1]

	pmtFilter, err := c.demux.SetFilter(service.PID, pmtTableID)
	if err != nil {
		return c.acquireFailure("demux_set_filter(pmt)", err, initial)
	}
	c.mu.Lock()
	c.filterHandle = pmtFilter
	c.mu.Unlock()

	if !waitSignal(c.pmtCh, pmtAcquireTimeout) {
		_ = c.demux.FreeFilter(pmtFilter)
		c.mu.Lock()
		c.filterHandle = 0
		c.mu.Unlock()
		return c.acquireFailure("pmt acquisition", newTimeoutError("PMT acquisition"), initial)
	}

	if err := c.demux.FreeFilter(pmtFilter); err != nil {
		return c.acquireFailure("demux_free_filter(pmt)", err, initial)
	}
	c.mu.Lock()
	c.filterHandle = 0
	pmt := c.pmt
	c.mu.Unlock()
	if pmt == nil {
		return c.acquireFailure("pmt acquisition", newParseError("PMT", "no section parsed"), initial)
	}

	videoPID, hasVideo := pmt.FirstVideoPID()
	audioPID, hasAudio := pmt.FirstAudioPID()
	hasTeletext := pmt.HasTeletext()

	c.mu.Lock()
	prevVideo, prevAudio := c.videoHandle, c.audioHandle
	c.mu.Unlock()

	if prevVideo != 0 {
		if err := c.player.StreamRemove(prevVideo); err != nil {
			return c.acquireFailure("player_stream_remove(video)", err, initial)
		}
		c.mu.Lock()
		c.videoHandle = 0
		c.mu.Unlock()
	}
	videoPIDReported := int16(-1)
	if hasVideo {
		h, err := c.player.StreamCreate(videoPID, StreamKindVideoMPEG2)
		if err != nil {
			return c.acquireFailure("player_stream_create(video)", err, initial)
		}
		c.mu.Lock()
		c.videoHandle = h
		c.mu.Unlock()
		videoPIDReported = int16(videoPID)
	}

	c.mu.Lock()
	cb := c.programTypeCallback
	c.mu.Unlock()
	if cb != nil {
		cb(videoPIDReported)
	}

	if prevAudio != 0 {
		if err := c.player.StreamRemove(prevAudio); err != nil {
			return c.acquireFailure("player_stream_remove(audio)", err, initial)
		}
		c.mu.Lock()
		c.audioHandle = 0
		c.mu.Unlock()
	}
	audioPIDReported := int16(-1)
	if hasAudio {
		h, err := c.player.StreamCreate(audioPID, StreamKindAudioMPEGAudio)
		if err != nil {
			return c.acquireFailure("player_stream_create(audio)", err, initial)
		}
		c.mu.Lock()
		c.audioHandle = h
		c.mu.Unlock()
		audioPIDReported = int16(audioPID)
	}

	info := ChannelInfo{
		ProgramNumber: service.ProgramNumber,
		AudioPID:      audioPIDReported,
		VideoPID:      videoPIDReported,
		HasTeletext:   hasTeletext,
	}

	// EIT is best-effort (§4.3 step 9): a timeout here is logged and
	// the channel switch continues.
	eitFilter, err := c.demux.SetFilter(pidEIT, eitTableID)
	if err != nil {
		logger.Printf("dvbstc: demux_set_filter(eit) failed, continuing without EIT: %v", err)
	} else {
		c.mu.Lock()
		c.filterHandle = eitFilter
		c.mu.Unlock()
		if !waitSignal(c.eitCh, eitAcquireTimeout) {
			logger.Printf("dvbstc: EIT acquisition timed out for program %d, continuing", service.ProgramNumber)
		}
		if err := c.demux.FreeFilter(eitFilter); err != nil {
			logger.Printf("dvbstc: demux_free_filter(eit): %v", err)
		}
		c.mu.Lock()
		c.filterHandle = 0
		c.mu.Unlock()
	}

	c.mu.Lock()
	if c.eventCache != nil {
		if entry, ok := c.eventCache.Lookup(service.ProgramNumber); ok {
			info.EventName = entry.Name
			info.EventGenre = entry.Genre
		}
	}
	c.currentChannel = info
	prevAcquired := c.acquiredCh
	c.acquiredCh = make(chan struct{})
	c.mu.Unlock()
	close(prevAcquired)
	c.metrics.ChannelChange()

	return nil
}

func (c *Controller) acquireFailure(call string, err error, initial bool) error {
	if initial || c.failFastOnAcquireError {
		return err
	}
	logger.Printf("dvbstc: %s failed (%v); remaining on previous channel", call, err)
	return errChannelAcquireFailed
}

// handleSection is the demux section callback (§4.3): it dispatches on
// table_id, parses, updates shared state, and signals the worker. It
// never blocks.
func (c *Controller) handleSection(section []byte) {
	if len(section) == 0 {
		return
	}
	switch section[0] {
	case patTableID:
		pat, err := ParsePAT(section)
		if err != nil {
			c.metrics.ParseError("PAT")
			return
		}
		c.metrics.SectionParsed("PAT")
		c.mu.Lock()
		first := c.pat == nil
		c.pat = pat
		if first {
			c.eventCache = NewEventCache(pat.ServiceCount)
		}
		c.mu.Unlock()
		signalChan(c.patCh)
	case pmtTableID:
		pmt, err := ParsePMT(section)
		if err != nil {
			c.metrics.ParseError("PMT")
			return
		}
		c.metrics.SectionParsed("PMT")
		c.mu.Lock()
		c.pmt = pmt
		c.mu.Unlock()
		signalChan(c.pmtCh)
	case eitTableID:
		eit, err := ParseEIT(section)
		if err != nil {
			c.metrics.ParseError("EIT")
			return
		}
		c.metrics.SectionParsed("EIT")
		c.mu.Lock()
		if c.eventCache != nil {
			c.eventCache.Update(eit)
		}
		c.mu.Unlock()
		signalChan(c.eitCh)
	}
}

// handleTunerStatus is the tuner status callback (§4.3): only
// STATUS_LOCKED is actionable, other statuses are logged.
func (c *Controller) handleTunerStatus(s TunerStatus) {
	switch s {
	case TunerStatusLocked:
		signalChan(c.lockCh)
	default:
		logger.Printf("dvbstc: tuner status %d", s)
	}
}

// ChannelUp advances current_program_index modulo service_count-1,
// skipping the NIT entry, and requests a channel switch (§4.3).
func (c *Controller) ChannelUp() {
	c.mu.Lock()
	n := c.channelCountLocked()
	if n == 0 {
		c.mu.Unlock()
		return
	}
	c.currentProgramIndex = (c.currentProgramIndex + 1) % int16(n)
	c.mu.Unlock()
	c.requestChange()
}

// ChannelDown retracts current_program_index modulo service_count-1.
func (c *Controller) ChannelDown() {
	c.mu.Lock()
	n := c.channelCountLocked()
	if n == 0 {
		c.mu.Unlock()
		return
	}
	c.currentProgramIndex = (c.currentProgramIndex - 1 + int16(n)) % int16(n)
	c.mu.Unlock()
	c.requestChange()
}

// ChangeChannel sets current_program_index from a 1-based channel
// number and requests a channel switch.
func (c *Controller) ChangeChannel(channelNumber1Based int16) {
	c.mu.Lock()
	c.currentProgramIndex = channelNumber1Based - 1
	c.mu.Unlock()
	c.requestChange()
}

func (c *Controller) requestChange() {
	signalChan(c.changeCh)
}

// WaitForChannelAcquired blocks until the in-flight channel switch
// completes or timeout elapses, returning whether it completed. This
// is the completion-signal redesign replacing the original source's
// usleep(900ms) after channel_up/down (§9).
func (c *Controller) WaitForChannelAcquired(timeout time.Duration) bool {
	c.mu.Lock()
	ch := c.acquiredCh
	c.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// CurrentChannel returns a snapshot of the last fully-acquired
// channel. It never blocks on the worker.
func (c *Controller) CurrentChannel() ChannelInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentChannel
}

// RegisterProgramTypeCallback registers cb to be invoked once per
// channel acquisition (§6).
func (c *Controller) RegisterProgramTypeCallback(cb ProgramTypeCallback) {
	c.mu.Lock()
	c.programTypeCallback = cb
	c.mu.Unlock()
}

// SetVolume forwards level (0..=10) to the player, scaled by
// VolumeScale to preserve the original volume-curve semantics (§4.3).
func (c *Controller) SetVolume(level uint32) error {
	if level > 10 {
		return newParseError("Volume", "level must be in 0..=10")
	}
	c.mu.Lock()
	c.volume = level
	c.mu.Unlock()
	return c.player.VolumeSet(level * VolumeScale)
}

// ChannelCount returns pat.service_count - 1 (NIT excluded).
func (c *Controller) ChannelCount() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint8(c.channelCountLocked())
}

func (c *Controller) channelCountLocked() int {
	if c.pat == nil || c.pat.ServiceCount == 0 {
		return 0
	}
	return c.pat.ServiceCount - 1
}

// GetEventInfo looks up the cached current event for programNumber.
func (c *Controller) GetEventInfo(programNumber uint16) (EventCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eventCache == nil {
		return EventCacheEntry{}, false
	}
	return c.eventCache.Lookup(programNumber)
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Deinit signals the worker to exit, joins it, and tears down filter,
// streams, source, player, and tuner in reverse order of acquisition.
// Idempotent-safe only when Init succeeded.
func (c *Controller) Deinit() error {
	c.mu.Lock()
	if c.state == StateUninit || c.state == StateTerminated {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
	return nil
}

func (c *Controller) teardown() {
	c.mu.Lock()
	filter, audio, video := c.filterHandle, c.audioHandle, c.videoHandle
	c.filterHandle, c.audioHandle, c.videoHandle = 0, 0, 0
	c.mu.Unlock()

	if filter != 0 {
		if err := c.demux.FreeFilter(filter); err != nil {
			logger.Printf("dvbstc: demux_free_filter during teardown: %v", err)
		}
	}
	if video != 0 {
		if err := c.player.StreamRemove(video); err != nil {
			logger.Printf("dvbstc: player_stream_remove(video) during teardown: %v", err)
		}
	}
	if audio != 0 {
		if err := c.player.StreamRemove(audio); err != nil {
			logger.Printf("dvbstc: player_stream_remove(audio) during teardown: %v", err)
		}
	}
	if err := c.player.SourceClose(); err != nil {
		logger.Printf("dvbstc: player_source_close during teardown: %v", err)
	}
	if err := c.player.Deinit(); err != nil {
		logger.Printf("dvbstc: player_deinit during teardown: %v", err)
	}
	if err := c.tuner.Deinit(); err != nil {
		logger.Printf("dvbstc: tuner_deinit during teardown: %v", err)
	}

	c.mu.Lock()
	c.pat, c.pmt, c.eventCache = nil, nil, nil
	c.mu.Unlock()
}

func waitSignal(ch <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

func signalChan(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
