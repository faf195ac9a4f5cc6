package dvbstc

import "golang.org/x/exp/slices"

// eventCacheMaxEntries bounds the cache independent of any single
// PAT's service_count, since NewEventCache sizes to that count but callers must
// not be able to force unbounded growth from a hostile PAT.
const eventCacheMaxEntries = patMaxServices

// EventCacheEntry is the cached "now showing" event for one service.
// ProgramNumber == 0 marks an empty slot.
type EventCacheEntry struct {
	ProgramNumber uint16
	Name          string
	Genre         string
}

// EventCache is a flat, fixed-capacity index of the current event per
// service, refreshed as EIT sections arrive. It is not safe for
// concurrent use; callers (the controller) are responsible for
// serializing access.
type EventCache struct {
	entries []EventCacheEntry
}

// NewEventCache allocates a cache sized to serviceCount, all slots
// empty. serviceCount is clamped to eventCacheMaxEntries.
func NewEventCache(serviceCount int) *EventCache {
	if serviceCount > eventCacheMaxEntries {
		serviceCount = eventCacheMaxEntries
	}
	if serviceCount < 0 {
		serviceCount = 0
	}
	return &EventCache{entries: make([]EventCacheEntry, serviceCount)}
}

// Update applies one EIT section to the cache. Per §4.2: if a slot for
// header.ServiceID already exists and the section's first event has
// RunningStatus == 4 (currently running), its name/genre are
// overwritten. If no slot exists, the first empty slot (ProgramNumber
// == 0) is claimed and populated unconditionally, regardless of
// RunningStatus — this mirrors the source's own inconsistency (§9) and
// is reproduced verbatim rather than "fixed": a service with no
// current running event still claims a fresh slot and shows whatever
// name the first event carries.
func (c *EventCache) Update(eit *EitTable) {
	present := eit.PresentEvent()
	if present == nil {
		return
	}

	name, genre := eventText(present)

	if i := slices.IndexFunc(c.entries, func(e EventCacheEntry) bool {
		return e.ProgramNumber == eit.Header.ServiceID
	}); i >= 0 {
		if present.RunningStatus == 4 {
			c.entries[i].Name = name
			c.entries[i].Genre = genre
		}
		return
	}

	if i := slices.IndexFunc(c.entries, func(e EventCacheEntry) bool {
		return e.ProgramNumber == 0
	}); i >= 0 {
		c.entries[i] = EventCacheEntry{
			ProgramNumber: eit.Header.ServiceID,
			Name:          name,
			Genre:         genre,
		}
		return
	}
	// Capacity exhausted: silently ignored per §4.2, the channel
	// simply shows no event name.
}

func eventText(e *EitEventInfo) (name, genre string) {
	if e.ShortEvent != nil {
		name = string(e.ShortEvent.EventName)
	}
	if e.HasContentDescriptor {
		genre = "unknown" // Presence-only recognition; full genre decoding is a non-goal.
	}
	return name, genre
}

// Lookup finds the entry for programNumber.
func (c *EventCache) Lookup(programNumber uint16) (EventCacheEntry, bool) {
	if programNumber == 0 {
		return EventCacheEntry{}, false
	}
	i := slices.IndexFunc(c.entries, func(e EventCacheEntry) bool {
		return e.ProgramNumber == programNumber
	})
	if i < 0 {
		return EventCacheEntry{}, false
	}
	return c.entries[i], true
}
