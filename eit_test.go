package dvbstc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eitNewsSectionBytes builds the literal EIT section from scenario 4:
// service_id=7, one event with running_status=4 and a short-event
// descriptor naming "News".
func eitNewsSectionBytes() []byte {
	return []byte{
		0x4e, 0xf0, 0x22, 0x00, 0x07, 0xc1, 0x00, 0x00,
		0x00, 0x02, 0x00, 0x03, 0x04, 0x05,
		0x00, 0x06, // event_id = 6
		0x4f, 0xd7, 0x12, 0x00, 0x00, // start_time
		0x00, 0x30, 0x00, // duration
		0x80, 0x0a, // running_status=4, desc_loop_length=10
		0x4d, 0x08, 'e', 'n', 'g', 0x04, 'N', 'e', 'w', 's',
	}
}

func TestParseEIT(t *testing.T) {
	buf := eitNewsSectionBytes()
	eit, err := ParseEIT(buf)
	require.NoError(t, err)

	assert.EqualValues(t, 7, eit.Header.ServiceID)
	assert.EqualValues(t, 2, eit.Header.TransportStreamID)
	assert.EqualValues(t, 3, eit.Header.OriginalNetworkID)
	assert.EqualValues(t, 4, eit.Header.SegmentLastSectionNumber)
	assert.EqualValues(t, 5, eit.Header.LastTableID)
	require.Equal(t, 1, eit.EventCount)

	ev := eit.PresentEvent()
	require.NotNil(t, ev)
	assert.EqualValues(t, 6, ev.EventID)
	assert.EqualValues(t, 4, ev.RunningStatus)
	assert.False(t, ev.FreeCAMode)
	require.NotNil(t, ev.ShortEvent)
	assert.Equal(t, "News", string(ev.ShortEvent.EventName))
	assert.Equal(t, [3]byte{'e', 'n', 'g'}, ev.ShortEvent.ISO639LanguageCode)
}

func TestEITCacheUpdateNews(t *testing.T) {
	eit, err := ParseEIT(eitNewsSectionBytes())
	require.NoError(t, err)

	cache := NewEventCache(4)
	cache.entries[2] = EventCacheEntry{ProgramNumber: 7}

	cache.Update(eit)

	entry, ok := cache.Lookup(7)
	require.True(t, ok)
	assert.Equal(t, "News", entry.Name)
}

func TestParseEITWrongTableID(t *testing.T) {
	buf := []byte{0x4f, 0xf0, 0x0c, 0x00, 0x07, 0xc1, 0x00, 0x00, 0x00, 0x02, 0x00, 0x03, 0x04, 0x05}
	_, err := ParseEIT(buf)
	assert.ErrorIs(t, err, ErrParse)
}
