package dvbstc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePAT(t *testing.T) {
	// Scenario 1: literal PAT section bytes.
	buf := []byte{0x00, 0xb0, 0x0d, 0x00, 0x01, 0xc1, 0x00, 0x00, 0x00, 0x00, 0xe0, 0x10, 0x00, 0x01, 0xe1, 0x00, 0xde, 0xad, 0xbe, 0xef}

	pat, err := ParsePAT(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 13, pat.Header.SectionLength)
	assert.EqualValues(t, 1, pat.Header.TransportStreamID)
	assert.Equal(t, 2, pat.ServiceCount)
	assert.Equal(t, PatServiceInfo{ProgramNumber: 0, PID: 0x0010}, pat.Services[0])
	assert.Equal(t, PatServiceInfo{ProgramNumber: 1, PID: 0x0100}, pat.Services[1])
	assert.Equal(t, 1, pat.ChannelCount())
}

func TestParsePATWrongTableID(t *testing.T) {
	buf := []byte{0x02, 0xb0, 0x0d, 0x00, 0x01, 0xc1, 0x00, 0x00}
	_, err := ParsePAT(buf)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParsePATTooShort(t *testing.T) {
	_, err := ParsePAT([]byte{0x00, 0x00})
	assert.ErrorIs(t, err, ErrParse)
}

func TestParsePATCapacityExceeded(t *testing.T) {
	buf := []byte{0x00, 0xb0, 0x0d, 0x00, 0x01, 0xc1, 0x00, 0x00}
	for i := 0; i < patMaxServices+1; i++ {
		buf = append(buf, 0x00, byte(i+1), 0x00, 0x10)
	}
	buf[1] = 0xb0 | byte((len(buf)-3)>>8)
	buf[2] = byte(len(buf) - 3)

	_, err := ParsePAT(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestPatTableChannelCountEmpty(t *testing.T) {
	pat := &PatTable{}
	assert.Equal(t, 0, pat.ChannelCount())
}
