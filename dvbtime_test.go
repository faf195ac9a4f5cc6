package dvbstc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecodeDVBTime(t *testing.T) {
	want, _ := time.Parse("2006-01-02 15:04:05", "1993-10-13 12:45:00")
	got := decodeDVBTime([5]byte{0xc0, 0x79, 0x12, 0x45, 0x00})
	assert.Equal(t, want, got)
}

func TestDecodeDVBDuration(t *testing.T) {
	want := time.Hour + 45*time.Minute + 30*time.Second
	got := decodeDVBDuration([3]byte{0x01, 0x45, 0x30})
	assert.Equal(t, want, got)
}

func TestBCDByteToDuration(t *testing.T) {
	assert.EqualValues(t, 45, bcdByteToDuration(0x45))
	assert.EqualValues(t, 0, bcdByteToDuration(0x00))
	assert.EqualValues(t, 59, bcdByteToDuration(0x59))
}
