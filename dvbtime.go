package dvbstc

import (
	"time"
)

// decodeDVBTime decodes a 5-byte DVB start_time field: 16 bits of
// Modified Julian Date followed by a 24-bit BCD time-of-day.
//
// Page: 160 | Annex C |
// https://www.dvb.org/resources/public/standards/a38_dvb-si_specification.pdf
func decodeDVBTime(b [5]byte) time.Time {
	mjd := uint16(b[0])<<8 | uint16(b[1])

	yt := int((float32(mjd) - 15078.2) / 365.25)
	mt := int((float64(mjd) - 14956.1 - float64(uint16(float64(yt)*365.25))) / 30.6001)
	d := int(mjd - 14956 - uint16(float64(yt)*365.25) - uint16(float64(mt)*30.6001))
	var k int
	if mt == 14 || mt == 15 {
		k = 1
	}
	y := yt + k
	m := mt - 1 - k*12

	t := time.Date(1900+y, time.Month(m), d, 0, 0, 0, 0, time.UTC)

	var tod [3]byte
	copy(tod[:], b[2:5])
	return t.Add(decodeDVBDuration(tod))
}

// decodeDVBDuration decodes a 3-byte BCD hours:minutes:seconds field,
// used both for event duration and for the time-of-day portion of
// start_time.
func decodeDVBDuration(b [3]byte) time.Duration {
	return bcdByteToDuration(b[0])*time.Hour +
		bcdByteToDuration(b[1])*time.Minute +
		bcdByteToDuration(b[2])*time.Second
}

func bcdByteToDuration(b byte) time.Duration {
	return time.Duration(b>>4*10 + b&0xf)
}
