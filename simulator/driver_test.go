package simulator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-dvb/dvbstc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestStream(t *testing.T) string {
	t.Helper()
	pat := EncodePATSection(1, []PATEntry{
		{ProgramNumber: 0, PID: 0x0010},
		{ProgramNumber: 1, PID: 0x0100},
	})

	f, err := os.CreateTemp(t.TempDir(), "dvbstc-sim-*.ts")
	require.NoError(t, err)
	defer f.Close()

	for _, pkt := range PacketizeSection(0x0000, pat, 0) {
		_, err := f.Write(pkt)
		require.NoError(t, err)
	}
	return f.Name()
}

func TestFileSourceLockReportsStatus(t *testing.T) {
	src := NewFileSource(writeTestStream(t), 0)
	statusCh := make(chan dvbstc.TunerStatus, 1)
	src.RegisterStatusCallback(func(s dvbstc.TunerStatus) { statusCh <- s })

	require.NoError(t, src.Init(context.Background()))
	require.NoError(t, src.LockToFrequency(666000000, 8, dvbstc.ModulationDVBT))

	select {
	case s := <-statusCh:
		assert.Equal(t, dvbstc.TunerStatusLocked, s)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for lock status")
	}
	require.NoError(t, src.Deinit())
}

func TestFileSourceDeliversFilteredSections(t *testing.T) {
	src := NewFileSource(writeTestStream(t), 0)
	sectionCh := make(chan []byte, 1)
	// The file loops, so the PAT arrives again and again; the callback
	// must not block (dvbstc.SectionFunc), or Deinit would wait forever
	// on a pump stuck in it.
	src.RegisterSectionCallback(func(section []byte) {
		select {
		case sectionCh <- section:
		default:
		}
	})

	require.NoError(t, src.LockToFrequency(666000000, 8, dvbstc.ModulationDVBT))
	_, err := src.SetFilter(0x0000, 0x00)
	require.NoError(t, err)

	select {
	case section := <-sectionCh:
		pat, err := dvbstc.ParsePAT(section)
		require.NoError(t, err)
		assert.Equal(t, 2, pat.ServiceCount)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for PAT section")
	}
	require.NoError(t, src.Deinit())
}

func TestFileSourceIgnoresUnfilteredPIDs(t *testing.T) {
	src := NewFileSource(writeTestStream(t), 0)
	sectionCh := make(chan []byte, 1)
	src.RegisterSectionCallback(func(section []byte) { sectionCh <- section })

	require.NoError(t, src.LockToFrequency(666000000, 8, dvbstc.ModulationDVBT))
	_, err := src.SetFilter(0x0100, 0x02) // PMT PID/table, never present in the fixture.
	require.NoError(t, err)

	select {
	case <-sectionCh:
		t.Fatal("unexpected section delivered for an unmatched filter")
	case <-time.After(100 * time.Millisecond):
	}
	require.NoError(t, src.Deinit())
}

func TestFileSourceStreamLifecycle(t *testing.T) {
	src := NewFileSource(writeTestStream(t), 0)

	h, err := src.StreamCreate(0x0200, dvbstc.StreamKindVideoMPEG2)
	require.NoError(t, err)
	assert.NotZero(t, h)

	require.NoError(t, src.VolumeSet(5*dvbstc.VolumeScale))
	assert.EqualValues(t, 5*dvbstc.VolumeScale, src.Volume())

	require.NoError(t, src.StreamRemove(h))
}
