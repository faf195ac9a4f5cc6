// Command dvbstc-gen writes a synthetic multi-channel transport stream
// file, for exercising dvbstc-probe and dvbstc-run without a real
// tuner or recording.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-dvb/dvbstc"
	"github.com/go-dvb/dvbstc/simulator"
	"github.com/spf13/pflag"
)

var (
	outputPath = pflag.StringP("output", "o", "stream.ts", "path to write the generated transport stream to")
	channels   = pflag.IntP("channels", "c", 3, "number of channels to generate, alternating video+audio and audio-only")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *channels < 1 {
		log.Fatal("dvbstc-gen: -c must be at least 1")
	}

	f, err := os.Create(*outputPath)
	if err != nil {
		log.Fatalf("dvbstc-gen: creating %s: %v", *outputPath, err)
	}
	defer f.Close()

	if err := generate(f, *channels); err != nil {
		log.Fatalf("dvbstc-gen: %v", err)
	}
	log.Printf("dvbstc-gen: wrote %d channels to %s\n", *channels, *outputPath)
}

func generate(f *os.File, channelCount int) error {
	entries := make([]simulator.PATEntry, 0, channelCount+1)
	entries = append(entries, simulator.PATEntry{ProgramNumber: 0, PID: 0x0010}) // NIT, never followed.

	type channel struct {
		programNumber uint16
		pmtPID        uint16
		videoPID      uint16
		audioPID      uint16
		name          string
	}
	var chans []channel
	for i := 0; i < channelCount; i++ {
		programNumber := uint16(i + 1)
		pmtPID := uint16(0x0100 + i*0x10)
		ch := channel{
			programNumber: programNumber,
			pmtPID:        pmtPID,
			audioPID:      pmtPID + 1,
			name:          fmt.Sprintf("Generated Channel %d", programNumber),
		}
		if i%2 == 0 {
			ch.videoPID = pmtPID + 2
		}
		chans = append(chans, ch)
		entries = append(entries, simulator.PATEntry{ProgramNumber: programNumber, PID: pmtPID})
	}

	pat := simulator.EncodePATSection(1, entries)
	if err := writeSection(f, 0x0000, pat); err != nil {
		return err
	}

	for _, ch := range chans {
		streams := []simulator.PMTStream{
			{StreamType: dvbstc.StreamTypeMPEG1Audio, PID: ch.audioPID},
		}
		if ch.videoPID != 0 {
			streams = append([]simulator.PMTStream{
				{StreamType: dvbstc.StreamTypeMPEG2VideoAlt, PID: ch.videoPID, Descriptors: simulator.EncodeTeletextDescriptor()},
			}, streams...)
		}
		pmt := simulator.EncodePMTSection(ch.programNumber, ch.audioPID, streams)
		if err := writeSection(f, ch.pmtPID, pmt); err != nil {
			return err
		}

		descriptors := append(
			simulator.EncodeShortEventDescriptor([3]byte{'e', 'n', 'g'}, ch.name, ""),
			simulator.EncodeContentDescriptor()...,
		)
		eit := simulator.EncodeEITSection(ch.programNumber, 1, 1, []simulator.EITEvent{
			{
				EventID:       1,
				StartTime:     [5]byte{0x4f, 0xd7, 0x12, 0x00, 0x00},
				Duration:      [3]byte{0x01, 0x00, 0x00},
				RunningStatus: 4,
				Descriptors:   descriptors,
			},
		})
		if err := writeSection(f, 0x0012, eit); err != nil {
			return err
		}
	}
	return nil
}

func writeSection(f *os.File, pid uint16, section []byte) error {
	for _, pkt := range simulator.PacketizeSection(pid, section, 0) {
		if _, err := f.Write(pkt); err != nil {
			return err
		}
	}
	return nil
}
