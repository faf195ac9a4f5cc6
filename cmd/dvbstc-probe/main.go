// Command dvbstc-probe dumps the programs and current events found in
// a recorded transport stream file, the sibling of the teacher's
// astits-probe for this engine's narrower PAT/PMT/EIT domain.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/go-dvb/dvbstc/internal/genre"
	"github.com/go-dvb/dvbstc/simulator"
	"github.com/pkg/profile"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var (
	inputPath    = pflag.StringP("input", "i", "", "recorded transport stream file to probe")
	format       = pflag.StringP("format", "f", "text", "output format: text, json, or yaml")
	genreTable   = pflag.String("genre-table", "", "optional YAML genre table, overriding the bundled one")
	cpuProfiling = pflag.Bool("cpu-profile", false, "enable CPU profiling, written to the current directory")
)

// Program is one dumped channel: a PAT entry enriched with its PMT
// classification and current EIT event, if any were present in the
// file.
type Program struct {
	ProgramNumber int    `json:"program_number" yaml:"program_number"`
	VideoPID      int    `json:"video_pid,omitempty" yaml:"video_pid,omitempty"`
	AudioPID      int    `json:"audio_pid,omitempty" yaml:"audio_pid,omitempty"`
	HasTeletext   bool   `json:"has_teletext,omitempty" yaml:"has_teletext,omitempty"`
	EventName     string `json:"event_name,omitempty" yaml:"event_name,omitempty"`
	EventGenre    string `json:"event_genre,omitempty" yaml:"event_genre,omitempty"`
}

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *cpuProfiling {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	if *inputPath == "" {
		log.Fatal("dvbstc-probe: -i is required")
	}

	genres, err := loadGenres(*genreTable)
	if err != nil {
		log.Fatalf("dvbstc-probe: %v", err)
	}

	snap, err := simulator.ScanFile(*inputPath)
	if err != nil {
		log.Fatalf("dvbstc-probe: scanning %s: %v", *inputPath, err)
	}
	if snap.PAT == nil {
		log.Fatal("dvbstc-probe: no PAT found in the recording")
	}

	programs := buildPrograms(snap, genres)

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(programs); err != nil {
			log.Fatalf("dvbstc-probe: json encoding: %v", err)
		}
	case "yaml":
		if err := yaml.NewEncoder(os.Stdout).Encode(programs); err != nil {
			log.Fatalf("dvbstc-probe: yaml encoding: %v", err)
		}
	default:
		printText(programs)
	}
}

func loadGenres(path string) (*genre.Table, error) {
	if path != "" {
		return genre.LoadFile(path)
	}
	return genre.Default()
}

func buildPrograms(snap *simulator.Snapshot, genres *genre.Table) []Program {
	var out []Program
	for i := 0; i < snap.PAT.ServiceCount; i++ {
		service := snap.PAT.Services[i]
		if service.ProgramNumber == 0 {
			continue // NIT entry, not a channel.
		}

		p := Program{ProgramNumber: int(service.ProgramNumber)}
		if pmt, ok := snap.PMT[service.ProgramNumber]; ok {
			if pid, ok := pmt.FirstVideoPID(); ok {
				p.VideoPID = int(pid)
			}
			if pid, ok := pmt.FirstAudioPID(); ok {
				p.AudioPID = int(pid)
			}
			p.HasTeletext = pmt.HasTeletext()
		}
		if eit, ok := snap.EIT[service.ProgramNumber]; ok {
			if ev := eit.PresentEvent(); ev != nil {
				if ev.ShortEvent != nil {
					p.EventName = string(ev.ShortEvent.EventName)
				}
				if ev.HasContentDescriptor {
					if name, ok := genres.Name(ev.GenreLevel1, ev.GenreLevel2); ok {
						p.EventGenre = name
					} else {
						p.EventGenre = "unknown"
					}
				}
			}
		}
		out = append(out, p)
	}
	return out
}

func printText(programs []Program) {
	fmt.Println("Programs:")
	for _, p := range programs {
		fmt.Printf("* #%d", p.ProgramNumber)
		if p.VideoPID != 0 {
			fmt.Printf(" video=0x%04x", p.VideoPID)
		}
		if p.AudioPID != 0 {
			fmt.Printf(" audio=0x%04x", p.AudioPID)
		}
		if p.HasTeletext {
			fmt.Print(" teletext")
		}
		if p.EventName != "" {
			fmt.Printf(" now=%q", p.EventName)
		}
		if p.EventGenre != "" {
			fmt.Printf(" genre=%s", p.EventGenre)
		}
		fmt.Println()
	}
}
