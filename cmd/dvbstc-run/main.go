// Command dvbstc-run hosts a Controller against a recorded transport
// stream file in place of a real tuner, reading channel-change
// commands from stdin the way the original remote-control loop read
// key presses, and exposing Prometheus metrics over HTTP.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-dvb/dvbstc"
	"github.com/go-dvb/dvbstc/internal/metrics"
	"github.com/go-dvb/dvbstc/simulator"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

var (
	configPath   = pflag.StringP("config", "c", "", "path to a .ini config file (Freq/Bandwidth/Module/ProgramNumber)")
	streamPath   = pflag.StringP("stream", "s", "", "recorded transport stream file to serve in place of a tuner")
	packetRateUs = pflag.Int64("packet-rate-us", 0, "microseconds between simulated packets; 0 replays as fast as possible")
	metricsAddr  = pflag.String("metrics-addr", ":9360", "address to serve /metrics on")
	cpuProfiling = pflag.Bool("cpu-profile", false, "enable CPU profiling, written to the current directory")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *cpuProfiling {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	if *configPath == "" || *streamPath == "" {
		log.Fatal("dvbstc-run: -c and -s are both required")
	}

	cfg, err := dvbstc.LoadConfigFile(*configPath)
	if err != nil {
		log.Fatalf("dvbstc-run: loading config: %v", err)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	go serveMetrics(reg)

	source := simulator.NewFileSource(*streamPath, time.Duration(*packetRateUs)*time.Microsecond)
	ctrl := dvbstc.New(source, source, source,
		dvbstc.WithMetrics(collector),
		dvbstc.WithProgramTypeCallback(func(videoPID int16) {
			if videoPID < 0 {
				log.Println("dvbstc-run: now playing a radio-only channel")
			} else {
				log.Printf("dvbstc-run: now playing video PID 0x%04x\n", videoPID)
			}
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	handleSignals(cancel)

	if err := ctrl.Init(ctx, *cfg); err != nil {
		log.Fatalf("dvbstc-run: init: %v", err)
	}
	log.Printf("dvbstc-run: acquired channel %+v\n", ctrl.CurrentChannel())

	runCommandLoop(ctx, ctrl)

	if err := ctrl.Deinit(); err != nil {
		log.Printf("dvbstc-run: deinit: %v\n", err)
	}
}

func serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
		log.Printf("dvbstc-run: metrics server: %v\n", err)
	}
}

func handleSignals(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-ch
		log.Printf("dvbstc-run: received signal %s, shutting down\n", s)
		cancel()
	}()
}

// runCommandLoop reads single-character commands from stdin, standing
// in for the remote control's key presses: 'u'/'d' change channel,
// digits jump to a channel number, 'v'/'V' adjust volume, 'q' quits.
func runCommandLoop(ctx context.Context, ctrl *dvbstc.Controller) {
	fmt.Println("commands: u=up d=down <digits>+Enter=jump v/V=volume q=quit")
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleCommand(strings.TrimSpace(line), ctrl) {
				return
			}
		}
	}
}

func handleCommand(cmd string, ctrl *dvbstc.Controller) bool {
	switch {
	case cmd == "q":
		return false
	case cmd == "u":
		ctrl.ChannelUp()
		awaitChannel(ctrl)
	case cmd == "d":
		ctrl.ChannelDown()
		awaitChannel(ctrl)
	case cmd == "v":
		adjustVolume(ctrl, 1)
	case cmd == "V":
		adjustVolume(ctrl, -1)
	default:
		if n, err := strconv.ParseInt(cmd, 10, 16); err == nil {
			ctrl.ChangeChannel(int16(n))
			awaitChannel(ctrl)
		}
	}
	return true
}

func awaitChannel(ctrl *dvbstc.Controller) {
	if !ctrl.WaitForChannelAcquired(5 * time.Second) {
		log.Println("dvbstc-run: channel switch timed out")
		return
	}
	log.Printf("dvbstc-run: now on %+v\n", ctrl.CurrentChannel())
}

func adjustVolume(ctrl *dvbstc.Controller, delta int) {
	// SetVolume is absolute; dvbstc-run tracks the level itself since
	// Controller doesn't expose a getter for it (§4.3 only forwards).
	current := currentVolume
	next := current + delta
	if next < 0 {
		next = 0
	}
	if next > 10 {
		next = 10
	}
	if err := ctrl.SetVolume(uint32(next)); err != nil {
		log.Printf("dvbstc-run: set volume: %v\n", err)
		return
	}
	currentVolume = next
	log.Printf("dvbstc-run: volume now %d\n", currentVolume)
}

var currentVolume = 5
