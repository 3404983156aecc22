package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/simrig/internal/actuator"
	"github.com/banshee-data/simrig/internal/actuator/moog"
	"github.com/banshee-data/simrig/internal/actuator/smc"
	"github.com/banshee-data/simrig/internal/config"
	"github.com/banshee-data/simrig/internal/cueing"
	"github.com/banshee-data/simrig/internal/pipeline"
	"github.com/banshee-data/simrig/internal/safety"
	"github.com/banshee-data/simrig/internal/scheduler"
	"github.com/banshee-data/simrig/internal/telemetry"
	"github.com/banshee-data/simrig/internal/units"
	"github.com/banshee-data/simrig/internal/version"
)

var (
	configPath   = flag.String("config", "", "Path to tuning config JSON (defaults apply if omitted)")
	showConfig   = flag.Bool("show-config", false, "Print the effective tuning config and exit")
	transport    = flag.String("transport", "", "Hardware transport: smc, moog or dry-run (overrides config)")
	listenAddr   = flag.String("listen", "", "UDP listen address for game telemetry (overrides config)")
	dbFile       = flag.String("db", "telemetry_sessions.db", "Path to the telemetry recording database")
	record       = flag.Bool("record", false, "Record raw telemetry to the database while driving")
	recordNote   = flag.String("record-note", "", "Free-form note attached to the recorded session")
	replay       = flag.String("replay", "", "Replay a recorded session ID instead of listening for UDP")
	replaySpeed  = flag.Float64("replay-speed", 1.0, "Replay speed factor (2.0 = twice real time)")
	listSessions = flag.Bool("list-sessions", false, "List recorded sessions and exit")
	rcvBuf       = flag.Int("rcvbuf", 0, "UDP receive buffer size in bytes (overrides config)")
	logInterval  = flag.Int("log-interval", 30, "Statistics logging interval in seconds")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func loadConfig() *config.TuningConfig {
	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configPath, err)
		}
		cfg = loaded
	}

	// Flag overrides beat the file.
	if *transport != "" {
		cfg.Transport = transport
	}
	if *listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if *rcvBuf > 0 {
		cfg.ReceiveBuffer = rcvBuf
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func buildTransport(cfg *config.TuningConfig, limits safety.Limits) actuator.Transport {
	switch cfg.GetTransport() {
	case "smc":
		smcCfg := smc.DefaultConfig()
		smcCfg.Port = cfg.GetSMCPort()
		smcCfg.CenterMM = cfg.GetSMCCenterMM()
		smcCfg.MinMM = cfg.GetSMCMinMM()
		smcCfg.MaxMM = cfg.GetSMCMaxMM()
		return smc.New(smcCfg, limits)
	case "moog":
		moogCfg := moog.DefaultConfig()
		moogCfg.Address = cfg.GetMoogAddress()
		return moog.New(moogCfg, limits)
	default:
		return actuator.NewDryRunTransport(limits)
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("simrig %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := loadConfig()

	if *showConfig {
		out, err := cfg.EffectiveJSON()
		if err != nil {
			log.Fatalf("Failed to render config: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	if *listSessions {
		rdb, err := telemetry.NewRecorderDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open database %s: %v", *dbFile, err)
		}
		defer rdb.Close()
		sessions, err := rdb.Sessions()
		if err != nil {
			log.Fatalf("Failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No recorded sessions")
			return
		}
		for id, count := range sessions {
			fmt.Printf("%s  %d packets\n", id, count)
		}
		return
	}

	limits := cfg.GetLimits()
	log.Printf("Safety envelope: surge [%.3f, %.3f] m, pitch [%.1f, %.1f] deg",
		limits.Surge.Min, limits.Surge.Max,
		units.RadiansToDegrees(limits.Pitch.Min), units.RadiansToDegrees(limits.Pitch.Max))

	washout, err := cueing.NewWashout(cueing.WashoutConfig{
		SampleRate:       cfg.GetSampleRate(),
		WashoutFreq:      cfg.GetWashoutFreq(),
		SustainedFreq:    cfg.GetSustainedFreq(),
		OnsetGain:        cfg.GetOnsetGain(),
		SustainedGain:    cfg.GetSustainedGain(),
		Deadband:         cfg.GetDeadband(),
		TranslationScale: cfg.GetTranslationScale(),
		RotationScale:    cfg.GetRotationScale(),
		TiltScale:        cfg.GetTiltScale(),
	})
	if err != nil {
		log.Fatalf("Failed to create washout filter: %v", err)
	}

	machine, err := safety.NewMachine(limits, cfg.GetStalenessLimit())
	if err != nil {
		log.Fatalf("Failed to create safety machine: %v", err)
	}

	hw := buildTransport(cfg, limits)
	sched := scheduler.New(scheduler.Config{
		MinCommandInterval:  cfg.GetMinCommandInterval(),
		SlewRateTranslation: cfg.GetSlewRateTranslation(),
		SlewRateRotation:    cfg.GetSlewRateRotation(),
		PositionThreshold:   cfg.GetPositionThreshold(),
		MaxRetries:          cfg.GetMaxRetries(),
		RetryBackoff:        cfg.GetRetryBackoff(),
	}, hw, machine)

	stats := telemetry.NewPacketStats()
	pipe, err := pipeline.New(pipeline.Config{
		Washout:   washout,
		Machine:   machine,
		Scheduler: sched,
		Transport: hw,
		Stats:     stats,
	})
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGUSR1 is the operator emergency stop: trips the platform to home
	// without tearing the process down. SIGUSR2 is the matching reset: it
	// re-homes and re-arms a tripped or faulted rig from the console.
	opSignals := make(chan os.Signal, 1)
	signal.Notify(opSignals, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range opSignals {
			switch sig {
			case syscall.SIGUSR1:
				pipe.EmergencyStop("operator signal")
			case syscall.SIGUSR2:
				pipe.RequestReset()
			}
		}
	}()

	var wg sync.WaitGroup
	var source <-chan []byte

	if *replay != "" {
		rdb, err := telemetry.NewRecorderDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open database %s: %v", *dbFile, err)
		}
		defer rdb.Close()

		out := make(chan []byte, 4)
		source = out
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rdb.Replay(ctx, *replay, *replaySpeed, out); err != nil && err != context.Canceled {
				log.Printf("Replay error: %v", err)
			}
		}()
		log.Printf("Replaying session %s at %.1fx", *replay, *replaySpeed)
	} else {
		listener := telemetry.NewUDPListener(telemetry.UDPListenerConfig{
			Address:     cfg.GetListenAddr(),
			RcvBuf:      cfg.GetReceiveBuffer(),
			LogInterval: time.Duration(*logInterval) * time.Second,
			Stats:       stats,
		})
		source = listener.Packets()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("Listener error: %v", err)
			}
		}()
	}

	if *record {
		if *replay != "" {
			log.Fatal("Cannot record while replaying")
		}
		rdb, err := telemetry.NewRecorderDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open database %s: %v", *dbFile, err)
		}
		defer rdb.Close()
		rec, err := rdb.NewRecorder(*recordNote)
		if err != nil {
			log.Fatalf("Failed to create recording session: %v", err)
		}
		log.Printf("Recording telemetry to session %s", rec.SessionID())

		// Tee the packet stream through the recorder.
		upstream := source
		tee := make(chan []byte, 4)
		source = tee
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(tee)
			for packet := range upstream {
				if err := rec.Record(packet); err != nil {
					log.Printf("Recording error: %v", err)
				}
				tee <- packet
			}
		}()
	}

	if err := pipe.Run(ctx, source); err != nil && err != context.Canceled {
		log.Printf("Pipeline error: %v", err)
	}

	stop()
	wg.Wait()
	log.Print("Shutdown complete")
}
