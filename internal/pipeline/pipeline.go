// Package pipeline wires the cueing chain together: raw telemetry
// buffers in, actuator commands out. One goroutine owns the whole chain;
// decode, filter, clamp and schedule run synchronously per buffer in
// arrival order, because filter state is sequential and order-sensitive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/simrig/internal/actuator"
	"github.com/banshee-data/simrig/internal/cueing"
	"github.com/banshee-data/simrig/internal/safety"
	"github.com/banshee-data/simrig/internal/scheduler"
	"github.com/banshee-data/simrig/internal/telemetry"
)

// Config assembles the pipeline collaborators. All are required except
// Stats.
type Config struct {
	Washout   *cueing.Washout
	Machine   *safety.Machine
	Scheduler *scheduler.Scheduler
	Transport actuator.Transport
	Stats     telemetry.StatsInterface
}

// Pipeline runs the decode -> filter -> clamp -> schedule loop.
type Pipeline struct {
	washout   *cueing.Washout
	machine   *safety.Machine
	sched     *scheduler.Scheduler
	transport actuator.Transport
	stats     telemetry.StatsInterface

	estop chan string
	reset chan struct{}

	processed    uint64
	totalLatency time.Duration
	maxLatency   time.Duration
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Washout == nil || cfg.Machine == nil || cfg.Scheduler == nil || cfg.Transport == nil {
		return nil, errors.New("pipeline: missing collaborator")
	}
	stats := cfg.Stats
	if stats == nil {
		stats = telemetry.NewPacketStats()
	}
	return &Pipeline{
		washout:   cfg.Washout,
		machine:   cfg.Machine,
		sched:     cfg.Scheduler,
		transport: cfg.Transport,
		stats:     stats,
		estop:     make(chan string, 1),
		reset:     make(chan struct{}, 1),
	}, nil
}

// EmergencyStop requests an immediate trip from any goroutine (signal
// handler, supervising UI). The pipeline loop honors it on its next
// iteration; the hardware-level stop bypasses the scheduler entirely.
func (p *Pipeline) EmergencyStop(reason string) {
	select {
	case p.estop <- reason:
	default:
		// A trip is already pending; one is enough.
	}
}

// RequestReset asks for an operator reset of a tripped or faulted
// session. The pipeline loop re-homes and re-arms on its next iteration;
// the request is ignored while the session is healthy.
func (p *Pipeline) RequestReset() {
	select {
	case p.reset <- struct{}{}:
	default:
		// A reset is already pending; one is enough.
	}
}

// Run executes the startup sequence and then the processing loop until
// the context is cancelled or the session faults terminally. Buffers
// arrive on packets in network order and are processed synchronously.
func (p *Pipeline) Run(ctx context.Context, packets <-chan []byte) error {
	if err := p.startup(); err != nil {
		p.machine.Fault(fmt.Sprintf("startup: %v", err))
		p.transport.Shutdown()
		return err
	}
	defer p.shutdown()

	// The tick drives the staleness watchdog and, while tripped or
	// faulted, ramps the platform back toward home through the scheduler
	// so the return trip is slew-limited like any other motion.
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case reason := <-p.estop:
			p.machine.Trip("emergency stop: " + reason)
			if err := p.transport.EmergencyStop(); err != nil {
				log.Printf("Emergency stop command failed: %v", err)
			}
			p.offerHome()

		case <-p.reset:
			if err := p.recover(); err != nil {
				log.Printf("Operator reset failed: %v", err)
			}

		case <-tick.C:
			if p.machine.CheckStale(time.Now()) {
				p.offerHome()
			}
			switch p.machine.State() {
			case safety.StateTripped, safety.StateFault:
				p.offerHome()
			}

		case buf, ok := <-packets:
			if !ok {
				return nil
			}
			p.handlePacket(buf)
		}
	}
}

// startup brings the hardware to a confirmed home position and arms the
// state machine. Errors here are homing errors: terminal for the session.
func (p *Pipeline) startup() error {
	if err := p.machine.Start(); err != nil {
		return err
	}
	if err := p.transport.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := p.transport.Home(); err != nil {
		return fmt.Errorf("home: %w", err)
	}

	// Fresh filter and scheduler state so nothing recorded before homing
	// replays onto the platform.
	p.washout.Reset()
	p.sched.Reset()
	return p.machine.HomeConfirmed()
}

// recover re-arms a tripped or faulted session: explicit operator reset
// on the machine, then the same home-and-confirm sequence as startup.
// The transport link stays up across a trip, so there is no reconnect; a
// homing failure here faults the session again.
func (p *Pipeline) recover() error {
	if err := p.machine.Reset(); err != nil {
		return err
	}
	if err := p.machine.Start(); err != nil {
		return err
	}
	if err := p.transport.Home(); err != nil {
		p.machine.Fault(fmt.Sprintf("reset homing: %v", err))
		return err
	}
	p.washout.Reset()
	p.sched.Reset()
	return p.machine.HomeConfirmed()
}

// handlePacket runs one raw buffer through the full chain.
func (p *Pipeline) handlePacket(buf []byte) {
	start := time.Now()

	sample, err := telemetry.Decode(buf)
	if err != nil {
		if errors.Is(err, telemetry.ErrNotMotionPacket) {
			return // expected interleaved traffic, drop silently
		}
		p.stats.AddInvalid()
		p.machine.NoteInvalidInput()
		return
	}
	p.stats.AddMotion()
	p.machine.ObserveTelemetry(start)

	pose, err := p.washout.Process(sample)
	if err != nil {
		// Filter state is untouched; count the fault and move on. A long
		// enough run of consecutive faults escalates the machine to Fault.
		p.machine.NoteInvalidInput()
		return
	}
	p.machine.NoteValidInput()

	clamped, err := p.machine.Apply(pose)
	if err != nil {
		return // not active yet; nothing to dispatch
	}

	if _, err := p.sched.Offer(clamped); err != nil {
		log.Printf("Dispatch failed: %v", err)
	}

	latency := time.Since(start)
	p.totalLatency += latency
	if latency > p.maxLatency {
		p.maxLatency = latency
	}
	p.processed++
	if p.processed%600 == 0 {
		avg := p.totalLatency / time.Duration(p.processed)
		log.Printf("Pipeline: %d samples, latency %s avg / %s max, state %s",
			p.processed, avg, p.maxLatency, p.machine.State())
	}
}

// offerHome pushes the machine's output (the home pose while tripped or
// faulted) into the scheduler.
func (p *Pipeline) offerHome() {
	pose, err := p.machine.Apply(cueing.Home)
	if err != nil {
		return
	}
	if _, err := p.sched.Offer(pose); err != nil {
		log.Printf("Home dispatch failed: %v", err)
	}
}

// shutdown drives the platform home before releasing it, so cancellation
// never abandons the actuator at its last commanded pose.
func (p *Pipeline) shutdown() {
	log.Print("Pipeline stopping; returning platform to home")
	if err := p.transport.Shutdown(); err != nil {
		log.Printf("Transport shutdown failed: %v", err)
	}
	dispatched, suppressed := p.sched.Stats()
	log.Printf("Pipeline done: %d samples processed, %d commands dispatched, %d suppressed",
		p.processed, dispatched, suppressed)
}
