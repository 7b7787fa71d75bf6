// Package driver provides a cycle-driven harness that exercises the
// memory dependence unit the way an issue scheduler would: inserting a
// workload stream, issuing ready instructions, detecting ordering
// violations, and replaying once per cycle. It runs as an Akita ticking
// component.
package driver

import (
	"sort"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/o3sim/inst"
	"github.com/sarchlab/o3sim/timing/iq"
	"github.com/sarchlab/o3sim/timing/memdep"
	"github.com/sarchlab/o3sim/timing/storeset"
)

// Config holds configuration for the driver.
type Config struct {
	// Width is the number of instructions inserted and issued per cycle.
	Width int `json:"width"`
	// RegReadyDelay is the number of cycles between insertion and the
	// operands becoming available.
	RegReadyDelay uint64 `json:"reg_ready_delay"`
	// LoadLatency is the execution latency of an issued load.
	LoadLatency uint64 `json:"load_latency"`
	// StoreLatency is the execution latency of an issued store.
	StoreLatency uint64 `json:"store_latency"`
	// SquashEvery injects a pipeline squash after this many completions.
	// Zero disables squash injection.
	SquashEvery int `json:"squash_every"`

	// Memdep configures the dependence unit under test.
	Memdep memdep.Config `json:"memdep"`
	// StoreSet configures the dependence predictor.
	StoreSet storeset.Config `json:"store_set"`
	// Workload describes the instruction stream.
	Workload WorkloadConfig `json:"workload"`
}

// DefaultConfig returns a single-threaded configuration with M2-like
// load-to-use latency.
func DefaultConfig() Config {
	return Config{
		Width:         4,
		RegReadyDelay: 2,
		LoadLatency:   4,
		StoreLatency:  1,
		SquashEvery:   0,
		Memdep:        memdep.DefaultConfig(),
		StoreSet:      storeset.DefaultConfig(),
		Workload:      DefaultWorkloadConfig(),
	}
}

// Stats holds driver-level statistics.
type Stats struct {
	// Cycles is the number of cycles ticked.
	Cycles uint64
	// Inserted is the number of instructions inserted into the unit.
	Inserted uint64
	// Issued is the number of issue events, including re-issues after a
	// replay.
	Issued uint64
	// Completed is the number of instructions completed.
	Completed uint64
	// Violations is the number of ordering violations detected.
	Violations uint64
	// Squashes is the number of injected squashes.
	Squashes uint64
	// SquashedInsts is the number of instructions discarded by squashes.
	SquashedInsts uint64
}

// IPC returns completed instructions per cycle.
func (s Stats) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Cycles)
}

// regEvent schedules an operand-ready notification.
type regEvent struct {
	in      *inst.DynInst
	readyAt uint64
}

// flight is an issued instruction executing in the memory system.
type flight struct {
	in     *inst.DynInst
	doneAt uint64
}

// Driver feeds a workload through the memory dependence unit, one batch
// per cycle.
type Driver struct {
	*sim.TickingComponent

	cfg Config

	unit   *memdep.Unit
	pred   *storeset.StoreSet
	readyQ *iq.Queue

	stream []*inst.DynInst
	next   int

	pendingRegs []regEvent
	inFlight    map[inst.SeqNum]*flight

	cycle                uint64
	completedSinceSquash int

	stats Stats
}

// NewDriver creates a driver and registers it with the engine at the
// given frequency. Call TickLater before Engine.Run to start it.
func NewDriver(
	name string,
	engine sim.Engine,
	freq sim.Freq,
	cfg Config,
) *Driver {
	d := &Driver{
		cfg:      cfg,
		pred:     storeset.New(cfg.StoreSet),
		readyQ:   iq.NewQueue(),
		stream:   Generate(cfg.Workload),
		inFlight: make(map[inst.SeqNum]*flight),
	}
	d.unit = memdep.NewUnit(cfg.Memdep, memdep.WithPredictor(d.pred))
	d.unit.SetReadySink(d.readyQ)
	d.TickingComponent = sim.NewTickingComponent(name, engine, freq, d)

	return d
}

// Unit exposes the dependence unit under test.
func (d *Driver) Unit() *memdep.Unit { return d.unit }

// Predictor exposes the store-set predictor.
func (d *Driver) Predictor() *storeset.StoreSet { return d.pred }

// Stats returns a snapshot of the driver's statistics.
func (d *Driver) Stats() Stats { return d.stats }

// Tick advances the model by one cycle. It returns false once the
// workload is exhausted and the unit has drained, which ends the event
// loop.
func (d *Driver) Tick() bool {
	d.cycle++
	d.stats.Cycles++

	// The replay queue is drained exactly once per cycle.
	d.unit.Replay()

	progress := false
	progress = d.completeFinished() || progress
	progress = d.deliverRegsReady() || progress
	progress = d.insertBatch() || progress
	progress = d.issueBatch() || progress
	progress = d.maybeSquash() || progress

	if d.done() {
		d.unit.DrainSanityCheck()
		return false
	}

	// Idle cycles still make progress while work is in flight.
	return progress || len(d.inFlight) > 0 || len(d.pendingRegs) > 0 ||
		d.readyQ.Len() > 0 || !d.unit.IsDrained()
}

// completeFinished retires every in-flight instruction whose latency has
// elapsed, oldest first so the wakeup order is deterministic.
func (d *Driver) completeFinished() bool {
	var finished []*inst.DynInst
	for seq, f := range d.inFlight {
		if f.doneAt > d.cycle {
			continue
		}
		delete(d.inFlight, seq)
		finished = append(finished, f.in)
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].Seq < finished[j].Seq
	})

	for _, in := range finished {
		d.unit.CompleteInst(in)
		d.stats.Completed++
		d.completedSinceSquash++
	}
	return len(finished) > 0
}

// deliverRegsReady fires operand-ready notifications that have come due.
func (d *Driver) deliverRegsReady() bool {
	progress := false
	kept := d.pendingRegs[:0]
	for _, ev := range d.pendingRegs {
		if ev.readyAt > d.cycle {
			kept = append(kept, ev)
			continue
		}
		if !d.unit.Tracks(ev.in.Seq) {
			continue // squashed while waiting on operands
		}
		if ev.in.NonSpeculative {
			d.unit.NonSpecInstReady(ev.in)
		} else {
			d.unit.RegsReady(ev.in)
		}
		progress = true
	}
	d.pendingRegs = kept
	return progress
}

// insertBatch inserts up to Width instructions from the stream.
func (d *Driver) insertBatch() bool {
	progress := false
	for i := 0; i < d.cfg.Width && d.next < len(d.stream); i++ {
		in := d.stream[d.next]
		d.next++

		switch {
		case in.IsBarrier():
			d.unit.InsertBarrier(in)
		case in.NonSpeculative:
			d.unit.InsertNonSpec(in)
		default:
			d.unit.Insert(in)
		}

		d.pendingRegs = append(d.pendingRegs, regEvent{
			in:      in,
			readyAt: d.cycle + d.cfg.RegReadyDelay,
		})

		d.stats.Inserted++
		progress = true
	}
	return progress
}

// issueBatch issues up to Width ready instructions and checks stores
// against already-issued younger loads for ordering violations.
func (d *Driver) issueBatch() bool {
	progress := false
	for i := 0; i < d.cfg.Width; i++ {
		in, ok := d.readyQ.Pop()
		if !ok {
			break
		}

		d.unit.Issue(in)
		d.stats.Issued++
		progress = true

		if in.IsStore() {
			d.checkViolations(in)
		}

		latency := d.cfg.LoadLatency
		if in.IsStore() || in.IsBarrier() {
			latency = d.cfg.StoreLatency
		}
		d.inFlight[in.Seq] = &flight{in: in, doneAt: d.cycle + latency}
	}
	return progress
}

// checkViolations flags younger loads of the same thread and address
// that issued ahead of the store. Each violating load is canceled and
// rescheduled through the unit's replay path.
func (d *Driver) checkViolations(store *inst.DynInst) {
	var violating []*inst.DynInst
	for seq, f := range d.inFlight {
		load := f.in
		if !load.IsLoad() || load.Thread != store.Thread {
			continue
		}
		if load.Seq <= store.Seq || load.Addr != store.Addr {
			continue
		}

		delete(d.inFlight, seq)
		violating = append(violating, load)
	}
	sort.Slice(violating, func(i, j int) bool {
		return violating[i].Seq < violating[j].Seq
	})

	for _, load := range violating {
		d.unit.Violation(store, load)
		d.stats.Violations++
	}
}

// maybeSquash injects a squash of the youngest tracked instructions once
// enough completions have accumulated.
func (d *Driver) maybeSquash() bool {
	if d.cfg.SquashEvery <= 0 || d.completedSinceSquash < d.cfg.SquashEvery {
		return false
	}
	d.completedSinceSquash = 0

	// Squash the youngest quarter of the thread's outstanding window.
	tid := inst.ThreadID(int(d.stats.Squashes) % d.cfg.Memdep.NumThreads)
	cutoff, ok := d.squashCutoff(tid)
	if !ok {
		return false
	}

	d.unit.Squash(cutoff, tid)
	squashed := d.readyQ.RemoveYoungerThan(cutoff, tid)

	for seq, f := range d.inFlight {
		if f.in.Thread == tid && f.in.Seq > cutoff {
			delete(d.inFlight, seq)
			squashed++
		}
	}
	kept := d.pendingRegs[:0]
	for _, ev := range d.pendingRegs {
		if ev.in.Thread == tid && ev.in.Seq > cutoff {
			continue
		}
		kept = append(kept, ev)
	}
	d.pendingRegs = kept

	d.stats.Squashes++
	d.stats.SquashedInsts += uint64(squashed)
	return true
}

// squashCutoff picks a cutoff that discards roughly the youngest quarter
// of the thread's tracked instructions.
func (d *Driver) squashCutoff(tid inst.ThreadID) (inst.SeqNum, bool) {
	listLen := d.unit.OrderListLen(tid)
	if listLen < 4 {
		return 0, false
	}

	// The youngest inserted sequence number bounds the window; back off
	// a quarter of the list length from it.
	youngest := inst.SeqNum(d.next)
	back := inst.SeqNum(listLen / 4)
	if back == 0 || youngest <= back {
		return 0, false
	}
	return youngest - back, true
}

// done reports whether all work has been fed, executed, and drained.
func (d *Driver) done() bool {
	return d.next == len(d.stream) &&
		len(d.pendingRegs) == 0 &&
		len(d.inFlight) == 0 &&
		d.readyQ.Len() == 0 &&
		d.unit.IsDrained()
}
