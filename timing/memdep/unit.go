// Package memdep implements the memory dependence unit of an
// out-of-order core model. Memory instructions are registered with the
// unit as they enter the instruction queue; the unit consults a
// dependence predictor, tracks producer/consumer edges between in-flight
// instructions, and signals the issue scheduler when an instruction may
// safely be sent to the memory system. The unit decides ordering
// permission only; memory latency is modeled elsewhere.
package memdep

import (
	"fmt"
	"strings"

	"github.com/google/btree"

	"github.com/sarchlab/o3sim/inst"
)

// orderListDegree is the B-tree degree for the per-thread order lists.
const orderListDegree = 8

// Stats holds memory dependence unit statistics. The counters only ever
// increase; the unit never reads or resets them.
type Stats struct {
	// InsertedLoads is the number of loads inserted into the unit.
	InsertedLoads uint64
	// InsertedStores is the number of stores inserted into the unit.
	InsertedStores uint64
	// ConflictingLoads is the number of loads that had to wait on a
	// predicted or confirmed producer store.
	ConflictingLoads uint64
	// ConflictingStores is the number of stores that had to wait on a
	// predicted producer store.
	ConflictingStores uint64
}

// LoadConflictRate returns the fraction of loads that waited on a store.
func (s Stats) LoadConflictRate() float64 {
	if s.InsertedLoads == 0 {
		return 0
	}
	return float64(s.ConflictingLoads) / float64(s.InsertedLoads)
}

// StoreConflictRate returns the fraction of stores that waited on a store.
func (s Stats) StoreConflictRate() float64 {
	if s.InsertedStores == 0 {
		return 0
	}
	return float64(s.ConflictingStores) / float64(s.InsertedStores)
}

// UnitOption is a functional option for configuring the Unit.
type UnitOption func(*Unit)

// WithPredictor sets the memory dependence predictor. Without this
// option the unit predicts no dependencies.
func WithPredictor(p Predictor) UnitOption {
	return func(u *Unit) {
		u.pred = p
	}
}

// Unit is the memory dependence unit. All operations are invoked
// synchronously by the outer simulator's cycle loop; the unit never
// blocks and represents waiting purely as graph state.
type Unit struct {
	cfg Config

	// registry maps every tracked sequence number to its entry.
	registry map[inst.SeqNum]*entry

	// order holds one order list per hardware thread, oldest to
	// youngest, keyed by sequence number.
	order []*btree.BTreeG[*entry]

	// replayQueue holds instructions that were woken incorrectly and
	// must be re-signaled on the next Replay call.
	replayQueue []*inst.DynInst

	// loadBarriers and storeBarriers hold the sequence numbers of
	// outstanding barriers. They are the sole source of truth for
	// whether any barrier is outstanding.
	loadBarriers  map[inst.SeqNum]struct{}
	storeBarriers map[inst.SeqNum]struct{}

	// barrierWaiters maps a barrier's sequence number to the entries it
	// gates, so clearing one barrier releases exactly the instructions
	// inserted behind it.
	barrierWaiters map[inst.SeqNum][]*entry

	pred Predictor
	sink ReadySink

	stats Stats
}

// NewUnit creates a memory dependence unit for the given configuration.
func NewUnit(cfg Config, opts ...UnitOption) *Unit {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("memdep: invalid config: %v", err))
	}

	u := &Unit{
		cfg:            cfg,
		registry:       make(map[inst.SeqNum]*entry),
		order:          make([]*btree.BTreeG[*entry], cfg.NumThreads),
		loadBarriers:   make(map[inst.SeqNum]struct{}),
		storeBarriers:  make(map[inst.SeqNum]struct{}),
		barrierWaiters: make(map[inst.SeqNum][]*entry),
		pred:           nonePredictor{},
	}

	for i := range u.order {
		u.order[i] = btree.NewG(orderListDegree, func(a, b *entry) bool {
			return a.seq < b.seq
		})
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// SetReadySink installs the issue scheduler's wakeup sink. Readiness
// signals are dropped until a sink is installed.
func (u *Unit) SetReadySink(sink ReadySink) {
	u.sink = sink
}

// Stats returns a snapshot of the unit's statistics.
func (u *Unit) Stats() Stats {
	return u.stats
}

// Insert registers a speculative load or store. The dependence predictor
// is consulted; if it names a live, incomplete producer store of the
// same thread, the instruction waits on it. Outstanding barriers of the
// relevant kind additionally gate the instruction.
func (u *Unit) Insert(in *inst.DynInst) {
	e := u.register(in)
	e.regsReady = in.OperandsReady

	if prodSeq, ok := u.pred.Predict(in); ok {
		u.linkProducer(e, prodSeq)
	}

	u.gateOnBarriers(e)
	u.countInserted(in)

	if e.readyToIssue() {
		u.signalReady(e)
	}
}

// InsertNonSpec registers a memory instruction that bypasses dependence
// speculation entirely. It carries no predicted producer and is released
// to the issue path by NonSpecInstReady.
func (u *Unit) InsertNonSpec(in *inst.DynInst) {
	u.register(in)
	u.countInserted(in)
}

// InsertBarrier registers a barrier instruction. Its sequence number
// joins the barrier set for each kind it orders, gating younger memory
// operations until the barrier completes or is squashed. The barrier
// itself only waits on older outstanding barriers.
func (u *Unit) InsertBarrier(in *inst.DynInst) {
	e := u.register(in)
	e.regsReady = in.OperandsReady

	// Order with prior barriers before publishing this one.
	for bseq := range u.loadBarriers {
		if in.IsLoadBarrier() && bseq < e.seq {
			u.gate(e, bseq)
		}
	}
	for bseq := range u.storeBarriers {
		if in.IsStoreBarrier() && bseq < e.seq {
			u.gate(e, bseq)
		}
	}

	if in.IsLoadBarrier() {
		u.loadBarriers[in.Seq] = struct{}{}
	}
	if in.IsStoreBarrier() {
		u.storeBarriers[in.Seq] = struct{}{}
	}

	if e.readyToIssue() {
		u.signalReady(e)
	}
}

// RegsReady marks the instruction's operands as available. If its memory
// dependencies are already satisfied, the instruction is signaled ready.
func (u *Unit) RegsReady(in *inst.DynInst) {
	u.markRegsReady(in, "regsReady")
}

// NonSpecInstReady releases a non-speculative instruction to the issue
// path once the pipeline determines it may execute.
func (u *Unit) NonSpecInstReady(in *inst.DynInst) {
	u.markRegsReady(in, "nonSpecInstReady")
}

func (u *Unit) markRegsReady(in *inst.DynInst, op string) {
	e := u.lookup(in.Seq, op)
	e.regsReady = true
	if e.readyToIssue() {
		u.signalReady(e)
	}
}

// Reschedule queues an instruction that was woken incorrectly. Its
// dependency counts are untouched; it re-enters the issue path on the
// next Replay call.
func (u *Unit) Reschedule(in *inst.DynInst) {
	u.replayQueue = append(u.replayQueue, in)
}

// Replay re-signals every rescheduled instruction and empties the replay
// queue. The issue scheduler invokes this once per cycle; it is the only
// path by which rescheduled instructions become visible again.
func (u *Unit) Replay() {
	for _, in := range u.replayQueue {
		u.signalInst(in)
	}
	u.replayQueue = nil
}

// CompleteInst marks an instruction complete, wakes its dependents in
// list order, clears any barrier it established, and releases its entry.
func (u *Unit) CompleteInst(in *inst.DynInst) {
	e := u.lookup(in.Seq, "completeInst")
	e.completed = true

	if in.IsBarrier() {
		u.clearBarrier(e.seq)
	}

	u.wakeDependents(e)
	e.severFromProducers()
	u.release(e)
}

// Violation handles a detected memory ordering violation: the predictor
// is trained on the store/load pair, and the violating load is queued
// for replay.
func (u *Unit) Violation(store, load *inst.DynInst) {
	u.pred.Train(store, load)

	if load.IsLoad() {
		u.stats.ConflictingLoads++
	} else {
		u.stats.ConflictingStores++
	}

	u.Reschedule(load)
}

// Issue records that an instruction has left the unit's responsibility
// and moved to execution. Dependence edges are not mutated.
func (u *Unit) Issue(in *inst.DynInst) {
	u.lookup(in.Seq, "issue")
	u.pred.Issued(in)
}

// Squash removes every entry of the given thread with a sequence number
// strictly greater than squashedSeq. Squashed entries are severed from
// their producers, dropped from the registry, order list, barrier sets,
// and replay queue. Squash is idempotent per sequence number.
func (u *Unit) Squash(squashedSeq inst.SeqNum, tid inst.ThreadID) {
	tree := u.orderList(tid)

	var doomed []*entry
	tree.DescendGreaterThan(&entry{seq: squashedSeq},
		func(e *entry) bool {
			doomed = append(doomed, e)
			return true
		})

	// Youngest first, matching the walk order above.
	for _, e := range doomed {
		e.squashed = true
		e.severFromProducers()
		e.dependents = nil

		if e.inst.IsBarrier() {
			u.clearBarrier(e.seq)
		}

		u.removeFromReplay(e.seq)
		delete(u.registry, e.seq)
		tree.Delete(e)
	}

	u.pred.Squash(squashedSeq, tid)
}

// IsDrained reports whether the unit holds no state: no tracked entries,
// empty order lists, and an empty replay queue.
func (u *Unit) IsDrained() bool {
	if len(u.registry) != 0 || len(u.replayQueue) != 0 {
		return false
	}
	for _, tree := range u.order {
		if tree.Len() != 0 {
			return false
		}
	}
	return true
}

// DrainSanityCheck asserts the unit's quiescence invariants after a
// drain. Any residual state is a fatal internal-consistency error.
func (u *Unit) DrainSanityCheck() {
	if len(u.registry) != 0 {
		panic(fmt.Sprintf("memdep: drain sanity check: %d entries still registered",
			len(u.registry)))
	}
	for tid, tree := range u.order {
		if tree.Len() != 0 {
			panic(fmt.Sprintf("memdep: drain sanity check: thread %d order list has %d entries",
				tid, tree.Len()))
		}
	}
	if len(u.replayQueue) != 0 {
		panic(fmt.Sprintf("memdep: drain sanity check: %d instructions awaiting replay",
			len(u.replayQueue)))
	}
	if len(u.loadBarriers) != 0 || len(u.storeBarriers) != 0 {
		panic(fmt.Sprintf("memdep: drain sanity check: %d load barriers, %d store barriers outstanding",
			len(u.loadBarriers), len(u.storeBarriers)))
	}
}

// TakeOverFrom resets request-local barrier bookkeeping for a thread
// context handoff. The predictor and the entry registry persist.
func (u *Unit) TakeOverFrom() {
	u.loadBarriers = make(map[inst.SeqNum]struct{})
	u.storeBarriers = make(map[inst.SeqNum]struct{})
	u.barrierWaiters = make(map[inst.SeqNum][]*entry)

	for _, e := range u.registry {
		if e.pendingBarriers == 0 {
			continue
		}
		e.pendingBarriers = 0
		if e.readyToIssue() {
			u.signalReady(e)
		}
	}
}

// HasLoadBarrier reports whether any load barrier is outstanding.
func (u *Unit) HasLoadBarrier() bool { return len(u.loadBarriers) != 0 }

// HasStoreBarrier reports whether any store barrier is outstanding.
func (u *Unit) HasStoreBarrier() bool { return len(u.storeBarriers) != 0 }

// Tracks reports whether the unit currently tracks the sequence number.
func (u *Unit) Tracks(seq inst.SeqNum) bool {
	_, ok := u.registry[seq]
	return ok
}

// NumTracked returns the number of tracked entries.
func (u *Unit) NumTracked() int { return len(u.registry) }

// OrderListLen returns the number of entries on a thread's order list.
func (u *Unit) OrderListLen(tid inst.ThreadID) int {
	return u.orderList(tid).Len()
}

// PendingMemDeps returns the number of unresolved producer dependencies
// of a tracked instruction.
func (u *Unit) PendingMemDeps(seq inst.SeqNum) (int, bool) {
	e, ok := u.registry[seq]
	if !ok {
		return 0, false
	}
	return e.memDeps, true
}

// DependentsOf returns the sequence numbers waiting on a tracked
// instruction, in wake order.
func (u *Unit) DependentsOf(seq inst.SeqNum) []inst.SeqNum {
	e, ok := u.registry[seq]
	if !ok {
		return nil
	}
	deps := make([]inst.SeqNum, 0, len(e.dependents))
	for _, d := range e.dependents {
		deps = append(deps, d.seq)
	}
	return deps
}

// DumpLists formats the per-thread order lists for debugging.
func (u *Unit) DumpLists() string {
	var b strings.Builder
	for tid, tree := range u.order {
		fmt.Fprintf(&b, "thread %d:", tid)
		tree.Ascend(func(e *entry) bool {
			fmt.Fprintf(&b, " %s", e.inst)
			return true
		})
		b.WriteString("\n")
	}
	return b.String()
}

// register creates and indexes a fresh entry for the instruction.
func (u *Unit) register(in *inst.DynInst) *entry {
	if _, dup := u.registry[in.Seq]; dup {
		panic(fmt.Sprintf("memdep: insert: [sn:%d] is already tracked", in.Seq))
	}

	e := newEntry(in)
	u.registry[in.Seq] = e
	u.orderList(in.Thread).ReplaceOrInsert(e)

	return e
}

// linkProducer makes e wait on the predicted producer, if the producer
// is still live. Predictions naming completed, squashed, untracked, or
// cross-thread instructions are treated as no dependency.
func (u *Unit) linkProducer(e *entry, prodSeq inst.SeqNum) {
	prod, ok := u.registry[prodSeq]
	if !ok || prod.completed || prod.squashed {
		return
	}
	if prod.inst.Thread != e.inst.Thread || prodSeq >= e.seq {
		return
	}

	e.memDeps++
	e.producers = append(e.producers, prod)
	prod.dependents = append(prod.dependents, e)

	if e.inst.IsLoad() {
		u.stats.ConflictingLoads++
	} else {
		u.stats.ConflictingStores++
	}
}

// gateOnBarriers defers the instruction behind every outstanding barrier
// of the relevant kind. Barrier waits are tracked on the entry itself,
// never as dependence edges.
func (u *Unit) gateOnBarriers(e *entry) {
	in := e.inst

	if in.IsLoad() {
		for bseq := range u.loadBarriers {
			if bseq < e.seq {
				u.gate(e, bseq)
			}
		}
		if u.cfg.StoreBarrierBlocksLoads {
			for bseq := range u.storeBarriers {
				if bseq < e.seq {
					u.gate(e, bseq)
				}
			}
		}
		return
	}

	if in.IsStore() {
		for bseq := range u.storeBarriers {
			if bseq < e.seq {
				u.gate(e, bseq)
			}
		}
	}
}

func (u *Unit) gate(e *entry, barrierSeq inst.SeqNum) {
	e.pendingBarriers++
	u.barrierWaiters[barrierSeq] = append(u.barrierWaiters[barrierSeq], e)
}

// clearBarrier removes a barrier's sequence number from the barrier sets
// and releases the instructions it gated.
func (u *Unit) clearBarrier(seq inst.SeqNum) {
	delete(u.loadBarriers, seq)
	delete(u.storeBarriers, seq)

	waiters := u.barrierWaiters[seq]
	delete(u.barrierWaiters, seq)

	for _, w := range waiters {
		if w.squashed || w.completed {
			continue
		}
		w.pendingBarriers--
		if w.readyToIssue() {
			u.signalReady(w)
		}
	}
}

// wakeDependents walks the completed producer's dependents in list
// order, resolving one memory dependency on each and signaling any that
// become ready.
func (u *Unit) wakeDependents(e *entry) {
	for _, dep := range e.dependents {
		if dep.squashed || dep.completed {
			continue
		}
		dep.memDeps--
		dep.removeProducer(e)
		if dep.readyToIssue() {
			u.signalReady(dep)
		}
	}
	e.dependents = nil
}

// release drops a finished entry from the registry and its order list.
func (u *Unit) release(e *entry) {
	delete(u.registry, e.seq)
	u.orderList(e.inst.Thread).Delete(e)
}

func (u *Unit) removeFromReplay(seq inst.SeqNum) {
	for i, in := range u.replayQueue {
		if in.Seq == seq {
			u.replayQueue = append(u.replayQueue[:i], u.replayQueue[i+1:]...)
			return
		}
	}
}

func (u *Unit) signalReady(e *entry) {
	u.signalInst(e.inst)
}

func (u *Unit) signalInst(in *inst.DynInst) {
	if u.sink != nil {
		u.sink.AddReadyMemInst(in)
	}
}

func (u *Unit) lookup(seq inst.SeqNum, op string) *entry {
	e, ok := u.registry[seq]
	if !ok {
		panic(fmt.Sprintf("memdep: %s: [sn:%d] is not tracked", op, seq))
	}
	return e
}

func (u *Unit) orderList(tid inst.ThreadID) *btree.BTreeG[*entry] {
	if tid < 0 || int(tid) >= len(u.order) {
		panic(fmt.Sprintf("memdep: thread %d out of range (configured for %d threads)",
			tid, len(u.order)))
	}
	return u.order[tid]
}

func (u *Unit) countInserted(in *inst.DynInst) {
	if in.IsLoad() {
		u.stats.InsertedLoads++
	} else if in.IsStore() {
		u.stats.InsertedStores++
	}
}
