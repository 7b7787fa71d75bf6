package memdep

import "github.com/sarchlab/o3sim/inst"

// entry tracks one in-flight memory instruction: its readiness state and
// its edges in the dependence graph. Entries are shared between the
// registry, the per-thread order lists, and producers' dependent lists;
// the garbage collector reclaims an entry once every collection has
// dropped it.
type entry struct {
	inst *inst.DynInst
	seq  inst.SeqNum

	// dependents are the entries waiting on this one. They are woken in
	// list order when this instruction completes.
	dependents []*entry

	// producers are the entries this one waits on. Kept so a squash can
	// sever the reverse edges without scanning the whole registry.
	producers []*entry

	// regsReady is set once the operand values are available.
	regsReady bool
	// memDeps counts unresolved producer dependencies.
	memDeps int
	// pendingBarriers counts outstanding barriers gating this entry.
	// Barrier waits are deliberately not dependence edges.
	pendingBarriers int

	completed bool
	squashed  bool
}

func newEntry(in *inst.DynInst) *entry {
	return &entry{inst: in, seq: in.Seq}
}

// readyToIssue reports whether the instruction may leave for the memory
// system: operands available, no unresolved producers, no gating
// barriers, and not squashed.
func (e *entry) readyToIssue() bool {
	return e.regsReady && e.memDeps == 0 && e.pendingBarriers == 0 && !e.squashed
}

// severFromProducers removes this entry from every producer's dependent
// list so a later completion cannot wake it spuriously.
func (e *entry) severFromProducers() {
	for _, p := range e.producers {
		p.removeDependent(e)
	}
	e.producers = nil
}

func (e *entry) removeDependent(dep *entry) {
	for i, d := range e.dependents {
		if d == dep {
			e.dependents = append(e.dependents[:i], e.dependents[i+1:]...)
			return
		}
	}
}

func (e *entry) removeProducer(prod *entry) {
	for i, p := range e.producers {
		if p == prod {
			e.producers = append(e.producers[:i], e.producers[i+1:]...)
			return
		}
	}
}
