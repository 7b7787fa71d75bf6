// Package iq provides the ready-instruction queue that sits on the
// issue-scheduler side of the memory dependence unit. The dependence
// unit pushes instructions into the queue as they become safe to issue;
// the scheduler pops them in FIFO order.
package iq

import "github.com/sarchlab/o3sim/inst"

// Queue collects instructions that are ready to issue. Enqueue is
// idempotent: the dependence unit may re-signal an instruction after a
// reschedule/replay round trip, and duplicates are absorbed.
type Queue struct {
	fifo   []*inst.DynInst
	queued map[inst.SeqNum]struct{}
}

// NewQueue creates an empty ready queue.
func NewQueue() *Queue {
	return &Queue{
		queued: make(map[inst.SeqNum]struct{}),
	}
}

// AddReadyMemInst enqueues an instruction signaled ready by the memory
// dependence unit. Re-signals of an already-queued instruction are
// ignored.
func (q *Queue) AddReadyMemInst(in *inst.DynInst) {
	if _, dup := q.queued[in.Seq]; dup {
		return
	}
	q.queued[in.Seq] = struct{}{}
	q.fifo = append(q.fifo, in)
}

// Pop removes and returns the oldest-queued ready instruction.
func (q *Queue) Pop() (*inst.DynInst, bool) {
	if len(q.fifo) == 0 {
		return nil, false
	}
	in := q.fifo[0]
	q.fifo = q.fifo[1:]
	delete(q.queued, in.Seq)
	return in, true
}

// Remove discards a queued instruction, e.g. on squash. It reports
// whether the instruction was queued.
func (q *Queue) Remove(seq inst.SeqNum) bool {
	if _, ok := q.queued[seq]; !ok {
		return false
	}
	delete(q.queued, seq)
	for i, in := range q.fifo {
		if in.Seq == seq {
			q.fifo = append(q.fifo[:i], q.fifo[i+1:]...)
			break
		}
	}
	return true
}

// RemoveYoungerThan discards every queued instruction of the thread with
// a sequence number strictly greater than seq, mirroring a pipeline
// squash. It returns the number of instructions discarded.
func (q *Queue) RemoveYoungerThan(seq inst.SeqNum, tid inst.ThreadID) int {
	removed := 0
	kept := q.fifo[:0]
	for _, in := range q.fifo {
		if in.Thread == tid && in.Seq > seq {
			delete(q.queued, in.Seq)
			removed++
			continue
		}
		kept = append(kept, in)
	}
	q.fifo = kept
	return removed
}

// Len returns the number of queued instructions.
func (q *Queue) Len() int { return len(q.fifo) }
