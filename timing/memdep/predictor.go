package memdep

import "github.com/sarchlab/o3sim/inst"

// Predictor is the memory dependence predictor consumed by the Unit.
// Store-set prediction is one implementation; any scheme that can answer
// "which older store should this instruction wait on" fits.
//
// The Unit tolerates predictions that name an instruction it no longer
// tracks (already completed or squashed); such predictions are treated
// as "no dependency".
type Predictor interface {
	// Predict returns the sequence number of the store the given
	// instruction should wait on, if any.
	Predict(in *inst.DynInst) (inst.SeqNum, bool)

	// Train records a confirmed ordering violation between a store and a
	// younger load so that future predictions for the pair improve.
	Train(store, load *inst.DynInst)

	// Issued tells the predictor that an instruction has been sent to
	// the memory system.
	Issued(in *inst.DynInst)

	// Squash discards predictor bookkeeping for all instructions of the
	// given thread younger than youngest.
	Squash(youngest inst.SeqNum, tid inst.ThreadID)
}

// ReadySink receives instructions that have become ready to issue.
// Signals are synchronous and may repeat for the same instruction after
// a reschedule/replay round trip, so implementations must enqueue
// idempotently.
type ReadySink interface {
	AddReadyMemInst(in *inst.DynInst)
}

// nonePredictor predicts no dependencies. It stands in when no predictor
// is configured, e.g. for purely non-speculative pipelines.
type nonePredictor struct{}

func (nonePredictor) Predict(*inst.DynInst) (inst.SeqNum, bool) { return 0, false }
func (nonePredictor) Train(_, _ *inst.DynInst)                  {}
func (nonePredictor) Issued(*inst.DynInst)                      {}
func (nonePredictor) Squash(inst.SeqNum, inst.ThreadID)         {}
