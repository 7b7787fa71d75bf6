// Package inst defines the dynamic memory instruction handle that the
// timing model tracks. The handle carries identity and classification
// only; execution semantics (values, translation, actual memory access)
// belong to the surrounding pipeline.
package inst

import "fmt"

// SeqNum is a globally increasing identifier assigned to instructions in
// program order. It is the sole handle used for dependence bookkeeping.
type SeqNum uint64

// ThreadID identifies a hardware thread context.
type ThreadID int

// Kind classifies a memory instruction.
type Kind int

const (
	// Load reads from memory.
	Load Kind = iota
	// Store writes to memory.
	Store
	// LoadBarrier orders loads on either side of it in program order.
	LoadBarrier
	// StoreBarrier orders stores on either side of it in program order.
	StoreBarrier
	// FullBarrier orders both loads and stores.
	FullBarrier
)

// String returns a short mnemonic for the kind.
func (k Kind) String() string {
	switch k {
	case Load:
		return "load"
	case Store:
		return "store"
	case LoadBarrier:
		return "ldbar"
	case StoreBarrier:
		return "stbar"
	case FullBarrier:
		return "membar"
	default:
		return "unknown"
	}
}

// DynInst is one in-flight dynamic memory instruction.
type DynInst struct {
	// Seq is the instruction's sequence number.
	Seq SeqNum
	// Thread is the hardware thread context the instruction belongs to.
	Thread ThreadID
	// PC is the address of the instruction, used by PC-indexed predictors.
	PC uint64
	// Addr is the effective memory address, once known. Zero until the
	// address generation completes.
	Addr uint64
	// Kind classifies the instruction.
	Kind Kind
	// NonSpeculative marks instructions that must bypass dependence
	// speculation entirely (e.g. uncacheable or atomic accesses).
	NonSpeculative bool
	// OperandsReady reports whether the source operand values were
	// already available when the instruction entered the memory unit.
	OperandsReady bool
}

// IsLoad reports whether the instruction reads memory.
func (d *DynInst) IsLoad() bool { return d.Kind == Load }

// IsStore reports whether the instruction writes memory.
func (d *DynInst) IsStore() bool { return d.Kind == Store }

// IsBarrier reports whether the instruction is any kind of memory barrier.
func (d *DynInst) IsBarrier() bool {
	return d.Kind == LoadBarrier || d.Kind == StoreBarrier || d.Kind == FullBarrier
}

// IsLoadBarrier reports whether the instruction orders loads.
func (d *DynInst) IsLoadBarrier() bool {
	return d.Kind == LoadBarrier || d.Kind == FullBarrier
}

// IsStoreBarrier reports whether the instruction orders stores.
func (d *DynInst) IsStoreBarrier() bool {
	return d.Kind == StoreBarrier || d.Kind == FullBarrier
}

// String formats the instruction for diagnostics.
func (d *DynInst) String() string {
	return fmt.Sprintf("[sn:%d tid:%d %s pc:%#x]", d.Seq, d.Thread, d.Kind, d.PC)
}
