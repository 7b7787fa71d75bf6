package driver

import (
	"math/rand"

	"github.com/sarchlab/o3sim/inst"
)

// WorkloadConfig describes a synthetic memory instruction stream.
type WorkloadConfig struct {
	// NumInsts is the total number of memory instructions to generate.
	NumInsts int `json:"num_insts"`
	// NumThreads is the number of hardware threads to spread the stream
	// across.
	NumThreads int `json:"num_threads"`
	// StoreFraction is the fraction of non-barrier instructions that are
	// stores.
	StoreFraction float64 `json:"store_fraction"`
	// BarrierFraction is the fraction of instructions that are barriers.
	BarrierFraction float64 `json:"barrier_fraction"`
	// NonSpecFraction is the fraction of non-barrier instructions that
	// bypass dependence speculation.
	NonSpecFraction float64 `json:"non_spec_fraction"`
	// NumPCs is the size of the static instruction pool. A small pool
	// makes the same PCs recur, which is what store-set prediction keys
	// on.
	NumPCs int `json:"num_pcs"`
	// NumAddrs is the size of the data address pool. A small pool makes
	// loads and stores genuinely collide.
	NumAddrs int `json:"num_addrs"`
	// Seed seeds the generator. The same seed reproduces the same
	// stream.
	Seed int64 `json:"seed"`
}

// DefaultWorkloadConfig returns a workload with moderate store and
// barrier density on a single thread.
func DefaultWorkloadConfig() WorkloadConfig {
	return WorkloadConfig{
		NumInsts:        1000,
		NumThreads:      1,
		StoreFraction:   0.35,
		BarrierFraction: 0.02,
		NonSpecFraction: 0.02,
		NumPCs:          64,
		NumAddrs:        32,
		Seed:            1,
	}
}

// Generate produces the instruction stream described by the config.
// Sequence numbers are assigned in stream order, starting at 1.
func Generate(config WorkloadConfig) []*inst.DynInst {
	rng := rand.New(rand.NewSource(config.Seed))

	numThreads := config.NumThreads
	if numThreads <= 0 {
		numThreads = 1
	}
	numPCs := config.NumPCs
	if numPCs <= 0 {
		numPCs = 64
	}
	numAddrs := config.NumAddrs
	if numAddrs <= 0 {
		numAddrs = 32
	}

	insts := make([]*inst.DynInst, 0, config.NumInsts)
	for i := 0; i < config.NumInsts; i++ {
		in := &inst.DynInst{
			Seq:    inst.SeqNum(i + 1),
			Thread: inst.ThreadID(rng.Intn(numThreads)),
			PC:     0x1000 + uint64(rng.Intn(numPCs))*4,
			Addr:   0x8000 + uint64(rng.Intn(numAddrs))*8,
		}

		switch {
		case rng.Float64() < config.BarrierFraction:
			in.Kind = pickBarrierKind(rng)
			in.Addr = 0
		case rng.Float64() < config.StoreFraction:
			in.Kind = inst.Store
		default:
			in.Kind = inst.Load
		}

		if !in.IsBarrier() && rng.Float64() < config.NonSpecFraction {
			in.NonSpeculative = true
		}

		insts = append(insts, in)
	}

	return insts
}

func pickBarrierKind(rng *rand.Rand) inst.Kind {
	switch rng.Intn(3) {
	case 0:
		return inst.LoadBarrier
	case 1:
		return inst.StoreBarrier
	default:
		return inst.FullBarrier
	}
}
