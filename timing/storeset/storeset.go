// Package storeset implements store-set memory dependence prediction.
// Loads and stores that have violated memory ordering in the past are
// grouped into store sets; a load is predicted to depend on the most
// recently fetched store of its set, before either address is known.
package storeset

import (
	"github.com/sarchlab/o3sim/inst"
)

// instShiftAmt discards instruction-alignment bits when indexing by PC.
const instShiftAmt = 2

// Config holds configuration for the store-set predictor.
type Config struct {
	// SSITSize is the number of entries in the Store Set ID Table,
	// indexed by instruction PC. Must be a power of 2. Default: 1024.
	SSITSize uint64
	// LFSTSize is the number of entries in the Last Fetched Store Table,
	// indexed by store set ID. Must be a power of 2. Default: 1024.
	LFSTSize uint64
}

// DefaultConfig returns a default store-set configuration.
func DefaultConfig() Config {
	return Config{
		SSITSize: 1024,
		LFSTSize: 1024,
	}
}

// Stats holds store-set predictor statistics.
type Stats struct {
	// Lookups is the number of dependence predictions requested.
	Lookups uint64
	// Hits is the number of lookups that named a producer store.
	Hits uint64
	// ViolationsTrained is the number of violations used for training.
	ViolationsTrained uint64
	// Merges is the number of store-set merges triggered by violations
	// between instructions already assigned to different sets.
	Merges uint64
}

// HitRate returns the fraction of lookups that produced a prediction.
func (s Stats) HitRate() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups)
}

// ssitEntry assigns an instruction PC to a store set.
type ssitEntry struct {
	valid bool
	ssid  uint64
}

// lfstEntry remembers the youngest in-flight store of a store set.
type lfstEntry struct {
	valid bool
	seq   inst.SeqNum
	tid   inst.ThreadID
}

// trackedStore records which set an in-flight store belongs to.
type trackedStore struct {
	ssid uint64
	tid  inst.ThreadID
}

// StoreSet is a store-set memory dependence predictor. It implements
// the memdep.Predictor interface.
type StoreSet struct {
	ssit []ssitEntry
	lfst []lfstEntry

	// storeList remembers the store set of every in-flight store so
	// squashes and issues can invalidate LFST entries.
	storeList map[inst.SeqNum]trackedStore

	ssitMask uint64
	lfstMask uint64

	stats Stats
}

// New creates a store-set predictor with the given configuration.
func New(config Config) *StoreSet {
	ssitSize := config.SSITSize
	lfstSize := config.LFSTSize

	if ssitSize == 0 {
		ssitSize = 1024
	}
	if lfstSize == 0 {
		lfstSize = 1024
	}

	return &StoreSet{
		ssit:      make([]ssitEntry, ssitSize),
		lfst:      make([]lfstEntry, lfstSize),
		storeList: make(map[inst.SeqNum]trackedStore),
		ssitMask:  ssitSize - 1,
		lfstMask:  lfstSize - 1,
	}
}

// Stats returns a snapshot of the predictor's statistics.
func (ss *StoreSet) Stats() Stats {
	return ss.stats
}

// Predict returns the sequence number of the store the instruction
// should wait on, if its store set has an in-flight store. Stores are
// additionally recorded as the new last fetched store of their set.
func (ss *StoreSet) Predict(in *inst.DynInst) (inst.SeqNum, bool) {
	ss.stats.Lookups++

	producer, found := ss.checkInst(in)

	if in.IsStore() {
		ss.insertStore(in)
	}

	if found {
		ss.stats.Hits++
	}
	return producer, found
}

// Train merges the store and the violating load into one store set, so
// the next fetch of the load waits on the store.
func (ss *StoreSet) Train(store, load *inst.DynInst) {
	ss.stats.ViolationsTrained++

	loadIdx := ss.ssitIndex(load.PC)
	storeIdx := ss.ssitIndex(store.PC)

	loadEntry := &ss.ssit[loadIdx]
	storeEntry := &ss.ssit[storeIdx]

	switch {
	case !loadEntry.valid && !storeEntry.valid:
		ssid := ss.newSSID(load.PC)
		*loadEntry = ssitEntry{valid: true, ssid: ssid}
		*storeEntry = ssitEntry{valid: true, ssid: ssid}

	case loadEntry.valid && !storeEntry.valid:
		*storeEntry = ssitEntry{valid: true, ssid: loadEntry.ssid}

	case !loadEntry.valid && storeEntry.valid:
		*loadEntry = ssitEntry{valid: true, ssid: storeEntry.ssid}

	default:
		// Both assigned. Merge into the smaller set ID so repeated
		// violations converge on a single set.
		if loadEntry.ssid != storeEntry.ssid {
			ss.stats.Merges++
			if loadEntry.ssid < storeEntry.ssid {
				storeEntry.ssid = loadEntry.ssid
			} else {
				loadEntry.ssid = storeEntry.ssid
			}
		}
	}
}

// Issued retires a store from the last-fetched-store table once it has
// been sent to memory, so later loads of the set no longer wait on it.
func (ss *StoreSet) Issued(in *inst.DynInst) {
	if !in.IsStore() {
		return
	}

	tracked, ok := ss.storeList[in.Seq]
	if !ok {
		return
	}
	delete(ss.storeList, in.Seq)

	lfst := &ss.lfst[tracked.ssid&ss.lfstMask]
	if lfst.valid && lfst.seq == in.Seq {
		lfst.valid = false
	}
}

// Squash drops bookkeeping for every store of the thread younger than
// youngest.
func (ss *StoreSet) Squash(youngest inst.SeqNum, tid inst.ThreadID) {
	for seq, tracked := range ss.storeList {
		if seq <= youngest || tracked.tid != tid {
			continue
		}

		lfst := &ss.lfst[tracked.ssid&ss.lfstMask]
		if lfst.valid && lfst.seq == seq {
			lfst.valid = false
		}
		delete(ss.storeList, seq)
	}
}

// checkInst looks up the last fetched store of the instruction's set.
func (ss *StoreSet) checkInst(in *inst.DynInst) (inst.SeqNum, bool) {
	ssitEnt := ss.ssit[ss.ssitIndex(in.PC)]
	if !ssitEnt.valid {
		return 0, false
	}

	lfst := ss.lfst[ssitEnt.ssid&ss.lfstMask]
	if !lfst.valid || lfst.seq == in.Seq {
		return 0, false
	}

	return lfst.seq, true
}

// insertStore records the store as the last fetched store of its set.
func (ss *StoreSet) insertStore(in *inst.DynInst) {
	ssitEnt := ss.ssit[ss.ssitIndex(in.PC)]
	if !ssitEnt.valid {
		return
	}

	ss.lfst[ssitEnt.ssid&ss.lfstMask] = lfstEntry{
		valid: true,
		seq:   in.Seq,
		tid:   in.Thread,
	}
	ss.storeList[in.Seq] = trackedStore{ssid: ssitEnt.ssid, tid: in.Thread}
}

func (ss *StoreSet) ssitIndex(pc uint64) uint64 {
	return (pc >> instShiftAmt) & ss.ssitMask
}

// newSSID derives a fresh store set ID from the PC that caused the
// allocation.
func (ss *StoreSet) newSSID(pc uint64) uint64 {
	return (pc >> instShiftAmt) & ss.lfstMask
}
