package storeset_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/o3sim/inst"
	"github.com/sarchlab/o3sim/timing/storeset"
)

const (
	storePC = 0x1100
	loadPC  = 0x1200
)

func memLoad(seq inst.SeqNum, pc uint64) *inst.DynInst {
	return &inst.DynInst{Seq: seq, Kind: inst.Load, PC: pc}
}

func memStore(seq inst.SeqNum, pc uint64) *inst.DynInst {
	return &inst.DynInst{Seq: seq, Kind: inst.Store, PC: pc}
}

var _ = Describe("StoreSet", func() {
	var ss *storeset.StoreSet

	BeforeEach(func() {
		ss = storeset.New(storeset.DefaultConfig())
	})

	It("should predict nothing for unseen instructions", func() {
		_, found := ss.Predict(memLoad(1, loadPC))
		Expect(found).To(BeFalse())

		_, found = ss.Predict(memStore(2, storePC))
		Expect(found).To(BeFalse())
	})

	It("should predict a dependency after training on a violation", func() {
		ss.Train(memStore(10, storePC), memLoad(11, loadPC))

		// Next dynamic instance of the store enters its set.
		_, found := ss.Predict(memStore(20, storePC))
		Expect(found).To(BeFalse())

		// The re-fetched load now waits on that store.
		producer, found := ss.Predict(memLoad(21, loadPC))
		Expect(found).To(BeTrue())
		Expect(producer).To(Equal(inst.SeqNum(20)))
	})

	It("should chain stores of the same set", func() {
		ss.Train(memStore(10, storePC), memLoad(11, loadPC))

		_, found := ss.Predict(memStore(20, storePC))
		Expect(found).To(BeFalse())

		producer, found := ss.Predict(memStore(22, storePC))
		Expect(found).To(BeTrue())
		Expect(producer).To(Equal(inst.SeqNum(20)))
	})

	It("should never predict a store dependent on itself", func() {
		ss.Train(memStore(10, storePC), memLoad(11, loadPC))

		st := memStore(20, storePC)
		ss.Predict(st)

		producer, found := ss.Predict(memLoad(21, loadPC))
		Expect(found).To(BeTrue())
		Expect(producer).NotTo(Equal(inst.SeqNum(21)))
	})

	It("should stop predicting a store once it has issued", func() {
		ss.Train(memStore(10, storePC), memLoad(11, loadPC))

		st := memStore(20, storePC)
		ss.Predict(st)
		ss.Issued(st)

		_, found := ss.Predict(memLoad(21, loadPC))
		Expect(found).To(BeFalse())
	})

	It("should stop predicting a squashed store", func() {
		ss.Train(memStore(10, storePC), memLoad(11, loadPC))

		st := memStore(20, storePC)
		ss.Predict(st)
		ss.Squash(15, st.Thread)

		_, found := ss.Predict(memLoad(21, loadPC))
		Expect(found).To(BeFalse())
	})

	It("should keep stores of other threads across a squash", func() {
		ss.Train(memStore(10, storePC), memLoad(11, loadPC))

		st := memStore(20, storePC)
		st.Thread = 1
		ss.Predict(st)
		ss.Squash(15, 0)

		producer, found := ss.Predict(memLoad(21, loadPC))
		Expect(found).To(BeTrue())
		Expect(producer).To(Equal(inst.SeqNum(20)))
	})

	It("should merge two store sets on a cross-set violation", func() {
		ss.Train(memStore(10, 0x100), memLoad(11, 0x104))
		ss.Train(memStore(20, 0x200), memLoad(21, 0x204))

		before := ss.Stats().Merges
		ss.Train(memStore(30, 0x100), memLoad(31, 0x204))
		Expect(ss.Stats().Merges).To(Equal(before + 1))

		// After the merge, a store from the first set produces for a
		// load of the second.
		ss.Predict(memStore(40, 0x100))
		producer, found := ss.Predict(memLoad(41, 0x204))
		Expect(found).To(BeTrue())
		Expect(producer).To(Equal(inst.SeqNum(40)))
	})

	It("should count lookups and hits", func() {
		ss.Train(memStore(10, storePC), memLoad(11, loadPC))
		ss.Predict(memStore(20, storePC))
		ss.Predict(memLoad(21, loadPC))

		stats := ss.Stats()
		Expect(stats.Lookups).To(Equal(uint64(2)))
		Expect(stats.Hits).To(Equal(uint64(1)))
		Expect(stats.ViolationsTrained).To(Equal(uint64(1)))
		Expect(stats.HitRate()).To(BeNumerically("~", 0.5))
	})
})
