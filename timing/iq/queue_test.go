package iq_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/o3sim/inst"
	"github.com/sarchlab/o3sim/timing/iq"
)

func memInst(seq inst.SeqNum, tid inst.ThreadID) *inst.DynInst {
	return &inst.DynInst{Seq: seq, Thread: tid, Kind: inst.Load}
}

var _ = Describe("Queue", func() {
	var q *iq.Queue

	BeforeEach(func() {
		q = iq.NewQueue()
	})

	It("should pop in enqueue order", func() {
		q.AddReadyMemInst(memInst(3, 0))
		q.AddReadyMemInst(memInst(1, 0))
		q.AddReadyMemInst(memInst(2, 0))

		first, ok := q.Pop()
		Expect(ok).To(BeTrue())
		Expect(first.Seq).To(Equal(inst.SeqNum(3)))

		second, _ := q.Pop()
		Expect(second.Seq).To(Equal(inst.SeqNum(1)))

		third, _ := q.Pop()
		Expect(third.Seq).To(Equal(inst.SeqNum(2)))

		_, ok = q.Pop()
		Expect(ok).To(BeFalse())
	})

	It("should absorb duplicate enqueues", func() {
		in := memInst(5, 0)
		q.AddReadyMemInst(in)
		q.AddReadyMemInst(in)

		Expect(q.Len()).To(Equal(1))
	})

	It("should allow re-enqueue after pop", func() {
		in := memInst(5, 0)
		q.AddReadyMemInst(in)
		q.Pop()
		q.AddReadyMemInst(in)

		Expect(q.Len()).To(Equal(1))
	})

	It("should remove a queued instruction", func() {
		q.AddReadyMemInst(memInst(1, 0))
		q.AddReadyMemInst(memInst(2, 0))

		Expect(q.Remove(1)).To(BeTrue())
		Expect(q.Remove(1)).To(BeFalse())
		Expect(q.Len()).To(Equal(1))

		in, _ := q.Pop()
		Expect(in.Seq).To(Equal(inst.SeqNum(2)))
	})

	It("should remove younger instructions of one thread on squash", func() {
		q.AddReadyMemInst(memInst(1, 0))
		q.AddReadyMemInst(memInst(5, 0))
		q.AddReadyMemInst(memInst(6, 1))
		q.AddReadyMemInst(memInst(7, 0))

		removed := q.RemoveYoungerThan(4, 0)

		Expect(removed).To(Equal(2))
		Expect(q.Len()).To(Equal(2))

		first, _ := q.Pop()
		Expect(first.Seq).To(Equal(inst.SeqNum(1)))

		second, _ := q.Pop()
		Expect(second.Seq).To(Equal(inst.SeqNum(6)))
	})
})
