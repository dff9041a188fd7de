package interconnect_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/internal/interconnect"
)

var _ = Describe("Bus", func() {
	It("computes latency as base + ceil(payload/width)", func() {
		b := interconnect.NewBus(10, 4)
		latency := b.Send(interconnect.Message{From: 0, To: 1, Payload: 9})
		Expect(latency).To(Equal(uint64(10 + 3))) // ceil(9/4) = 3
	})

	It("accumulates totals across sends", func() {
		b := interconnect.NewBus(5, 1)
		b.Send(interconnect.Message{Payload: 1})
		b.Send(interconnect.Message{Payload: 2})

		stats := b.Stats()
		Expect(stats.TotalMessages).To(Equal(uint64(2)))
		Expect(stats.TotalLatency).To(Equal(uint64(6 + 7)))
		Expect(stats.AvgHops()).To(BeNumerically("~", 1.0, 1e-9))
	})
})

var _ = Describe("Crossbar", func() {
	It("charges only the base latency on an uncontended port", func() {
		c := interconnect.NewCrossbar(7)
		latency := c.Send(interconnect.Message{To: 1})
		Expect(latency).To(Equal(uint64(7)))

		stats := c.Stats()
		Expect(stats.CongestionEvents).To(Equal(uint64(0)))
	})
})

var _ = Describe("Mesh", func() {
	It("charges one link latency per hop under XY routing", func() {
		m := interconnect.NewMesh(4, 4, 2, 1000, 10)
		// (0,0) -> (2,1): 2 hops in X, 1 hop in Y = 3 hops.
		latency := m.Send(interconnect.Message{From: 0, To: 6})
		Expect(latency).To(Equal(uint64(3 * 2)))

		stats := m.Stats()
		Expect(stats.TotalHops).To(Equal(uint64(3)))
		Expect(stats.AvgHops()).To(BeNumerically("~", 3.0, 1e-9))
	})

	It("charges one hop of local latency when source equals destination", func() {
		m := interconnect.NewMesh(4, 4, 2, 1000, 10)
		latency := m.Send(interconnect.Message{From: 5, To: 5})
		Expect(latency).To(Equal(uint64(2)))
	})

	It("adds the penalty once a router's congestion crosses the threshold", func() {
		m := interconnect.NewMesh(2, 1, 1, 1, 5)
		// Every message from 0 to 1 passes through router (1,0); after the
		// threshold of 1 is crossed, later hops there pay the penalty too.
		m.Send(interconnect.Message{From: 0, To: 1})
		latency := m.Send(interconnect.Message{From: 0, To: 1})
		Expect(latency).To(Equal(uint64(1 + 5)))
	})
})
