package system_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/internal/cache"
	"github.com/sarchlab/cachesim/internal/core"
	"github.com/sarchlab/cachesim/internal/replacement"
	"github.com/sarchlab/cachesim/internal/system"
)

func smallL1() cache.Config {
	return cache.Config{
		Size:          64,
		Associativity: 4,
		BlockSize:     16,
		Policy:        replacement.LRU,
		WriteBack:     true,
		WriteAllocate: true,
	}
}

func twoCoreConfig() system.Config {
	return system.Config{
		Cores: []core.Config{
			{ID: 0, L1: smallL1(), MissPenalty: 10},
			{ID: 1, L1: smallL1(), MissPenalty: 10},
		},
	}
}

var _ = Describe("System", func() {
	Describe("coherence wiring", func() {
		It("delivers a write-invalidate raised by one core's request to its peer", func() {
			sys, err := system.New(twoCoreConfig())
			Expect(err).NotTo(HaveOccurred())

			cores := sys.Cores()
			c0, c1 := cores[0], cores[1]

			r := c0.Access(0x100, false)
			Expect(r.Hit).To(BeFalse())

			w := c1.Access(0x100, true)
			Expect(w.Invalidated).To(ConsistOf(0))

			_, ok := c0.L1().Peek(0x100)
			Expect(ok).To(BeFalse())

			block1, ok := c1.L1().Peek(0x100)
			Expect(ok).To(BeTrue())
			Expect(block1.State.String()).To(Equal("M"))
		})

		It("downgrades, rather than evicts, an M owner's line on a peer's read", func() {
			sys, err := system.New(twoCoreConfig())
			Expect(err).NotTo(HaveOccurred())

			cores := sys.Cores()
			c0, c1 := cores[0], cores[1]

			w := c0.Access(0x100, true)
			Expect(w.Hit).To(BeFalse())

			r := c1.Access(0x100, false)
			Expect(r.Invalidated).To(BeEmpty())
			Expect(r.Downgraded).To(ConsistOf(0))

			block0, ok := c0.L1().Peek(0x100)
			Expect(ok).To(BeTrue())
			Expect(block0.State.String()).To(Equal("S"))

			block1, ok := c1.L1().Peek(0x100)
			Expect(ok).To(BeTrue())
			Expect(block1.State.String()).To(Equal("S"))
		})
	})

	Describe("shared L2", func() {
		It("serializes lookups behind one mutex and reports hit/miss stats", func() {
			l2 := cache.Config{
				Size: 64, Associativity: 2, BlockSize: 16,
				Policy: replacement.LRU, WriteBack: true, WriteAllocate: true,
			}
			cfg := twoCoreConfig()
			cfg.SharedL2 = &l2
			sys, err := system.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			r1, ok := sys.L2Access(0, false)
			Expect(ok).To(BeTrue())
			Expect(r1.Hit).To(BeFalse())

			r2, ok := sys.L2Access(0, false)
			Expect(ok).To(BeTrue())
			Expect(r2.Hit).To(BeTrue())

			Expect(sys.L2Stats().Hits).To(Equal(uint64(1)))
			Expect(sys.L2Stats().Misses).To(Equal(uint64(1)))
		})

		It("reports ok=false when no shared L2 was configured", func() {
			sys, _ := system.New(twoCoreConfig())
			_, ok := sys.L2Access(0, false)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("GlobalBarrier", func() {
		It("releases every caller only once all parties have arrived", func() {
			sys, err := system.New(twoCoreConfig())
			Expect(err).NotTo(HaveOccurred())

			done := make(chan struct{}, 2)
			go func() {
				sys.GlobalBarrier()
				done <- struct{}{}
			}()

			// The lone arriver must not pass the barrier on its own.
			Consistently(done, "100ms", "10ms").ShouldNot(Receive())

			go func() {
				sys.GlobalBarrier()
				done <- struct{}{}
			}()

			Eventually(done, "1s").Should(Receive())
			Eventually(done, "1s").Should(Receive())
		})
	})

	Describe("SimulateParallelTraces", func() {
		It("runs one worker per core and reports the longest cycle count", func() {
			sys, err := system.New(twoCoreConfig())
			Expect(err).NotTo(HaveOccurred())

			traces := [][]system.Access{
				{{Address: 0x1000, IsWrite: false}, {Address: 0x1000, IsWrite: false}},
				{{Address: 0x2000, IsWrite: false}, {Address: 0x2000, IsWrite: false}, {Address: 0x2000, IsWrite: false}},
			}

			result, err := sys.SimulateParallelTraces(context.Background(), traces)
			Expect(err).NotTo(HaveOccurred())

			// Core 0: miss(10) + hit(1) = 11. Core 1: miss(10) + hit(1) + hit(1) = 12.
			Expect(result.PerCore).To(Equal([]uint64{11, 12}))
			Expect(result.CycleLength).To(Equal(uint64(12)))
		})
	})
})
