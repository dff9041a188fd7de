package prefetch_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/internal/prefetch"
)

var _ = Describe("StreamBuffer", func() {
	It("fills with D consecutive block addresses ahead of base", func() {
		s := prefetch.NewStreamBuffer(4)
		filled := s.Prefetch(100)
		Expect(filled).To(Equal([]uint64{100, 101, 102, 103}))
	})

	It("reports a hit for a buffered address and tracks the match position", func() {
		s := prefetch.NewStreamBuffer(4)
		s.Prefetch(100)

		Expect(s.Access(102)).To(BeTrue())
		Expect(s.Access(999)).To(BeFalse())

		Expect(s.HitRate()).To(BeNumerically("~", 0.5, 1e-9))
	})

	It("misses before any prefetch has been issued", func() {
		s := prefetch.NewStreamBuffer(4)
		Expect(s.Access(100)).To(BeFalse())
	})

	It("shift drops entries through the last-accessed position", func() {
		s := prefetch.NewStreamBuffer(4)
		s.Prefetch(100)
		s.Access(102) // index 2
		s.Shift()

		// Only index 3 (address 103) should remain; a fresh prefetch from
		// 200 should fully replace the buffer's contents.
		filled := s.Prefetch(200)
		Expect(filled).To(Equal([]uint64{200, 201, 202, 203}))
	})
})

var _ = Describe("StridePredictor", func() {
	It("builds confidence and predicts once the threshold is reached", func() {
		p := prefetch.NewStridePredictor(4)

		_, ok := p.Observe(0, 100)
		Expect(ok).To(BeFalse())

		_, ok = p.Observe(0, 108) // stride established, confidence 0
		Expect(ok).To(BeFalse())

		_, ok = p.Observe(0, 116) // confidence 1
		Expect(ok).To(BeFalse())

		predicted, ok := p.Observe(0, 124) // confidence 2: prediction issued
		Expect(ok).To(BeTrue())
		Expect(predicted).To(Equal(uint64(132)))
	})

	It("resets confidence when the stride changes", func() {
		p := prefetch.NewStridePredictor(4)
		p.Observe(0, 100)
		p.Observe(0, 108) // stride 8
		p.Observe(0, 116) // confidence 1

		_, ok := p.Observe(0, 120) // stride now 4, confidence resets to 0
		Expect(ok).To(BeFalse())
	})

	It("confirms a prediction that is later referenced and computes accuracy", func() {
		p := prefetch.NewStridePredictor(4)
		p.Observe(0, 100)
		p.Observe(0, 108)
		p.Observe(0, 116)
		predicted, ok := p.Observe(0, 124)
		Expect(ok).To(BeTrue())

		Expect(p.Confirm(predicted)).To(BeTrue())
		Expect(p.Accuracy()).To(BeNumerically("~", 1.0, 1e-9))
	})

	It("reports a confirmation miss for an address that was never predicted", func() {
		p := prefetch.NewStridePredictor(4)
		Expect(p.Confirm(0xDEAD)).To(BeFalse())
	})
})

var _ = Describe("AdaptivePrefetcher", func() {
	baseConfig := func() prefetch.AdaptivePrefetcherConfig {
		return prefetch.AdaptivePrefetcherConfig{
			InitialDistance: 2,
			MinDistance:     1,
			MaxDistance:     16,
			TableSize:       1,
			WindowSize:      6,
			HighThreshold:   0.5,
			LowThreshold:    0.1,
		}
	}

	It("triggers a stream prefetch on a miss not already covered", func() {
		a := prefetch.NewAdaptivePrefetcher(baseConfig())
		filled := a.OnMiss(100)
		Expect(filled).To(Equal([]uint64{101, 102}))
	})

	It("does not re-prefetch a block the stream buffer already covers", func() {
		a := prefetch.NewAdaptivePrefetcher(baseConfig())
		a.OnMiss(100) // buffers [101, 102]

		filled := a.OnMiss(101)
		Expect(filled).To(BeNil())
	})

	It("doubles the stream distance once effectiveness clears the high threshold", func() {
		cfg := baseConfig()
		cfg.WindowSize = 6
		a := prefetch.NewAdaptivePrefetcher(cfg)

		addrs := []uint64{100, 108, 116, 124, 132, 140}
		for _, addr := range addrs {
			a.OnAccess(0, addr)
		}

		Expect(a.Distance()).To(Equal(4))
	})

	It("halves the stream distance when predictions go unconfirmed", func() {
		cfg := baseConfig()
		cfg.WindowSize = 4
		cfg.LowThreshold = 0.25
		a := prefetch.NewAdaptivePrefetcher(cfg)

		addrs := []uint64{100, 108, 116, 124}
		for _, addr := range addrs {
			a.OnAccess(0, addr)
		}

		Expect(a.Distance()).To(Equal(1))
	})
})
