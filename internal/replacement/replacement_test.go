package replacement_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/internal/replacement"
)

const allValid4 = 0b1111

var _ = Describe("Replacement policies", func() {
	DescribeTable("select an empty way before evicting valid data",
		func(kind replacement.Kind) {
			p, err := replacement.New(kind, 1, 4, 1)
			Expect(err).NotTo(HaveOccurred())
			p.OnInstall(0, 1)
			// Way 1 is valid; 0, 2, 3 are not.
			Expect(p.SelectVictim(0, 0b0010)).To(Equal(0))
		},
		Entry("LRU", replacement.LRU),
		Entry("FIFO", replacement.FIFO),
		Entry("Random", replacement.Random),
		Entry("PLRU", replacement.PLRU),
		Entry("NRU", replacement.NRU),
	)

	DescribeTable("repeated SelectVictim with no intervening access is stable",
		func(kind replacement.Kind) {
			p, err := replacement.New(kind, 1, 4, 1)
			Expect(err).NotTo(HaveOccurred())
			for way := 0; way < 4; way++ {
				p.OnInstall(0, way)
			}
			first := p.SelectVictim(0, allValid4)
			second := p.SelectVictim(0, allValid4)
			Expect(second).To(Equal(first))
		},
		Entry("LRU", replacement.LRU),
		Entry("FIFO", replacement.FIFO),
		Entry("PLRU", replacement.PLRU),
		Entry("NRU", replacement.NRU),
	)

	Describe("LRU", func() {
		It("evicts the least recently used valid way", func() {
			p, _ := replacement.New(replacement.LRU, 1, 4, 1)
			for way := 0; way < 4; way++ {
				p.OnInstall(0, way)
			}
			p.OnAccess(0, 0)
			p.OnAccess(0, 2)
			p.OnAccess(0, 3)
			// Way 1 was touched least recently (only at install).
			Expect(p.SelectVictim(0, allValid4)).To(Equal(1))
		})

		It("forgets history on Reset", func() {
			p, _ := replacement.New(replacement.LRU, 1, 2, 1)
			p.OnInstall(0, 0)
			p.OnInstall(0, 1)
			p.OnAccess(0, 0)
			p.Reset()
			Expect(p.SelectVictim(0, 0b11)).To(Equal(0))
		})
	})

	Describe("FIFO", func() {
		It("evicts the oldest installed way regardless of later hits", func() {
			p, _ := replacement.New(replacement.FIFO, 1, 3, 1)
			p.OnInstall(0, 0)
			p.OnInstall(0, 1)
			p.OnInstall(0, 2)
			// A hit on way 0 must not change FIFO order.
			p.OnAccess(0, 0)
			Expect(p.SelectVictim(0, 0b111)).To(Equal(0))
		})
	})

	Describe("PLRU", func() {
		It("never returns a way outside [0, associativity)", func() {
			p, err := replacement.New(replacement.PLRU, 1, 8, 1)
			Expect(err).NotTo(HaveOccurred())
			for way := 0; way < 8; way++ {
				p.OnInstall(0, way)
			}
			for i := 0; i < 50; i++ {
				victim := p.SelectVictim(0, 0xFF)
				Expect(victim).To(BeNumerically(">=", 0))
				Expect(victim).To(BeNumerically("<", 8))
				p.OnAccess(0, victim)
			}
		})

		It("rejects a non-power-of-two associativity", func() {
			_, err := replacement.New(replacement.PLRU, 1, 3, 1)
			Expect(err).To(HaveOccurred())
		})

		It("does not immediately re-select a just-accessed way in a 2-way set", func() {
			p, _ := replacement.New(replacement.PLRU, 1, 2, 1)
			p.OnInstall(0, 0)
			p.OnInstall(0, 1)
			p.OnAccess(0, 0)
			Expect(p.SelectVictim(0, 0b11)).To(Equal(1))
			p.OnAccess(0, 1)
			Expect(p.SelectVictim(0, 0b11)).To(Equal(0))
		})
	})

	Describe("NRU", func() {
		It("evicts a way whose reference bit is cleared", func() {
			p, _ := replacement.New(replacement.NRU, 1, 4, 1)
			for way := 0; way < 4; way++ {
				p.OnInstall(0, way)
			}
			// Install sets every way's bit, so this first selection clears them all.
			p.SelectVictim(0, allValid4)
			p.OnAccess(0, 0)
			p.OnAccess(0, 1)
			p.OnAccess(0, 2)
			// Way 3's bit is still clear.
			Expect(p.SelectVictim(0, allValid4)).To(Equal(3))
		})

		It("clears all bits once every valid way is referenced", func() {
			p, _ := replacement.New(replacement.NRU, 1, 2, 1)
			p.OnInstall(0, 0)
			p.OnInstall(0, 1)
			// Both bits are now set (install sets the reference bit).
			Expect(p.SelectVictim(0, 0b11)).To(Equal(0))
		})
	})

	Describe("Random", func() {
		It("only returns valid-mask ways", func() {
			p, _ := replacement.New(replacement.Random, 1, 4, 42)
			for way := 0; way < 4; way++ {
				p.OnInstall(0, way)
			}
			for i := 0; i < 100; i++ {
				victim := p.SelectVictim(0, 0b1010)
				Expect(victim == 1 || victim == 3).To(BeTrue())
			}
		})

		It("is reproducible from the same seed after Reset", func() {
			p, _ := replacement.New(replacement.Random, 1, 8, 7)
			var before []int
			for i := 0; i < 10; i++ {
				before = append(before, p.SelectVictim(0, 0xFF))
			}
			p.Reset()
			var after []int
			for i := 0; i < 10; i++ {
				after = append(after, p.SelectVictim(0, 0xFF))
			}
			Expect(after).To(Equal(before))
		})
	})

	It("rejects an unknown policy kind", func() {
		_, err := replacement.New(replacement.Kind("bogus"), 1, 4, 1)
		Expect(err).To(HaveOccurred())
	})
})
