package redex

import (
	"github.com/aphistic/sweet"
	. "github.com/onsi/gomega"
)

type SlotSuite struct{}

func (s *SlotSuite) TestCrc16KnownVector(t sweet.T) {
	// The standard CRC16/XMODEM check value for the ASCII digits
	// "123456789" is 0x31C3, per the algorithm Redis Cluster specifies.
	Expect(crc16("123456789")).To(Equal(uint16(0x31C3)))
}

func (s *SlotSuite) TestHashTagPinsRelatedKeysToSameSlot(t sweet.T) {
	slotA := keySlot("{user1000}.following")
	slotB := keySlot("{user1000}.followers")
	Expect(slotA).To(Equal(slotB))
}

func (s *SlotSuite) TestHashTagIgnoredWhenEmptyOrUnbalanced(t sweet.T) {
	Expect(hashTag("foo{}bar")).To(Equal("foo{}bar"))
	Expect(hashTag("foo{bar")).To(Equal("foo{bar"))
	Expect(hashTag("foo}bar")).To(Equal("foo}bar"))
}

func (s *SlotSuite) TestKeySlotWithinRange(t sweet.T) {
	slot := keySlot("some-key")
	Expect(slot).To(BeNumerically(">=", 0))
	Expect(slot).To(BeNumerically("<", slotCount))
}

func (s *SlotSuite) TestSlotsMatch(t sweet.T) {
	_, ok := slotsMatch([]string{"{tag}a", "{tag}b"})
	Expect(ok).To(BeTrue())

	_, ok = slotsMatch([]string{"a", "b", "c"})
	Expect(ok).To(BeFalse())

	slot, ok := slotsMatch(nil)
	Expect(ok).To(BeTrue())
	Expect(slot).To(Equal(-1))
}
