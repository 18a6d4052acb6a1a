package escrow_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/escrowd/pkg/escrow"
)

var _ = Describe("Status", func() {
	It("uses the contract's codes", func() {
		Expect(uint8(escrow.StatusProposed)).To(Equal(uint8(0)))
		Expect(uint8(escrow.StatusConfirmed)).To(Equal(uint8(1)))
		Expect(uint8(escrow.StatusInProgress)).To(Equal(uint8(2)))
		Expect(uint8(escrow.StatusCompleted)).To(Equal(uint8(3)))
		Expect(uint8(escrow.StatusCancelled)).To(Equal(uint8(4)))
	})

	It("rejects unknown codes", func() {
		_, err := escrow.StatusFromCode(9)
		Expect(err).To(MatchError(escrow.ErrUnknownStatus))
	})

	DescribeTable("ParseStatus",
		func(in string, want escrow.Status) {
			got, err := escrow.ParseStatus(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("name", "Confirmed", escrow.StatusConfirmed),
		Entry("snake case", "in_progress", escrow.StatusInProgress),
		Entry("lower case", "cancelled", escrow.StatusCancelled),
		Entry("numeric code", "3", escrow.StatusCompleted),
	)

	It("encodes as its name in JSON", func() {
		out, err := json.Marshal(map[string]escrow.Status{"status": escrow.StatusInProgress})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal(`{"status":"InProgress"}`))

		var back map[string]escrow.Status
		Expect(json.Unmarshal(out, &back)).To(Succeed())
		Expect(back["status"]).To(Equal(escrow.StatusInProgress))
	})

	It("allows only forward lifecycle transitions", func() {
		Expect(escrow.CanTransition(escrow.StatusInProgress, escrow.StatusProposed)).To(BeTrue())
		Expect(escrow.CanTransition(escrow.StatusProposed, escrow.StatusConfirmed)).To(BeTrue())
		Expect(escrow.CanTransition(escrow.StatusConfirmed, escrow.StatusCompleted)).To(BeTrue())
		Expect(escrow.CanTransition(escrow.StatusConfirmed, escrow.StatusCancelled)).To(BeTrue())

		Expect(escrow.CanTransition(escrow.StatusProposed, escrow.StatusInProgress)).To(BeFalse())
		Expect(escrow.CanTransition(escrow.StatusInProgress, escrow.StatusConfirmed)).To(BeFalse())
		Expect(escrow.CanTransition(escrow.StatusProposed, escrow.StatusCancelled)).To(BeFalse())
		Expect(escrow.CanTransition(escrow.StatusCompleted, escrow.StatusCancelled)).To(BeFalse())
	})

	It("detects regressions", func() {
		Expect(escrow.Regresses(escrow.StatusConfirmed, escrow.StatusProposed)).To(BeTrue())
		Expect(escrow.Regresses(escrow.StatusCompleted, escrow.StatusConfirmed)).To(BeTrue())
		Expect(escrow.Regresses(escrow.StatusProposed, escrow.StatusConfirmed)).To(BeFalse())
		Expect(escrow.Regresses(escrow.StatusConfirmed, escrow.StatusConfirmed)).To(BeFalse())
	})
})
