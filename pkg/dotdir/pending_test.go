package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/escrowd/pkg/dotdir"
)

var _ = Describe("dotdir.Manager pending settlements", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-test-*")
		Expect(err).NotTo(HaveOccurred())
		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadPending", func() {
		It("returns nil when nothing was recorded", func() {
			entries, err := m.LoadPending(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeNil())
		})

		It("returns error for invalid JSON", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "pending.json"), []byte("not json"), 0o600)
			Expect(err).NotTo(HaveOccurred())

			entries, err := m.LoadPending(tmpDir)
			Expect(err).To(HaveOccurred())
			Expect(entries).To(BeNil())
		})
	})

	Describe("RecordPending", func() {
		It("persists entries sorted by order id", func() {
			Expect(m.RecordPending(dotdir.PendingSettlement{OrderID: "2", Step: "propose_answer", Price: "15"}, tmpDir)).To(Succeed())
			Expect(m.RecordPending(dotdir.PendingSettlement{OrderID: "1", Step: "resolve_seller", Price: "9.99"}, tmpDir)).To(Succeed())

			entries, err := m.LoadPending(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].OrderID).To(Equal("1"))
			Expect(entries[0].Step).To(Equal("resolve_seller"))
			Expect(entries[0].RecordedAt.IsZero()).To(BeFalse())
			Expect(entries[1].OrderID).To(Equal("2"))
		})

		It("overwrites an existing entry for the same order", func() {
			Expect(m.RecordPending(dotdir.PendingSettlement{OrderID: "1", Step: "resolve_seller"}, tmpDir)).To(Succeed())
			Expect(m.RecordPending(dotdir.PendingSettlement{OrderID: "1", Step: "propose_answer"}, tmpDir)).To(Succeed())

			entries, err := m.LoadPending(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Step).To(Equal("propose_answer"))
		})

		It("rejects entries without an order id", func() {
			Expect(m.RecordPending(dotdir.PendingSettlement{Step: "x"}, tmpDir)).NotTo(Succeed())
		})
	})

	Describe("ClearPending", func() {
		It("removes the entry", func() {
			Expect(m.RecordPending(dotdir.PendingSettlement{OrderID: "1"}, tmpDir)).To(Succeed())
			Expect(m.ClearPending("1", tmpDir)).To(Succeed())

			entries, err := m.LoadPending(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("is a no-op for unknown orders", func() {
			Expect(m.ClearPending("missing", tmpDir)).To(Succeed())
		})
	})
})
