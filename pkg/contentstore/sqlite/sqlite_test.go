package sqlite_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/escrowd/pkg/contentstore"
	"github.com/papercomputeco/escrowd/pkg/contentstore/sqlite"
)

var _ = Describe("Driver", func() {
	var (
		driver *sqlite.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		driver, err = sqlite.NewDriver(":memory:")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
		}
	})

	Describe("NewDriver", func() {
		It("creates a driver with file database", func() {
			dbPath := filepath.Join(GinkgoT().TempDir(), "content.db")

			d, err := sqlite.NewDriver(dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer d.Close()

			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("through a Store", func() {
		It("round-trips payloads via the digest", func() {
			store := contentstore.NewStore(driver, nil)
			payload := []byte(`{"wallet":"0xabc","desc":"1 pizza","price":"9.99"}`)

			id, err := store.Store(ctx, payload, "buyer-0xabc")
			Expect(err).NotTo(HaveOccurred())

			digest, err := contentstore.DigestOf(id)
			Expect(err).NotTo(HaveOccurred())

			fetched, err := store.Fetch(ctx, contentstore.ContentIDOf(digest))
			Expect(err).NotTo(HaveOccurred())
			Expect(fetched).To(Equal(payload))
		})

		It("records every store call", func() {
			store := contentstore.NewStore(driver, nil)

			id, err := store.Store(ctx, []byte("dup"), "a")
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Store(ctx, []byte("dup"), "b")
			Expect(err).NotTo(HaveOccurred())

			records, err := driver.Records(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0].Label).To(Equal("a"))
			Expect(records[1].Label).To(Equal("b"))
		})
	})

	Describe("Get", func() {
		It("returns NotFoundError for unknown ids", func() {
			_, err := driver.Get(ctx, "bafkreimissing")
			var nf contentstore.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
		})
	})
})
