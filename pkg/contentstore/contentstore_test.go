package contentstore_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/escrowd/pkg/contentstore"
	"github.com/papercomputeco/escrowd/pkg/contentstore/inmemory"
	"github.com/papercomputeco/escrowd/pkg/logger"
)

type failingDriver struct{}

func (failingDriver) Insert(context.Context, contentstore.Record) error {
	return errors.New("connection refused")
}

func (failingDriver) Get(context.Context, contentstore.ContentID) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingDriver) Close() error { return nil }

var _ = Describe("Store", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		store  *contentstore.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		store = contentstore.NewStore(driver, logger.Nop())
	})

	Describe("Store", func() {
		It("returns a base32 CIDv1", func() {
			id, err := store.Store(ctx, []byte("hello"), "greeting")
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.HasPrefix(id.String(), "b")).To(BeTrue())
		})

		It("derives the id purely from the payload bytes", func() {
			a, err := store.Store(ctx, []byte("same"), "first")
			Expect(err).NotTo(HaveOccurred())
			b, err := store.Store(ctx, []byte("same"), "second")
			Expect(err).NotTo(HaveOccurred())

			Expect(a).To(Equal(b))
			Expect(driver.Count()).To(Equal(2))
		})

		It("keeps the label on each record", func() {
			_, err := store.Store(ctx, []byte("x"), "buyer-0xabc")
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.Records()[0].Label).To(Equal("buyer-0xabc"))
		})

		It("wraps driver failures as ErrStorageUnavailable", func() {
			s := contentstore.NewStore(failingDriver{}, nil)
			_, err := s.Store(ctx, []byte("x"), "l")
			Expect(err).To(MatchError(contentstore.ErrStorageUnavailable))
		})
	})

	Describe("Fetch", func() {
		It("returns NotFoundError for unknown content", func() {
			id, err := contentstore.ComputeContentID([]byte("never stored"))
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Fetch(ctx, id)
			var nf contentstore.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
			Expect(nf.ContentID).To(Equal(id))
		})

		It("rejects malformed ids before reaching the driver", func() {
			_, err := store.Fetch(ctx, "not-a-cid")
			Expect(err).To(MatchError(contentstore.ErrMalformedContentID))
		})

		It("wraps driver read failures as ErrStorageUnavailable", func() {
			s := contentstore.NewStore(failingDriver{}, nil)
			id, _ := contentstore.ComputeContentID([]byte("x"))
			_, err := s.Fetch(ctx, id)
			Expect(err).To(MatchError(contentstore.ErrStorageUnavailable))
		})
	})

	Describe("digest round trip", func() {
		It("resolves content_id_of(digest_of(store(p))) to p", func() {
			payloads := [][]byte{
				[]byte(""),
				[]byte("a"),
				[]byte(`{"wallet":"0xabc","desc":"1 pizza","price":"9.99"}`),
				make([]byte, 4096),
			}
			for _, p := range payloads {
				id, err := store.Store(ctx, p, "roundtrip")
				Expect(err).NotTo(HaveOccurred())

				digest, err := contentstore.DigestOf(id)
				Expect(err).NotTo(HaveOccurred())

				fetched, err := store.Fetch(ctx, contentstore.ContentIDOf(digest))
				Expect(err).NotTo(HaveOccurred())
				Expect(fetched).To(Equal(p))
			}
		})

		It("stores an order description record and references the same bytes", func() {
			record := []byte(`{"wallet":"0xabc","desc":"1 pizza","price":"9.99"}`)

			id, err := store.Store(ctx, record, "buyer-0xabc")
			Expect(err).NotTo(HaveOccurred())

			digest, err := contentstore.DigestOf(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(digest.Hex()).To(HaveLen(2 + 64))
			Expect(digest).To(Equal(contentstore.Digest(sha256.Sum256(record))))

			rebuilt := contentstore.ContentIDOf(digest)
			Expect(rebuilt).To(Equal(id))

			fetched, err := store.Fetch(ctx, rebuilt)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetched).To(Equal(record))
		})
	})
})

var _ = Describe("DigestOf", func() {
	It("rejects garbage", func() {
		_, err := contentstore.DigestOf("zzzz")
		Expect(err).To(MatchError(contentstore.ErrMalformedContentID))
	})

	It("rejects identifiers using another hash function", func() {
		// CIDv1 raw with an identity multihash
		_, err := contentstore.DigestOf("bafkqaaa")
		Expect(err).To(MatchError(contentstore.ErrMalformedContentID))
	})
})

var _ = Describe("ParseDigest", func() {
	It("accepts 0x-prefixed hex", func() {
		sum := sha256.Sum256([]byte("x"))
		d, err := contentstore.ParseDigest(contentstore.Digest(sum).Hex())
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(Equal(contentstore.Digest(sum)))
	})

	It("rejects short digests", func() {
		_, err := contentstore.ParseDigest("0xabcd")
		Expect(err).To(MatchError(contentstore.ErrMalformedContentID))
	})
})
