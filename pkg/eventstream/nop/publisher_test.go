package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/escrowd/pkg/eventstream"
	"github.com/papercomputeco/escrowd/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	It("creates a non-nil publisher", func() {
		p := nop.NewPublisher()
		Expect(p).NotTo(BeNil())
	})

	It("returns ErrNilOrderEvent for nil events", func() {
		p := nop.NewPublisher()
		err := p.PublishOrder(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilOrderEvent))
	})

	It("accepts order events", func() {
		p := nop.NewPublisher()
		ev := eventstream.NewOrderEvent(eventstream.EventTypeOrderConfirmed, eventstream.EventSource{Service: "escrowd"}, eventstream.OrderMeta{OrderID: "1", Status: "InProgress"})
		Expect(p.PublishOrder(context.Background(), ev)).To(Succeed())
	})

	It("closes successfully", func() {
		p := nop.NewPublisher()
		Expect(p.Close()).To(Succeed())
	})
})
