package agent_test

import (
	"context"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/escrowd/pkg/agent"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
	"github.com/papercomputeco/escrowd/pkg/settlement"
)

// serveMerchant starts router behind a real listener and returns its base URL.
func serveMerchant(router *agent.MerchantRouter, delay time.Duration) (string, func()) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Post(agent.MerchantMessagesPath, func(c *fiber.Ctx) error {
		if delay > 0 {
			time.Sleep(delay)
		}
		var req agent.MessagesRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}
		resp, err := router.Handle(c.UserContext(), req.Messages)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
		}
		return c.JSON(resp)
	})

	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	go func() {
		_ = app.Listener(ln)
	}()

	return "http://" + ln.Addr().String(), func() {
		_ = app.Shutdown()
	}
}

var _ = Describe("MerchantClient", func() {
	var (
		ctx    context.Context
		reg    *knowledge.Registry
		router *agent.MerchantRouter
	)

	BeforeEach(func() {
		ctx = context.Background()
		reg = newRegistry()

		var err error
		router, err = agent.NewMerchantRouter(agent.MerchantConfig{Registry: reg})
		Expect(err).NotTo(HaveOccurred())

		_, err = router.Handle(ctx, []agent.Message{hint("7"), admin("set_wallet:" + sellerHex)})
		Expect(err).NotTo(HaveOccurred())
		_, err = router.Handle(ctx, []agent.Message{hint("7"), admin("add_item:Tacos:15")})
		Expect(err).NotTo(HaveOccurred())
	})

	newClient := func(target string, timeout time.Duration) *agent.MerchantClient {
		c, err := agent.NewMerchantClient(agent.MerchantClientConfig{Target: target, Timeout: timeout})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	It("requires a target", func() {
		_, err := agent.NewMerchantClient(agent.MerchantClientConfig{})
		Expect(err).To(HaveOccurred())
	})

	It("queries the wallet, menu, and chat of a remote merchant", func() {
		url, stop := serveMerchant(router, 0)
		DeferCleanup(stop)
		c := newClient(url, time.Second)

		wallet, err := c.QueryWallet(ctx, "7")
		Expect(err).NotTo(HaveOccurred())
		Expect(wallet).To(Equal(sellerHex))

		menu, err := c.Menu(ctx, "7")
		Expect(err).NotTo(HaveOccurred())
		Expect(menu).To(ConsistOf(knowledge.MenuEntry{Slug: "tacos", Display: "Tacos", Price: "15"}))

		reply, err := c.Chat(ctx, "7", "what do you have?")
		Expect(err).NotTo(HaveOccurred())
		Expect(reply).To(Equal("Tacos: 15"))
	})

	It("classifies a merchant error reply as unavailable", func() {
		url, stop := serveMerchant(router, 0)
		DeferCleanup(stop)
		c := newClient(url, time.Second)

		_, err := c.QueryWallet(ctx, "../escaped")
		Expect(err).To(MatchError(settlement.ErrRemoteAgentUnavailable))
		Expect(err.Error()).To(ContainSubstring("invalid merchant scope"))
	})

	It("reports a slow merchant as a timeout", func() {
		url, stop := serveMerchant(router, 300*time.Millisecond)
		DeferCleanup(stop)
		c := newClient(url, 50*time.Millisecond)

		_, err := c.QueryWallet(ctx, "7")
		Expect(err).To(MatchError(settlement.ErrRemoteAgentTimeout))
	})

	It("honors an expired context deadline", func() {
		c := newClient("http://127.0.0.1:1", time.Second)
		expired, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
		defer cancel()

		_, err := c.QueryWallet(expired, "7")
		Expect(err).To(MatchError(settlement.ErrRemoteAgentTimeout))
	})

	It("reports an unreachable merchant as unavailable", func() {
		ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := ln.Addr().String()
		Expect(ln.Close()).To(Succeed())

		_, err = newClient("http://"+addr, time.Second).QueryWallet(ctx, "7")
		Expect(err).To(MatchError(settlement.ErrRemoteAgentUnavailable))
	})
})
