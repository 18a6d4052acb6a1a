package api

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Server is the escrowd HTTP API server.
type Server struct {
	config Config
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server. Components are injected so they can
// be shared with the ledger watcher and the CLI.
func NewServer(config Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/contract", s.handleContract)

	app.Post("/customer/messages", s.handleCustomerMessages)
	app.Post("/merchant/messages", s.handleMerchantMessages)

	app.Get("/merchants/search", s.handleSearchMerchants)
	app.Get("/merchants/:id", s.handleMerchantProfile)
	app.Get("/merchants/:id/menu", s.handleMerchantMenu)

	app.Get("/content/:cid", s.handleGetContent)

	app.Get("/orders/:id", s.handleGetOrder)
	app.Post("/orders/:id/confirm", s.handleConfirmOrder)
	app.Post("/orders/:id/cancel", s.handleCancelOrder)
	app.Post("/orders/:id/finalize", s.handleFinalizeOrder)
	app.Post("/orders/:id/answer", s.handleAnswerOrder)
	app.Get("/users/:address/orders", s.handleUserOrders)

	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}

	return s
}

// App exposes the underlying fiber app for in-process requests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func zapRequest(c *fiber.Ctx, err error) []zap.Field {
	return []zap.Field{
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	}
}
