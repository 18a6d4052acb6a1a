package api

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/escrowd/pkg/agent"
	"github.com/papercomputeco/escrowd/pkg/contentstore"
	"github.com/papercomputeco/escrowd/pkg/search"
)

// SearchResponse is the body of GET /merchants/search.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

// handleSearchMerchants handles GET /merchants/search.
// Query parameters:
//   - q (required): the search text
//   - top_k (optional, default 5): number of merchants to return
func (s *Server) handleSearchMerchants(c *fiber.Ctx) error {
	if s.config.Index == nil {
		return unavailable(c, "merchant search")
	}

	query := c.Query("q")
	if query == "" {
		return badRequest(c, "q parameter is required")
	}

	topK := search.DefaultTopK
	if raw := c.Query("top_k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return badRequest(c, "top_k must be a positive integer")
		}
		topK = parsed
	}

	results, err := s.config.Index.Search(c.UserContext(), query, topK)
	if err != nil {
		return s.fail(c, err)
	}
	if results == nil {
		results = []search.Result{}
	}

	return c.JSON(SearchResponse{Query: query, Results: results, Count: len(results)})
}

// handleMerchantProfile returns everything known about a merchant.
func (s *Server) handleMerchantProfile(c *fiber.Ctx) error {
	if s.config.Registry == nil {
		return unavailable(c, "knowledge registry")
	}
	profile, err := s.config.Registry.Profile(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(profile)
}

// handleMerchantMenu returns the visible menu of a merchant.
func (s *Server) handleMerchantMenu(c *fiber.Ctx) error {
	if s.config.Registry == nil {
		return unavailable(c, "knowledge registry")
	}
	id := c.Params("id")
	menu, err := s.config.Registry.Menu(c.UserContext(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(agent.MenuContent{MerchantID: id, Items: menu})
}

// handleGetContent returns a stored payload by content id.
func (s *Server) handleGetContent(c *fiber.Ctx) error {
	if s.config.Content == nil {
		return unavailable(c, "content store")
	}
	payload, err := s.config.Content.Fetch(c.UserContext(), contentstore.ContentID(c.Params("cid")))
	if err != nil {
		return s.fail(c, err)
	}

	if json.Valid(payload) {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	}
	return c.Send(payload)
}
