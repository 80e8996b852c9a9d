package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/collectible-requests/internal/service"
)

// ShowcaseHandler serves the public catalog and its admin maintenance.
type ShowcaseHandler struct {
	Showcase *service.ShowcaseService
}

func NewShowcaseHandler(s *service.ShowcaseService) *ShowcaseHandler {
	return &ShowcaseHandler{Showcase: s}
}

type showcaseReq struct {
	Title    *string `json:"title"`
	Price    *int64  `json:"price"`
	ImageURL *string `json:"image_url"`
	EbayURL  *string `json:"ebay_url"`
	Category *string `json:"category"`
	Priority *int    `json:"priority"`
}

func (r showcaseReq) input() service.ShowcaseInput {
	return service.ShowcaseInput{
		Title:    r.Title,
		Price:    r.Price,
		ImageURL: r.ImageURL,
		EbayURL:  r.EbayURL,
		Category: r.Category,
		Priority: r.Priority,
	}
}

// List: GET /v1/showcase
func (h *ShowcaseHandler) List(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, err := h.Showcase.List(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get: GET /v1/showcase/:id
func (h *ShowcaseHandler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	it, err := h.Showcase.Get(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, it)
}

// Create: POST /v1/admin/showcase
func (h *ShowcaseHandler) Create(c echo.Context) error {
	actor, ok := currentIdentity(c)
	if !ok {
		return nil
	}
	var req showcaseReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	it, err := h.Showcase.Create(ctx, actor, req.input())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, it)
}

// Update: PATCH /v1/admin/showcase/:id
func (h *ShowcaseHandler) Update(c echo.Context) error {
	actor, ok := currentIdentity(c)
	if !ok {
		return nil
	}
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req showcaseReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	it, err := h.Showcase.Update(ctx, actor, id, req.input())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, it)
}

// ToggleSold: POST /v1/admin/showcase/:id/toggle-sold
func (h *ShowcaseHandler) ToggleSold(c echo.Context) error {
	actor, ok := currentIdentity(c)
	if !ok {
		return nil
	}
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	it, err := h.Showcase.ToggleSold(ctx, actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, it)
}

// Delete: DELETE /v1/admin/showcase/:id
func (h *ShowcaseHandler) Delete(c echo.Context) error {
	actor, ok := currentIdentity(c)
	if !ok {
		return nil
	}
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Showcase.Delete(ctx, actor, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
