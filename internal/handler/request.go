package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/collectible-requests/internal/service"
)

// RequestHandler serves the user side of purchase requests.
type RequestHandler struct {
	Requests *service.RequestService
}

func NewRequestHandler(s *service.RequestService) *RequestHandler {
	return &RequestHandler{Requests: s}
}

type createRequestReq struct {
	CharacterName      string   `json:"character_name"`
	Budget             int64    `json:"budget"`
	Description        string   `json:"description"`
	ReferenceImageURLs []string `json:"reference_image_urls"`
}

// Create: POST /v1/requests
func (h *RequestHandler) Create(c echo.Context) error {
	actor, ok := currentIdentity(c)
	if !ok {
		return nil
	}
	var req createRequestReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	out, err := h.Requests.Create(ctx, actor, service.CreateRequestInput{
		CharacterName: req.CharacterName,
		Budget:        req.Budget,
		Description:   req.Description,
		ImageURLs:     req.ReferenceImageURLs,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

// ListMine: GET /v1/requests
func (h *RequestHandler) ListMine(c echo.Context) error {
	actor, ok := currentIdentity(c)
	if !ok {
		return nil
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	items, err := h.Requests.ListMine(ctx, actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get: GET /v1/requests/:id and GET /v1/admin/requests/:id
func (h *RequestHandler) Get(c echo.Context) error {
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

	out, err := h.Requests.Get(ctx, actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Delete: DELETE /v1/requests/:id.  Only pending requests can be removed.
func (h *RequestHandler) Delete(c echo.Context) error {
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

	if err := h.Requests.Delete(ctx, actor, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
