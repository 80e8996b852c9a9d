package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/collectible-requests/internal/service"
)

// AdminRequestHandler serves the admin inbox.  Routes are mounted behind
// RequireAdmin; the service checks the gate again.
type AdminRequestHandler struct {
	Requests *service.RequestService
}

func NewAdminRequestHandler(s *service.RequestService) *AdminRequestHandler {
	return &AdminRequestHandler{Requests: s}
}

// ListAll: GET /v1/admin/requests
func (h *AdminRequestHandler) ListAll(c echo.Context) error {
	actor, ok := currentIdentity(c)
	if !ok {
		return nil
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	items, err := h.Requests.ListAll(ctx, actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

type adminUpdateReq struct {
	Status         *string `json:"status"`
	EbayListingURL *string `json:"ebay_listing_url"`
	AdminNotes     *string `json:"admin_notes"`
}

// Update: PATCH /v1/admin/requests/:id.  Omitted fields keep their value.
func (h *AdminRequestHandler) Update(c echo.Context) error {
	actor, ok := currentIdentity(c)
	if !ok {
		return nil
	}
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req adminUpdateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	out, err := h.Requests.AdminUpdate(ctx, actor, id, service.AdminPatch{
		Status:         req.Status,
		EbayListingURL: req.EbayListingURL,
		AdminNotes:     req.AdminNotes,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
