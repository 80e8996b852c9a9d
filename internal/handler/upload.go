package handler

import (
	"context"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/collectible-requests/internal/service"
)

// uploadTimeout bounds one multipart upload to object storage.
const uploadTimeout = 60 * time.Second

// UploadHandler accepts image uploads for requests and the showcase.
type UploadHandler struct {
	Uploads *service.UploadService
}

func NewUploadHandler(s *service.UploadService) *UploadHandler {
	return &UploadHandler{Uploads: s}
}

// RequestImages: POST /v1/uploads/request-images, multipart field `files`.
func (h *UploadHandler) RequestImages(c echo.Context) error {
	actor, ok := currentIdentity(c)
	if !ok {
		return nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "multipart form required"})
	}
	files, closeAll, err := openImages(form.File["files"])
	defer closeAll()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot read upload"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), uploadTimeout)
	defer cancel()
	urls, err := h.Uploads.RequestImages(ctx, actor, files)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"urls": urls})
}

// ShowcaseImage: POST /v1/admin/showcase/images, multipart field `file`.
func (h *UploadHandler) ShowcaseImage(c echo.Context) error {
	actor, ok := currentIdentity(c)
	if !ok {
		return nil
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file required"})
	}
	files, closeAll, err := openImages([]*multipart.FileHeader{fh})
	defer closeAll()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot read upload"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), uploadTimeout)
	defer cancel()
	url, err := h.Uploads.ShowcaseImage(ctx, actor, files[0])
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"url": url})
}

// openImages opens every part.  The returned func closes whatever was
// opened and is safe to call on error.
func openImages(headers []*multipart.FileHeader) ([]service.ImageFile, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	out := make([]service.ImageFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, err
		}
		opened = append(opened, f)
		out = append(out, service.ImageFile{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Body:        f,
		})
	}
	return out, closeAll, nil
}
