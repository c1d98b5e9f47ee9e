package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/regwatch/regcore/internal/pkg/errcode"
	"github.com/regwatch/regcore/internal/pkg/response"
	"github.com/regwatch/regcore/internal/service"
)

type DocumentHandler struct {
	ingest    *service.IngestService
	documents *service.DocumentService
	maxUpload int64
}

func NewDocumentHandler(ingest *service.IngestService, documents *service.DocumentService, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, documents: documents, maxUpload: maxUpload}
}

// Ingest accepts a multipart upload ("file" plus "source_url") and runs
// the full pipeline. Duplicate content answers 409 with the canonical
// document id in the payload.
func (h *DocumentHandler) Ingest(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "file is required")
		return
	}
	sourceURL := c.PostForm("source_url")
	if sourceURL == "" {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "source_url is required")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "failed to read file")
		return
	}

	res, err := h.ingest.Ingest(c.Request.Context(), data, sourceURL)
	if err != nil {
		handleError(c, err)
		return
	}
	if res.Duplicate {
		response.ErrorWithData(c, http.StatusConflict, errcode.ErrConflict, "duplicate content", res)
		return
	}
	response.Success(c, res)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	info, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, info)
}

func (h *DocumentHandler) Audit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	events, err := h.documents.AuditTrail(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, events)
}

// Download streams the stored original bytes.
func (h *DocumentHandler) Download(c *gin.Context) {
	rc, info, err := h.documents.DownloadOriginal(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	defer rc.Close()
	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `attachment; filename="`+info.ContentHash+`.pdf"`)
	if info.ByteSize > 0 {
		c.Header("Content-Length", strconv.FormatInt(info.ByteSize, 10))
	}
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}
