package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/service"
)

// DocumentService is the ingestion side of the pipeline.
type DocumentService interface {
	IngestReader(ctx context.Context, name string, r io.Reader) domain.IndexResult
	IngestURL(ctx context.Context, rawURL string) domain.IndexResult
	Collections(ctx context.Context) ([]service.CollectionInfo, error)
}

type DocumentHandler struct {
	svc         DocumentService
	uploadLimit int64
}

func NewDocumentHandler(svc DocumentService, uploadLimit int64) *DocumentHandler {
	return &DocumentHandler{svc: svc, uploadLimit: uploadLimit}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	if h.uploadLimit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploadLimit)
	}
	file, err := c.FormFile("file")
	if err != nil {
		if h.uploadLimit > 0 && isTooLarge(err) {
			writeError(c, http.StatusRequestEntityTooLarge, "file exceeds "+uploadLimitText(h.uploadLimit))
			return
		}
		writeError(c, http.StatusBadRequest, "file is required")
		return
	}
	opened, err := file.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "failed to open file")
		return
	}
	defer opened.Close()

	name := filepath.Base(file.Filename)
	ctx := c.Request.Context()
	logutil.GetLogger(ctx).Info("upload received", zap.String("document_id", name), zap.Int64("size", file.Size))
	result := h.svc.IngestReader(ctx, name, opened)
	if result.Status != domain.StatusSuccess {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

type uploadURLRequest struct {
	URL string `json:"url"`
}

// UploadURL fetches a web page and indexes its text under the URL.
func (h *DocumentHandler) UploadURL(c *gin.Context) {
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		writeError(c, http.StatusBadRequest, "url is required")
		return
	}
	ctx := c.Request.Context()
	logutil.GetLogger(ctx).Info("url upload received", zap.String("url", rawURL))
	result := h.svc.IngestURL(ctx, rawURL)
	if result.Status != domain.StatusSuccess {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *DocumentHandler) Collections(c *gin.Context) {
	infos, err := h.svc.Collections(c.Request.Context())
	if err != nil {
		logutil.GetLogger(c.Request.Context()).Error("list collections failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": infos})
}

// uploadLimitText renders a byte cap in whole megabytes, rounding anything
// under one megabyte up to 1MB.
func uploadLimitText(limit int64) string {
	if limit <= 0 {
		return "0MB"
	}
	return fmt.Sprintf("%dMB", max(limit>>20, 1))
}
