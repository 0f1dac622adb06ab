package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docqa/internal/domain"
)

type QueryService interface {
	Query(ctx context.Context, req domain.QueryRequest) domain.QueryResponse
}

type QueryHandler struct {
	svc QueryService
}

func NewQueryHandler(svc QueryService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req domain.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(c, http.StatusBadRequest, domain.ErrEmptyQuery.Error())
		return
	}
	if req.TopK != nil && *req.TopK <= 0 {
		writeError(c, http.StatusBadRequest, "top_k must be positive")
		return
	}
	resp := h.svc.Query(c.Request.Context(), req)
	if resp.Error != "" {
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	if resp.Chunks == nil {
		resp.Chunks = []domain.QueryResult{}
	}
	c.JSON(http.StatusOK, queryBody{Answer: resp.Answer, Chunks: resp.Chunks})
}

// queryBody keeps chunks in the output even when empty.
type queryBody struct {
	Answer string               `json:"answer"`
	Chunks []domain.QueryResult `json:"chunks"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
