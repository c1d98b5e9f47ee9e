package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/regwatch/regcore/internal/pkg/errcode"
	"github.com/regwatch/regcore/internal/pkg/response"
	"github.com/regwatch/regcore/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
}

func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req service.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request body")
		return
	}
	results, err := h.search.Search(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, results)
}
