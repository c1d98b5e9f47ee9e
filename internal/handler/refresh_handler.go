package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/regwatch/regcore/internal/pkg/response"
	"github.com/regwatch/regcore/internal/service"
)

type RefreshHandler struct {
	refresh *service.RefreshService
}

func NewRefreshHandler(refresh *service.RefreshService) *RefreshHandler {
	return &RefreshHandler{refresh: refresh}
}

// Trigger runs a corpus refresh pass inline. ?full=1 visits every usable
// canonical document instead of only the stuck ones.
func (h *RefreshHandler) Trigger(c *gin.Context) {
	full := c.Query("full") == "1" || c.Query("full") == "true"
	summary, err := h.refresh.Refresh(c.Request.Context(), full)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, summary)
}
