package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/regwatch/regcore/internal/pkg/errcode"
	appErr "github.com/regwatch/regcore/internal/pkg/errors"
	"github.com/regwatch/regcore/internal/pkg/response"
)

// handleError maps domain sentinels onto HTTP statuses. Anything
// unexpected is logged under a reference id and reported opaquely.
func handleError(c *gin.Context, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, appErr.ErrInvalidFormat):
		response.Error(c, http.StatusUnprocessableEntity, errcode.ErrInvalidFormat, "not a valid pdf document")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, http.StatusNotFound, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, http.StatusConflict, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, http.StatusTooManyRequests, errcode.ErrTooMany, "too many requests")
	default:
		ref := newErrRef()
		logutil.GetLogger(c.Request.Context()).Error("request failed",
			zap.String("ref", ref),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, errcode.ErrInternal, "internal error, ref="+ref)
	}
}

func newErrRef() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
