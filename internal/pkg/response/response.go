package response

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func AsCodeErr(code uint32, msg string) error {
	return codeErr{code: code, msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error writes a failure envelope with a real HTTP status so callers can
// distinguish duplicate/not-found/invalid-format conditions (409/404/422).
func Error(c *gin.Context, status int, code int, message string) {
	proxyutil.FailJson(c, status, AsCodeErr(uint32(code), message))
}

// ErrorWithData is Error plus a payload, for failures that still carry
// useful structure, like a duplicate upload pointing at its canonical
// document.
func ErrorWithData(c *gin.Context, status int, code int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
		"data":    data,
	})
}
