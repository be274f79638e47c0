package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const responseKey = "response_key"

// Response is the envelope of every API response.
type Response struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Meta carries the status of an API response.
type Meta struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func newResponse() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseKey, &Response{Meta: Meta{RequestID: uuid.NewString()}})
		c.Next()
	}
}

func apiSuccess(c *gin.Context, data any) {
	c.Abort()
	res := c.MustGet(responseKey).(*Response)
	res.Meta.Code = http.StatusOK
	res.Meta.Message = "ok"
	res.Data = data
	c.JSON(http.StatusOK, res)
}

func apiError(c *gin.Context, status int, err error) {
	c.Abort()
	res := c.MustGet(responseKey).(*Response)
	res.Meta.Code = status
	res.Meta.Message = err.Error()
	c.JSON(status, res)
	if status >= http.StatusInternalServerError {
		slog.Error("response error", "request_uri", c.Request.URL.Path, "code", status,
			"request_id", res.Meta.RequestID, "error", err)
	} else {
		slog.Debug("request rejected", "request_uri", c.Request.URL.Path, "code", status, "error", err)
	}
}
