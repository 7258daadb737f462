package middleware

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"funding/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID  = "X-Request-ID"
	ContextRequestID = "request_id"
)

// ErrorLogger tags every request with an id, logs failed requests and turns
// panics into a 500 envelope. Stacks are logged, never sent to the client.
func ErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextRequestID, id)
		c.Header(HeaderRequestID, id)

		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				logRequestError(c, start, "panic", fmt.Sprint(recovered), debug.Stack())
				response.AbortError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
				return
			}

			switch {
			case len(c.Errors) > 0:
				for _, err := range c.Errors {
					logRequestError(c, start, fmt.Sprintf("%v", err.Type), err.Error(), nil)
					if err.Meta != nil {
						log.Printf("request_error_meta request_id=%s meta=%+v", requestID(c), err.Meta)
					}
				}
			case c.Writer.Status() >= http.StatusInternalServerError:
				logRequestError(c, start, "http_error", fmt.Sprintf("status=%d", c.Writer.Status()), nil)
			}
		}()

		c.Next()
	}
}

func logRequestError(c *gin.Context, start time.Time, errType string, message string, stack []byte) {
	line := fmt.Sprintf(
		"request_error type=%s status=%d method=%s path=%s client_ip=%s username=%s role=%s request_id=%s latency=%s error=%q",
		errType,
		c.Writer.Status(),
		c.Request.Method,
		c.Request.URL.Path,
		c.ClientIP(),
		c.GetString(ContextUsername),
		c.GetString(ContextRole),
		requestID(c),
		time.Since(start),
		message,
	)
	if len(stack) > 0 {
		line += " stack=" + string(stack)
	}
	log.Print(line)
}

// requestID prefers the id assigned by ErrorLogger and falls back to the
// caller's header when the middleware is not installed.
func requestID(c *gin.Context) string {
	if id := c.GetString(ContextRequestID); id != "" {
		return id
	}
	return c.GetHeader(HeaderRequestID)
}
