package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HeaderRequestID is the header carrying the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID tags every request with an id, honoring one supplied by the
// caller and generating a v4 UUID otherwise. The id is echoed in the
// response headers and stored in the gin context for the access log.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(HeaderRequestID, id)
		c.Next()
	}
}

// AccessLog writes one structured line per completed request.
func AccessLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

// Recovery converts handler panics into a 500 with the standard error
// envelope instead of tearing down the connection.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("request_id", c.GetString(requestIDKey)).
					Interface("panic", r).
					Msg("handler panicked")
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Detail: "internal server error"})
			}
		}()
		c.Next()
	}
}
