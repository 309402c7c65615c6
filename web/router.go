// Package web exposes email discovery over HTTP: single and batch find
// endpoints plus health checks, with request-id tagging and structured
// access logs.
package web

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	mailbeacon "github.com/bl4ckh4nd/MailBeacon"
)

// Config wires the router.
type Config struct {
	// Processor runs the discoveries. Required.
	Processor *mailbeacon.Processor

	// APIPrefix is the mount point of the versioned API, "/api/v1" when
	// empty.
	APIPrefix string

	// AppName appears in the welcome message.
	AppName string

	// Logger receives access and error logs. The zero value logs nothing.
	Logger zerolog.Logger
}

// NewRouter assembles a gin engine with the discovery routes and the
// request-id, access-log and recovery middleware.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if cfg.AppName == "" {
		cfg.AppName = "MailBeacon API"
	}
	h := &handlers{proc: cfg.Processor, appName: cfg.AppName}

	r := gin.New()
	r.Use(RequestID(), AccessLog(cfg.Logger), Recovery(cfg.Logger))

	r.GET("/", h.root)
	r.GET("/health", h.health)

	api := r.Group(cfg.APIPrefix)
	api.GET("/health", h.health)
	api.POST("/find-single", h.findSingle)
	api.POST("/find-batch", h.findBatch)

	return r
}
