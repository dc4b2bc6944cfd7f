package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	statusWarnThreshold  = 400
	statusErrorThreshold = 500

	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID stamps every request with an id, reusing the client's X-Request-ID if sent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// ZerologLogger is a Gin middleware that logs requests using zerolog.
func ZerologLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		method := c.Request.Method
		clientIP := c.ClientIP()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		evt := log.Info()
		switch {
		case status >= statusErrorThreshold:
			evt = log.Error()
		case status >= statusWarnThreshold:
			evt = log.Warn()
		}

		if raw != "" {
			path = path + "?" + raw
		}

		evt.
			Str("request_id", c.GetString(requestIDKey)).
			Int("status", status).
			Str("method", method).
			Str("path", path).
			Dur("latency", latency).
			Str("client_ip", clientIP).
			Int("bytes", c.Writer.Size()).
			Msg("http request completed")
	}
}

// RateLimit admits at most perMinute requests per minute with a burst of the same size.
// Zero or less admits everything.
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			log.Warn().Str("path", c.Request.URL.Path).Msg("submission rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many submissions, try again later"})
			return
		}
		c.Next()
	}
}

// RegisterMetrics serves the gatherer's metrics at /metrics.
func RegisterMetrics(router *gin.Engine, g prometheus.Gatherer) {
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
