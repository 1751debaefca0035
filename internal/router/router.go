package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"label-notifier-go/internal/handler"
	"label-notifier-go/internal/middleware"
)

// SetupRouter configures the Gin router with routes and middleware.
// When jwtSecret is set, every /api/v1 route requires a bearer token.
func SetupRouter(h *handler.Handlers, jwtSecret string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(loggerMiddleware())

	var apiMiddleware []gin.HandlerFunc
	if jwtSecret != "" {
		apiMiddleware = append(apiMiddleware, middleware.JWTAuth(jwtSecret))
	}
	h.SetupRoutes(r, apiMiddleware...)
	return r
}

// loggerMiddleware writes access lines through logrus. Health and metrics endpoints are skipped.
func loggerMiddleware() gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    logrus.StandardLogger().WriterLevel(logrus.InfoLevel),
		SkipPaths: []string{"/healthz", "/metrics"},
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC1123),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	})
}
