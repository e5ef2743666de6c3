package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"projectflow/internal/service"
)

// RouterConfig agrupa lo que el router necesita ademas de los handlers.
type RouterConfig struct {
	APIPrefix      string
	TrustedProxies []string
	Authn          Authenticator
	LoginThrottle  service.Throttle
	ResetThrottle  service.Throttle
}

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	cfg RouterConfig,
	authH *AuthHandler,
	userH *UserHandler,
) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Warn("invalid trusted proxies, ignoring forwarded headers", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())
	r.NoRoute(notFound)

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)
	requireAuth := AuthMiddleware(logger, cfg.Authn)

	api.GET("/health", func(c *gin.Context) {
		respondOK(c, http.StatusOK, nil, "API is healthy")
	})

	auth := api.Group("/auth")
	auth.POST("/register", authH.Register)
	auth.POST("/login", throttled(logger, cfg.LoginThrottle, "Too many login attempts, please try again after 15 minutes"), authH.Login)
	auth.POST("/refresh-token", requireAuth, authH.RefreshToken)
	auth.POST("/logout", requireAuth, authH.Logout)

	users := api.Group("/users")
	users.POST("/password-reset", throttled(logger, cfg.ResetThrottle, "Too many password reset attempts, please try again later"), userH.RequestPasswordReset)
	users.POST("/password-reset/confirm", userH.ConfirmPasswordReset)

	me := users.Group("/me", requireAuth)
	me.GET("", userH.GetProfile)
	me.PUT("", userH.UpdateProfile)
	me.PUT("/password", userH.ChangePassword)
	me.POST("/deactivate", userH.Deactivate)

	return r
}

func throttled(logger *zap.Logger, t service.Throttle, message string) gin.HandlerFunc {
	if t == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return ThrottleMiddleware(logger, t, message)
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
