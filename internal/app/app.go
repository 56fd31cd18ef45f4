// Package app assembles the service: storage, repositories, provider
// clients, handlers, and the HTTP server lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/chatforge-app/chatforge/internal/config"
	"github.com/chatforge-app/chatforge/internal/http/api/front"
	"github.com/chatforge-app/chatforge/internal/http/api/front/handlers"
	"github.com/chatforge-app/chatforge/internal/mailer"
	"github.com/chatforge-app/chatforge/internal/openai"
	"github.com/chatforge-app/chatforge/internal/payments"
	"github.com/chatforge-app/chatforge/internal/ratelimit"
	"github.com/chatforge-app/chatforge/internal/repository"
	"github.com/chatforge-app/chatforge/internal/store"
)

const shutdownTimeout = 10 * time.Second

// RunServer boots the API server and blocks until ctx is cancelled or the
// server fails.
func RunServer(ctx context.Context, cfg config.Config) error {
	if cfg.JWT.Secret == "" {
		return errors.New("app: jwt secret is required (set jwt.secret or JWT_SECRET)")
	}

	st, errStore := store.New(cfg.DataDir)
	if errStore != nil {
		return errStore
	}
	users := repository.NewUsers(st)
	limiter := ratelimit.New(st, nil)

	var opts []openai.Option
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	provider := openai.NewClient(opts...)

	mail := mailer.NewSender(cfg.SMTP)
	checkout := payments.NewCheckout(cfg.Stripe)
	if checkout == nil {
		log.Info("stripe not configured, payment actions disabled")
	}

	handler := handlers.New(users, limiter, provider, provider, mail, checkout, cfg.JWT, cfg.OpenAI, nil)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogMiddleware())
	engine.Use(corsMiddleware(cfg.AllowOrigin))

	front.RegisterFrontRoutes(engine, handler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("server listening")
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return <-errCh
	case errServe := <-errCh:
		return errServe
	}
}

// requestLogMiddleware emits one structured line per request.
func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		}).Info("request")
	}
}

// corsMiddleware reflects the configured origin and handles preflight. An
// empty allowOrigin permits any origin, matching the original deployment.
func corsMiddleware(allowOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := allowOrigin
		if origin == "" {
			origin = c.GetHeader("Origin")
		}
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
