// Package status serves a small HTTP status API for the running bot.
package status

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oz-solar/jerry/internal/store"
)

// StartOpts holds configuration for the status server.
type StartOpts struct {
	Store          *store.Store
	Port           int
	DirectModel    string
	BroadcastModel string
	StartedAt      time.Time
	Out            io.Writer
}

// Start launches the status HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("status: store is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(opts)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Status API running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status: %w", err)
	}
	return nil
}

func newRouter(opts StartOpts) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", handleHealth())
	router.GET("/api/status", handleStatus(opts))

	return router
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleStatus(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversations, messages, err := opts.Store.Counts()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"uptime_seconds": int64(time.Since(opts.StartedAt).Seconds()),
			"conversations":  conversations,
			"messages":       messages,
			"models": gin.H{
				"direct":    opts.DirectModel,
				"broadcast": opts.BroadcastModel,
			},
		})
	}
}
