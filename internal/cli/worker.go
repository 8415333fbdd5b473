// File: internal/cli/worker.go
package cli

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ruther77/MassaCorp-sub001/internal/app"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/logger"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/telemetry"
)

const shutdownTimeout = 10 * time.Second

type jwksProvider interface {
	GetJWKS() (map[string]interface{}, error)
}

func newWorkerCmd(a *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run retention and the directory consumer, serve /metrics, /healthz and the JWKS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withApp(ctx, func(container *app.App) error {
				shutdown, err := telemetry.InitOTLPTracer(ctx, container.Config.Telemetry.Tracing, container.Config.App.Name, container.Logger)
				if err != nil {
					return err
				}
				defer shutdown(context.WithoutCancel(ctx))
				return runWorker(ctx, container)
			})
		},
	}
}

// newOpsRouter собирает служебные маршруты воркера.
func newOpsRouter(container *app.App) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(telemetry.PrometheusHandler()))
	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := container.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if p, ok := container.Tokens.(jwksProvider); ok {
		router.GET("/.well-known/jwks.json", func(c *gin.Context) {
			jwks, err := p.GetJWKS()
			if err != nil {
				container.Logger.Error("Failed to build JWKS", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "jwks unavailable"})
				return
			}
			c.JSON(http.StatusOK, jwks)
		})
	}
	return router
}

func runWorker(ctx context.Context, container *app.App) error {
	log := logger.WithComponent(container.Logger, "worker")

	srv := &http.Server{
		Addr:              container.Config.Telemetry.Metrics.Addr,
		Handler:           newOpsRouter(container),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting ops HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	backgroundCtx, stopBackground := context.WithCancel(ctx)
	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		container.Retention.Run(backgroundCtx)
	}()
	if container.Directory != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			if err := container.Directory.Run(backgroundCtx); err != nil {
				log.Error("Directory consumer stopped", zap.Error(err))
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		log.Info("Shutting down worker")
	case err = <-serveErr:
		log.Error("Ops HTTP server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("Ops HTTP server shutdown failed", zap.Error(shutdownErr))
	}
	stopBackground()
	background.Wait()
	return err
}
