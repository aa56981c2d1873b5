package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/ctxlog"
	"github.com/vk/flowsync/internal/document"
	"github.com/vk/flowsync/internal/orchestrator"
	"github.com/vk/flowsync/internal/reportlog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Handler builds the HTTP API. The app must be open.
func (a *App) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("flowsync"))

	router.GET("/health", a.healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/config", a.getConfig)
		v1.POST("/config", a.postConfig)
		v1.GET("/schema", a.getSchema)
		v1.GET("/reports", a.listReports)
		v1.GET("/reports/:id", a.getReport)
	}
	return router
}

func (a *App) healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK\n")
}

func runOptions(c *gin.Context) []orchestrator.RunOption {
	var opts []orchestrator.RunOption
	if only := c.Query("only"); only != "" {
		opts = append(opts, orchestrator.WithOnly(strings.Split(only, ",")...))
	}
	if ok, _ := strconv.ParseBool(c.Query("results")); ok {
		opts = append(opts, orchestrator.WithResults())
	}
	if ok, _ := strconv.ParseBool(c.Query("run")); ok {
		opts = append(opts, orchestrator.WithRun())
	}
	return opts
}

// runStatus maps a run outcome to an HTTP status: 503 when the store went
// away, 207 when only some sections failed.
func runStatus(report *orchestrator.Report, err error) int {
	switch {
	case errors.Is(err, attrstore.ErrConnectionLost):
		return http.StatusServiceUnavailable
	case err != nil && report == nil:
		return http.StatusBadRequest
	case err != nil:
		return http.StatusInternalServerError
	case !report.OK():
		return http.StatusMultiStatus
	}
	return http.StatusOK
}

func (a *App) getConfig(c *gin.Context) {
	doc, report, err := a.Extract(c.Request.Context(), runOptions(c)...)
	if err != nil {
		c.JSON(runStatus(report, err), gin.H{"error": err.Error(), "report": report})
		return
	}
	data, err := doc.MarshalJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("X-Flowsync-Report", report.ID)
	c.Data(runStatus(report, nil), "application/json; charset=utf-8", data)
}

func (a *App) postConfig(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc, err := document.Parse(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := a.Write(c.Request.Context(), doc, runOptions(c)...)
	if err != nil && report == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(runStatus(report, err), report)
}

func (a *App) getSchema(c *gin.Context) {
	type entry struct {
		Name      string   `json:"name"`
		DependsOn []string `json:"depends_on,omitempty"`
		ReadOnly  bool     `json:"read_only,omitempty"`
		Results   bool     `json:"results,omitempty"`
	}
	var out []entry
	for _, s := range a.registry.Sections() {
		out = append(out, entry{Name: s.Name, DependsOn: s.DependsOn, ReadOnly: s.ReadOnly, Results: s.Results})
	}
	c.JSON(http.StatusOK, out)
}

func (a *App) getReport(c *gin.Context) {
	report, err := a.Report(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, ErrNoHistory):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case errors.Is(err, reportlog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, report)
	}
}

func (a *App) listReports(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	list, err := a.Reports(c.Request.Context(), limit)
	switch {
	case errors.Is(err, ErrNoHistory):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, list)
	}
}

// Serve runs the HTTP API, and the health check server when a port is
// configured, until ctx is cancelled. Both shut down gracefully.
func (a *App) Serve(ctx context.Context) error {
	if err := a.requireStore(); err != nil {
		return err
	}
	ctx = a.Context(ctx)
	logger := ctxlog.FromContext(ctx)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("🌐 API server starting.", "address", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if health := a.healthCheckServer(ctx); health != nil {
		g.Go(func() error {
			if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return a.closeHealthCheckServer(ctx, health)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		logger.Info("🌐 Shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	logger.Info("🏁 Server stopped.")
	return err
}
