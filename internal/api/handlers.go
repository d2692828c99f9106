package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

// Jobs is the job-control surface of the orchestrator.
type Jobs interface {
	Start(operation string) (*domain.CrawlJob, error)
	StartCustom(req domain.CustomCrawlRequest) (*domain.CrawlJob, error)
	GetStatus(id string) (*domain.CrawlJob, error)
	List() []*domain.CrawlJob
	Abort(id string) error
	Wait(ctx context.Context, id string) (*domain.CrawlJob, error)
	Sources(ctx context.Context) []domain.ContentSource
}

// RouterConfig wires the routes.
type RouterConfig struct {
	Service   string
	Version   string
	JWTSecret string
	Jobs      Jobs
	// Checks run on /health/ready.
	Checks  map[string]Check
	Metrics http.Handler
}

type handler struct {
	jobs Jobs
}

type startJobRequest struct {
	Operation string `json:"operation" binding:"required"`
}

type customCrawlRequest struct {
	Type   string `json:"type"    binding:"required"`
	URL    string `json:"url"     binding:"required"`
	Limit  int    `json:"limit"`
	DryRun bool   `json:"dry_run"`
}

type jobStatusResponse struct {
	JobID     string           `json:"job_id"`
	Operation domain.Operation `json:"operation"`
	Status    domain.JobStatus `json:"status"`
	Progress  int              `json:"progress"`
	Message   string           `json:"message"`
	Stage     string           `json:"stage,omitempty"`
	Stats     *domain.JobStats `json:"stats,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt string           `json:"created_at"`
}

func statusResponse(j *domain.CrawlJob) jobStatusResponse {
	return jobStatusResponse{
		JobID:     j.ID,
		Operation: j.Operation,
		Status:    j.Status,
		Progress:  j.Progress,
		Message:   j.Message,
		Stage:     j.Stage,
		Stats:     j.Stats,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// SetupRoutes registers health, metrics and the /api/v1 group.
func SetupRoutes(router *gin.Engine, cfg RouterConfig) {
	health := &healthHandler{service: cfg.Service, version: cfg.Version, started: time.Now(), checks: cfg.Checks}
	router.GET("/health", health.liveness)
	router.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/health/ready", health.readiness)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	h := &handler{jobs: cfg.Jobs}
	v1 := router.Group("/api/v1")
	if cfg.JWTSecret != "" {
		v1.Use(JWTMiddleware(cfg.JWTSecret))
	}

	v1.POST("/jobs", h.startJob)
	v1.GET("/jobs", h.listJobs)
	v1.GET("/jobs/:id", h.getJob)
	v1.POST("/jobs/:id/abort", h.abortJob)
	v1.POST("/crawl/custom", h.customCrawl)
	v1.GET("/sources", h.listSources)
}

func (h *handler) startJob(c *gin.Context) {
	var req startJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "operation is required")
		return
	}
	j, err := h.jobs.Start(req.Operation)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": j.ID, "status": j.Status})
}

func (h *handler) getJob(c *gin.Context) {
	j, err := h.jobs.GetStatus(c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse(j))
}

func (h *handler) listJobs(c *gin.Context) {
	jobs := h.jobs.List()
	out := make([]jobStatusResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, statusResponse(j))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out, "count": len(out)})
}

func (h *handler) abortJob(c *gin.Context) {
	if err := h.jobs.Abort(c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": c.Param("id"), "message": "abort requested"})
}

func (h *handler) customCrawl(c *gin.Context) {
	var req customCrawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "type and url are required")
		return
	}
	kind, err := domain.ParseCustomCrawlKind(req.Type)
	if err != nil {
		respondErr(c, err)
		return
	}

	j, err := h.jobs.StartCustom(domain.CustomCrawlRequest{Kind: kind, Target: req.URL, Limit: req.Limit, DryRun: req.DryRun})
	if err != nil {
		respondErr(c, err)
		return
	}

	wait, _ := strconv.ParseBool(c.Query("wait"))
	if !wait {
		c.JSON(http.StatusAccepted, gin.H{"job_id": j.ID, "status": j.Status})
		return
	}

	final, err := h.jobs.Wait(c.Request.Context(), j.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if final.Status == domain.JobFailed {
		status := http.StatusBadGateway
		if final.Message == "timed out" {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"job_id": final.ID, "error": final.Error})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":     final.ID,
		"status":     final.Status,
		"stats":      final.Stats,
		"candidates": final.Result,
		"count":      len(final.Result),
	})
}

func (h *handler) listSources(c *gin.Context) {
	sources := h.jobs.Sources(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"sources": sources, "count": len(sources)})
}
