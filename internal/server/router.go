package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pourhouselabs/barback/internal/auth"
	"github.com/pourhouselabs/barback/internal/batch"
	"github.com/pourhouselabs/barback/internal/catalog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	userIDContextKey = "barback_user_id"
	adminKeyHeader   = "X-Admin-Key"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingAdminAPIKey      = errors.New("admin api key required")
	errMissingBatchService     = errors.New("batch service dependency required")
	errMissingStore            = errors.New("catalog store dependency required")
)

// Dependencies wires the collaborators the HTTP surface needs.
type Dependencies struct {
	SessionValidator *auth.SessionValidator
	AdminAPIKey      string
	BatchService     *batch.Service
	Store            catalog.Store
	RatePerMinute    int
	Logger           *zap.Logger
}

// NewHTTPHandler assembles the admin batch router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.AdminAPIKey == "" {
		return nil, errMissingAdminAPIKey
	}
	if deps.BatchService == nil {
		return nil, errMissingBatchService
	}
	if deps.Store == nil {
		return nil, errMissingStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ratePerMinute := deps.RatePerMinute
	if ratePerMinute <= 0 {
		ratePerMinute = defaultRatePerMinute
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", adminKeyHeader},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions: deps.SessionValidator,
		adminKey: deps.AdminAPIKey,
		service:  deps.BatchService,
		store:    deps.Store,
		limiter:  newRateLimiter(ratePerMinute),
		logger:   logger,
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := router.Group("/admin/batch")
	admin.Use(handler.authorizeAdmin)
	admin.POST("/preview", handler.rateLimit, handler.handlePreview)
	admin.POST("/commit", handler.rateLimit, handler.handleCommit)
	admin.GET("/jobs", handler.handleListJobs)
	admin.GET("/jobs/:jobId", handler.handleGetJob)
	admin.POST("/jobs/:jobId/rollback", handler.handleRollback)
	admin.GET("/list-cocktails", handler.handleListCocktails)
	admin.GET("/list-ingredients", handler.handleListIngredients)

	return router, nil
}

type httpHandler struct {
	sessions *auth.SessionValidator
	adminKey string
	service  *batch.Service
	store    catalog.Store
	limiter  *rateLimiter
	logger   *zap.Logger
}

// authorizeAdmin enforces the two admin gates: a valid session carrying the
// admin role, and the shared admin key header.
func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if !claims.HasRole(auth.RoleAdmin) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin_role_required"})
		return
	}

	supplied := c.GetHeader(adminKeyHeader)
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(h.adminKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid_admin_key"})
		return
	}

	c.Set(userIDContextKey, claims.UserID)
	c.Next()
}

func (h *httpHandler) handlePreview(c *gin.Context) {
	var request batch.Request
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	response, err := h.service.Preview(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleCommit(c *gin.Context) {
	var request batch.CommitRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	request.Actor = c.GetString(userIDContextKey)

	job, err := h.service.Commit(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": job.JobID, "status": job.Status})
}

func (h *httpHandler) handleListJobs(c *gin.Context) {
	jobs, err := h.service.RecentJobs(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	payload := make([]jobPayload, 0, len(jobs))
	for _, job := range jobs {
		payload = append(payload, makeJobPayload(job))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": payload})
}

func (h *httpHandler) handleGetJob(c *gin.Context) {
	job, err := h.service.Job(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, makeJobPayload(job))
}

func (h *httpHandler) handleRollback(c *gin.Context) {
	job, err := h.service.Rollback(c.Request.Context(), c.Param("jobId"), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": job.JobID, "status": job.Status})
}

func (h *httpHandler) handleListCocktails(c *gin.Context) {
	h.handleExport(c, catalog.CollectionCocktails)
}

func (h *httpHandler) handleListIngredients(c *gin.Context) {
	h.handleExport(c, catalog.CollectionIngredients)
}

func (h *httpHandler) handleExport(c *gin.Context, collection string) {
	rows, err := catalog.ExportRows(c.Request.Context(), h.store, collection)
	if err != nil {
		h.logger.Error("export failed", zap.String("collection", collection), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	var validation *batch.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
		return
	}
	if errors.Is(err, batch.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job_not_found"})
		return
	}

	var serviceErr *batch.ServiceError
	if errors.As(err, &serviceErr) {
		h.logger.Error("batch request failed", zap.String("code", serviceErr.Code()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": serviceErr.Code()})
		return
	}

	h.logger.Error("batch request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

type jobPayload struct {
	JobID         string           `json:"jobId"`
	Status        batch.JobStatus  `json:"status"`
	Mode          string           `json:"mode"`
	Collection    string           `json:"collection"`
	Note          string           `json:"note,omitempty"`
	Actor         string           `json:"actor,omitempty"`
	Counts        batch.Counters   `json:"counts"`
	BackupFile    string           `json:"backupFile,omitempty"`
	OriginalJobID string           `json:"originalJobId,omitempty"`
	StartedAt     int64            `json:"startedAt"`
	FinishedAt    *int64           `json:"finishedAt,omitempty"`
	Errors        []batch.JobError `json:"errors,omitempty"`
}

func makeJobPayload(job batch.Job) jobPayload {
	return jobPayload{
		JobID:         job.JobID,
		Status:        job.Status,
		Mode:          job.Mode,
		Collection:    job.Collection,
		Note:          job.Note,
		Actor:         job.Actor,
		Counts:        job.Counts,
		BackupFile:    job.BackupFile,
		OriginalJobID: job.OriginalJobID,
		StartedAt:     job.StartedAtSeconds,
		FinishedAt:    job.FinishedAtSeconds,
		Errors:        job.ErrorList(),
	}
}
