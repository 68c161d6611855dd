// reconciliation-service exposes the allocation ledger maintenance operations
// over HTTP: release of a cancelled document's allocations, orphan cleanup
// against a delivery snapshot, costing migration and the FIFO delivery
// preview. Every request is scoped to the organization named in the
// x-organization-id header.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"bitbucket.org/mmdatafocus/stocklink_backend/utils"
	"bitbucket.org/mmdatafocus/stocklink_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("RECONCILIATION_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("x-organization-id", "x-correlation-id", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(organizationMiddleware())
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/api/release", releaseHandler(logger))
	r.POST("/api/orphan-cleanup", orphanCleanupHandler(logger))
	r.POST("/api/costing-migration", costingMigrationHandler(logger))
	r.GET("/api/fifo-preview", fifoPreviewHandler())
	r.GET("/api/balance", balanceHandler())
	r.GET("/api/allocations", allocationsHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

// organizationMiddleware requires x-organization-id on every API route and
// scopes the request context to it. The gateway's user headers are optional
// and carried along for audit logging.
func organizationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Next()
			return
		}
		organizationId := strings.TrimSpace(c.GetHeader("x-organization-id"))
		if organizationId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "x-organization-id header is required"})
			return
		}
		ctx := utils.SetOrganizationIdInContext(c.Request.Context(), organizationId)
		if userId, err := strconv.Atoi(strings.TrimSpace(c.GetHeader("x-user-id"))); err == nil && userId > 0 {
			ctx = utils.SetUserIdInContext(ctx, userId)
		}
		if userName := strings.TrimSpace(c.GetHeader("x-user-name")); userName != "" {
			ctx = utils.SetUserNameInContext(ctx, userName)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type releaseRequest struct {
	TargetGdId int    `json:"target_gd_id" binding:"required"`
	Reason     string `json:"reason"`
}

func releaseHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req releaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		reason := req.Reason
		if reason == "" {
			reason = "document cancelled"
		}
		result, err := workflow.RunReleaseForCancelledDocument(c.Request.Context(), logger, req.TargetGdId, reason)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type orphanCleanupRequest struct {
	TargetGdId  int    `json:"target_gd_id" binding:"required"`
	TempQtyData string `json:"temp_qty_data"`
	Reason      string `json:"reason"`
}

func orphanCleanupHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req orphanCleanupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		reason := req.Reason
		if reason == "" {
			reason = "orphaned allocation cleanup"
		}
		result, err := workflow.RunOrphanCleanupForDocument(c.Request.Context(), logger, req.TargetGdId, req.TempQtyData, reason)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type costingMigrationRequest struct {
	PlantId      string  `json:"plant_id" binding:"required"`
	MaterialId   int     `json:"material_id" binding:"required"`
	BatchId      *string `json:"batch_id"`
	TargetMethod string  `json:"target_method" binding:"required"`
	DryRun       bool    `json:"dry_run"`
}

func costingMigrationHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req costingMigrationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		target := models.CostingMethod(req.TargetMethod)
		if !target.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target_method must be FIFO or WEIGHTED_AVERAGE"})
			return
		}
		organizationId, _ := utils.GetOrganizationIdFromContext(c.Request.Context())
		key := models.CostKey{
			OrganizationId: organizationId,
			PlantId:        req.PlantId,
			MaterialId:     req.MaterialId,
			BatchId:        req.BatchId,
		}
		var (
			result *workflow.MigrationResult
			err    error
		)
		if req.DryRun {
			result, err = workflow.PlanCostingMigrationForKey(c.Request.Context(), key, target)
		} else {
			result, err = workflow.MigrateCostingForKey(c.Request.Context(), logger, key, target)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"dry_run": req.DryRun, "result": result})
	}
}

func fifoPreviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		materialId, err := strconv.Atoi(c.Query("material_id"))
		if err != nil || materialId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "material_id must be a positive integer"})
			return
		}
		quantity, err := decimal.NewFromString(c.Query("quantity"))
		if err != nil || quantity.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be a non-negative decimal"})
			return
		}
		preview, err := workflow.PreviewFIFOSequences(c.Request.Context(), materialId, quantity)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, preview)
	}
}

func balanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		materialId, err := strconv.Atoi(c.Query("material_id"))
		if err != nil || materialId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "material_id must be a positive integer"})
			return
		}
		key := models.StockKey{
			MaterialId:  materialId,
			BatchId:     models.NormalizeBatch(c.Query("batch_id")),
			BinLocation: strings.TrimSpace(c.Query("bin_location")),
		}
		balance, err := models.GetBalance(c.Request.Context(), key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, balance)
	}
}

func allocationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		materialId, err := strconv.Atoi(c.Query("material_id"))
		if err != nil || materialId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "material_id must be a positive integer"})
			return
		}
		targetGdId, err := strconv.Atoi(c.Query("target_gd_id"))
		if err != nil || targetGdId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target_gd_id must be a positive integer"})
			return
		}
		docLineId, err := strconv.Atoi(c.Query("doc_line_id"))
		if err != nil || docLineId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "doc_line_id must be a positive integer"})
			return
		}
		key := models.StockKey{
			MaterialId:  materialId,
			BatchId:     models.NormalizeBatch(c.Query("batch_id")),
			BinLocation: strings.TrimSpace(c.Query("bin_location")),
		}
		organizationId, _ := utils.GetOrganizationIdFromContext(c.Request.Context())
		rows, err := models.FindAllocated(config.GetDB().WithContext(c.Request.Context()), organizationId, key, targetGdId, docLineId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(rows) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": utils.ErrorRecordNotFound.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"allocations": rows})
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		fields := logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}
		if userId, ok := utils.GetUserIdFromContext(c.Request.Context()); ok {
			fields["user_id"] = userId
		}
		if userName, ok := utils.GetUserNameFromContext(c.Request.Context()); ok {
			fields["user_name"] = userName
		}
		logger.WithFields(fields).Info("request")
	}
}
