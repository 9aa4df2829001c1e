package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/magicaleks/onionfetch/internal/domain"
	"github.com/magicaleks/onionfetch/internal/impls"
)

const (
	archiveName      = "videos.zip"
	msgInvalidBody   = "Request body must be a JSON array of links."
	headerBatchID    = "X-Batch-ID"
	contentTypeOctet = "application/octet-stream"
)

type statusResponse struct {
	domain.Progress
	Percentage float64 `json:"percentage"`
	Finished   bool    `json:"finished"`
}

type API struct {
	batches impls.BatchRunner
	logger  *zap.Logger
}

func NewAPI(batches impls.BatchRunner, logger *zap.Logger) *API {
	return &API{batches: batches, logger: logger}
}

func (a *API) RegisterRoutes(router *gin.Engine, secret string) {
	router.GET("/ping", a.ping)

	api := router.Group("/api/download")
	if secret != "" {
		api.Use(authMiddleware(secret))
	}
	api.POST("/tiktok", a.download)
	api.GET("/status", a.status)
}

func (a *API) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) download(c *gin.Context) {
	var links []string
	if err := c.ShouldBindJSON(&links); err != nil {
		a.logger.Warn("download: invalid payload", zap.Error(err))
		c.String(http.StatusBadRequest, msgInvalidBody)
		return
	}

	// The batch owns a daemon and subprocesses; a dropped client must not
	// leave them half torn down.
	ctx := context.WithoutCancel(c.Request.Context())
	result := a.batches.Download(ctx, links)

	if result.BatchID != "" {
		c.Header(headerBatchID, result.BatchID)
	}

	switch result.Kind {
	case domain.ResultArchive:
		c.Header("Content-Disposition", `attachment; filename="`+archiveName+`"`)
		c.Data(http.StatusOK, contentTypeOctet, result.Archive)
	case domain.ResultBusy:
		c.String(http.StatusConflict, result.Summary)
	case domain.ResultPackFailed:
		c.String(http.StatusInternalServerError, result.Summary)
	default:
		c.String(http.StatusBadRequest, result.Summary)
	}
}

func (a *API) status(c *gin.Context) {
	p := a.batches.Progress()
	c.JSON(http.StatusOK, statusResponse{
		Progress:   p,
		Percentage: p.Percentage(),
		Finished:   p.State.Finished(),
	})
}
