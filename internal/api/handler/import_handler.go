package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/noisewatch/internal/domain"
	"github.com/timmy/noisewatch/internal/service"
)

// ImportController is the coordinator surface the handler depends on.
type ImportController interface {
	AddImportJob(station, filePath string, priority domain.Priority) (string, error)
	AddDirectoryImport(station, dirPath string, priority domain.Priority) ([]string, error)
	StartBulkImport() (*service.BulkResult, error)
	GetStatus() *service.Status
	CancelJob(jobID string) bool
	Pause()
	Resume()
}

// ImportHandler exposes the coordinator's control surface as JSON.
type ImportHandler struct {
	coordinator ImportController
}

// NewImportHandler creates a new import handler.
func NewImportHandler(coordinator ImportController) *ImportHandler {
	return &ImportHandler{coordinator: coordinator}
}

type addJobRequest struct {
	Station  string `json:"station"`
	FilePath string `json:"filePath"`
	Priority string `json:"priority"`
}

// AddJob schedules a single file import.
func (h *ImportHandler) AddJob(c *gin.Context) {
	var req addJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	priority, ok := domain.ParsePriority(req.Priority)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown priority: " + req.Priority})
		return
	}

	jobID, err := h.coordinator.AddImportJob(req.Station, req.FilePath, priority)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidArgument) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}

type addDirectoryRequest struct {
	Station  string `json:"station"`
	DirPath  string `json:"dirPath"`
	Priority string `json:"priority"`
}

// AddDirectory schedules imports for every eligible file in a directory.
func (h *ImportHandler) AddDirectory(c *gin.Context) {
	var req addDirectoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	priority, ok := domain.ParsePriority(req.Priority)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown priority: " + req.Priority})
		return
	}

	ids, err := h.coordinator.AddDirectoryImport(req.Station, req.DirPath, priority)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidArgument) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobIds": ids})
}

// Bulk schedules directory imports for every configured station.
func (h *ImportHandler) Bulk(c *gin.Context) {
	result, err := h.coordinator.StartBulkImport()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"jobIds":            result.JobIDs,
		"estimatedDuration": result.EstimatedDuration.Milliseconds(),
	})
}

// Status returns active, queued, and recent jobs plus aggregate stats.
func (h *ImportHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.coordinator.GetStatus())
}

// Cancel removes a queued job. Active and terminal jobs report
// cancelled=false.
func (h *ImportHandler) Cancel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cancelled": h.coordinator.CancelJob(c.Param("id"))})
}

// Pause stops the worker pool from starting new jobs.
func (h *ImportHandler) Pause(c *gin.Context) {
	h.coordinator.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// Resume restarts dequeuing.
func (h *ImportHandler) Resume(c *gin.Context) {
	h.coordinator.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}
