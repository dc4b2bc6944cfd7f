package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"autodl/internal/logs"
	"autodl/internal/task"
)

type downloadRequest struct {
	URL             string `json:"url" form:"url"`
	AudioOnly       bool   `json:"audio_only" form:"audio_only"`
	OutputDirectory string `json:"output_directory" form:"output_directory"`
	Subdirectory    string `json:"subdirectory" form:"subdirectory"`
}

func (r downloadRequest) toTask() task.DownloadRequest {
	return task.DownloadRequest{
		URL:             r.URL,
		AudioOnly:       r.AudioOnly,
		OutputDirectory: r.OutputDirectory,
		Subdirectory:    r.Subdirectory,
	}
}

type submitResponse struct {
	TaskID  string      `json:"task_id"`
	Status  task.Status `json:"status"`
	LogFile string      `json:"log_file"`
}

type API struct {
	taskManager *task.Manager
	logStore    *logs.Store
	submitLimit gin.HandlerFunc
}

// NewAPI wires handlers to the task manager and the log store. submitPerMinute limits
// task submissions across all clients; zero disables the limit.
func NewAPI(taskManager *task.Manager, logStore *logs.Store, submitPerMinute int) *API {
	return &API{
		taskManager: taskManager,
		logStore:    logStore,
		submitLimit: RateLimit(submitPerMinute),
	}
}

// RegisterRoutes registers JSON API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/tasks", a.ListTasks)
		api.POST("/tasks", a.submitLimit, a.SubmitDownload)
		api.POST("/update", a.submitLimit, a.SubmitSelfUpdate)
		api.GET("/logs", a.ListLogs)
		api.GET("/logs/:name", a.GetLog)
		api.DELETE("/logs/:name", a.DeleteLog)
	}
}

// ListTasks returns the tasks currently running
func (a *API) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": a.taskManager.List()})
}

// SubmitDownload starts a download task from a JSON body
func (a *API) SubmitDownload(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("invalid download request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	h, err := a.taskManager.SubmitDownload(req.toTask())
	if err != nil {
		status := submitErrorStatus(err)
		log.Warn().Err(err).Str("output_directory", req.OutputDirectory).Int("status", status).Msg("download rejected")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, submitResponse{TaskID: h.ID(), Status: h.Status(), LogFile: h.ID() + logs.Ext})
}

// SubmitSelfUpdate starts a downloader self-update task
func (a *API) SubmitSelfUpdate(c *gin.Context) {
	h, err := a.taskManager.SubmitSelfUpdate()
	if err != nil {
		log.Error().Err(err).Msg("self update rejected")
		c.JSON(submitErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, submitResponse{TaskID: h.ID(), Status: h.Status(), LogFile: h.ID() + logs.Ext})
}

// ListLogs returns log file metadata, newest first
func (a *API) ListLogs(c *gin.Context) {
	entries, err := a.logStore.List()
	if err != nil {
		log.Error().Err(err).Str("dir", a.logStore.Dir()).Msg("listing logs failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

// GetLog returns a log file as plain text
func (a *API) GetLog(c *gin.Context) {
	text, err := a.logStore.Read(c.Param("name"))
	if err != nil {
		c.JSON(logErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, text)
}

// DeleteLog removes one log file, or every log file for name "all"
func (a *API) DeleteLog(c *gin.Context) {
	name := c.Param("name")
	if err := a.logStore.Delete(name); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("deleting log failed")
		c.JSON(logErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func submitErrorStatus(err error) int {
	if errors.Is(err, task.ErrValidation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func logErrorStatus(err error) int {
	switch {
	case errors.Is(err, logs.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, logs.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
