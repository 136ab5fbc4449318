package handler

import (
	"log/slog"
	"time"

	"github.com/kavon2323/vitaius-vestra/internal/artifact"
	"github.com/kavon2323/vitaius-vestra/internal/jobstore"
)

// UploadConfig holds the defaults applied to upload-credential requests.
type UploadConfig struct {
	DefaultFolder      string
	DefaultContentType string
	DefaultExpiry      time.Duration
	MaxExpiry          time.Duration
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	Jobs           *jobstore.Store
	Artifacts      artifact.Store
	Upload         UploadConfig
	DownloadExpiry time.Duration
	Service        string
	Version        string
}

// JobHandler handles job and upload HTTP requests
type JobHandler struct {
	logger         *slog.Logger
	jobs           *jobstore.Store
	artifacts      artifact.Store
	upload         UploadConfig
	downloadExpiry time.Duration
	service        string
	version        string
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	upload := deps.Upload
	if upload.DefaultFolder == "" {
		upload.DefaultFolder = "scans"
	}
	if upload.DefaultContentType == "" {
		upload.DefaultContentType = "application/octet-stream"
	}
	if upload.DefaultExpiry <= 0 {
		upload.DefaultExpiry = time.Hour
	}
	if upload.MaxExpiry <= 0 {
		upload.MaxExpiry = 24 * time.Hour
	}

	downloadExpiry := deps.DownloadExpiry
	if downloadExpiry <= 0 {
		downloadExpiry = time.Hour
	}

	return &JobHandler{
		logger:         deps.Logger,
		jobs:           deps.Jobs,
		artifacts:      deps.Artifacts,
		upload:         upload,
		downloadExpiry: downloadExpiry,
		service:        deps.Service,
		version:        deps.Version,
	}
}
