package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kavon2323/vitaius-vestra/internal/api/dto"
	"github.com/kavon2323/vitaius-vestra/internal/artifact"
	"github.com/kavon2323/vitaius-vestra/internal/job"
)

// UploadURL handles POST /upload-url
// Issues a presigned PUT URL so clients upload scans directly to the store.
func (h *JobHandler) UploadURL(c *gin.Context) {
	var req dto.UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid upload-url request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "filename is required",
		})
		return
	}

	folder := req.Folder
	if folder == "" {
		folder = h.upload.DefaultFolder
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = h.upload.DefaultContentType
	}
	expiry := h.upload.DefaultExpiry
	if req.ExpiresSec > 0 {
		expiry = time.Duration(req.ExpiresSec) * time.Second
	}
	if expiry > h.upload.MaxExpiry {
		expiry = h.upload.MaxExpiry
	}

	key := artifact.UploadKey(folder, req.Filename)

	signed, err := h.artifacts.SignUpload(c.Request.Context(), key, contentType, expiry)
	if err != nil {
		if errors.Is(err, artifact.ErrSigningUnsupported) {
			h.logger.Error("Object store cannot presign uploads")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "object store not configured for direct uploads",
			})
			return
		}
		h.logger.Error("Failed to presign upload", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to presign upload",
		})
		return
	}

	c.JSON(http.StatusOK, dto.UploadURLResponse{
		URL:     signed.URL,
		Method:  signed.Method,
		Headers: signed.Headers,
		S3Key:   key,
	})
}

// CreateJob handles POST /jobs/new
// Creates a queued job record and pushes its id onto the dispatch queue.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid job request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "s3_key is required",
		})
		return
	}

	params := job.DefaultParams()
	if req.Axis != "" {
		axis, err := job.ParseAxis(req.Axis)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		params.Axis = axis
	}
	if req.BaseOffsetMM != nil {
		params.BaseOffsetMM = *req.BaseOffsetMM
	}
	if req.MoldPaddingMM != nil {
		params.MoldPaddingMM = *req.MoldPaddingMM
	}
	if err := params.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	j := job.New(req.S3Key, params)

	ctx := c.Request.Context()
	if err := h.jobs.Create(ctx, j); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to create job",
		})
		return
	}

	if err := h.jobs.Enqueue(ctx, j.ID); err != nil {
		h.logger.Error("Failed to enqueue job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to enqueue job",
		})
		return
	}

	h.logger.Info("Job created",
		slog.String("job_id", j.ID),
		slog.String("input_key", j.InputKey),
	)

	c.JSON(http.StatusCreated, dto.CreateJobResponse{
		ID:     j.ID,
		Status: string(j.Status),
	})
}

// GetJob handles GET /jobs/:job_id
// Reports the current job record; clients poll this until a terminal state.
func (h *JobHandler) GetJob(c *gin.Context) {
	id := c.Param("job_id")

	j, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, jobToResponse(j))
}

// GetDownloads handles GET /jobs/:job_id/downloads
// Issues signed download URLs for both outputs of a finished job.
func (h *JobHandler) GetDownloads(c *gin.Context) {
	id := c.Param("job_id")

	ctx := c.Request.Context()
	j, err := h.jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to get job",
		})
		return
	}

	if j.Status != job.StatusDone {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "job outputs not ready",
			"status": string(j.Status),
		})
		return
	}

	prosthetic, err := h.artifacts.SignDownload(ctx, j.OutputKeys[job.RoleProsthetic], h.downloadExpiry)
	if err != nil {
		h.signDownloadError(c, id, err)
		return
	}
	mold, err := h.artifacts.SignDownload(ctx, j.OutputKeys[job.RoleMold], h.downloadExpiry)
	if err != nil {
		h.signDownloadError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, dto.DownloadsResponse{
		Prosthetic: prosthetic,
		Mold:       mold,
		ExpiresSec: int(h.downloadExpiry.Seconds()),
	})
}

// Healthz handles GET /healthz
func (h *JobHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"service": h.service,
		"version": h.version,
	})
}

func (h *JobHandler) signDownloadError(c *gin.Context, id string, err error) {
	if errors.Is(err, artifact.ErrSigningUnsupported) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "object store not configured for signed downloads",
		})
		return
	}
	h.logger.Error("Failed to presign download",
		slog.String("job_id", id),
		slog.String("error", err.Error()),
	)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "failed to presign download",
	})
}

func jobToResponse(j *job.Job) dto.JobResponse {
	resp := dto.JobResponse{
		ID:        j.ID,
		Status:    string(j.Status),
		CreatedAt: j.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339Nano),
		InputKey:  j.InputKey,
		Params: dto.ParamsDTO{
			Axis:          string(j.Params.Axis),
			BaseOffsetMM:  j.Params.BaseOffsetMM,
			MoldPaddingMM: j.Params.MoldPaddingMM,
		},
	}
	if len(j.OutputKeys) > 0 {
		resp.OutputKeys = j.OutputKeys
	}
	if j.Error != "" {
		msg := j.Error
		resp.Error = &msg
	}
	return resp
}
