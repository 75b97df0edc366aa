// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/services"
)

// GenerationRouter registers the routes of the caller's current session.
func GenerationRouter(r *gin.RouterGroup, h *Handlers) {
	generations := r.Group("/generations")
	{
		generations.POST("", h.start)
		generations.GET("/current", h.current)
		generations.POST("/current/cancel", h.cancel)
		generations.DELETE("/current", h.reset)
		generations.GET("/current/export/:index", h.export)
	}
}

func (h *Handlers) start(c *gin.Context) {
	var req model.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "kind": model.FailureValidation})
		return
	}
	req.UserID = userID(c)
	// Request ids key the caller's debit and refund, so they are never taken
	// from the client.
	req.RequestID = uuid.NewString()

	err := h.Generations.Start(c.Request.Context(), &req)
	var failure *model.Failure
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"request_id": req.RequestID, "variant": req.Variant})
	case errors.Is(err, model.ErrSessionRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInsufficientCredit) && errors.As(err, &failure):
		c.JSON(http.StatusPaymentRequired, failure)
	case errors.As(err, &failure) && failure.Kind == model.FailureValidation:
		c.JSON(http.StatusBadRequest, failure)
	default:
		slog.ErrorContext(c.Request.Context(), "failed to start generation", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start generation"})
	}
}

func (h *Handlers) current(c *gin.Context) {
	c.JSON(http.StatusOK, h.Generations.Snapshot(userID(c)))
}

func (h *Handlers) cancel(c *gin.Context) {
	if !h.Generations.Cancel(userID(c)) {
		c.JSON(http.StatusConflict, gin.H{"error": "no generation is running"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"cancelled": true})
}

func (h *Handlers) reset(c *gin.Context) {
	if err := h.Generations.Reset(userID(c)); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) export(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be a number"})
		return
	}
	record, ok := h.Generations.Session(userID(c)).Result(index)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no result at index %d", index)})
		return
	}
	export, err := services.RenderExport(record, c.DefaultQuery("format", services.FormatTXT), h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.Query("upload") == "true" {
		signedURL, err := h.Exporter.Upload(c.Request.Context(), userID(c), export)
		if errors.Is(err, services.ErrExportDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to upload export", "user_id", userID(c), "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to upload export"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": signedURL, "file_name": export.FileName})
		return
	}

	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(export.FileName))
	c.Data(http.StatusOK, export.ContentType, export.Body)
}

func (h *Handlers) credits(c *gin.Context) {
	balance, err := h.Generations.Balance(c.Request.Context(), userID(c))
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to read balance", "user_id", userID(c), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read balance"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

type voiceRequest struct {
	Text string `json:"text"`
}

func (h *Handlers) voice(c *gin.Context) {
	if h.Voice == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "voice synthesis is not configured"})
		return
	}
	var in voiceRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	audio, err := h.Voice.Synthesize(c.Request.Context(), in.Text)
	var upstream *services.UpstreamError
	switch {
	case err == nil:
		c.Data(http.StatusOK, audio.MIMEType, audio.Data)
	case errors.Is(err, services.ErrEmptyText):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &upstream):
		c.Data(upstream.Status, "text/plain; charset=utf-8", []byte(upstream.Body))
	default:
		slog.ErrorContext(c.Request.Context(), "voice synthesis failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "voice server unreachable"})
	}
}

func (h *Handlers) history(c *gin.Context) {
	if h.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is not configured"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultHistoryLimit)))
	if err != nil {
		limit = services.DefaultHistoryLimit
	}
	rows, err := h.History.List(c.Request.Context(), userID(c), limit)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to list history", "user_id", userID(c), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list history"})
		return
	}
	c.JSON(http.StatusOK, rows)
}
