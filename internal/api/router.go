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

// Package api exposes the generation service over HTTP with gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-script-factory/internal/core/services"
)

// UserHeader carries the caller's opaque user id.
const UserHeader = "X-User-Id"

const userKey = "user_id"

// VoiceSynthesizer turns text into speech.
type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, text string) (*services.Audio, error)
}

// HistoryLister lists a user's persisted records.
type HistoryLister interface {
	List(ctx context.Context, userID string, limit int) ([]*services.HistoryRow, error)
}

// Handlers holds what the routes need. Exporter, Voice and History are
// optional; their routes answer 503 when they are missing.
type Handlers struct {
	Generations *services.GenerationService
	Exporter    *services.Exporter
	Voice       VoiceSynthesizer
	History     HistoryLister
	Now         func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// NewRouter builds the engine with tracing, CORS and every /api/v1 route.
func NewRouter(serviceName string, h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowHeaders(UserHeader)
	r.Use(cors.New(corsConfig))

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/styles", h.styles)

		user := apiV1.Group("", Identity())
		GenerationRouter(user, h)
		user.GET("/credits", h.credits)
		user.POST("/voice", h.voice)
		user.GET("/history", h.history)
		Dashboard(apiV1, h)
	}
	return r
}

// Identity rejects requests without a user id and stores it on the context.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + UserHeader + " header"})
			return
		}
		c.Set(userKey, userID)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(userKey)
}
