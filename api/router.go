// Package api exposes the harness core over HTTP: the same search, get, and
// sources operations as the CLI, behind a gin router.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/context-harness/harness/internal/connector"
	"github.com/context-harness/harness/internal/embedding"
	"github.com/context-harness/harness/internal/search"
	"github.com/context-harness/harness/internal/store"
)

// Deps carries everything the handlers need; built once at startup and
// shared across requests. Store and Engine are safe for concurrent use.
type Deps struct {
	Store      store.Store
	Engine     *search.Engine
	Embedder   embedding.Provider
	Connectors *connector.Registry
	Retrieval  RetrievalDefaults
	Log        zerolog.Logger
}

// RetrievalDefaults is the configured tuning applied to every search
// request the HTTP boundary shapes: the hybrid weight, per-channel
// candidate counts, and the result limit used when the caller omits one.
type RetrievalDefaults struct {
	Alpha      float64
	KKeyword   int64
	KVector    int64
	FinalLimit int64
}

// NewRouter builds the gin engine with recovery/logging middleware and the
// harness route table mounted under /api/v1.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(deps.Log))

	r.GET("/health", healthHandler)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/search", searchHandler(deps))
		v1.GET("/documents/:id", getDocumentHandler(deps))
		v1.GET("/sources", sourcesHandler(deps))
	}

	return r
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("request")
	}
}
