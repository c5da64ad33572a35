package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/context-harness/harness/internal/apperr"
	"github.com/context-harness/harness/internal/search"
)

// errorEnvelope is the wire shape for every non-2xx response.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(c *gin.Context, err error) {
	appErr, ok := err.(*apperr.Error)
	if !ok {
		appErr = apperr.Internal("unexpected error", err)
	}

	var status int
	switch appErr.Code() {
	case apperr.CodeBadRequest:
		status = http.StatusBadRequest
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeEmbeddingsDisabled:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	var env errorEnvelope
	env.Error.Code = string(appErr.Code())
	env.Error.Message = appErr.Error()
	c.JSON(status, env)
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// searchRequest is the search endpoint's request body.
type searchRequest struct {
	Query   string `json:"query" binding:"required"`
	Mode    string `json:"mode"`
	Limit   int64  `json:"limit"`
	Filters struct {
		Source string `json:"source"`
		Since  string `json:"since"`
	} `json:"filters"`
	Explain bool `json:"explain"`
}

func searchHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body searchRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			writeError(c, apperr.UserInput("malformed search request: %v", err))
			return
		}

		mode := search.Mode(body.Mode)
		if mode == "" {
			mode = search.ModeKeyword
		}

		req := search.Request{
			Query:      body.Query,
			Mode:       mode,
			Source:     body.Filters.Source,
			Since:      body.Filters.Since,
			Alpha:      deps.Retrieval.Alpha,
			KKeyword:   deps.Retrieval.KKeyword,
			KVector:    deps.Retrieval.KVector,
			FinalLimit: body.Limit,
			Explain:    body.Explain,
		}
		if req.FinalLimit <= 0 {
			req.FinalLimit = deps.Retrieval.FinalLimit
		}

		if mode == search.ModeSemantic || mode == search.ModeHybrid {
			vectors, err := deps.Embedder.Embed(c.Request.Context(), []string{body.Query})
			if err != nil {
				writeError(c, err)
				return
			}
			req.QueryVector = vectors[0]
		}

		results, err := deps.Engine.Search(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, results)
	}
}

func getDocumentHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		doc, err := deps.Store.GetDocument(c.Request.Context(), id)
		if err != nil {
			writeError(c, apperr.Internal("get document", err))
			return
		}
		if doc == nil {
			writeError(c, apperr.NotFound("no document with id %q", id))
			return
		}

		c.JSON(http.StatusOK, doc)
	}
}

// sourceStatus is one entry in the sources listing.
type sourceStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Healthy    bool   `json:"healthy"`
	Notes      string `json:"notes,omitempty"`
}

func sourcesHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		labels := deps.Connectors.Labels()
		sort.Strings(labels)

		statuses := make([]sourceStatus, 0, len(labels))
		for _, label := range labels {
			statuses = append(statuses, sourceStatus{Name: label, Configured: true, Healthy: true})
		}

		c.JSON(http.StatusOK, statuses)
	}
}
