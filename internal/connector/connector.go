// Package connector defines the capability surface external source
// collaborators implement. Concrete connectors (filesystem walk, git
// clone, S3) are out of scope for the core; this package also ships a
// deterministic in-process connector used by the ingestion pipeline's own
// tests.
package connector

import (
	"context"

	"github.com/context-harness/harness/models"
)

// Connector scans a source and returns an ordered sequence of SourceItems.
// The pipeline treats the order as meaningful (it is preserved through
// filtering and the "limit" truncation).
type Connector interface {
	// Label identifies the connector and must match SourceItem.Source for
	// every item it returns.
	Label() string
	Scan(ctx context.Context) ([]models.SourceItem, error)
}

// Registry resolves a source label to a Connector at sync time; an unknown
// label is a user-input error.
type Registry struct {
	byLabel map[string]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{byLabel: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.byLabel[c.Label()] = c
	}
	return r
}

func (r *Registry) Lookup(label string) (Connector, bool) {
	c, ok := r.byLabel[label]
	return c, ok
}

// Labels returns every configured connector label, used by the "sources"
// boundary operation.
func (r *Registry) Labels() []string {
	labels := make([]string, 0, len(r.byLabel))
	for label := range r.byLabel {
		labels = append(labels, label)
	}
	return labels
}

// Static is a fixed in-memory connector: it always returns the same slice
// of items regardless of how many times Scan is called. Useful for tests
// and for scripting one-off imports without a real backend.
type Static struct {
	label string
	items []models.SourceItem
}

func NewStatic(label string, items []models.SourceItem) *Static {
	return &Static{label: label, items: items}
}

func (s *Static) Label() string { return s.label }

func (s *Static) Scan(context.Context) ([]models.SourceItem, error) {
	out := make([]models.SourceItem, len(s.items))
	copy(out, s.items)
	return out, nil
}
