// Package pipeline implements the ingestion pipeline: resolving a source's
// checkpoint, scanning its connector, filtering, per-item document/chunk
// upsert with atomic chunk replacement, optional inline embedding, and
// checkpoint advance. It also implements the embed-pending and
// embed-rebuild maintenance operations.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/context-harness/harness/internal/apperr"
	"github.com/context-harness/harness/internal/chunk"
	"github.com/context-harness/harness/internal/connector"
	"github.com/context-harness/harness/internal/embedding"
	"github.com/context-harness/harness/internal/extract"
	"github.com/context-harness/harness/internal/store"
	"github.com/context-harness/harness/models"
)

// maxEmbedBatchConcurrency bounds how many embedding batches run
// concurrently within a single item's inline-embed step.
const maxEmbedBatchConcurrency = 4

// Config carries the tuning the pipeline needs from the application config
// that is independent of any single sync call.
type Config struct {
	ChunkMaxTokens int
	EmbedBatchSize int
}

// Pipeline orchestrates sync runs and embedding maintenance operations
// against a Store.
type Pipeline struct {
	store      store.Store
	connectors *connector.Registry
	extractor  extract.Extractor
	embedder   embedding.Provider
	cfg        Config
	log        zerolog.Logger
}

func New(s store.Store, connectors *connector.Registry, extractor extract.Extractor, embedder embedding.Provider, cfg Config, log zerolog.Logger) *Pipeline {
	if extractor == nil {
		extractor = extract.None{}
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 16
	}
	if cfg.ChunkMaxTokens <= 0 {
		cfg.ChunkMaxTokens = 700
	}
	return &Pipeline{store: s, connectors: connectors, extractor: extractor, embedder: embedder, cfg: cfg, log: log}
}

// SyncOptions controls a single Sync run.
type SyncOptions struct {
	Full   bool
	DryRun bool
	Since  string // YYYY-MM-DD, inclusive from 00:00:00 UTC
	Until  string // YYYY-MM-DD, inclusive through 23:59:59 UTC
	Limit  int
}

// Summary reports what a Sync run fetched, wrote, and skipped.
type Summary struct {
	Fetched           int    `json:"fetched"`
	DocsUpserted      int    `json:"docs_upserted"`
	ChunksWritten     int    `json:"chunks_written"`
	EmbeddingsWritten int    `json:"embeddings_written"`
	EmbeddingsPending int    `json:"embeddings_pending"`
	ExtractionSkipped int    `json:"extraction_skipped"`
	Checkpoint        string `json:"checkpoint"`
}

// Sync runs one ingestion cycle for sourceLabel: checkpoint resolve, scan,
// filter, per-item upsert, checkpoint advance.
func (p *Pipeline) Sync(ctx context.Context, sourceLabel string, opts SyncOptions) (Summary, error) {
	conn, ok := p.connectors.Lookup(sourceLabel)
	if !ok {
		return Summary{}, apperr.UserInput("unknown connector %q", sourceLabel)
	}

	cursor, err := p.store.GetCheckpoint(ctx, sourceLabel)
	if err != nil {
		return Summary{}, apperr.Internal("read checkpoint", err)
	}
	storedTS := parseCursor(cursor)

	// full bypasses checkpoint filtering; max_updated still starts from
	// the stored cursor.
	var checkpointTS int64
	if !opts.Full {
		checkpointTS = storedTS
	}

	items, err := conn.Scan(ctx)
	if err != nil {
		return Summary{}, apperr.Internal("connector scan failed", err)
	}

	var sinceTS, untilTS int64
	hasSince, hasUntil := false, false
	if opts.Since != "" {
		t, perr := time.Parse("2006-01-02", opts.Since)
		if perr != nil {
			return Summary{}, apperr.UserInput("malformed since date %q: %v", opts.Since, perr)
		}
		sinceTS = t.UTC().Unix()
		hasSince = true
	}
	if opts.Until != "" {
		t, perr := time.Parse("2006-01-02", opts.Until)
		if perr != nil {
			return Summary{}, apperr.UserInput("malformed until date %q: %v", opts.Until, perr)
		}
		untilTS = t.UTC().Add(24*time.Hour - time.Second).Unix()
		hasUntil = true
	}

	filtered := make([]models.SourceItem, 0, len(items))
	for _, item := range items {
		if !opts.Full && item.UpdatedAt <= checkpointTS {
			continue
		}
		if hasSince && item.UpdatedAt < sinceTS {
			continue
		}
		if hasUntil && item.UpdatedAt > untilTS {
			continue
		}
		filtered = append(filtered, item)
	}
	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}

	summary := Summary{Fetched: len(filtered)}

	if opts.DryRun {
		chunkCount := 0
		for _, item := range filtered {
			body, _, skipped := p.extractBody(item)
			if skipped {
				summary.ExtractionSkipped++
				continue
			}
			chunkCount += len(chunk.Split(uuid.NewString(), body, p.cfg.ChunkMaxTokens))
		}
		summary.ChunksWritten = chunkCount
		return summary, nil
	}

	maxUpdated := storedTS
	for _, item := range filtered {
		body, item, skipped := p.extractItem(item)
		if skipped {
			summary.ExtractionSkipped++
			continue
		}

		if err := p.upsertItem(ctx, item, body, &summary); err != nil {
			return Summary{}, err
		}
		if item.UpdatedAt > maxUpdated {
			maxUpdated = item.UpdatedAt
		}
	}

	summary.Checkpoint = fmt.Sprintf("%d", maxUpdated)
	if err := p.store.SetCheckpoint(ctx, sourceLabel, summary.Checkpoint, time.Now().Unix()); err != nil {
		return Summary{}, apperr.Internal("advance checkpoint", err)
	}
	return summary, nil
}

// extractBody is the dry-run-only variant of extractItem that discards the
// normalized item, used solely to estimate chunk counts without mutating
// state.
func (p *Pipeline) extractBody(item models.SourceItem) (body string, _ models.SourceItem, skipped bool) {
	body, _, skipped = p.extractItem(item)
	return body, item, skipped
}

// extractItem runs the external extractor when the item carries raw bytes
// instead of a body. Extraction failure is a per-item drop, never a sync
// abort.
func (p *Pipeline) extractItem(item models.SourceItem) (body string, out models.SourceItem, skipped bool) {
	if item.Body != "" || len(item.RawBytes) == 0 {
		return item.Body, item, false
	}
	text, err := p.extractor.Extract(item.RawBytes, extract.ContentType(item.ContentType))
	if err != nil {
		p.log.Warn().Str("source", item.Source).Str("source_id", item.SourceID).Err(err).Msg("extraction failed, dropping item")
		return "", item, true
	}
	item.Body = text
	return item.Body, item, false
}

// upsertItem runs one per-item transaction: dedup hash,
// document upsert, chunking, atomic chunk replacement, and inline embed.
func (p *Pipeline) upsertItem(ctx context.Context, item models.SourceItem, body string, summary *Summary) error {
	dedupHash := dedupHash(item.Source, item.SourceID, item.UpdatedAt, body)

	docID, exists, err := p.store.FindDocumentIDBySource(ctx, item.Source, item.SourceID)
	if err != nil {
		return apperr.Internal("lookup document by source", err)
	}
	if !exists {
		docID = uuid.NewString()
	}

	doc := &models.Document{
		ID:          docID,
		Source:      item.Source,
		SourceID:    item.SourceID,
		SourceURL:   item.SourceURL,
		Title:       item.Title,
		Author:      item.Author,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
		ContentType: item.ContentType,
		Body:        body,
		Metadata:    item.Metadata,
		Raw:         item.Raw,
		DedupHash:   dedupHash,
	}
	if _, err := p.store.UpsertDocument(ctx, doc); err != nil {
		return apperr.Internal("upsert document", err)
	}
	summary.DocsUpserted++

	chunks := chunk.Split(docID, body, p.cfg.ChunkMaxTokens)
	if err := p.store.ReplaceChunks(ctx, docID, chunks, nil); err != nil {
		return apperr.Internal("replace chunks", err)
	}
	summary.ChunksWritten += len(chunks)

	if p.embedder != nil && p.embedder.ModelName() != "disabled" {
		written, pending := p.embedInline(ctx, docID, chunks)
		summary.EmbeddingsWritten += written
		summary.EmbeddingsPending += pending
	}
	return nil
}

// embedInline embeds chunks whose content hash no longer matches the
// stored embedding's hash, batching the remainder into groups of
// cfg.EmbedBatchSize and dispatching up to maxEmbedBatchConcurrency
// batches concurrently. Any batch failure increments the pending counter
// rather than aborting the sync.
func (p *Pipeline) embedInline(ctx context.Context, docID string, chunks []models.Chunk) (written, pending int) {
	model := p.embedder.ModelName()
	dims := p.embedder.Dims()

	var stale []models.Chunk
	for _, c := range chunks {
		hash, ok, err := p.store.EmbeddingHash(ctx, c.ID, model)
		if err == nil && ok && hash == c.Hash {
			continue
		}
		stale = append(stale, c)
	}
	if len(stale) == 0 {
		return 0, 0
	}

	batches := batchChunks(stale, p.cfg.EmbedBatchSize)

	sem := semaphore.NewWeighted(maxEmbedBatchConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	type result struct {
		written int
		pending int
	}
	results := make([]result, len(batches))

	for i, batch := range batches {
		i, batch := i, batch
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			texts := make([]string, len(batch))
			for j, c := range batch {
				texts[j] = c.Text
			}
			vectors, err := p.embedder.Embed(gctx, texts)
			if err != nil {
				p.log.Warn().Str("document_id", docID).Int("batch_size", len(batch)).Err(err).Msg("embedding batch failed, marking pending")
				results[i].pending = len(batch)
				return nil
			}
			for j, c := range batch {
				if j >= len(vectors) {
					results[i].pending++
					continue
				}
				if err := p.store.UpsertEmbedding(gctx, c.ID, docID, vectors[j], model, dims, c.Hash); err != nil {
					p.log.Warn().Str("chunk_id", c.ID).Err(err).Msg("upsert embedding failed, marking pending")
					results[i].pending++
					continue
				}
				results[i].written++
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		written += r.written
		pending += r.pending
	}
	return written, pending
}

func batchChunks(chunks []models.Chunk, batchSize int) [][]models.Chunk {
	var out [][]models.Chunk
	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		out = append(out, chunks[i:end])
	}
	return out
}

func parseCursor(cursor string) int64 {
	if cursor == "" {
		return 0
	}
	var ts int64
	if _, err := fmt.Sscanf(cursor, "%d", &ts); err != nil {
		return 0
	}
	return ts
}

// dedupHash computes SHA-256(source || source_id || updated_at || body)
// with updated_at encoded as little-endian int64 bytes.
func dedupHash(source, sourceID string, updatedAt int64, body string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte(sourceID))
	var tsBytes [8]byte
	binary.LittleEndian.PutUint64(tsBytes[:], uint64(updatedAt))
	h.Write(tsBytes[:])
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

// EmbedPendingResult is returned by EmbedPending.
type EmbedPendingResult struct {
	TotalPending int `json:"total_pending"`
	Embedded     int `json:"embedded"`
	Failed       int `json:"failed"`
}

// EmbedPending finds every chunk with no embedding row, or a stale one,
// for the configured model and embeds it in batches.
func (p *Pipeline) EmbedPending(ctx context.Context, limit, batchSize int, dryRun bool) (EmbedPendingResult, error) {
	if p.embedder == nil || p.embedder.ModelName() == "disabled" {
		return EmbedPendingResult{}, apperr.EmbeddingsDisabled()
	}
	if batchSize <= 0 {
		batchSize = p.cfg.EmbedBatchSize
	}

	all, err := p.store.ListChunks(ctx)
	if err != nil {
		return EmbedPendingResult{}, apperr.Internal("list chunks", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	model := p.embedder.ModelName()
	dims := p.embedder.Dims()

	var pending []models.Chunk
	for _, c := range all {
		hash, ok, err := p.store.EmbeddingHash(ctx, c.ID, model)
		if err == nil && ok && hash == c.Hash {
			continue
		}
		pending = append(pending, c)
		if limit > 0 && len(pending) >= limit {
			break
		}
	}

	result := EmbedPendingResult{TotalPending: len(pending)}
	if dryRun || len(pending) == 0 {
		return result, nil
	}

	for _, batch := range batchChunks(pending, batchSize) {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			result.Failed += len(batch)
			continue
		}
		for i, c := range batch {
			if i >= len(vectors) {
				result.Failed++
				continue
			}
			if err := p.store.UpsertEmbedding(ctx, c.ID, c.DocumentID, vectors[i], model, dims, c.Hash); err != nil {
				result.Failed++
				continue
			}
			result.Embedded++
		}
	}
	return result, nil
}

// EmbedRebuildResult is returned by EmbedRebuild.
type EmbedRebuildResult struct {
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// EmbedRebuild deletes every embedding row and regenerates every chunk's
// embedding unconditionally.
func (p *Pipeline) EmbedRebuild(ctx context.Context, batchSize int) (EmbedRebuildResult, error) {
	if p.embedder == nil || p.embedder.ModelName() == "disabled" {
		return EmbedRebuildResult{}, apperr.EmbeddingsDisabled()
	}
	if batchSize <= 0 {
		batchSize = p.cfg.EmbedBatchSize
	}

	if err := p.store.DeleteAllEmbeddings(ctx); err != nil {
		return EmbedRebuildResult{}, apperr.Internal("delete all embeddings", err)
	}

	all, err := p.store.ListChunks(ctx)
	if err != nil {
		return EmbedRebuildResult{}, apperr.Internal("list chunks", err)
	}

	model := p.embedder.ModelName()
	dims := p.embedder.Dims()

	var result EmbedRebuildResult
	for _, batch := range batchChunks(all, batchSize) {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			result.Failed += len(batch)
			continue
		}
		for i, c := range batch {
			if i >= len(vectors) {
				result.Failed++
				continue
			}
			if err := p.store.UpsertEmbedding(ctx, c.ID, c.DocumentID, vectors[i], model, dims, c.Hash); err != nil {
				result.Failed++
				continue
			}
			result.Embedded++
		}
	}
	return result, nil
}
