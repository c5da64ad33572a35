package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// inProcessProvider computes deterministic embeddings locally with no
// network calls: each text hashes into a deterministic unit vector of the
// configured dimensionality. It satisfies the Provider contract (fixed
// dims, aligned batch order) for offline development and for exercising
// the pipeline's staleness and batching logic without a live backend.
type inProcessProvider struct {
	model string
	dims  int
}

func newInProcessProvider(cfg Config) *inProcessProvider {
	dims := cfg.Dims
	if dims <= 0 {
		dims = 256
	}
	model := cfg.Model
	if model == "" {
		model = "inprocess-hash"
	}
	return &inProcessProvider{model: model, dims: dims}
}

func (p *inProcessProvider) ModelName() string { return p.model }
func (p *inProcessProvider) Dims() int         { return p.dims }

func (p *inProcessProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out[i] = hashEmbed(t, p.dims)
	}
	return out, nil
}

// hashEmbed derives a deterministic, L2-normalized vector from text by
// expanding repeated SHA-256 digests into signed byte components.
func hashEmbed(text string, dims int) []float32 {
	v := make([]float32, dims)
	seed := sha256.Sum256([]byte(text))
	block := seed[:]
	counter := uint32(0)
	for i := 0; i < dims; i++ {
		if i%len(block) == 0 && i != 0 {
			var ctrBytes [4]byte
			binary.LittleEndian.PutUint32(ctrBytes[:], counter)
			counter++
			next := sha256.Sum256(append(block, ctrBytes[:]...))
			block = next[:]
		}
		v[i] = float32(int8(block[i%len(block)])) / 128.0
	}
	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	if norm > 0 {
		mag := float32(math.Sqrt(norm))
		for i := range v {
			v[i] /= mag
		}
	}
	return v
}
