// Package chunk splits document bodies into ordered, size-bounded,
// hash-stamped chunks on paragraph boundaries, falling back to a
// UTF-8-safe hard split when a single paragraph exceeds the cap.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/context-harness/harness/models"
)

const (
	// charsPerToken is the fixed heuristic used to derive the byte cap from
	// a token budget; not configurable independently of max_tokens.
	charsPerToken = 4

	paragraphSep = "\n\n"
)

// Split divides text into a contiguous, zero-indexed sequence of chunks
// owned by documentID. maxTokens must be positive; the effective byte cap
// is maxTokens*4. Split is total: it never returns an error.
func Split(documentID string, text string, maxTokens int) []models.Chunk {
	maxChars := maxTokens * charsPerToken

	if text == "" {
		return []models.Chunk{newChunk(documentID, 0, "")}
	}

	var chunks []models.Chunk
	var buffer strings.Builder

	flush := func() {
		if buffer.Len() == 0 {
			return
		}
		chunks = append(chunks, newChunk(documentID, len(chunks), buffer.String()))
		buffer.Reset()
	}

	paragraphs := strings.Split(text, paragraphSep)
	for _, raw := range paragraphs {
		para := strings.TrimSpace(raw)
		if para == "" {
			continue
		}

		if len(para) > maxChars {
			flush()
			for _, piece := range hardSplit(para, maxChars) {
				chunks = append(chunks, newChunk(documentID, len(chunks), piece))
			}
			continue
		}

		wouldBe := len(para)
		if buffer.Len() > 0 {
			wouldBe = buffer.Len() + len(paragraphSep) + len(para)
		}
		if wouldBe > maxChars && buffer.Len() > 0 {
			flush()
		}

		if buffer.Len() > 0 {
			buffer.WriteString(paragraphSep)
		}
		buffer.WriteString(para)
	}
	flush()

	if len(chunks) == 0 {
		chunks = append(chunks, newChunk(documentID, 0, strings.TrimSpace(text)))
	}

	return chunks
}

// hardSplit breaks a single over-cap paragraph into UTF-8-safe pieces no
// longer than maxChars bytes each, preferring to split at a newline or
// space near the cap.
func hardSplit(text string, maxChars int) []string {
	var pieces []string
	remaining := text

	for len(remaining) > maxChars {
		splitAt := maxChars
		splitAt = snapToCharBoundary(remaining, splitAt)

		actualSplit := splitAt
		if idx := strings.LastIndexByte(remaining[:splitAt], '\n'); idx > 0 {
			actualSplit = idx
		} else if idx := strings.LastIndexByte(remaining[:splitAt], ' '); idx > 0 {
			actualSplit = idx
		}
		actualSplit = snapToCharBoundary(remaining, actualSplit)

		pieces = append(pieces, remaining[:actualSplit])
		remaining = remaining[actualSplit:]
	}
	if remaining != "" {
		pieces = append(pieces, remaining)
	}
	return pieces
}

// snapToCharBoundary walks idx backward until it lands on a valid UTF-8
// character boundary, then forces a one-character forward advance if that
// walk collapsed the boundary to zero width against a non-empty string.
// The chunker must always make forward progress.
func snapToCharBoundary(s string, idx int) int {
	if idx > len(s) {
		idx = len(s)
	}
	for idx > 0 && isUTF8Continuation(s[idx]) {
		idx--
	}
	if idx == 0 && len(s) > 0 {
		idx = nextRuneBoundary(s, 0)
	}
	return idx
}

func isUTF8Continuation(b byte) bool {
	return b&0xC0 == 0x80
}

func nextRuneBoundary(s string, from int) int {
	if from >= len(s) {
		return len(s)
	}
	i := from + 1
	for i < len(s) && isUTF8Continuation(s[i]) {
		i++
	}
	return i
}

func newChunk(documentID string, index int, text string) models.Chunk {
	return models.Chunk{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		ChunkIndex: index,
		Text:       text,
		Hash:       hashText(text),
	}
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
