// Package extract defines the text-extraction capability used when a
// SourceItem carries raw bytes instead of a body. Concrete extractors
// (PDF, OOXML) live outside the core; this package only fixes the
// interface and the enumerated content types so the ingestion pipeline
// has something concrete to depend on.
package extract

import "fmt"

// ContentType enumerates the binary formats the core knows how to name,
// though it implements none of them itself.
type ContentType string

const (
	ContentTypePDF             ContentType = "application/pdf"
	ContentTypeDOCX            ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypeXLSX            ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePPTX            ContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

// Extractor turns raw bytes of a known content type into UTF-8 text.
type Extractor interface {
	Supports(ct ContentType) bool
	Extract(raw []byte, ct ContentType) (string, error)
}

// ErrUnsupportedType is returned by an Extractor for a content type it
// does not implement.
type ErrUnsupportedType struct {
	ContentType ContentType
}

func (e ErrUnsupportedType) Error() string {
	return fmt.Sprintf("extraction: unsupported content type %q", e.ContentType)
}

// ErrEntrySizeCap is returned when a bounded per-entry byte cap (guarding
// against zip-bomb inputs in archive-based formats such as OOXML) is
// exceeded.
type ErrEntrySizeCap struct {
	Limit int64
}

func (e ErrEntrySizeCap) Error() string {
	return fmt.Sprintf("extraction: archive entry exceeds %d byte cap", e.Limit)
}

// None is an Extractor that supports nothing; used when no extractor is
// configured. The ingestion pipeline treats any extraction failure as a
// per-item drop, never a sync abort.
type None struct{}

func (None) Supports(ContentType) bool { return false }

func (None) Extract(_ []byte, ct ContentType) (string, error) {
	return "", ErrUnsupportedType{ContentType: ct}
}
