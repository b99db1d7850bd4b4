// Package gateway describes the document capabilities the operations need
// and provides a pdfcpu-backed implementation plus an in-memory fake.
//
// Page numbers are 1-based everywhere in this package.
package gateway

import (
	"context"
	"errors"
)

// Document is an opaque handle. It must only be passed back to the Gateway
// that produced it.
type Document interface{}

// Pages is an opaque list of pages copied out of a Document, ready to be
// added to another one. A Pages value is consumed by AddPages.
type Pages interface{}

// Point is a position in PDF user space (points, origin bottom-left).
type Point struct {
	X float64
	Y float64
}

// Size is a page size in points.
type Size struct {
	Width  float64
	Height float64
}

// A4 is the default size for generated pages.
var A4 = Size{Width: 595.28, Height: 841.89}

// TextStyle controls how DrawText renders.
type TextStyle struct {
	Font     string  // one of the standard 14 fonts, e.g. "Helvetica-Bold"
	Size     float64 // font size in points
	Gray     float64 // 0 is black, 1 is white
	Opacity  float64 // 0..1
	Rotation float64 // degrees, counter-clockwise
}

// DefaultTextStyle is plain black 12pt Helvetica.
var DefaultTextStyle = TextStyle{Font: "Helvetica", Size: 12, Gray: 0, Opacity: 1}

// SaveOptions tweaks serialization.
type SaveOptions struct {
	// Compress writes object and xref streams. It is a structural
	// re-serialization only; images are not re-encoded.
	Compress bool
}

var (
	ErrMalformedDocument = errors.New("malformed document")
	ErrPageOutOfRange    = errors.New("page out of range")
	ErrUnsupportedImage  = errors.New("unsupported image type")
	ErrEmptyDocument     = errors.New("document has no pages")
	ErrForeignHandle     = errors.New("handle was not created by this gateway")
)

// Gateway is the capability surface every operation is written against.
type Gateway interface {
	// Load parses data. It fails with ErrMalformedDocument when data is not a
	// document this gateway understands.
	Load(ctx context.Context, data []byte) (Document, error)
	// New returns an empty document.
	New(ctx context.Context) (Document, error)
	PageCount(doc Document) (int, error)
	// CopyPages copies the given pages, in the given order.
	CopyPages(ctx context.Context, src Document, pages []int) (Pages, error)
	// AddPages appends pages to the end of dst.
	AddPages(ctx context.Context, dst Document, pages Pages) error
	// AddBlankPage appends an empty page and returns its page number.
	AddBlankPage(ctx context.Context, dst Document, size Size) (int, error)
	PageSize(doc Document, page int) (Size, error)
	Rotation(doc Document, page int) (int, error)
	// SetRotation sets the absolute rotation of a page, normalized into [0, 360).
	SetRotation(ctx context.Context, doc Document, page int, angle int) error
	DrawText(ctx context.Context, doc Document, page int, text string, at Point, style TextStyle) error
	Save(ctx context.Context, doc Document, opts SaveOptions) ([]byte, error)
	// RenderPage rasterizes a page to PNG. Scale 1 is 72 DPI.
	RenderPage(ctx context.Context, doc Document, page int, scale float64) ([]byte, error)
	// EmbedImage builds a one-page document sized to a JPEG or PNG image.
	EmbedImage(ctx context.Context, data []byte, mimeType string) (Document, error)
	// ExtractText returns the plain text of a page, or "" when it has none.
	ExtractText(ctx context.Context, doc Document, page int) (string, error)
}

// NormalizeAngle maps any angle in degrees into [0, 360).
func NormalizeAngle(angle int) int {
	a := angle % 360
	if a < 0 {
		a += 360
	}
	return a
}

// AllPages returns 1..count.
func AllPages(count int) []int {
	nums := make([]int, count)
	for i := range nums {
		nums[i] = i + 1
	}
	return nums
}

// IsSupportedImage reports whether EmbedImage accepts mimeType.
func IsSupportedImage(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/jpg", "image/png":
		return true
	}
	return false
}

func checkPage(page, count int) error {
	if page < 1 || page > count {
		return ErrPageOutOfRange
	}
	return nil
}
