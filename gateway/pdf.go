package gateway

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"strconv"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/jupark12/docqueue/models"
)

// PDFGateway implements Gateway on top of pdfcpu for structure and
// stamping, go-fitz (MuPDF) for rasterizing and ledongthuc/pdf for text.
type PDFGateway struct{}

// NewPDFGateway returns a ready PDFGateway.
func NewPDFGateway() *PDFGateway {
	return &PDFGateway{}
}

type pdfDocument struct {
	// ctx is nil until the first page is added to a document made by New.
	ctx *model.Context
}

type pdfPages struct {
	ctx *model.Context
}

// newConfiguration writes plain xref tables; only Save turns on object
// streams.
func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

func readContext(data []byte) (*model.Context, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), newConfiguration())
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	return ctx, nil
}

// writeContext serializes ctx. Writing rebuilds the context's xref table,
// so a context must not be written twice; see snapshot.
func writeContext(ctx *model.Context, compress bool) ([]byte, error) {
	if ctx.Configuration == nil {
		ctx.Configuration = newConfiguration()
	}
	ctx.Configuration.WriteObjectStream = compress
	ctx.Configuration.WriteXRefStream = compress

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// snapshot serializes the document and swaps in a context parsed from the
// plain serialization, leaving the handle usable for further edits and
// saves. Compressed output is written from a scratch copy.
func snapshot(pd *pdfDocument, compress bool) ([]byte, error) {
	plain, err := writeContext(pd.ctx, false)
	if err != nil {
		return nil, err
	}
	fresh, err := readContext(plain)
	if err != nil {
		return nil, fmt.Errorf("reload written document: %w", err)
	}
	pd.ctx = fresh
	if !compress {
		return plain, nil
	}

	scratch, err := readContext(plain)
	if err != nil {
		return nil, fmt.Errorf("reload written document: %w", err)
	}
	return writeContext(scratch, true)
}

func (g *PDFGateway) doc(d Document) (*pdfDocument, error) {
	pd, ok := d.(*pdfDocument)
	if !ok {
		return nil, ErrForeignHandle
	}
	return pd, nil
}

// loaded returns the document, checking that it has page.
func (g *PDFGateway) loaded(d Document, page int) (*pdfDocument, error) {
	pd, err := g.doc(d)
	if err != nil {
		return nil, err
	}
	if pd.ctx == nil {
		return nil, ErrEmptyDocument
	}
	if err := checkPage(page, pd.ctx.PageCount); err != nil {
		return nil, err
	}
	return pd, nil
}

func (g *PDFGateway) Load(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pctx, err := readContext(data)
	if err != nil {
		return nil, models.MalformedDocument("cannot parse PDF", fmt.Errorf("%w: %v", ErrMalformedDocument, err))
	}
	return &pdfDocument{ctx: pctx}, nil
}

func (g *PDFGateway) New(ctx context.Context) (Document, error) {
	return &pdfDocument{}, nil
}

func (g *PDFGateway) PageCount(d Document) (int, error) {
	pd, err := g.doc(d)
	if err != nil {
		return 0, err
	}
	if pd.ctx == nil {
		return 0, nil
	}
	return pd.ctx.PageCount, nil
}

func (g *PDFGateway) CopyPages(ctx context.Context, src Document, pages []int) (Pages, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pd, err := g.doc(src)
	if err != nil {
		return nil, err
	}
	if pd.ctx == nil {
		return nil, ErrEmptyDocument
	}
	for _, n := range pages {
		if err := checkPage(n, pd.ctx.PageCount); err != nil {
			return nil, fmt.Errorf("copy page %d: %w", n, err)
		}
	}

	extracted, err := pdfcpu.ExtractPages(pd.ctx, pages, false)
	if err != nil {
		return nil, fmt.Errorf("extract pages: %w", err)
	}
	if err := extracted.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("extract pages: %w", err)
	}
	return &pdfPages{ctx: extracted}, nil
}

func (g *PDFGateway) AddPages(ctx context.Context, dst Document, pages Pages) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pd, err := g.doc(dst)
	if err != nil {
		return err
	}
	pp, ok := pages.(*pdfPages)
	if !ok {
		return ErrForeignHandle
	}

	if pd.ctx == nil {
		pd.ctx = pp.ctx
		return nil
	}

	head, err := snapshot(pd, false)
	if err != nil {
		return fmt.Errorf("serialize target: %w", err)
	}
	tail, err := writeContext(pp.ctx, false)
	if err != nil {
		return fmt.Errorf("serialize pages: %w", err)
	}

	var merged bytes.Buffer
	readers := []io.ReadSeeker{bytes.NewReader(head), bytes.NewReader(tail)}
	if err := api.MergeRaw(readers, &merged, false, newConfiguration()); err != nil {
		return fmt.Errorf("merge pages: %w", err)
	}

	pctx, err := readContext(merged.Bytes())
	if err != nil {
		return fmt.Errorf("reload merged document: %w", err)
	}
	pd.ctx = pctx
	return nil
}

func (g *PDFGateway) AddBlankPage(ctx context.Context, dst Document, size Size) (int, error) {
	pctx, err := readContext(blankPDF(size))
	if err != nil {
		return 0, fmt.Errorf("create blank page: %w", err)
	}
	if err := g.AddPages(ctx, dst, &pdfPages{ctx: pctx}); err != nil {
		return 0, err
	}
	return g.PageCount(dst)
}

func (g *PDFGateway) PageSize(d Document, page int) (Size, error) {
	pd, err := g.loaded(d, page)
	if err != nil {
		return Size{}, err
	}
	_, _, inh, err := pd.ctx.PageDict(page, false)
	if err != nil {
		return Size{}, err
	}
	box := inh.MediaBox
	if box == nil {
		box = inh.CropBox
	}
	if box == nil {
		return A4, nil
	}
	return Size{Width: box.Width(), Height: box.Height()}, nil
}

func (g *PDFGateway) Rotation(d Document, page int) (int, error) {
	pd, err := g.loaded(d, page)
	if err != nil {
		return 0, err
	}
	_, _, inh, err := pd.ctx.PageDict(page, false)
	if err != nil {
		return 0, err
	}
	return NormalizeAngle(inh.Rotate), nil
}

func (g *PDFGateway) SetRotation(ctx context.Context, d Document, page int, angle int) error {
	pd, err := g.loaded(d, page)
	if err != nil {
		return err
	}
	pageDict, _, _, err := pd.ctx.PageDict(page, false)
	if err != nil {
		return err
	}
	if pageDict == nil {
		return fmt.Errorf("page %d has no dictionary", page)
	}
	pageDict["Rotate"] = types.Integer(NormalizeAngle(angle))
	return nil
}

// DrawText stamps text onto a page with pdfcpu's text watermark support.
// at is the lower-left corner of the text box.
func (g *PDFGateway) DrawText(ctx context.Context, d Document, page int, text string, at Point, style TextStyle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pd, err := g.loaded(d, page)
	if err != nil {
		return err
	}

	font := style.Font
	if font == "" {
		font = DefaultTextStyle.Font
	}
	points := int(style.Size)
	if points <= 0 {
		points = int(DefaultTextStyle.Size)
	}
	opacity := style.Opacity
	if opacity <= 0 {
		opacity = 1
	}

	desc := fmt.Sprintf(
		"fontname:%s, points:%d, scalefactor:1 abs, rotation:%.0f, fillcolor:%.2f %.2f %.2f, opacity:%.2f, position:bl, offset:%.2f %.2f",
		font, points, style.Rotation, style.Gray, style.Gray, style.Gray, opacity, at.X, at.Y,
	)
	wm, err := api.TextWatermark(text, desc, true, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("build text stamp: %w", err)
	}

	src, err := snapshot(pd, false)
	if err != nil {
		return fmt.Errorf("serialize document: %w", err)
	}
	var stamped bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(src), &stamped, []string{strconv.Itoa(page)}, wm, newConfiguration()); err != nil {
		return fmt.Errorf("stamp page %d: %w", page, err)
	}

	updated, err := readContext(stamped.Bytes())
	if err != nil {
		return fmt.Errorf("reload stamped document: %w", err)
	}
	pd.ctx = updated
	return nil
}

func (g *PDFGateway) Save(ctx context.Context, d Document, opts SaveOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pd, err := g.doc(d)
	if err != nil {
		return nil, err
	}
	if pd.ctx == nil || pd.ctx.PageCount == 0 {
		return nil, ErrEmptyDocument
	}

	data, err := snapshot(pd, opts.Compress)
	if err != nil {
		return nil, fmt.Errorf("write PDF: %w", err)
	}
	return data, nil
}

func (g *PDFGateway) RenderPage(ctx context.Context, d Document, page int, scale float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pd, err := g.loaded(d, page)
	if err != nil {
		return nil, err
	}
	if scale <= 0 {
		scale = 1
	}

	data, err := snapshot(pd, false)
	if err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open for rendering: %w", err)
	}
	defer doc.Close()

	img, err := doc.ImageDPI(page-1, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", page, err)
	}
	return buf.Bytes(), nil
}

func (g *PDFGateway) EmbedImage(ctx context.Context, data []byte, mimeType string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !IsSupportedImage(mimeType) {
		return nil, models.UnsupportedInput(fmt.Sprintf("cannot embed %s", mimeType), ErrUnsupportedImage)
	}

	imp, err := api.Import("position:full", types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("image import settings: %w", err)
	}

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, []io.Reader{bytes.NewReader(data)}, imp, newConfiguration()); err != nil {
		return nil, models.MalformedDocument("cannot embed image", err)
	}

	pctx, err := readContext(out.Bytes())
	if err != nil {
		return nil, fmt.Errorf("reload image document: %w", err)
	}
	return &pdfDocument{ctx: pctx}, nil
}

func (g *PDFGateway) ExtractText(ctx context.Context, d Document, page int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	pd, err := g.loaded(d, page)
	if err != nil {
		return "", err
	}
	data, err := snapshot(pd, false)
	if err != nil {
		return "", fmt.Errorf("serialize document: %w", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open for text extraction: %w", err)
	}
	p := r.Page(page)
	if p.V.IsNull() || contentLength(p.V.Key("Contents")) == 0 {
		return "", nil
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from page %d: %w", page, err)
	}
	return text, nil
}

// contentLength sums the declared lengths of a page's content streams.
func contentLength(v pdf.Value) int64 {
	switch v.Kind() {
	case pdf.Stream:
		return v.Key("Length").Int64()
	case pdf.Array:
		var n int64
		for i := 0; i < v.Len(); i++ {
			n += contentLength(v.Index(i))
		}
		return n
	}
	return 0
}

// blankPDF writes a minimal one-page document with an empty content stream.
func blankPDF(size Size) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, 4)

	buf.WriteString("%PDF-1.4\n")
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.2f %.2f] /Resources << >> /Contents 4 0 R >>", size.Width, size.Height),
		"<< /Length 0 >>\nstream\n\nendstream",
	}
	for i, obj := range objects {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
