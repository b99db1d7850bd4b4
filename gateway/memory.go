package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/jupark12/docqueue/models"
)

// memoryMagic prefixes every document serialized by MemoryGateway.
const memoryMagic = "%MEMDOC\n"

// MemoryText is a string drawn on a MemoryPage.
type MemoryText struct {
	Text  string    `json:"text"`
	At    Point     `json:"at"`
	Style TextStyle `json:"style"`
}

// MemoryPage is one page of a MemoryGateway document.
type MemoryPage struct {
	// Source identifies where the page came from, e.g. "a#3" for page 3 of
	// a document labelled "a". Copies keep their source.
	Source   string       `json:"source"`
	Size     Size         `json:"size"`
	Rotation int          `json:"rotation"`
	Texts    []MemoryText `json:"texts,omitempty"`
}

// MemoryFile is the serialized form of a MemoryGateway document.
type MemoryFile struct {
	Pages      []MemoryPage `json:"pages"`
	Compressed bool         `json:"compressed"`
}

type memDocument struct {
	pages []MemoryPage
}

type memPages []MemoryPage

// MemoryGateway is a deterministic, dependency-free Gateway. Documents are
// JSON page lists, so tests can assert page order, rotation and drawn text
// without a real PDF engine.
type MemoryGateway struct {
	// FailOn makes the named method fail, e.g. "Save" or "CopyPages".
	FailOn map[string]error
}

// NewMemoryGateway returns an empty MemoryGateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{FailOn: map[string]error{}}
}

// MemoryDocument builds serialized bytes for a document with the given
// number of A4 pages whose sources are label#1..label#n.
func MemoryDocument(label string, pages int) []byte {
	file := MemoryFile{Pages: make([]MemoryPage, pages)}
	for i := range file.Pages {
		file.Pages[i] = MemoryPage{Source: fmt.Sprintf("%s#%d", label, i+1), Size: A4}
	}
	data, _ := encodeMemory(file)
	return data
}

// DecodeMemory parses bytes produced by MemoryGateway.Save.
func DecodeMemory(data []byte) (MemoryFile, error) {
	var file MemoryFile
	if !bytes.HasPrefix(data, []byte(memoryMagic)) {
		return file, ErrMalformedDocument
	}
	if err := json.Unmarshal(data[len(memoryMagic):], &file); err != nil {
		return file, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return file, nil
}

// Sources lists the Source of every page in order.
func (f MemoryFile) Sources() []string {
	out := make([]string, len(f.Pages))
	for i, p := range f.Pages {
		out[i] = p.Source
	}
	return out
}

func encodeMemory(file MemoryFile) ([]byte, error) {
	body, err := json.Marshal(file)
	if err != nil {
		return nil, err
	}
	return append([]byte(memoryMagic), body...), nil
}

func (g *MemoryGateway) fail(method string) error {
	if err, ok := g.FailOn[method]; ok {
		return err
	}
	return nil
}

func (g *MemoryGateway) doc(d Document) (*memDocument, error) {
	md, ok := d.(*memDocument)
	if !ok {
		return nil, ErrForeignHandle
	}
	return md, nil
}

func (g *MemoryGateway) page(d Document, page int) (*MemoryPage, error) {
	md, err := g.doc(d)
	if err != nil {
		return nil, err
	}
	if err := checkPage(page, len(md.pages)); err != nil {
		return nil, err
	}
	return &md.pages[page-1], nil
}

func (g *MemoryGateway) Load(ctx context.Context, data []byte) (Document, error) {
	if err := g.fail("Load"); err != nil {
		return nil, err
	}
	file, err := DecodeMemory(data)
	if err != nil {
		return nil, models.MalformedDocument("cannot parse document", err)
	}
	return &memDocument{pages: file.Pages}, nil
}

func (g *MemoryGateway) New(ctx context.Context) (Document, error) {
	if err := g.fail("New"); err != nil {
		return nil, err
	}
	return &memDocument{}, nil
}

func (g *MemoryGateway) PageCount(d Document) (int, error) {
	if err := g.fail("PageCount"); err != nil {
		return 0, err
	}
	md, err := g.doc(d)
	if err != nil {
		return 0, err
	}
	return len(md.pages), nil
}

func (g *MemoryGateway) CopyPages(ctx context.Context, src Document, pages []int) (Pages, error) {
	if err := g.fail("CopyPages"); err != nil {
		return nil, err
	}
	md, err := g.doc(src)
	if err != nil {
		return nil, err
	}

	out := make(memPages, 0, len(pages))
	for _, n := range pages {
		if err := checkPage(n, len(md.pages)); err != nil {
			return nil, fmt.Errorf("copy page %d: %w", n, err)
		}
		p := md.pages[n-1]
		p.Texts = append([]MemoryText(nil), p.Texts...)
		out = append(out, p)
	}
	return out, nil
}

func (g *MemoryGateway) AddPages(ctx context.Context, dst Document, pages Pages) error {
	if err := g.fail("AddPages"); err != nil {
		return err
	}
	md, err := g.doc(dst)
	if err != nil {
		return err
	}
	mp, ok := pages.(memPages)
	if !ok {
		return ErrForeignHandle
	}
	md.pages = append(md.pages, mp...)
	return nil
}

func (g *MemoryGateway) AddBlankPage(ctx context.Context, dst Document, size Size) (int, error) {
	if err := g.fail("AddBlankPage"); err != nil {
		return 0, err
	}
	md, err := g.doc(dst)
	if err != nil {
		return 0, err
	}
	md.pages = append(md.pages, MemoryPage{Source: "blank", Size: size})
	return len(md.pages), nil
}

func (g *MemoryGateway) PageSize(d Document, page int) (Size, error) {
	p, err := g.page(d, page)
	if err != nil {
		return Size{}, err
	}
	return p.Size, nil
}

func (g *MemoryGateway) Rotation(d Document, page int) (int, error) {
	p, err := g.page(d, page)
	if err != nil {
		return 0, err
	}
	return p.Rotation, nil
}

func (g *MemoryGateway) SetRotation(ctx context.Context, d Document, page int, angle int) error {
	if err := g.fail("SetRotation"); err != nil {
		return err
	}
	p, err := g.page(d, page)
	if err != nil {
		return err
	}
	p.Rotation = NormalizeAngle(angle)
	return nil
}

func (g *MemoryGateway) DrawText(ctx context.Context, d Document, page int, text string, at Point, style TextStyle) error {
	if err := g.fail("DrawText"); err != nil {
		return err
	}
	p, err := g.page(d, page)
	if err != nil {
		return err
	}
	p.Texts = append(p.Texts, MemoryText{Text: text, At: at, Style: style})
	return nil
}

func (g *MemoryGateway) Save(ctx context.Context, d Document, opts SaveOptions) ([]byte, error) {
	if err := g.fail("Save"); err != nil {
		return nil, err
	}
	md, err := g.doc(d)
	if err != nil {
		return nil, err
	}
	if len(md.pages) == 0 {
		return nil, ErrEmptyDocument
	}
	return encodeMemory(MemoryFile{Pages: md.pages, Compressed: opts.Compress})
}

// RenderPage returns a PNG that is page pixels wide and one pixel high, so
// tests can tell rendered pages apart.
func (g *MemoryGateway) RenderPage(ctx context.Context, d Document, page int, scale float64) ([]byte, error) {
	if err := g.fail("RenderPage"); err != nil {
		return nil, err
	}
	if _, err := g.page(d, page); err != nil {
		return nil, err
	}

	img := image.NewGray(image.Rect(0, 0, page, 1))
	for x := 0; x < page; x++ {
		img.SetGray(x, 0, color.Gray{Y: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *MemoryGateway) EmbedImage(ctx context.Context, data []byte, mimeType string) (Document, error) {
	if err := g.fail("EmbedImage"); err != nil {
		return nil, err
	}
	if !IsSupportedImage(mimeType) {
		return nil, models.UnsupportedInput(fmt.Sprintf("cannot embed %s", mimeType), ErrUnsupportedImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, models.MalformedDocument("cannot decode image", err)
	}
	return &memDocument{pages: []MemoryPage{{
		Source: "image/" + format,
		Size:   Size{Width: float64(cfg.Width), Height: float64(cfg.Height)},
	}}}, nil
}

func (g *MemoryGateway) ExtractText(ctx context.Context, d Document, page int) (string, error) {
	if err := g.fail("ExtractText"); err != nil {
		return "", err
	}
	p, err := g.page(d, page)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(p.Texts))
	for _, t := range p.Texts {
		lines = append(lines, t.Text)
	}
	return strings.Join(lines, "\n"), nil
}
