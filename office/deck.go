package office

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/klauspost/compress/zip"
)

// EMU per inch in DrawingML coordinates.
const emuPerInch = 914400

// Layout is a slide size in EMU.
type Layout struct {
	Name   string
	Width  int64
	Height int64
}

var (
	// Layout16x9 is a 10in x 5.625in widescreen slide.
	Layout16x9 = Layout{Name: "LAYOUT_16x9", Width: 10 * emuPerInch, Height: 5625 * emuPerInch / 1000}
	// Layout4x3 is a 10in x 7.5in standard slide.
	Layout4x3 = Layout{Name: "LAYOUT_4x3", Width: 10 * emuPerInch, Height: 75 * emuPerInch / 10}
)

// TextBox places one run of text on a slide.
type TextBox struct {
	Text string
	// X, Y, W and H are in inches.
	X, Y, W, H float64
	// Size is the font size in points.
	Size int
	// Color is an RRGGBB hex string.
	Color string
}

type deckSlide struct {
	Background string
	Image      []byte
	ImageDescr string
	Texts      []TextBox
}

// Deck accumulates slides and serializes them into a .pptx package.
type Deck struct {
	layout  Layout
	slides  []deckSlide
	theme   []byte
	title   string
	created time.Time
}

// NewDeck returns an empty deck with the given slide size.
func NewDeck(layout Layout) *Deck {
	return &Deck{layout: layout, created: time.Now().UTC()}
}

// SetTitle sets the document title written to core properties.
func (d *Deck) SetTitle(title string) { d.title = title }

// SetTheme replaces the built-in theme with raw theme XML, typically taken
// from Presentation.Theme.
func (d *Deck) SetTheme(theme []byte) { d.theme = theme }

// Len returns the number of slides added so far.
func (d *Deck) Len() int { return len(d.slides) }

// AddPictureSlide adds a slide whose only content is a PNG stretched to the
// full slide. descr becomes the picture's alternative text.
func (d *Deck) AddPictureSlide(png []byte, descr string) {
	d.slides = append(d.slides, deckSlide{Image: png, ImageDescr: descr})
}

// AddTextSlide adds a slide with a solid background and text boxes.
// background is an RRGGBB hex string or empty for the master background.
func (d *Deck) AddTextSlide(background string, texts ...TextBox) {
	d.slides = append(d.slides, deckSlide{Background: background, Texts: texts})
}

// Bytes serializes the deck. A deck with no slides is still a valid
// package.
func (d *Deck) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: d.created})
		if err != nil {
			return fmt.Errorf("office: create %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("office: write %s: %w", name, err)
		}
		return nil
	}
	render := func(name string, tmpl *template.Template, data any) error {
		var b bytes.Buffer
		if err := tmpl.Execute(&b, data); err != nil {
			return fmt.Errorf("office: render %s: %w", name, err)
		}
		return write(name, b.Bytes())
	}

	view := d.view()
	if err := render("[Content_Types].xml", contentTypesTmpl, view); err != nil {
		return nil, err
	}
	if err := write("_rels/.rels", []byte(rootRels)); err != nil {
		return nil, err
	}
	if err := render("docProps/app.xml", appTmpl, view); err != nil {
		return nil, err
	}
	if err := render("docProps/core.xml", coreTmpl, view); err != nil {
		return nil, err
	}
	if err := render("ppt/presentation.xml", presentationTmpl, view); err != nil {
		return nil, err
	}
	if err := render("ppt/_rels/presentation.xml.rels", presentationRelsTmpl, view); err != nil {
		return nil, err
	}

	fixed := []struct {
		name string
		body string
	}{
		{"ppt/presProps.xml", presProps},
		{"ppt/viewProps.xml", viewProps},
		{"ppt/tableStyles.xml", tableStyles},
		{"ppt/slideMasters/slideMaster1.xml", slideMaster},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", slideMasterRels},
		{"ppt/slideLayouts/slideLayout1.xml", slideLayout},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", slideLayoutRels},
	}
	for _, f := range fixed {
		if err := write(f.name, []byte(f.body)); err != nil {
			return nil, err
		}
	}

	theme := d.theme
	if len(theme) == 0 {
		theme = []byte(defaultTheme)
	}
	if err := write("ppt/theme/theme1.xml", theme); err != nil {
		return nil, err
	}

	for _, s := range view.Slides {
		if err := render(fmt.Sprintf("ppt/slides/slide%d.xml", s.N), slideTmpl, s); err != nil {
			return nil, err
		}
		if err := render(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", s.N), slideRelsTmpl, s); err != nil {
			return nil, err
		}
		if s.HasImage {
			if err := write(fmt.Sprintf("ppt/media/image%d.png", s.N), d.slides[s.N-1].Image); err != nil {
				return nil, err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("office: close package: %w", err)
	}
	return buf.Bytes(), nil
}

type slideView struct {
	N          int
	ID         int
	RelID      string
	Background string
	HasImage   bool
	ImageDescr string
	Width      int64
	Height     int64
	Texts      []textView
}

type textView struct {
	ShapeID    int
	Text       string
	X, Y, W, H int64
	Size       int
	Color      string
}

type deckView struct {
	Width    int64
	Height   int64
	Title    string
	Created  string
	Slides   []slideView
	HasImage bool
}

func inches(v float64) int64 { return int64(v * emuPerInch) }

func (d *Deck) view() deckView {
	v := deckView{
		Width:   d.layout.Width,
		Height:  d.layout.Height,
		Title:   d.title,
		Created: d.created.Format(time.RFC3339),
	}
	for i, s := range d.slides {
		sv := slideView{
			N:          i + 1,
			ID:         256 + i,
			RelID:      fmt.Sprintf("rId%d", i+2),
			Background: strings.ToUpper(strings.TrimPrefix(s.Background, "#")),
			HasImage:   len(s.Image) > 0,
			ImageDescr: s.ImageDescr,
			Width:      d.layout.Width,
			Height:     d.layout.Height,
		}
		for j, t := range s.Texts {
			size := t.Size
			if size <= 0 {
				size = 18
			}
			color := strings.ToUpper(strings.TrimPrefix(t.Color, "#"))
			if color == "" {
				color = "000000"
			}
			sv.Texts = append(sv.Texts, textView{
				ShapeID: j + 2,
				Text:    t.Text,
				X:       inches(t.X),
				Y:       inches(t.Y),
				W:       inches(t.W),
				H:       inches(t.H),
				Size:    size * 100,
				Color:   color,
			})
		}
		v.HasImage = v.HasImage || sv.HasImage
		v.Slides = append(v.Slides, sv)
	}
	return v
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func tmpl(name, body string) *template.Template {
	return template.Must(template.New(name).Funcs(template.FuncMap{
		"esc": escapeXML,
		"add": func(a, b int) int { return a + b },
	}).Parse(body))
}
