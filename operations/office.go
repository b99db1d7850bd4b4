package operations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jupark12/docqueue/gateway"
	"github.com/jupark12/docqueue/models"
	"github.com/jupark12/docqueue/office"
)

const (
	wordHeading   = "Converted from Word (text only):"
	wordTextLimit = 1000

	blankSlideText  = "Theme-based Blank Slide"
	blankSlideColor = "F1F1F1"
)

var pptAccept = []string{ContentTypePPTX, "application/vnd.ms-powerpoint"}

func init() {
	register(Definition{
		Kind:        models.OpWordToPDF,
		Title:       "Word to PDF",
		Description: "Convert Word documents to PDF format.",
		Accept:      []string{ContentTypeDOCX},
		Progress:    "Converting Word to PDF...",
		OutputName:  "converted_word.pdf",
		ContentType: ContentTypePDF,
		run:         (*Runner).wordToPDF,
	})
	register(Definition{
		Kind:        models.OpPDFToPPT,
		Title:       "PDF to PPT",
		Description: "Convert PDF pages to PowerPoint slides.",
		Accept:      pdfAccept,
		Progress:    "Converting PDF to PPT...",
		OutputName:  "converted_document.pptx",
		ContentType: ContentTypePPTX,
		run:         (*Runner).pdfToPPT,
	})
	register(Definition{
		Kind:        models.OpPPTToPDF,
		Title:       "PPT to PDF",
		Description: "Convert PowerPoint presentations to PDF.",
		Accept:      pptAccept,
		Progress:    "Converting PPT to PDF...",
		OutputName:  "converted_document.pdf",
		ContentType: ContentTypePDF,
		run:         (*Runner).pptToPDF,
	})
	register(Definition{
		Kind:        models.OpPPTBlankSlide,
		Title:       "PPT Theme Slide",
		Description: "Get a blank slide based on the PPT theme.",
		Accept:      pptAccept,
		Progress:    "Extracting blank slide...",
		OutputName:  "blank_slide_theme.pptx",
		ContentType: ContentTypePPTX,
		run:         (*Runner).blankSlide,
	})
}

func headingStyle() gateway.TextStyle {
	s := gateway.DefaultTextStyle
	s.Size = 20
	return s
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (r *Runner) wordToPDF(ctx context.Context, inputs []models.InputFile, _ models.JobParams) ([]Output, error) {
	in := inputs[0]
	paras, err := office.ExtractDocx(in.Data)
	if err != nil {
		if errors.Is(err, office.ErrNotPackage) || errors.Is(err, office.ErrMissingPart) {
			return nil, models.UnsupportedInput(fmt.Sprintf("%s is not a Word document", in.Name), err)
		}
		return nil, models.MalformedDocument(fmt.Sprintf("cannot read %s", in.Name), err)
	}

	if r.settings.Printer != nil {
		data, err := r.settings.Printer.PrintHTML(ctx, office.DocxHTML(in.Name, paras))
		if err != nil {
			return nil, models.OperationFailure("print Word document", err)
		}
		return []Output{{Name: "converted_word.pdf", Data: data}}, nil
	}

	doc, err := r.gw.New(ctx)
	if err != nil {
		return nil, err
	}
	page, err := r.gw.AddBlankPage(ctx, doc, gateway.A4)
	if err != nil {
		return nil, err
	}
	h := gateway.A4.Height
	if err := r.gw.DrawText(ctx, doc, page, wordHeading, gateway.Point{X: 50, Y: h - 50}, headingStyle()); err != nil {
		return nil, err
	}
	if body := truncateRunes(office.PlainText(paras), wordTextLimit); body != "" {
		if err := r.gw.DrawText(ctx, doc, page, body, gateway.Point{X: 50, Y: h - 100}, gateway.DefaultTextStyle); err != nil {
			return nil, err
		}
	}
	data, err := r.gw.Save(ctx, doc, gateway.SaveOptions{})
	if err != nil {
		return nil, err
	}
	return []Output{{Name: "converted_word.pdf", Data: data}}, nil
}

func (r *Runner) pdfToPPT(ctx context.Context, inputs []models.InputFile, _ models.JobParams) ([]Output, error) {
	doc, err := r.loadPDF(ctx, inputs[0])
	if err != nil {
		return nil, err
	}
	n, err := r.gw.PageCount(doc)
	if err != nil {
		return nil, err
	}

	deck := office.NewDeck(office.Layout16x9)
	deck.SetTitle(baseName(inputs[0].Name))
	for page := 1; page <= n; page++ {
		img, err := r.gw.RenderPage(ctx, doc, page, r.settings.RenderScale)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", page, err)
		}
		text, err := r.gw.ExtractText(ctx, doc, page)
		if err != nil {
			r.log.Debug().Err(err).Int("page", page).Msg("No text for slide description")
			text = ""
		}
		deck.AddPictureSlide(img, strings.TrimSpace(text))
	}

	data, err := deck.Bytes()
	if err != nil {
		return nil, models.OperationFailure("write presentation", err)
	}
	return []Output{{Name: "converted_document.pptx", Data: data}}, nil
}

// slidePage is the landscape page each slide is printed on.
var slidePage = gateway.Size{Width: gateway.A4.Height, Height: gateway.A4.Width}

func (r *Runner) pptToPDF(ctx context.Context, inputs []models.InputFile, _ models.JobParams) ([]Output, error) {
	in := inputs[0]
	doc, err := r.gw.New(ctx)
	if err != nil {
		return nil, err
	}

	pres, err := office.ReadPptx(in.Data)
	if err != nil || len(pres.Slides) == 0 {
		r.log.Debug().Err(err).Str("file", in.Name).Msg("No readable slides, writing placeholder page")
		if err := r.placeholderPage(ctx, doc, in.Name); err != nil {
			return nil, err
		}
	} else {
		for _, s := range pres.Slides {
			if err := r.slideToPage(ctx, doc, s); err != nil {
				return nil, fmt.Errorf("slide %d: %w", s.Number, err)
			}
		}
	}

	data, err := r.gw.Save(ctx, doc, gateway.SaveOptions{})
	if err != nil {
		return nil, err
	}
	return []Output{{Name: "converted_document.pdf", Data: data}}, nil
}

func (r *Runner) placeholderPage(ctx context.Context, doc gateway.Document, name string) error {
	page, err := r.gw.AddBlankPage(ctx, doc, gateway.A4)
	if err != nil {
		return err
	}
	h := gateway.A4.Height
	lines := []struct {
		text  string
		y     float64
		style gateway.TextStyle
	}{
		{"PPT to PDF Conversion: " + name, h - 50, headingStyle()},
		{"The presentation contained no slides that could be read.", h - 100, gateway.DefaultTextStyle},
	}
	for _, l := range lines {
		if err := r.gw.DrawText(ctx, doc, page, l.text, gateway.Point{X: 50, Y: l.y}, l.style); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) slideToPage(ctx context.Context, doc gateway.Document, s office.Slide) error {
	page, err := r.gw.AddBlankPage(ctx, doc, slidePage)
	if err != nil {
		return err
	}
	h := slidePage.Height
	if err := r.gw.DrawText(ctx, doc, page, fmt.Sprintf("Slide %d", s.Number), gateway.Point{X: 40, Y: h - 50}, headingStyle()); err != nil {
		return err
	}

	body := gateway.DefaultTextStyle
	body.Size = 14
	y := h - 90
	for _, line := range s.Lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if y < 40 {
			break
		}
		if err := r.gw.DrawText(ctx, doc, page, line, gateway.Point{X: 40, Y: y}, body); err != nil {
			return err
		}
		y -= 20
	}
	return nil
}

func (r *Runner) blankSlide(ctx context.Context, inputs []models.InputFile, _ models.JobParams) ([]Output, error) {
	deck := office.NewDeck(office.Layout4x3)
	if pres, err := office.ReadPptx(inputs[0].Data); err == nil && len(pres.Theme) > 0 {
		deck.SetTheme(pres.Theme)
	} else {
		r.log.Debug().Str("file", inputs[0].Name).Msg("No theme found, using the default theme")
	}
	deck.AddTextSlide(blankSlideColor, office.TextBox{
		Text:  blankSlideText,
		X:     1,
		Y:     1,
		W:     8,
		H:     1,
		Size:  24,
		Color: "363636",
	})

	data, err := deck.Bytes()
	if err != nil {
		return nil, models.OperationFailure("write presentation", err)
	}
	return []Output{{Name: "blank_slide_theme.pptx", Data: data}}, nil
}
