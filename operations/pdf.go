package operations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jupark12/docqueue/gateway"
	"github.com/jupark12/docqueue/models"
	"github.com/jupark12/docqueue/pages"
)

// WatermarkStyle is the stamp drawn by the watermark operation.
var WatermarkStyle = gateway.TextStyle{
	Font:     "Helvetica-Bold",
	Size:     50,
	Gray:     0.5,
	Opacity:  0.3,
	Rotation: 45,
}

var pdfAccept = []string{ContentTypePDF}

func init() {
	register(Definition{
		Kind:        models.OpMerge,
		Title:       "Merge PDF",
		Description: "Combine multiple PDFs into one single document.",
		MultiFile:   true,
		Accept:      pdfAccept,
		Progress:    "Merging PDFs...",
		OutputName:  "merged_document.pdf",
		ContentType: ContentTypePDF,
		run:         (*Runner).merge,
	})
	register(Definition{
		Kind:        models.OpSplit,
		Title:       "Split PDF",
		Description: "Extract pages or split a PDF into multiple files.",
		Accept:      pdfAccept,
		Progress:    "Splitting PDF...",
		OutputName:  "split_document.pdf",
		ContentType: ContentTypePDF,
		archiveName: func([]models.InputFile) string { return "split_documents.zip" },
		run:         (*Runner).split,
	})
	register(Definition{
		Kind:        models.OpCompress,
		Title:       "Compress PDF",
		Description: "Reduce file size while maintaining quality.",
		Accept:      pdfAccept,
		Progress:    "Compressing PDF...",
		OutputName:  "compressed_document.pdf",
		ContentType: ContentTypePDF,
		run:         (*Runner).compress,
	})
	register(Definition{
		Kind:        models.OpRotate,
		Title:       "Rotate PDF",
		Description: "Rotate pages to correct orientation.",
		Accept:      pdfAccept,
		Progress:    "Rotating pages...",
		OutputName:  "rotated_document.pdf",
		ContentType: ContentTypePDF,
		run:         (*Runner).rotate,
	})
	register(Definition{
		Kind:        models.OpWatermark,
		Title:       "Watermark",
		Description: "Add text watermarks to your PDF pages.",
		Accept:      pdfAccept,
		Progress:    "Adding watermark...",
		OutputName:  "watermarked_document.pdf",
		ContentType: ContentTypePDF,
		run:         (*Runner).watermark,
	})
	register(Definition{
		Kind:          models.OpPDFToImage,
		Title:         "PDF to Image",
		Description:   "Convert PDF pages into high-quality images.",
		Accept:        pdfAccept,
		Progress:      "Converting PDF to images...",
		ContentType:   ContentTypeZIP,
		AlwaysArchive: true,
		archiveName: func(inputs []models.InputFile) string {
			return baseName(firstName(inputs)) + "_images.zip"
		},
		run: (*Runner).pdfToImages,
	})
	register(Definition{
		Kind:        models.OpImageToPDF,
		Title:       "Image to PDF",
		Description: "Convert JPG and PNG images to PDF.",
		MultiFile:   true,
		Accept:      []string{"image/jpeg", "image/png"},
		Progress:    "Converting images to PDF...",
		OutputName:  "converted_images.pdf",
		ContentType: ContentTypePDF,
		run:         (*Runner).imagesToPDF,
	})
}

func firstName(inputs []models.InputFile) string {
	if len(inputs) == 0 {
		return ""
	}
	return inputs[0].Name
}

// contentType returns the declared type of in, sniffing the bytes when the
// client sent nothing useful.
func contentType(in models.InputFile) string {
	ct := strings.ToLower(strings.TrimSpace(in.ContentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(in.Data)
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = ct[:i]
		}
	}
	return ct
}

// loadPDF loads in, rejecting files that are declared as something other
// than a PDF.
func (r *Runner) loadPDF(ctx context.Context, in models.InputFile) (gateway.Document, error) {
	ct := strings.ToLower(in.ContentType)
	if ct != "" && ct != "application/octet-stream" && !strings.HasPrefix(ct, ContentTypePDF) {
		return nil, models.UnsupportedInput(fmt.Sprintf("%s is %s, not a PDF", in.Name, in.ContentType), nil)
	}
	doc, err := r.gw.Load(ctx, in.Data)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("cannot load %s", in.Name))
	}
	return doc, nil
}

// classify wraps a gateway error with msg, keeping its kind when it has one.
func classify(err error, msg string) error {
	var de *models.DomainError
	if errors.As(err, &de) {
		return models.NewError(de.Kind, msg, err)
	}
	switch {
	case errors.Is(err, gateway.ErrMalformedDocument):
		return models.MalformedDocument(msg, err)
	case errors.Is(err, gateway.ErrUnsupportedImage):
		return models.UnsupportedInput(msg, err)
	}
	return models.OperationFailure(msg, err)
}

// extract copies pages of src into a fresh document and serializes it.
func (r *Runner) extract(ctx context.Context, src gateway.Document, nums []int) ([]byte, error) {
	dst, err := r.gw.New(ctx)
	if err != nil {
		return nil, err
	}
	copied, err := r.gw.CopyPages(ctx, src, nums)
	if err != nil {
		return nil, fmt.Errorf("copy pages: %w", err)
	}
	if err := r.gw.AddPages(ctx, dst, copied); err != nil {
		return nil, fmt.Errorf("add pages: %w", err)
	}
	return r.gw.Save(ctx, dst, gateway.SaveOptions{})
}

func (r *Runner) merge(ctx context.Context, inputs []models.InputFile, _ models.JobParams) ([]Output, error) {
	merged, err := r.gw.New(ctx)
	if err != nil {
		return nil, err
	}
	for _, in := range inputs {
		doc, err := r.loadPDF(ctx, in)
		if err != nil {
			return nil, err
		}
		n, err := r.gw.PageCount(doc)
		if err != nil {
			return nil, err
		}
		copied, err := r.gw.CopyPages(ctx, doc, gateway.AllPages(n))
		if err != nil {
			return nil, fmt.Errorf("copy pages of %s: %w", in.Name, err)
		}
		if err := r.gw.AddPages(ctx, merged, copied); err != nil {
			return nil, fmt.Errorf("append %s: %w", in.Name, err)
		}
	}
	data, err := r.gw.Save(ctx, merged, gateway.SaveOptions{})
	if err != nil {
		return nil, err
	}
	return []Output{{Name: "merged_document.pdf", Data: data}}, nil
}

func (r *Runner) split(ctx context.Context, inputs []models.InputFile, p models.JobParams) ([]Output, error) {
	doc, err := r.loadPDF(ctx, inputs[0])
	if err != nil {
		return nil, err
	}
	total, err := r.gw.PageCount(doc)
	if err != nil {
		return nil, err
	}

	var groups [][]int
	switch p.SplitMode {
	case models.SplitByRange:
		sel := pages.ParseRange(p.Range, total)
		if len(sel) == 0 {
			return nil, models.ValidationError(fmt.Sprintf("range %q selects no pages of %d", p.Range, total), nil)
		}
		for _, n := range sel {
			groups = append(groups, []int{n})
		}
	case models.SplitByPages, models.SplitByParts:
		var part pages.Partition
		if p.SplitMode == models.SplitByPages {
			part, err = pages.ByGroupSize(total, p.PagesPerFile)
		} else {
			part, err = pages.ByPartCount(total, p.Parts)
		}
		if err != nil {
			return nil, err
		}
		for _, g := range part {
			groups = append(groups, g.Pages())
		}
	default:
		return nil, models.ValidationError(fmt.Sprintf("unknown split mode %q", p.SplitMode), nil)
	}

	out := make([]Output, 0, len(groups))
	for i, nums := range groups {
		data, err := r.extract(ctx, doc, nums)
		if err != nil {
			return nil, fmt.Errorf("split part %d: %w", i+1, err)
		}
		out = append(out, Output{Name: fmt.Sprintf("split_part_%d.pdf", i+1), Data: data})
	}
	return out, nil
}

func (r *Runner) compress(ctx context.Context, inputs []models.InputFile, _ models.JobParams) ([]Output, error) {
	doc, err := r.loadPDF(ctx, inputs[0])
	if err != nil {
		return nil, err
	}
	data, err := r.gw.Save(ctx, doc, gateway.SaveOptions{Compress: true})
	if err != nil {
		return nil, err
	}
	return []Output{{Name: "compressed_document.pdf", Data: data}}, nil
}

func (r *Runner) rotate(ctx context.Context, inputs []models.InputFile, p models.JobParams) ([]Output, error) {
	doc, err := r.loadPDF(ctx, inputs[0])
	if err != nil {
		return nil, err
	}
	n, err := r.gw.PageCount(doc)
	if err != nil {
		return nil, err
	}
	for page := 1; page <= n; page++ {
		current, err := r.gw.Rotation(doc, page)
		if err != nil {
			return nil, err
		}
		if err := r.gw.SetRotation(ctx, doc, page, current+p.Angle); err != nil {
			return nil, fmt.Errorf("rotate page %d: %w", page, err)
		}
	}
	data, err := r.gw.Save(ctx, doc, gateway.SaveOptions{})
	if err != nil {
		return nil, err
	}
	return []Output{{Name: "rotated_document.pdf", Data: data}}, nil
}

func (r *Runner) watermark(ctx context.Context, inputs []models.InputFile, p models.JobParams) ([]Output, error) {
	doc, err := r.loadPDF(ctx, inputs[0])
	if err != nil {
		return nil, err
	}
	n, err := r.gw.PageCount(doc)
	if err != nil {
		return nil, err
	}
	for page := 1; page <= n; page++ {
		size, err := r.gw.PageSize(doc, page)
		if err != nil {
			return nil, err
		}
		at := gateway.Point{X: size.Width / 4, Y: size.Height / 2}
		if err := r.gw.DrawText(ctx, doc, page, p.WatermarkText, at, WatermarkStyle); err != nil {
			return nil, fmt.Errorf("watermark page %d: %w", page, err)
		}
	}
	data, err := r.gw.Save(ctx, doc, gateway.SaveOptions{})
	if err != nil {
		return nil, err
	}
	return []Output{{Name: "watermarked_document.pdf", Data: data}}, nil
}

func (r *Runner) pdfToImages(ctx context.Context, inputs []models.InputFile, _ models.JobParams) ([]Output, error) {
	doc, err := r.loadPDF(ctx, inputs[0])
	if err != nil {
		return nil, err
	}
	n, err := r.gw.PageCount(doc)
	if err != nil {
		return nil, err
	}

	base := baseName(inputs[0].Name)
	out := make([]Output, 0, n)
	for page := 1; page <= n; page++ {
		img, err := r.gw.RenderPage(ctx, doc, page, r.settings.RenderScale)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", page, err)
		}
		out = append(out, Output{Name: fmt.Sprintf("%s_page_%d.png", base, page), Data: img})
	}
	return out, nil
}

func (r *Runner) imagesToPDF(ctx context.Context, inputs []models.InputFile, _ models.JobParams) ([]Output, error) {
	merged, err := r.gw.New(ctx)
	if err != nil {
		return nil, err
	}

	added := 0
	for _, in := range inputs {
		ct := contentType(in)
		if !gateway.IsSupportedImage(ct) {
			r.log.Debug().Str("file", in.Name).Str("content_type", ct).Msg("Skipping unsupported image")
			continue
		}
		doc, err := r.gw.EmbedImage(ctx, in.Data, ct)
		if err != nil {
			return nil, classify(err, fmt.Sprintf("cannot embed %s", in.Name))
		}
		copied, err := r.gw.CopyPages(ctx, doc, []int{1})
		if err != nil {
			return nil, err
		}
		if err := r.gw.AddPages(ctx, merged, copied); err != nil {
			return nil, fmt.Errorf("append %s: %w", in.Name, err)
		}
		added++
	}
	if added == 0 {
		return nil, models.UnsupportedInput("no JPEG or PNG images among the inputs", gateway.ErrUnsupportedImage)
	}

	data, err := r.gw.Save(ctx, merged, gateway.SaveOptions{})
	if err != nil {
		return nil, err
	}
	return []Output{{Name: "converted_images.pdf", Data: data}}, nil
}
