package operations

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupark12/docqueue/gateway"
	"github.com/jupark12/docqueue/models"
	"github.com/jupark12/docqueue/office"
)

func newRunner(t *testing.T) (*Runner, *gateway.MemoryGateway) {
	t.Helper()
	gw := gateway.NewMemoryGateway()
	return NewRunner(gw, Settings{}, nil), gw
}

func pdfInput(name, label string, pages int) models.InputFile {
	return models.InputFile{Name: name, ContentType: ContentTypePDF, Data: gateway.MemoryDocument(label, pages)}
}

func decode(t *testing.T, data []byte) gateway.MemoryFile {
	t.Helper()
	file, err := gateway.DecodeMemory(data)
	require.NoError(t, err)
	return file
}

func run(t *testing.T, r *Runner, kind models.OperationKind, inputs []models.InputFile, p models.JobParams) ([]Output, error) {
	t.Helper()
	p, err := r.Validate(kind, inputs, p)
	if err != nil {
		return nil, err
	}
	return r.Run(context.Background(), kind, inputs, p)
}

func TestCatalogCoversEveryOperation(t *testing.T) {
	defs := Catalog()
	require.Len(t, defs, len(models.AllOperations))
	for i, d := range defs {
		assert.Equal(t, models.AllOperations[i], d.Kind)
		assert.NotEmpty(t, d.Title)
		assert.NotEmpty(t, d.Progress)
		assert.NotNil(t, d.run)
	}
}

func TestOutputNames(t *testing.T) {
	inputs := []models.InputFile{{Name: "report.final.pdf"}}
	cases := []struct {
		kind    models.OperationKind
		single  string
		archive string
	}{
		{models.OpMerge, "merged_document.pdf", "merged_document.zip"},
		{models.OpSplit, "split_document.pdf", "split_documents.zip"},
		{models.OpCompress, "compressed_document.pdf", "compressed_document.zip"},
		{models.OpRotate, "rotated_document.pdf", "rotated_document.zip"},
		{models.OpWatermark, "watermarked_document.pdf", "watermarked_document.zip"},
		{models.OpPDFToImage, "", "report_images.zip"},
		{models.OpImageToPDF, "converted_images.pdf", "converted_images.zip"},
		{models.OpWordToPDF, "converted_word.pdf", "converted_word.zip"},
		{models.OpPDFToPPT, "converted_document.pptx", "converted_document.zip"},
		{models.OpPPTToPDF, "converted_document.pdf", "converted_document.zip"},
		{models.OpPPTBlankSlide, "blank_slide_theme.pptx", "blank_slide_theme.zip"},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			d, ok := Lookup(tc.kind)
			require.True(t, ok)
			assert.Equal(t, tc.single, d.OutputName)
			assert.Equal(t, tc.archive, d.ArchiveName(inputs))
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	r, _ := newRunner(t)
	in := []models.InputFile{pdfInput("a.pdf", "a", 1)}

	p, err := r.Validate(models.OpSplit, in, models.JobParams{})
	require.NoError(t, err)
	assert.Equal(t, models.SplitByRange, p.SplitMode)
	assert.Equal(t, "1-2", p.Range)

	p, err = r.Validate(models.OpSplit, in, models.JobParams{SplitMode: models.SplitByParts})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Parts)

	p, err = r.Validate(models.OpRotate, in, models.JobParams{})
	require.NoError(t, err)
	assert.Equal(t, 90, p.Angle)

	p, err = r.Validate(models.OpWatermark, in, models.JobParams{})
	require.NoError(t, err)
	assert.Equal(t, "CRYSTAL DOC", p.WatermarkText)
}

func TestValidateRejects(t *testing.T) {
	r, _ := newRunner(t)
	in := []models.InputFile{pdfInput("a.pdf", "a", 1)}

	cases := []struct {
		name   string
		kind   models.OperationKind
		inputs []models.InputFile
		params models.JobParams
	}{
		{"no files", models.OpMerge, nil, models.JobParams{}},
		{"unknown kind", models.OperationKind("shred"), in, models.JobParams{}},
		{"bad split mode", models.OpSplit, in, models.JobParams{SplitMode: "halves"}},
		{"negative pages per file", models.OpSplit, in, models.JobParams{SplitMode: models.SplitByPages, PagesPerFile: -1}},
		{"negative parts", models.OpSplit, in, models.JobParams{SplitMode: models.SplitByParts, Parts: -3}},
		{"odd angle", models.OpRotate, in, models.JobParams{Angle: 45}},
		{"blank watermark", models.OpWatermark, in, models.JobParams{WatermarkText: "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Validate(tc.kind, tc.inputs, tc.params)
			require.Error(t, err)
			assert.Equal(t, models.ErrorKindValidation, models.KindOf(err))
		})
	}
}

func TestMergeSingleFileIsIdentity(t *testing.T) {
	r, _ := newRunner(t)
	out, err := run(t, r, models.OpMerge, []models.InputFile{pdfInput("a.pdf", "a", 3)}, models.JobParams{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"a#1", "a#2", "a#3"}, decode(t, out[0].Data).Sources())
}

func TestMergeKeepsInputOrder(t *testing.T) {
	r, _ := newRunner(t)
	inputs := []models.InputFile{pdfInput("b.pdf", "b", 1), pdfInput("a.pdf", "a", 2)}
	out, err := run(t, r, models.OpMerge, inputs, models.JobParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b#1", "a#1", "a#2"}, decode(t, out[0].Data).Sources())
}

func TestMergeRejectsMalformedInput(t *testing.T) {
	r, _ := newRunner(t)
	inputs := []models.InputFile{pdfInput("a.pdf", "a", 1), {Name: "bad.pdf", ContentType: ContentTypePDF, Data: []byte("junk")}}
	_, err := run(t, r, models.OpMerge, inputs, models.JobParams{})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindMalformed, models.KindOf(err))
}

func TestLoadRejectsDeclaredNonPDF(t *testing.T) {
	r, _ := newRunner(t)
	in := []models.InputFile{{Name: "pic.png", ContentType: "image/png", Data: []byte("x")}}
	_, err := run(t, r, models.OpCompress, in, models.JobParams{})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindUnsupportedInput, models.KindOf(err))
}

func TestSplitByRangeThenMergeRestoresOrder(t *testing.T) {
	r, _ := newRunner(t)
	parts, err := run(t, r, models.OpSplit, []models.InputFile{pdfInput("a.pdf", "a", 5)},
		models.JobParams{SplitMode: models.SplitByRange, Range: "4-5, 2, 1-2"})
	require.NoError(t, err)
	require.Len(t, parts, 4)

	names := make([]string, 0, len(parts))
	var inputs []models.InputFile
	for _, p := range parts {
		names = append(names, p.Name)
		inputs = append(inputs, models.InputFile{Name: p.Name, ContentType: ContentTypePDF, Data: p.Data})
	}
	assert.Equal(t, []string{"split_part_1.pdf", "split_part_2.pdf", "split_part_3.pdf", "split_part_4.pdf"}, names)

	merged, err := run(t, r, models.OpMerge, inputs, models.JobParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a#1", "a#2", "a#4", "a#5"}, decode(t, merged[0].Data).Sources())
}

func TestSplitEmptySelection(t *testing.T) {
	r, _ := newRunner(t)
	_, err := run(t, r, models.OpSplit, []models.InputFile{pdfInput("a.pdf", "a", 3)},
		models.JobParams{SplitMode: models.SplitByRange, Range: "7"})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindValidation, models.KindOf(err))
}

func TestSplitByGroups(t *testing.T) {
	r, _ := newRunner(t)
	cases := []struct {
		name   string
		params models.JobParams
		total  int
		sizes  []int
	}{
		{"pages per file", models.JobParams{SplitMode: models.SplitByPages, PagesPerFile: 3}, 10, []int{3, 3, 3, 1}},
		{"parts", models.JobParams{SplitMode: models.SplitByParts, Parts: 4}, 10, []int{3, 3, 3, 1}},
		{"fewer parts than asked", models.JobParams{SplitMode: models.SplitByParts, Parts: 5}, 7, []int{2, 2, 2, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := run(t, r, models.OpSplit, []models.InputFile{pdfInput("a.pdf", "a", tc.total)}, tc.params)
			require.NoError(t, err)
			require.Len(t, out, len(tc.sizes))

			var all []string
			for i, o := range out {
				file := decode(t, o.Data)
				assert.Len(t, file.Pages, tc.sizes[i])
				all = append(all, file.Sources()...)
			}
			assert.Equal(t, decode(t, gateway.MemoryDocument("a", tc.total)).Sources(), all)
		})
	}
}

func TestSingleDocumentKindsUseFirstInput(t *testing.T) {
	r, _ := newRunner(t)
	inputs := []models.InputFile{pdfInput("a.pdf", "a", 2), pdfInput("b.pdf", "b", 4)}
	out, err := run(t, r, models.OpCompress, inputs, models.JobParams{})
	require.NoError(t, err)
	file := decode(t, out[0].Data)
	assert.Equal(t, []string{"a#1", "a#2"}, file.Sources())
	assert.True(t, file.Compressed)
}

func TestRotateAddsToCurrentRotation(t *testing.T) {
	ctx := context.Background()
	r, gw := newRunner(t)

	doc, err := gw.Load(ctx, gateway.MemoryDocument("a", 2))
	require.NoError(t, err)
	require.NoError(t, gw.SetRotation(ctx, doc, 2, 270))
	data, err := gw.Save(ctx, doc, gateway.SaveOptions{})
	require.NoError(t, err)

	out, err := run(t, r, models.OpRotate, []models.InputFile{{Name: "a.pdf", Data: data}}, models.JobParams{})
	require.NoError(t, err)
	file := decode(t, out[0].Data)
	assert.Equal(t, 90, file.Pages[0].Rotation)
	assert.Equal(t, 0, file.Pages[1].Rotation)
}

func TestWatermarkEveryPage(t *testing.T) {
	r, _ := newRunner(t)
	out, err := run(t, r, models.OpWatermark, []models.InputFile{pdfInput("a.pdf", "a", 2)}, models.JobParams{WatermarkText: "DRAFT"})
	require.NoError(t, err)

	for _, p := range decode(t, out[0].Data).Pages {
		require.Len(t, p.Texts, 1)
		assert.Equal(t, "DRAFT", p.Texts[0].Text)
		assert.Equal(t, gateway.Point{X: gateway.A4.Width / 4, Y: gateway.A4.Height / 2}, p.Texts[0].At)
		assert.Equal(t, WatermarkStyle, p.Texts[0].Style)
	}
}

func TestPDFToImagesNamesPages(t *testing.T) {
	r, _ := newRunner(t)
	out, err := run(t, r, models.OpPDFToImage, []models.InputFile{pdfInput("scan.v2.pdf", "s", 3)}, models.JobParams{})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, o := range out {
		assert.Equal(t, []string{"scan_page_1.png", "scan_page_2.png", "scan_page_3.png"}[i], o.Name)
		img, err := png.Decode(bytes.NewReader(o.Data))
		require.NoError(t, err)
		assert.Equal(t, i+1, img.Bounds().Dx())
	}
}

func pngInput(t *testing.T, name string, w, h int) models.InputFile {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return models.InputFile{Name: name, Data: buf.Bytes()}
}

func TestImagesToPDF(t *testing.T) {
	r, _ := newRunner(t)
	inputs := []models.InputFile{
		pngInput(t, "wide.png", 40, 10),
		{Name: "anim.gif", ContentType: "image/gif", Data: []byte("GIF89a")},
		pngInput(t, "tall.png", 10, 40),
	}
	out, err := run(t, r, models.OpImageToPDF, inputs, models.JobParams{})
	require.NoError(t, err)

	file := decode(t, out[0].Data)
	require.Len(t, file.Pages, 2)
	assert.Equal(t, gateway.Size{Width: 40, Height: 10}, file.Pages[0].Size)
	assert.Equal(t, gateway.Size{Width: 10, Height: 40}, file.Pages[1].Size)
}

func TestImagesToPDFWithoutImages(t *testing.T) {
	r, _ := newRunner(t)
	inputs := []models.InputFile{{Name: "anim.gif", ContentType: "image/gif", Data: []byte("GIF89a")}}
	_, err := run(t, r, models.OpImageToPDF, inputs, models.JobParams{})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindUnsupportedInput, models.KindOf(err))
}

func docxInput(t *testing.T, paras ...string) models.InputFile {
	t.Helper()
	body := ""
	for _, p := range paras {
		body += "<w:p><w:r><w:t>" + p + "</w:t></w:r></w:p>"
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return models.InputFile{Name: "letter.docx", ContentType: ContentTypeDOCX, Data: buf.Bytes()}
}

func TestWordToPDFTextFallback(t *testing.T) {
	r, _ := newRunner(t)
	out, err := run(t, r, models.OpWordToPDF, []models.InputFile{docxInput(t, "Dear reader,", "Thanks.")}, models.JobParams{})
	require.NoError(t, err)

	file := decode(t, out[0].Data)
	require.Len(t, file.Pages, 1)
	texts := file.Pages[0].Texts
	require.Len(t, texts, 2)
	assert.Equal(t, wordHeading, texts[0].Text)
	assert.Equal(t, gateway.Point{X: 50, Y: gateway.A4.Height - 50}, texts[0].At)
	assert.Equal(t, "Dear reader,\nThanks.", texts[1].Text)
}

type fakePrinter struct {
	html string
	err  error
}

func (p *fakePrinter) PrintHTML(_ context.Context, html string) ([]byte, error) {
	p.html = html
	return []byte("%PDF-printed"), p.err
}

func (p *fakePrinter) Close() error { return nil }

func TestWordToPDFUsesPrinter(t *testing.T) {
	printer := &fakePrinter{}
	r := NewRunner(gateway.NewMemoryGateway(), Settings{Printer: printer}, nil)

	out, err := run(t, r, models.OpWordToPDF, []models.InputFile{docxInput(t, "Hello")}, models.JobParams{})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-printed"), out[0].Data)
	assert.Contains(t, printer.html, "<p>Hello</p>")

	printer.err = errors.New("chrome crashed")
	_, err = run(t, r, models.OpWordToPDF, []models.InputFile{docxInput(t, "Hello")}, models.JobParams{})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindOperation, models.KindOf(err))
}

func TestWordToPDFRejectsNonDocx(t *testing.T) {
	r, _ := newRunner(t)
	_, err := run(t, r, models.OpWordToPDF, []models.InputFile{{Name: "old.doc", Data: []byte("\xd0\xcf\x11\xe0")}}, models.JobParams{})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindUnsupportedInput, models.KindOf(err))
}

func TestPDFToPPT(t *testing.T) {
	ctx := context.Background()
	r, gw := newRunner(t)

	doc, err := gw.Load(ctx, gateway.MemoryDocument("a", 2))
	require.NoError(t, err)
	require.NoError(t, gw.DrawText(ctx, doc, 2, "second page", gateway.Point{}, gateway.DefaultTextStyle))
	data, err := gw.Save(ctx, doc, gateway.SaveOptions{})
	require.NoError(t, err)

	out, err := run(t, r, models.OpPDFToPPT, []models.InputFile{{Name: "a.pdf", Data: data}}, models.JobParams{})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(out[0].Data), int64(len(out[0].Data)))
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["ppt/slides/slide1.xml"])
	assert.True(t, names["ppt/slides/slide2.xml"])
	assert.True(t, names["ppt/media/image2.png"])
	assert.False(t, names["ppt/slides/slide3.xml"])
}

func TestPPTToPDFOnePagePerSlide(t *testing.T) {
	deck := office.NewDeck(office.Layout16x9)
	deck.AddTextSlide("", office.TextBox{Text: "Intro", W: 5, H: 1})
	deck.AddTextSlide("", office.TextBox{Text: "Results", W: 5, H: 1})
	pptx, err := deck.Bytes()
	require.NoError(t, err)

	r, _ := newRunner(t)
	out, err := run(t, r, models.OpPPTToPDF, []models.InputFile{{Name: "talk.pptx", ContentType: ContentTypePPTX, Data: pptx}}, models.JobParams{})
	require.NoError(t, err)

	file := decode(t, out[0].Data)
	require.Len(t, file.Pages, 2)
	assert.Equal(t, "Slide 1", file.Pages[0].Texts[0].Text)
	assert.Equal(t, "Intro", file.Pages[0].Texts[1].Text)
	assert.Equal(t, "Results", file.Pages[1].Texts[1].Text)
	assert.Equal(t, slidePage, file.Pages[0].Size)
}

func TestPPTToPDFPlaceholder(t *testing.T) {
	r, _ := newRunner(t)
	out, err := run(t, r, models.OpPPTToPDF, []models.InputFile{{Name: "legacy.ppt", Data: []byte("\xd0\xcf\x11\xe0")}}, models.JobParams{})
	require.NoError(t, err)

	file := decode(t, out[0].Data)
	require.Len(t, file.Pages, 1)
	assert.Equal(t, "PPT to PDF Conversion: legacy.ppt", file.Pages[0].Texts[0].Text)
}

func TestBlankSlideReusesTheme(t *testing.T) {
	source := office.NewDeck(office.Layout16x9)
	source.SetTheme([]byte(`<a:theme xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" name="Corporate"/>`))
	pptx, err := source.Bytes()
	require.NoError(t, err)

	r, _ := newRunner(t)
	out, err := run(t, r, models.OpPPTBlankSlide, []models.InputFile{{Name: "brand.pptx", Data: pptx}}, models.JobParams{})
	require.NoError(t, err)

	pres, err := office.ReadPptx(out[0].Data)
	require.NoError(t, err)
	require.Len(t, pres.Slides, 1)
	assert.Equal(t, blankSlideText, pres.Slides[0].Text())
	assert.Contains(t, string(pres.Theme), "Corporate")
}

func TestBlankSlideFromNonPresentation(t *testing.T) {
	r, _ := newRunner(t)
	out, err := run(t, r, models.OpPPTBlankSlide, []models.InputFile{{Name: "notes.txt", Data: []byte("hello")}}, models.JobParams{})
	require.NoError(t, err)

	pres, err := office.ReadPptx(out[0].Data)
	require.NoError(t, err)
	require.Len(t, pres.Slides, 1)
	assert.Contains(t, string(pres.Theme), "Office Theme")
}

func TestGatewayFailureIsOperationFailure(t *testing.T) {
	r, gw := newRunner(t)
	gw.FailOn["Save"] = errors.New("disk full")
	_, err := run(t, r, models.OpCompress, []models.InputFile{pdfInput("a.pdf", "a", 1)}, models.JobParams{})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindOperation, models.KindOf(err))
}
