package gateway

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupark12/docqueue/models"
)

// sizedDocument builds a document with one blank page per size.
func sizedDocument(t *testing.T, g *PDFGateway, sizes ...Size) Document {
	t.Helper()
	ctx := context.Background()
	doc, err := g.New(ctx)
	require.NoError(t, err)
	for i, size := range sizes {
		page, err := g.AddBlankPage(ctx, doc, size)
		require.NoError(t, err)
		require.Equal(t, i+1, page)
	}
	return doc
}

func square(side float64) Size {
	return Size{Width: side, Height: side}
}

func TestPDFGateway_LoadBlank(t *testing.T) {
	g := NewPDFGateway()
	doc, err := g.Load(context.Background(), blankPDF(Size{Width: 200, Height: 100}))
	require.NoError(t, err)

	n, err := g.PageCount(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	size, err := g.PageSize(doc, 1)
	require.NoError(t, err)
	assert.InDelta(t, 200, size.Width, 0.01)
	assert.InDelta(t, 100, size.Height, 0.01)

	_, err = g.PageSize(doc, 2)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
}

func TestPDFGateway_LoadGarbage(t *testing.T) {
	g := NewPDFGateway()
	_, err := g.Load(context.Background(), []byte("this is not a pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedDocument)
	assert.Equal(t, models.ErrorKindMalformed, models.KindOf(err))
}

func TestPDFGateway_CopyPagesKeepsRequestedOrder(t *testing.T) {
	ctx := context.Background()
	g := NewPDFGateway()
	src := sizedDocument(t, g, square(100), square(200), square(300))

	copied, err := g.CopyPages(ctx, src, []int{3, 1})
	require.NoError(t, err)
	dst, err := g.New(ctx)
	require.NoError(t, err)
	require.NoError(t, g.AddPages(ctx, dst, copied))

	data, err := g.Save(ctx, dst, SaveOptions{})
	require.NoError(t, err)
	reloaded, err := g.Load(ctx, data)
	require.NoError(t, err)

	n, err := g.PageCount(reloaded)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	for i, want := range []float64{300, 100} {
		size, err := g.PageSize(reloaded, i+1)
		require.NoError(t, err)
		assert.InDelta(t, want, size.Width, 0.01, "page %d", i+1)
	}

	_, err = g.CopyPages(ctx, src, []int{4})
	assert.ErrorIs(t, err, ErrPageOutOfRange)
}

func TestPDFGateway_AddPagesAppends(t *testing.T) {
	ctx := context.Background()
	g := NewPDFGateway()
	dst := sizedDocument(t, g, square(100))
	src := sizedDocument(t, g, square(200), square(300))

	copied, err := g.CopyPages(ctx, src, AllPages(2))
	require.NoError(t, err)
	require.NoError(t, g.AddPages(ctx, dst, copied))

	n, err := g.PageCount(dst)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	for i, want := range []float64{100, 200, 300} {
		size, err := g.PageSize(dst, i+1)
		require.NoError(t, err)
		assert.InDelta(t, want, size.Width, 0.01, "page %d", i+1)
	}
}

func TestPDFGateway_RotationSurvivesRoundTrip(t *testing.T) {
	ctx := context.Background()
	g := NewPDFGateway()
	doc := sizedDocument(t, g, A4, A4)

	require.NoError(t, g.SetRotation(ctx, doc, 2, 450))
	angle, err := g.Rotation(doc, 2)
	require.NoError(t, err)
	assert.Equal(t, 90, angle)

	data, err := g.Save(ctx, doc, SaveOptions{})
	require.NoError(t, err)
	reloaded, err := g.Load(ctx, data)
	require.NoError(t, err)

	first, err := g.Rotation(reloaded, 1)
	require.NoError(t, err)
	second, err := g.Rotation(reloaded, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, first)
	assert.Equal(t, 90, second)
}

func TestPDFGateway_SaveCompression(t *testing.T) {
	ctx := context.Background()
	g := NewPDFGateway()
	doc, err := g.Load(ctx, blankPDF(A4))
	require.NoError(t, err)

	compressed, err := g.Save(ctx, doc, SaveOptions{Compress: true})
	require.NoError(t, err)
	assert.Contains(t, string(compressed), "/ObjStm")

	plain, err := g.Save(ctx, doc, SaveOptions{})
	require.NoError(t, err)
	assert.NotContains(t, string(plain), "/ObjStm")

	reloaded, err := g.Load(ctx, compressed)
	require.NoError(t, err)
	n, err := g.PageCount(reloaded)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPDFGateway_ReadsDoNotSpoilLaterSaves(t *testing.T) {
	ctx := context.Background()
	g := NewPDFGateway()

	reads := map[string]func(Document) error{
		"render": func(d Document) error {
			_, err := g.RenderPage(ctx, d, 1, 1)
			return err
		},
		"extract text": func(d Document) error {
			_, err := g.ExtractText(ctx, d, 1)
			return err
		},
		"compressed save": func(d Document) error {
			_, err := g.Save(ctx, d, SaveOptions{Compress: true})
			return err
		},
	}
	for name, read := range reads {
		t.Run(name, func(t *testing.T) {
			doc, err := g.Load(ctx, blankPDF(A4))
			require.NoError(t, err)
			require.NoError(t, read(doc))

			data, err := g.Save(ctx, doc, SaveOptions{})
			require.NoError(t, err)
			_, err = g.Load(ctx, data)
			require.NoError(t, err)

			require.NoError(t, g.SetRotation(ctx, doc, 1, 180))
			_, err = g.Save(ctx, doc, SaveOptions{})
			require.NoError(t, err)
		})
	}
}

func TestPDFGateway_RenderPage(t *testing.T) {
	ctx := context.Background()
	g := NewPDFGateway()
	doc, err := g.Load(ctx, blankPDF(Size{Width: 200, Height: 100}))
	require.NoError(t, err)

	data, err := g.RenderPage(ctx, doc, 1, 2)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.InDelta(t, 400, img.Bounds().Dx(), 2)
	assert.InDelta(t, 200, img.Bounds().Dy(), 2)
}

func TestPDFGateway_ExtractTextOfEmptyPage(t *testing.T) {
	g := NewPDFGateway()
	doc, err := g.Load(context.Background(), blankPDF(A4))
	require.NoError(t, err)

	text, err := g.ExtractText(context.Background(), doc, 1)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestPDFGateway_DrawTextKeepsPages(t *testing.T) {
	ctx := context.Background()
	g := NewPDFGateway()
	doc := sizedDocument(t, g, square(300), A4)

	require.NoError(t, g.DrawText(ctx, doc, 2, "CRYSTAL DOC", Point{X: 100, Y: 400}, DefaultTextStyle))

	data, err := g.Save(ctx, doc, SaveOptions{})
	require.NoError(t, err)
	reloaded, err := g.Load(ctx, data)
	require.NoError(t, err)
	n, err := g.PageCount(reloaded)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	size, err := g.PageSize(reloaded, 1)
	require.NoError(t, err)
	assert.InDelta(t, 300, size.Width, 0.01)
}

func TestPDFGateway_EmbedImage(t *testing.T) {
	ctx := context.Background()
	g := NewPDFGateway()

	doc, err := g.EmbedImage(ctx, pngBytes(t, 40, 30), "image/png")
	require.NoError(t, err)
	n, err := g.PageCount(doc)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	size, err := g.PageSize(doc, 1)
	require.NoError(t, err)
	assert.InDelta(t, 40, size.Width, 0.5)
	assert.InDelta(t, 30, size.Height, 0.5)

	_, err = g.EmbedImage(ctx, []byte("GIF89a"), "image/gif")
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestPDFGateway_EmptyDocument(t *testing.T) {
	ctx := context.Background()
	g := NewPDFGateway()
	doc, err := g.New(ctx)
	require.NoError(t, err)

	n, err := g.PageCount(doc)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = g.Save(ctx, doc, SaveOptions{})
	assert.ErrorIs(t, err, ErrEmptyDocument)
	_, err = g.RenderPage(ctx, doc, 1, 1)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}
