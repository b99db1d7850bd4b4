// Package office reads the parts of Word and PowerPoint packages the
// conversions need and writes simple PowerPoint decks.
package office

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrNotPackage is returned when data is not an OOXML (zip) package.
var ErrNotPackage = errors.New("office: not an OOXML package")

// ErrMissingPart is returned when a required package part is absent.
var ErrMissingPart = errors.New("office: missing package part")

func openPackage(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPackage, err)
	}
	return zr, nil
}

func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("office: open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%w: %s", ErrMissingPart, name)
}

// paragraphs collects the text of every paragraph element named para in
// an XML part. Text comes from elements named text; tab and br become
// whitespace.
func paragraphs(part []byte, para, text string) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(part))

	var (
		out    []string
		cur    strings.Builder
		inPara bool
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("office: parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case para:
				inPara = true
				cur.Reset()
			case text:
				inText = true
			case "tab":
				if inPara {
					cur.WriteByte('\t')
				}
			case "br":
				if inPara {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case para:
				inPara = false
				out = append(out, cur.String())
			case text:
				inText = false
			}
		case xml.CharData:
			if inPara && inText {
				cur.Write(t)
			}
		}
	}
	return out, nil
}

// ExtractDocx returns the text of every paragraph in the main document
// part, in document order. Empty paragraphs are kept so that spacing
// survives.
func ExtractDocx(data []byte) ([]string, error) {
	zr, err := openPackage(data)
	if err != nil {
		return nil, err
	}
	part, err := readPart(zr, "word/document.xml")
	if err != nil {
		return nil, err
	}
	return paragraphs(part, "p", "t")
}

// DocxHTML renders paragraphs as a minimal printable HTML page.
func DocxHTML(title string, paras []string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	fmt.Fprintf(&b, "<title>%s</title>", html.EscapeString(title))
	b.WriteString("<style>body{font-family:Helvetica,Arial,sans-serif;font-size:12pt;line-height:1.4;margin:0}p{margin:0 0 8pt 0;white-space:pre-wrap}</style>")
	b.WriteString("</head><body>\n")
	for _, p := range paras {
		if strings.TrimSpace(p) == "" {
			b.WriteString("<p>&nbsp;</p>\n")
			continue
		}
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(p))
	}
	b.WriteString("</body></html>\n")
	return b.String()
}

// PlainText joins paragraphs with newlines and trims surrounding space.
func PlainText(paras []string) string {
	return strings.TrimSpace(strings.Join(paras, "\n"))
}
