package office

import (
	"encoding/xml"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Slide is the text content of one slide.
type Slide struct {
	Number int
	Lines  []string
}

// Text joins the non-blank lines of the slide.
func (s Slide) Text() string {
	kept := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

// Presentation is what ReadPptx recovers from a deck.
type Presentation struct {
	Slides []Slide
	// Theme is the raw XML of the deck's first theme part, if any.
	Theme []byte
}

var (
	slidePartRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	themePartRe = regexp.MustCompile(`^ppt/theme/theme(\d+)\.xml$`)
)

type presentationXML struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type relationshipsXML struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// ReadPptx extracts slide text and the theme from a PowerPoint package.
// Slides follow the presentation's slide list; when that cannot be read
// they fall back to part-number order.
func ReadPptx(data []byte) (*Presentation, error) {
	zr, err := openPackage(data)
	if err != nil {
		return nil, err
	}
	if _, err := readPart(zr, "ppt/presentation.xml"); err != nil {
		return nil, err
	}

	pres := &Presentation{}
	for i, name := range slideOrder(zr) {
		part, err := readPart(zr, name)
		if err != nil {
			return nil, err
		}
		lines, err := paragraphs(part, "p", "t")
		if err != nil {
			return nil, err
		}
		pres.Slides = append(pres.Slides, Slide{Number: i + 1, Lines: lines})
	}

	themes := matchingParts(zr, themePartRe)
	if len(themes) > 0 {
		if pres.Theme, err = readPart(zr, themes[0]); err != nil {
			return nil, err
		}
	}
	return pres, nil
}

// matchingParts returns the part names matching re, ordered by the number
// captured in its first group.
func matchingParts(zr *zip.Reader, re *regexp.Regexp) []string {
	var names []string
	for _, f := range zr.File {
		if re.MatchString(f.Name) {
			names = append(names, f.Name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return partNumber(re, names[i]) < partNumber(re, names[j])
	})
	return names
}

func partNumber(re *regexp.Regexp, name string) int {
	m := re.FindStringSubmatch(name)
	if len(m) != 2 {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// slideOrder lists slide part names in presentation order.
func slideOrder(zr *zip.Reader) []string {
	fallback := matchingParts(zr, slidePartRe)

	presData, err := readPart(zr, "ppt/presentation.xml")
	if err != nil {
		return fallback
	}
	relsData, err := readPart(zr, "ppt/_rels/presentation.xml.rels")
	if err != nil {
		return fallback
	}

	var pres presentationXML
	var rels relationshipsXML
	if xml.Unmarshal(presData, &pres) != nil || xml.Unmarshal(relsData, &rels) != nil {
		return fallback
	}

	targets := make(map[string]string, len(rels.Relationships))
	for _, r := range rels.Relationships {
		targets[r.ID] = r.Target
	}

	names := make([]string, 0, len(pres.SlideIDs))
	for _, id := range pres.SlideIDs {
		target, ok := targets[id.RID]
		if !ok {
			return fallback
		}
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join("ppt", target)
		}
		names = append(names, target)
	}
	if len(names) == 0 {
		return fallback
	}
	return names
}
