// Package operations implements every document operation offered on the
// dashboard on top of a gateway.Gateway.
package operations

import (
	"context"
	"fmt"
	"strings"

	"github.com/jupark12/docqueue/gateway"
	"github.com/jupark12/docqueue/models"
	"github.com/jupark12/docqueue/observability"
	"github.com/jupark12/docqueue/office"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeZIP  = "application/zip"
	ContentTypePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Output is one named file produced by an operation.
type Output struct {
	Name string
	Data []byte
}

// Defaults are the parameter values used when a job leaves them unset.
type Defaults struct {
	SplitRange    string
	PagesPerFile  int
	Parts         int
	RotateAngle   int
	WatermarkText string
}

// DefaultDefaults mirrors the values preselected on the dashboard.
var DefaultDefaults = Defaults{
	SplitRange:    "1-2",
	PagesPerFile:  1,
	Parts:         2,
	RotateAngle:   90,
	WatermarkText: "CRYSTAL DOC",
}

// Settings is the process-wide rendering setup, fixed at start.
type Settings struct {
	// RenderScale is the raster scale for pdf-to-image and pdf-to-ppt.
	// 1 is 72 DPI.
	RenderScale float64
	Defaults    Defaults
	// Printer prints Word documents as HTML. When nil word-to-pdf falls
	// back to drawing the text onto a page.
	Printer office.HTMLPrinter
}

// Definition describes one operation kind.
type Definition struct {
	Kind        models.OperationKind `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	MultiFile   bool                 `json:"multi_file"`
	Accept      []string             `json:"accept"`

	// Progress is the message reported when the operation is dispatched.
	Progress string `json:"-"`
	// OutputName and ContentType describe a single, unarchived output.
	OutputName  string `json:"-"`
	ContentType string `json:"-"`
	// AlwaysArchive bundles the outputs even when there is only one.
	AlwaysArchive bool `json:"-"`

	archiveName func(inputs []models.InputFile) string
	run         func(r *Runner, ctx context.Context, inputs []models.InputFile, p models.JobParams) ([]Output, error)
}

// ArchiveName is the artifact name used when outputs are bundled.
func (d Definition) ArchiveName(inputs []models.InputFile) string {
	if d.archiveName != nil {
		return d.archiveName(inputs)
	}
	return strings.TrimSuffix(d.OutputName, pathExt(d.OutputName)) + ".zip"
}

var registry = map[models.OperationKind]Definition{}

func register(d Definition) {
	registry[d.Kind] = d
}

// Lookup returns the definition of kind.
func Lookup(kind models.OperationKind) (Definition, bool) {
	d, ok := registry[kind]
	return d, ok
}

// Catalog lists every operation in dashboard order.
func Catalog() []Definition {
	defs := make([]Definition, 0, len(models.AllOperations))
	for _, k := range models.AllOperations {
		if d, ok := registry[k]; ok {
			defs = append(defs, d)
		}
	}
	return defs
}

// Runner executes operations against a gateway.
type Runner struct {
	gw       gateway.Gateway
	settings Settings
	log      *observability.Logger
}

// NewRunner builds a Runner. Zero settings fields fall back to defaults.
func NewRunner(gw gateway.Gateway, settings Settings, log *observability.Logger) *Runner {
	if settings.RenderScale <= 0 {
		settings.RenderScale = 2
	}
	if settings.Defaults == (Defaults{}) {
		settings.Defaults = DefaultDefaults
	}
	if log == nil {
		log = observability.Nop()
	}
	return &Runner{gw: gw, settings: settings, log: log}
}

// Validate fills unset parameters from the defaults and checks that the
// job can start. Errors are input validation errors.
func (r *Runner) Validate(kind models.OperationKind, inputs []models.InputFile, p models.JobParams) (models.JobParams, error) {
	if _, ok := registry[kind]; !ok {
		return p, models.ValidationError(fmt.Sprintf("unknown operation %q", kind), nil)
	}
	if len(inputs) == 0 {
		return p, models.ValidationError("no files selected", nil)
	}

	d := r.settings.Defaults
	switch kind {
	case models.OpSplit:
		if p.SplitMode == "" {
			p.SplitMode = models.SplitByRange
		}
		switch p.SplitMode {
		case models.SplitByRange:
			if strings.TrimSpace(p.Range) == "" {
				p.Range = d.SplitRange
			}
		case models.SplitByPages:
			if p.PagesPerFile == 0 {
				p.PagesPerFile = d.PagesPerFile
			}
			if p.PagesPerFile < 1 {
				return p, models.ValidationError("pages per file must be at least 1", nil)
			}
		case models.SplitByParts:
			if p.Parts == 0 {
				p.Parts = d.Parts
			}
			if p.Parts < 1 {
				return p, models.ValidationError("number of parts must be at least 1", nil)
			}
		default:
			return p, models.ValidationError(fmt.Sprintf("unknown split mode %q", p.SplitMode), nil)
		}
	case models.OpRotate:
		if p.Angle == 0 {
			p.Angle = d.RotateAngle
		}
		if p.Angle%90 != 0 {
			return p, models.ValidationError(fmt.Sprintf("rotation angle %d is not a multiple of 90", p.Angle), nil)
		}
	case models.OpWatermark:
		if p.WatermarkText == "" {
			p.WatermarkText = d.WatermarkText
		}
		if strings.TrimSpace(p.WatermarkText) == "" {
			return p, models.ValidationError("watermark text is blank", nil)
		}
	}
	return p, nil
}

// Run executes kind over inputs. Parameters are expected to have passed
// Validate.
func (r *Runner) Run(ctx context.Context, kind models.OperationKind, inputs []models.InputFile, p models.JobParams) ([]Output, error) {
	def, ok := registry[kind]
	if !ok {
		return nil, models.ValidationError(fmt.Sprintf("unknown operation %q", kind), nil)
	}
	if !def.MultiFile && len(inputs) > 1 {
		r.log.Debug().
			Str("operation", string(kind)).
			Int("ignored", len(inputs)-1).
			Msg("Single-document operation, extra inputs ignored")
		inputs = inputs[:1]
	}
	return def.run(r, ctx, inputs, p)
}

func pathExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}

// baseName is a file name up to its first dot.
func baseName(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "document"
	}
	return name
}
