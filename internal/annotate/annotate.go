// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package annotate runs an annotator over the files of a stored partition
// and writes one tab-separated row per annotation, each tagged with a
// fixed-width numeric annotation id derived from the file id.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/internal/fsutil"
	"github.com/pdiddy/pubrun/internal/pubstore"
	"github.com/pdiddy/pubrun/internal/section"
	"github.com/pdiddy/pubrun/internal/snippet"
	"github.com/pdiddy/pubrun/internal/tracer"
	"github.com/pdiddy/pubrun/pkg/types"
)

// ParamSnippets set to false disables snippet generation.
const ParamSnippets = "snippets"

// ErrCapacity is returned when a file yields more annotations than its
// annotation id range can number.
var ErrCapacity = errors.New("annotation id capacity exceeded")

// Source yields the articles of one partition with their selected files.
type Source interface {
	Each(sel types.Selection, fn func(article *types.Article, files []types.FileRecord) error) error
}

// Options configures a Writer.
type Options struct {
	// Config supplies the digit widths and snippet bounds.
	Config types.EngineConfig

	// Offset is added to every annotation id of a file, keeping the ids of
	// algorithms run together disjoint.
	Offset int64

	// AddFields names article metadata fields written after the external id.
	AddFields []string

	// Sectioning adds a section column and annotates each section separately.
	Sectioning bool

	// Sectioner splits main text into sections; nil disables sectioning.
	Sectioner section.Sectioner

	// NoSnippets leaves the snippet column empty.
	NoSnippets bool

	Logger *slog.Logger
}

// Writer drives an annotator over files and writes annotation rows.
type Writer struct {
	w          io.Writer
	inst       *alg.Instance
	annotator  alg.Annotator
	headers    []string
	coords     bool
	addSnippet bool
	opts       Options
	idSpace    int64
	log        *slog.Logger
}

// NewWriter returns a Writer for inst. The algorithm must be an annotator
// with declared headers.
func NewWriter(w io.Writer, inst *alg.Instance, opts Options) (*Writer, error) {
	if err := alg.Validate(inst, alg.ModeAnnotate); err != nil {
		return nil, err
	}
	headers := alg.Headers(inst.Impl)
	space := opts.Config.AnnotIDSpace()
	if opts.Offset < 0 || opts.Offset >= space {
		return nil, fmt.Errorf("%w: annotation id offset %d outside [0,%d)", alg.ErrConfig, opts.Offset, space)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Writer{
		w:          w,
		inst:       inst,
		annotator:  inst.Impl.(alg.Annotator),
		headers:    headers,
		coords:     len(headers) >= 2 && headers[0] == "start" && headers[1] == "end",
		addSnippet: !slices.Contains(headers, "snippet"),
		opts:       opts,
		idSpace:    space,
		log:        log.With("alg", inst.Name),
	}, nil
}

// Headers returns the output columns: annotId, externalId, the extra
// article fields, the algorithm's headers, then section (when sectioning)
// and snippet (unless the algorithm declares its own).
func (w *Writer) Headers() []string {
	cols := []string{"annotId", "externalId"}
	cols = append(cols, w.opts.AddFields...)
	cols = append(cols, w.headers...)
	if w.opts.Sectioning {
		cols = append(cols, "section")
	}
	if w.addSnippet {
		cols = append(cols, "snippet")
	}
	return cols
}

// WriteHeaders writes the header line.
func (w *Writer) WriteHeaders() error {
	cols := w.Headers()
	w.log.Debug("writing headers", "headers", cols)
	_, err := io.WriteString(w.w, strings.Join(cols, "\t")+"\n")
	return err
}

// WriteFile annotates one file and writes its rows. article may be nil for
// files without an article. It returns the number of rows written.
func (w *Writer) WriteFile(article *types.Article, file types.FileRecord) (int, error) {
	idStart := file.FileID*w.idSpace + w.opts.Offset
	text := file.Text()
	w.log.Debug("annotating file", "file_id", file.FileID, "annot_id_start", idStart, "len", len(text))

	extID := "0"
	if article != nil {
		extID = article.ExternalID
	}

	var count int64
	secs := section.Ranges(text, file.FileType, w.opts.Sectioning, w.opts.Sectioner)
	for _, sec := range secs {
		if sec.Name != section.Unknown {
			w.log.Debug("annotating section", "section", sec.Name, "start", sec.Start, "end", sec.End)
		}
		secText := text[sec.Start:sec.End]
		rows, err := w.annotator.AnnotateFile(article, file.WithContent(secText))
		if err != nil {
			return int(count), fmt.Errorf("annotating file %d: %w", file.FileID, err)
		}
		if rows == nil {
			continue
		}

		for _, row := range rows {
			// The running count may never reach the id space.
			if w.opts.Offset+count+1 >= w.idSpace {
				return int(count), fmt.Errorf("%w: file %d has more than %d annotations (offset %d)",
					ErrCapacity, file.FileID, w.idSpace-w.opts.Offset-1, w.opts.Offset)
			}
			fields, err := w.rowFields(idStart+count, extID, article, row, sec, secText)
			if err != nil {
				return int(count), fmt.Errorf("file %d: %w", file.FileID, err)
			}
			if _, err := io.WriteString(w.w, strings.Join(fields, "\t")+"\n"); err != nil {
				return int(count), err
			}
			count++
		}
	}
	return int(count), nil
}

func (w *Writer) rowFields(annotID int64, extID string, article *types.Article, row alg.Row, sec types.Section, secText string) ([]string, error) {
	fields := make([]string, 0, 2+len(w.opts.AddFields)+len(row)+2)
	fields = append(fields, fmt.Sprintf("%0*d", w.opts.Config.IDWidth(), annotID), extID)
	for _, name := range w.opts.AddFields {
		fields = append(fields, article.Field(name))
	}

	values := make([]string, len(row))
	for i, v := range row {
		values[i] = formatValue(v)
	}

	snip := ""
	if w.coords {
		if len(row) < 2 {
			return nil, fmt.Errorf("row %v has no start and end", row)
		}
		start, ok1 := types.AsInt(row[0])
		end, ok2 := types.AsInt(row[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("row %v: start and end must be integers", row)
		}
		if start != 0 || end != 0 {
			if w.addSnippet && !w.opts.NoSnippets {
				snip = snippet.ExtractContext(secText, int(start), int(end),
					w.opts.Config.Snippet.MinContext, w.opts.Config.Snippet.MaxContext)
			}
			values[0] = fmt.Sprint(start + int64(sec.Start))
			values[1] = fmt.Sprint(end + int64(sec.Start))
		}
	}
	fields = append(fields, values...)

	if w.opts.Sectioning {
		fields = append(fields, sec.Name)
	}
	if w.addSnippet {
		fields = append(fields, snip)
	}
	for i := range fields {
		fields[i] = pubstore.RemoveTabNl(fields[i])
	}
	return fields, nil
}

func formatValue(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case []byte:
		return string(vv)
	}
	return fmt.Sprint(v)
}

// RunOptions configures RunAnnotate.
type RunOptions struct {
	Config    types.EngineConfig
	Sectioner section.Sectioner
	Logger    *slog.Logger
}

// RunAnnotate annotates every selected file of src with inst and writes the
// result to outName, or to standard output when outName is fsutil.Stdout.
// Files are written to a local temporary file first and moved into place
// when complete; names ending in .gz are gzip-compressed.
//
// The algorithm's annotation id offset is taken out of params before its
// Startup runs.
func RunAnnotate(ctx context.Context, src Source, inst *alg.Instance, params types.Params, outName string, opts RunOptions) (err error) {
	ctx, span := tracer.Start(ctx, "annotate", attribute.String("alg", inst.Name), attribute.String("out", outName))
	defer func() { tracer.End(span, err) }()

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	offset, err := params.TakeAnnotIDOffset(inst.Name)
	if err != nil {
		return fmt.Errorf("%w: %v", alg.ErrConfig, err)
	}
	log.Debug("annotation id offset", "alg", inst.Name, "offset", offset)

	if err := alg.Validate(inst, alg.ModeAnnotate); err != nil {
		return err
	}
	if s, ok := inst.Impl.(alg.Starter); ok {
		log.Debug("running startup", "alg", inst.Name)
		if err := s.Startup(params, nil); err != nil {
			return fmt.Errorf("startup of %s: %w", inst.Name, err)
		}
	}

	flags := alg.ResolveFlags(inst.Impl, params)
	log.Info("annotating", "alg", inst.Name, "sectioning", flags.Sectioning,
		"only_main", flags.OnlyMain, "only_meta", flags.OnlyMeta, "best_main", flags.BestMain)

	snippets := true
	if v, ok := params.Bool(ParamSnippets); ok {
		snippets = v
	}

	out, err := fsutil.CreateOutput(outName, opts.Config.TempDir)
	if err != nil {
		return err
	}

	w, err := NewWriter(out, inst, Options{
		Config:     opts.Config,
		Offset:     offset,
		AddFields:  params.Strings(types.ParamAddFields),
		Sectioning: flags.Sectioning,
		Sectioner:  opts.Sectioner,
		NoSnippets: !snippets,
		Logger:     log,
	})
	if err != nil {
		out.Abort()
		return err
	}
	if err := w.WriteHeaders(); err != nil {
		out.Abort()
		return err
	}

	var total int
	err = src.Each(flags.Selection(), func(article *types.Article, files []types.FileRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, f := range files {
			n, err := w.WriteFile(article, f)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		out.Abort()
		return err
	}
	log.Info("annotation finished", "alg", inst.Name, "annotations", total, "out", outName)
	return out.Commit()
}
