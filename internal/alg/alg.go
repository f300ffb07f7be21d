// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package alg defines the contract a text-mining algorithm satisfies to be
// driven by the engine, and the registry that resolves algorithms by name.
//
// An algorithm is any value; its capabilities are the optional interfaces
// below that it implements. The calling mode decides which capabilities are
// required (see Validate).
package alg

import (
	"errors"
	"io"

	"github.com/pdiddy/pubrun/pkg/types"
)

// Mode is the processing mode a worker runs an algorithm in.
type Mode string

const (
	ModeAnnotate Mode = "annotate"
	ModeMap      Mode = "map"
	ModeReduce   Mode = "reduce"
)

// DefaultClass returns the class name tried when an algorithm name does not
// carry an explicit ":Class" suffix ("Annotate" or "Map").
func (m Mode) DefaultClass() string {
	switch m {
	case ModeAnnotate:
		return "Annotate"
	case ModeMap, ModeReduce:
		return "Map"
	}
	return ""
}

var (
	// ErrConfig marks fatal configuration errors. No job may be submitted
	// after one is reported.
	ErrConfig = errors.New("configuration error")

	// ErrNotFound is returned when an algorithm name cannot be resolved.
	ErrNotFound = errorf("algorithm not found")

	// ErrMissingCapability is returned when an algorithm lacks a capability
	// its mode requires.
	ErrMissingCapability = errorf("missing capability")
)

// State is the per-partition accumulator shared by Map calls: key to a
// scalar value or a list of values.
type State map[string]any

// Row is one output record of an annotator: the field values in the order
// of the algorithm's headers.
type Row []any

// MergedData is the reducer's view of all partition outputs merged by key.
type MergedData interface {
	// Keys returns every merged key.
	Keys() ([]string, error)

	// Values returns every value seen for key across all partitions.
	Values(key string) ([]any, error)

	// Len returns the number of distinct keys.
	Len() int
}

// Headerer declares the ordered output field names. Required for annotate
// and reduce modes.
type Headerer interface {
	Headers() []string
}

// Starter runs once per worker before any processing. state is nil in
// annotate mode.
type Starter interface {
	Startup(params types.Params, state State) error
}

// Annotator produces annotation rows for one file (or one section slice of
// it). A nil result means "no annotations" and is not an error.
type Annotator interface {
	AnnotateFile(article *types.Article, file types.FileRecord) ([]Row, error)
}

// Mapper accumulates into the shared partition state.
type Mapper interface {
	Map(article *types.Article, file types.FileRecord, text string, state State) error
}

// Ender post-processes the partition state after the last Map call. The
// returned state replaces the old one.
type Ender interface {
	End(state State) (State, error)
}

// Reducer turns all values of one key into output rows. Each row may be nil
// (skipped), a scalar (one field) or a slice of fields.
type Reducer interface {
	Reduce(key string, values []any) ([]any, error)
}

// ReduceStarter runs once before the reduction with access to all merged
// data and the open output stream, e.g. to write a preamble.
type ReduceStarter interface {
	ReduceStartup(data MergedData, params types.Params, w io.Writer) error
}

// Flagger declares the behavior flags of an algorithm. Parameters with the
// same names override the declared values.
type Flagger interface {
	Flags() Flags
}

// Flags gate sectioning and file selection.
type Flags struct {
	Sectioning bool
	OnlyMain   bool
	OnlyMeta   bool
	BestMain   bool
}

// Selection converts the file-selection flags for the document store.
func (f Flags) Selection() types.Selection {
	return types.Selection{OnlyMeta: f.OnlyMeta, BestMain: f.BestMain, OnlyMain: f.OnlyMain}
}

// ResolveFlags returns the declared flags of impl overridden by params of
// the same name (sectioning, onlyMain, onlyMeta, bestMain).
func ResolveFlags(impl any, params types.Params) Flags {
	var f Flags
	if fl, ok := impl.(Flagger); ok {
		f = fl.Flags()
	}
	override := func(key string, dst *bool) {
		if v, ok := params.Bool(key); ok {
			*dst = v
		}
	}
	override("sectioning", &f.Sectioning)
	override("onlyMain", &f.OnlyMain)
	override("onlyMeta", &f.OnlyMeta)
	override("bestMain", &f.BestMain)
	return f
}

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }
func (e *configError) Unwrap() error { return ErrConfig }

func errorf(msg string) error { return &configError{msg: msg} }
