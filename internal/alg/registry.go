// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package alg

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/pubrun/pkg/types"
)

// Factory creates a fresh algorithm value. Every worker gets its own
// instance; algorithms may keep mutable state between calls.
type Factory func() any

// Registry maps module names to their classes. A class registered under
// the empty name is the module-level algorithm. A Registry is built by the
// caller for one run; there is no process-wide registry.
type Registry struct {
	modules map[string]map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]map[string]Factory)}
}

// Register adds a factory for module:class. Registering the same pair twice
// replaces the earlier factory.
func (r *Registry) Register(module, class string, f Factory) {
	classes, ok := r.modules[module]
	if !ok {
		classes = make(map[string]Factory)
		r.modules[module] = classes
	}
	classes[class] = f
}

// Names returns the registered algorithm names as "module" or
// "module:Class", sorted.
func (r *Registry) Names() []string {
	var names []string
	for module, classes := range r.modules {
		for class := range classes {
			if class == "" {
				names = append(names, module)
			} else {
				names = append(names, module+":"+class)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Instance is a resolved, instantiated algorithm.
type Instance struct {
	// Spec is the name the instance was resolved from.
	Spec string

	// Name is the short algorithm name (module name without directory or
	// extension) used to namespace parameters.
	Name string

	// Impl is the algorithm value; its capabilities are probed by interface.
	Impl any
}

// Resolve instantiates the algorithm named "module" or "module:Class". The
// explicit class is tried first, then defClass, then the module-level
// algorithm.
func (r *Registry) Resolve(name, defClass string) (*Instance, error) {
	module, class := splitName(name)
	short := ShortName(name)
	slog.Debug("resolving algorithm", "name", name, "class", class, "default_class", defClass)

	classes, ok := r.modules[short]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, module)
	}

	var candidates []string
	if class != "" {
		candidates = append(candidates, class)
	}
	if defClass != "" {
		candidates = append(candidates, defClass)
	}
	candidates = append(candidates, "")
	for _, c := range candidates {
		if f, ok := classes[c]; ok {
			return &Instance{Spec: name, Name: short, Impl: f()}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (class %q, default class %q)", ErrNotFound, module, class, defClass)
}

// ShortName returns the module part of an algorithm name without directory
// and extension: "algs/genes.py:Annotate" becomes "genes".
func ShortName(name string) string {
	module, _ := splitName(name)
	module = filepath.Base(module)
	if i := strings.Index(module, "."); i >= 0 {
		module = module[:i]
	}
	return module
}

func splitName(name string) (module, class string) {
	if i := strings.LastIndex(name, ":"); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}

// Headers returns the declared headers of an algorithm, or nil.
func Headers(impl any) []string {
	h, ok := impl.(Headerer)
	if !ok {
		return nil
	}
	return h.Headers()
}

// Validate checks that inst implements every capability mode requires.
func Validate(inst *Instance, mode Mode) error {
	need := func(ok bool, what string) error {
		if ok {
			return nil
		}
		return fmt.Errorf("%w: %s has no %s, required in %s mode", ErrMissingCapability, inst.Spec, what, mode)
	}

	var err error
	switch mode {
	case ModeAnnotate:
		_, ok := inst.Impl.(Annotator)
		err = need(ok, "AnnotateFile")
	case ModeMap:
		_, ok := inst.Impl.(Mapper)
		err = need(ok, "Map")
	case ModeReduce:
		_, ok := inst.Impl.(Reducer)
		err = need(ok, "Reduce")
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrConfig, mode)
	}
	if err != nil {
		return err
	}

	if mode == ModeAnnotate || mode == ModeReduce {
		if len(Headers(inst.Impl)) == 0 {
			return need(false, "headers")
		}
	}
	return nil
}

// Check resolves name, validates it for every listed mode and runs its
// Startup on a copy of params. It is the pre-submission test that a batch
// must pass before any job is created.
func (r *Registry) Check(name string, params types.Params, modes ...Mode) (*Instance, error) {
	if len(modes) == 0 {
		return nil, fmt.Errorf("%w: no mode given for %s", ErrConfig, name)
	}
	inst, err := r.Resolve(name, modes[0].DefaultClass())
	if err != nil {
		return nil, err
	}
	for _, m := range modes {
		if err := Validate(inst, m); err != nil {
			return nil, err
		}
	}
	if s, ok := inst.Impl.(Starter); ok {
		var state State
		if modes[0] != ModeAnnotate {
			state = State{}
		}
		if err := s.Startup(params.Clone(), state); err != nil {
			return nil, fmt.Errorf("%w: startup of %s: %v", ErrConfig, name, err)
		}
	}
	return inst, nil
}
