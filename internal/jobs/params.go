// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/internal/codec"
	"github.com/pdiddy/pubrun/pkg/types"
)

// ParamExt is the extension of parameter bundle files.
const ParamExt = ".algParams.gz"

// ParamPath returns where the bundle of algName is stored in dir.
func ParamPath(dir, algName string) string {
	return filepath.Join(dir, alg.ShortName(algName)+ParamExt)
}

// WriteParams stores a parameter bundle at path.
func WriteParams(path string, p types.Params) error {
	for _, k := range p.Keys() {
		v := p[k]
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map {
			slog.Debug("parameter", "key", k, "count", rv.Len())
		} else {
			slog.Debug("parameter", "key", k, "value", v)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating parameter directory: %w", err)
	}
	return codec.WriteFile(path, map[string]any(p))
}

// ReadParams loads a parameter bundle written by WriteParams.
func ReadParams(path string) (types.Params, error) {
	var m map[string]any
	if err := codec.ReadFile(path, &m); err != nil {
		return nil, fmt.Errorf("%w: parameter bundle: %v", alg.ErrConfig, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	for k, v := range m {
		slog.Debug("loaded parameter", "key", k, "value", v)
	}
	return types.Params(m), nil
}
