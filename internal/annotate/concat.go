// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package annotate

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/pdiddy/pubrun/internal/fsutil"
)

// OutputExt is the extension of annotation job outputs.
const OutputExt = ".tab.gz"

// ConcatFiles concatenates the annotation outputs (OutputExt files) in
// inDir, in name order, into outName. Other files, such as parameter
// bundles or staging files, are ignored. Only the first file's header line
// is kept. outName is compressed when it ends in .gz. It returns the number
// of files merged.
func ConcatFiles(inDir, outName string) (int, error) {
	entries, err := os.ReadDir(inDir)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", inDir, err)
	}
	var names []string
	for _, e := range entries {
		if filepath.Join(inDir, e.Name()) == filepath.Clean(outName) {
			continue
		}
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), OutputExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out, err := fsutil.CreateOutput(outName, filepath.Dir(outName))
	if err != nil {
		return 0, err
	}

	for i, name := range names {
		if err := appendTable(out, filepath.Join(inDir, name), i == 0); err != nil {
			out.Abort()
			return i, err
		}
	}
	slog.Info("concatenated annotation files", "dir", inDir, "files", len(names), "out", outName)
	return len(names), out.Commit()
}

func appendTable(w io.Writer, path string, keepHeader bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("%s: %w", path, err)
	}
	if keepHeader && header != "" {
		if !strings.HasSuffix(header, "\n") {
			header += "\n"
		}
		if _, err := io.WriteString(w, header); err != nil {
			return err
		}
	}
	_, err = io.Copy(w, br)
	return err
}
