// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fsutil

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Stdout is the output name that selects standard output.
const Stdout = "stdout"

// Output is a buffered result stream. For a file name it writes to a local
// temporary file and moves it into place on Commit; names ending in .gz are
// gzip-compressed.
type Output struct {
	name string
	tmp  string
	f    *os.File
	zw   *gzip.Writer
	bw   *bufio.Writer
}

// CreateOutput opens an Output for name, or standard output when name is
// Stdout. Temporary files are created under tempDir.
func CreateOutput(name, tempDir string) (*Output, error) {
	if name == Stdout {
		return &Output{name: name, bw: bufio.NewWriter(os.Stdout)}, nil
	}
	tmp, err := TempFile(tempDir, "pubRun*.tmp")
	if err != nil {
		return nil, err
	}
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	o := &Output{name: name, tmp: tmp, f: f}
	var sink io.Writer = f
	if strings.HasSuffix(name, ".gz") {
		o.zw = gzip.NewWriter(f)
		sink = o.zw
	}
	o.bw = bufio.NewWriter(sink)
	return o, nil
}

func (o *Output) Write(p []byte) (int, error) { return o.bw.Write(p) }

// Commit flushes the stream and moves the temporary file to its final name.
func (o *Output) Commit() error {
	if err := o.close(); err != nil {
		if o.tmp != "" {
			os.Remove(o.tmp)
		}
		return err
	}
	if o.tmp == "" {
		return nil
	}
	return MoveFile(o.tmp, o.name)
}

// Abort discards the temporary file.
func (o *Output) Abort() {
	o.close()
	if o.tmp != "" {
		os.Remove(o.tmp)
	}
}

func (o *Output) close() error {
	err := o.bw.Flush()
	if o.zw != nil {
		if zerr := o.zw.Close(); err == nil {
			err = zerr
		}
	}
	if o.f != nil {
		if cerr := o.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
