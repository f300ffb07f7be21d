// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package codec reads and writes the engine's binary containers: a
// msgpack-encoded value inside a gzip stream. Parameter bundles and map
// partition outputs both use it.
package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"
)

// Encode writes v to w as gzip-compressed msgpack.
func Encode(w io.Writer, v any) error {
	zw, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	enc := msgpack.NewEncoder(zw)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		zw.Close()
		return fmt.Errorf("encoding: %w", err)
	}
	return zw.Close()
}

// Decode reads one gzip-compressed msgpack value from r into v. Numbers
// decoded into interface values become int64, uint64 or float64.
func Decode(r io.Reader, v any) error {
	zr, err := gzip.NewReader(bufio.NewReader(r))
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer zr.Close()

	dec := msgpack.NewDecoder(zr)
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding: %w", err)
	}
	return nil
}

// Marshal encodes v as uncompressed msgpack, for values stored inside
// another container.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes msgpack data written by Marshal.
func Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}

// WriteFile encodes v into the file at path, replacing it.
func WriteFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := Encode(bw, v); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// ReadFile decodes the file at path into v.
func ReadFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Decode(f, v); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
