// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package annotate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/internal/pubstore"
	"github.com/pdiddy/pubrun/internal/section"
	"github.com/pdiddy/pubrun/pkg/types"
)

// finder annotates every occurrence of a word.
type finder struct {
	word    string
	started bool
	flags   alg.Flags
}

func (f *finder) Headers() []string { return []string{"start", "end", "word"} }
func (f *finder) Flags() alg.Flags  { return f.flags }

func (f *finder) Startup(params types.Params, state alg.State) error {
	f.started = true
	if w := params.String("word"); w != "" {
		f.word = w
	}
	return nil
}

func (f *finder) AnnotateFile(article *types.Article, file types.FileRecord) ([]alg.Row, error) {
	var rows []alg.Row
	text := file.Content
	for pos := 0; ; {
		i := strings.Index(text[pos:], f.word)
		if i < 0 {
			break
		}
		start := pos + i
		rows = append(rows, alg.Row{start, start + len(f.word), f.word})
		pos = start + len(f.word)
	}
	return rows, nil
}

// counter emits n rows without coordinates.
type counter struct{ n int }

func (c counter) Headers() []string { return []string{"n"} }

func (c counter) AnnotateFile(article *types.Article, file types.FileRecord) ([]alg.Row, error) {
	rows := make([]alg.Row, c.n)
	for i := range rows {
		rows[i] = alg.Row{i}
	}
	return rows, nil
}

func inst(impl any) *alg.Instance {
	return &alg.Instance{Spec: "finder", Name: "finder", Impl: impl}
}

func lines(s string) [][]string {
	var out [][]string
	for _, l := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		out = append(out, strings.Split(l, "\t"))
	}
	return out
}

func TestWriterHeaders(t *testing.T) {
	tests := []struct {
		name       string
		impl       any
		addFields  []string
		sectioning bool
		want       []string
	}{
		{"plain", &finder{}, nil, false, []string{"annotId", "externalId", "start", "end", "word", "snippet"}},
		{"fields and sections", &finder{}, []string{"year"}, true,
			[]string{"annotId", "externalId", "year", "start", "end", "word", "section", "snippet"}},
		{"no coordinates", counter{}, nil, false, []string{"annotId", "externalId", "n", "snippet"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWriter(&bytes.Buffer{}, inst(tt.impl), Options{
				Config:     types.DefaultEngineConfig(),
				AddFields:  tt.addFields,
				Sectioning: tt.sectioning,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, w.Headers())
		})
	}
}

func TestWriteFileIDsAndSnippets(t *testing.T) {
	var buf bytes.Buffer
	cfg := types.DefaultEngineConfig()
	w, err := NewWriter(&buf, inst(&finder{word: "XXX"}), Options{
		Config:    cfg,
		Offset:    50000,
		AddFields: []string{"year"},
	})
	require.NoError(t, err)

	article := &types.Article{ArticleID: 1, ExternalID: "PMID1", Fields: map[string]string{"year": "2001"}}
	file := types.FileRecord{FileID: 1001, ArticleID: 1, FileType: types.FileMain,
		Content: "Found XXX here. Then XXX again."}
	n, err := w.WriteFile(article, file)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows := lines(buf.String())
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"000000000100150000", "PMID1", "2001", "6", "9", "XXX", "Found <<<XXX>>> here."}, rows[0])
	assert.Equal(t, "000000000100150001", rows[1][0])
	assert.Equal(t, "Then <<<XXX>>> again.", rows[1][6])
	for _, r := range rows {
		assert.Len(t, r[0], cfg.IDWidth())
	}
}

func TestWriteFileNilArticle(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, inst(&finder{word: "a"}), Options{Config: types.DefaultEngineConfig(), AddFields: []string{"year"}})
	require.NoError(t, err)

	_, err = w.WriteFile(nil, types.FileRecord{FileID: 7, FileType: types.FileMain, Content: "a"})
	require.NoError(t, err)
	row := lines(buf.String())[0]
	assert.Equal(t, "0", row[1])
	assert.Equal(t, "", row[2])
}

func TestWriteFileSectioning(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, inst(&finder{word: "XXX"}), Options{
		Config:     types.DefaultEngineConfig(),
		Sectioning: true,
		Sectioner:  section.Headings{},
	})
	require.NoError(t, err)

	text := "Title\nMethods\nWe used XXX.\nResults\nXXX worked.\n"
	_, err = w.WriteFile(nil, types.FileRecord{FileID: 1, FileType: types.FileMain, Content: text})
	require.NoError(t, err)

	rows := lines(buf.String())
	require.Len(t, rows, 2)
	for _, r := range rows {
		start, end := atoi(t, r[2]), atoi(t, r[3])
		assert.Equal(t, "XXX", text[start:end], "offsets are relative to the whole file")
	}
	assert.Equal(t, "methods", rows[0][5])
	assert.Equal(t, "results", rows[1][5])
	assert.Equal(t, "Methods We used <<<XXX>>>. ", rows[0][6])
}

func TestWriteFileSupplementSection(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, inst(&finder{word: "X"}), Options{
		Config:     types.DefaultEngineConfig(),
		Sectioning: true,
		Sectioner:  section.Headings{},
	})
	require.NoError(t, err)
	_, err = w.WriteFile(nil, types.FileRecord{FileID: 1, FileType: types.FileSupp, Content: "X"})
	require.NoError(t, err)
	assert.Equal(t, "supplement", lines(buf.String())[0][5])
}

func TestWriteFileCapacity(t *testing.T) {
	cfg := types.DefaultEngineConfig()
	cfg.AnnotDigits = 1

	tests := []struct {
		name    string
		rows    int
		offset  int64
		written int
		full    bool
	}{
		{"below capacity", 9, 0, 9, false},
		{"count reaches id space", 10, 0, 9, true},
		{"offset fits", 4, 5, 4, false},
		{"offset overflows", 6, 5, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, inst(counter{n: tt.rows}), Options{Config: cfg, Offset: tt.offset})
			require.NoError(t, err)

			n, err := w.WriteFile(nil, types.FileRecord{FileID: 3, Content: "x"})
			if tt.full {
				require.ErrorIs(t, err, ErrCapacity)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.written, n)
			assert.Len(t, lines(buf.String()), tt.written)
		})
	}
}

func TestNewWriterRejects(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, inst(&finder{}), Options{Config: types.DefaultEngineConfig(), Offset: 100000})
	assert.ErrorIs(t, err, alg.ErrConfig)

	_, err = NewWriter(&bytes.Buffer{}, inst(struct{}{}), Options{Config: types.DefaultEngineConfig()})
	assert.ErrorIs(t, err, alg.ErrMissingCapability)
}

func TestRunAnnotate(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "0_00000")
	require.NoError(t, pubstore.WritePartition(base,
		[]types.Article{{ArticleID: 1, ExternalID: "PMID1"}},
		[]types.FileRecord{
			{FileID: 1001, ArticleID: 1, FileType: types.FileMain, Content: "A gene here."},
			{FileID: 1002, ArticleID: 1, FileType: types.FileSupp, Content: "gene gene"},
		}))

	src, err := pubstore.Open(base, 3)
	require.NoError(t, err)
	defer src.Close()

	cfg := types.DefaultEngineConfig()
	cfg.TempDir = filepath.Join(dir, "tmp")
	impl := &finder{flags: alg.Flags{OnlyMain: true}}
	params := types.Params{"word": "gene", types.AnnotIDKey("finder"): int64(7)}
	out := filepath.Join(dir, "out", "0_00000.tab.gz")

	require.NoError(t, RunAnnotate(context.Background(), src, inst(impl), params, out, RunOptions{Config: cfg}))
	assert.True(t, impl.started)
	_, still := params[types.AnnotIDKey("finder")]
	assert.False(t, still, "offset is consumed before startup")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	var got bytes.Buffer
	_, err = got.ReadFrom(zr)
	require.NoError(t, err)

	rows := lines(got.String())
	require.Len(t, rows, 2, "header and one row; the supplement is not selected")
	assert.Equal(t, "annotId", rows[0][0])
	assert.Equal(t, "000000000100100007", rows[1][0])
	assert.Equal(t, "A <<<gene>>> here.", rows[1][5])

	entries, err := os.ReadDir(cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file is moved away")
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, gz.Bytes(), 0o644))
}

func TestConcatFiles(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	require.NoError(t, os.MkdirAll(in, 0o755))
	writeGzip(t, filepath.Join(in, "pmc_0_00001.tab.gz"), "h1\th2\n3\t4\n")
	writeGzip(t, filepath.Join(in, "pmc_0_00000.tab.gz"), "h1\th2\n1\t2\n")
	writeGzip(t, filepath.Join(in, "pmc_0_00002.tab.gz"), "h1\th2\n5\t6\n")

	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("stray line\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "pubRun123.tmp"), []byte("h1\th2\npartial\n"), 0o644))
	writeGzip(t, filepath.Join(in, "keywords.algParams.gz"), "not a table")

	out := filepath.Join(dir, "all.tab")
	n, err := ConcatFiles(in, out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "h1\th2\n1\t2\n3\t4\n5\t6\n", string(data))
}

func atoi(t *testing.T, s string) int {
	t.Helper()
	n, ok := types.AsInt(s)
	require.True(t, ok, s)
	return int(n)
}

func TestWriteFileNoSnippets(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, inst(&finder{word: "X"}), Options{Config: types.DefaultEngineConfig(), NoSnippets: true})
	require.NoError(t, err)
	_, err = w.WriteFile(nil, types.FileRecord{FileID: 1, Content: "a X b"})
	require.NoError(t, err)
	row := lines(buf.String())[0]
	assert.Len(t, row, 6)
	assert.Equal(t, "", row[5])
}
