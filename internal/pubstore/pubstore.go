// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pubstore reads and writes stored corpus partitions. A partition
// is a pair of gzip-compressed tab-separated files sharing a base name:
// <base>.articles.gz holds one article per line, <base>.files.gz one file
// per line, grouped by article. The first line of each names the columns.
package pubstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/pdiddy/pubrun/pkg/types"
)

const (
	ArticlesExt = ".articles.gz"
	FilesExt    = ".files.gz"
)

// ErrNotFound is returned by Open when neither member of a partition exists.
var ErrNotFound = errors.New("partition not found")

// Required columns.
var (
	articleColumns = []string{"articleId", "externalId"}
	fileColumns    = []string{"fileId", "articleId", "fileType", "content"}
)

// Base strips a partition extension from path: "dir/0_00001.articles.gz"
// and "dir/0_00001.files.gz" both become "dir/0_00001".
func Base(path string) string {
	for _, ext := range []string{ArticlesExt, FilesExt} {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return path
}

// Reader iterates the articles of one stored partition.
type Reader struct {
	base       string
	fileDigits int
	articles   map[int64]*types.Article
	order      []int64
	files      *os.File
	gz         *gzip.Reader
	consumed   bool
	closed     bool
}

// Open opens the partition at path (base name or either member file).
// fileDigits is used to number metadata pseudo-files; 0 selects 3.
func Open(path string, fileDigits int) (*Reader, error) {
	if fileDigits <= 0 {
		fileDigits = 3
	}
	base := Base(path)
	r := &Reader{base: base, fileDigits: fileDigits, articles: make(map[int64]*types.Article)}

	hasArticles, err := r.loadArticles(base + ArticlesExt)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(base + FilesExt)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if !hasArticles {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, base)
			}
			slog.Debug("partition has no files member", "base", base)
			return r, nil
		}
		return nil, fmt.Errorf("opening %s: %w", base+FilesExt, err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening %s: %w", base+FilesExt, err)
	}
	r.files, r.gz = f, gz
	return r, nil
}

// Close releases the underlying files. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.files == nil {
		return nil
	}
	r.gz.Close()
	return r.files.Close()
}

// Base returns the partition base path.
func (r *Reader) Base() string { return r.base }

// loadArticles reads the articles member. It reports false when the member
// does not exist.
func (r *Reader) loadArticles(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer gz.Close()

	tr := newTableReader(gz)
	if err := tr.readHeader(articleColumns); err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	for {
		row, err := tr.next()
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("%s: %w", path, err)
		}
		id, err := strconv.ParseInt(row["articleId"], 10, 64)
		if err != nil {
			return false, fmt.Errorf("%s line %d: bad articleId %q", path, tr.line, row["articleId"])
		}
		a := &types.Article{ArticleID: id, ExternalID: row["externalId"], Fields: make(map[string]string)}
		for k, v := range row {
			if k != "articleId" && k != "externalId" {
				a.Fields[k] = v
			}
		}
		if _, dup := r.articles[id]; !dup {
			r.order = append(r.order, id)
		}
		r.articles[id] = a
	}
}

// Each calls fn once per article with the article's files filtered by sel,
// in storage order. Files whose article is missing from the articles member
// are passed with a nil article. Articles whose selection is empty are
// skipped. A partition can be iterated once.
func (r *Reader) Each(sel types.Selection, fn func(article *types.Article, files []types.FileRecord) error) error {
	if r.closed {
		return fmt.Errorf("reader for %s is closed", r.base)
	}
	if r.consumed {
		return fmt.Errorf("reader for %s already iterated", r.base)
	}
	r.consumed = true
	grouped, err := r.readFiles()
	if err != nil {
		return err
	}

	emit := func(a *types.Article, files []types.FileRecord) error {
		files = r.selectFiles(a, files, sel)
		if len(files) == 0 {
			return nil
		}
		return fn(a, files)
	}

	for _, id := range r.order {
		if err := emit(r.articles[id], grouped.byArticle[id]); err != nil {
			return err
		}
	}
	for _, id := range grouped.orphanOrder {
		if err := emit(nil, grouped.byArticle[id]); err != nil {
			return err
		}
	}
	return nil
}

type groupedFiles struct {
	byArticle   map[int64][]types.FileRecord
	orphanOrder []int64
}

func (r *Reader) readFiles() (groupedFiles, error) {
	g := groupedFiles{byArticle: make(map[int64][]types.FileRecord)}
	if r.gz == nil {
		return g, nil
	}
	path := r.base + FilesExt
	tr := newTableReader(r.gz)
	if err := tr.readHeader(fileColumns); err != nil {
		return g, fmt.Errorf("%s: %w", path, err)
	}
	for {
		row, err := tr.next()
		if err == io.EOF {
			return g, nil
		}
		if err != nil {
			return g, fmt.Errorf("%s: %w", path, err)
		}
		f, err := fileFromRow(row)
		if err != nil {
			return g, fmt.Errorf("%s line %d: %w", path, tr.line, err)
		}
		if _, known := r.articles[f.ArticleID]; !known {
			if _, seen := g.byArticle[f.ArticleID]; !seen {
				g.orphanOrder = append(g.orphanOrder, f.ArticleID)
			}
		}
		g.byArticle[f.ArticleID] = append(g.byArticle[f.ArticleID], f)
	}
}

func fileFromRow(row map[string]string) (types.FileRecord, error) {
	fileID, err := strconv.ParseInt(row["fileId"], 10, 64)
	if err != nil {
		return types.FileRecord{}, fmt.Errorf("bad fileId %q", row["fileId"])
	}
	articleID, err := strconv.ParseInt(row["articleId"], 10, 64)
	if err != nil {
		return types.FileRecord{}, fmt.Errorf("bad articleId %q", row["articleId"])
	}
	return types.FileRecord{
		FileID:    fileID,
		ArticleID: articleID,
		FileType:  types.FileType(row["fileType"]),
		Desc:      row["desc"],
		URL:       row["url"],
		Content:   row["content"],
	}, nil
}

// selectFiles applies the file selection. OnlyMeta wins over BestMain, which
// wins over OnlyMain.
func (r *Reader) selectFiles(a *types.Article, files []types.FileRecord, sel types.Selection) []types.FileRecord {
	switch {
	case sel.OnlyMeta:
		metas := filterType(files, types.FileMeta)
		if len(metas) == 0 && a != nil {
			if m, ok := r.metaFile(a); ok {
				metas = append(metas, m)
			}
		}
		return metas
	case sel.BestMain:
		mains := filterType(files, types.FileMain)
		if len(mains) == 0 {
			return nil
		}
		sort.SliceStable(mains, func(i, j int) bool {
			if len(mains[i].Content) != len(mains[j].Content) {
				return len(mains[i].Content) > len(mains[j].Content)
			}
			return mains[i].FileID < mains[j].FileID
		})
		return mains[:1]
	case sel.OnlyMain:
		return filterType(files, types.FileMain)
	}
	return files
}

// metaFile synthesizes a metadata file from the title and abstract fields.
func (r *Reader) metaFile(a *types.Article) (types.FileRecord, bool) {
	title, abstract := a.Field("title"), a.Field("abstract")
	if title == "" && abstract == "" {
		return types.FileRecord{}, false
	}
	var parts []string
	for _, p := range []string{title, abstract} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	content := strings.Join(parts, types.ParagraphMark)
	return types.FileRecord{
		FileID:    a.ArticleID * int64(math.Pow10(r.fileDigits)),
		ArticleID: a.ArticleID,
		FileType:  types.FileMeta,
		Desc:      "title and abstract",
		Content:   content,
	}, true
}

func filterType(files []types.FileRecord, ft types.FileType) []types.FileRecord {
	var out []types.FileRecord
	for _, f := range files {
		if f.FileType == ft {
			out = append(out, f)
		}
	}
	return out
}

// tableReader reads tab-separated lines keyed by a header line.
type tableReader struct {
	br      *bufio.Reader
	columns []string
	line    int
}

func newTableReader(r io.Reader) *tableReader {
	return &tableReader{br: bufio.NewReaderSize(r, 1<<20)}
}

func (t *tableReader) readLine() (string, error) {
	s, err := t.br.ReadString('\n')
	if err == io.EOF && s != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	t.line++
	return strings.TrimRight(s, "\r\n"), nil
}

func (t *tableReader) readHeader(required []string) error {
	head, err := t.readLine()
	if err == io.EOF {
		return fmt.Errorf("missing header line")
	}
	if err != nil {
		return err
	}
	t.columns = strings.Split(strings.TrimPrefix(head, "#"), "\t")
	have := make(map[string]bool, len(t.columns))
	for _, c := range t.columns {
		have[c] = true
	}
	for _, c := range required {
		if !have[c] {
			return fmt.Errorf("missing column %q", c)
		}
	}
	return nil
}

func (t *tableReader) next() (map[string]string, error) {
	for {
		s, err := t.readLine()
		if err != nil {
			return nil, err
		}
		if s == "" {
			continue
		}
		fields := strings.Split(s, "\t")
		if len(fields) != len(t.columns) {
			return nil, fmt.Errorf("line %d: %d fields, header has %d", t.line, len(fields), len(t.columns))
		}
		row := make(map[string]string, len(fields))
		for i, c := range t.columns {
			row[c] = fields[i]
		}
		return row, nil
	}
}
