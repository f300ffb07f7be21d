// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubstore

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/pdiddy/pubrun/pkg/types"
)

// WritePartition stores articles and files as the partition base. Newlines
// in file content are stored as paragraph marks; tabs and newlines in every
// other field are replaced by spaces.
func WritePartition(base string, articles []types.Article, files []types.FileRecord) error {
	extra := map[string]bool{}
	for _, a := range articles {
		for k := range a.Fields {
			extra[k] = true
		}
	}
	cols := append([]string(nil), articleColumns...)
	var names []string
	for k := range extra {
		names = append(names, k)
	}
	sort.Strings(names)
	cols = append(cols, names...)

	var rows [][]string
	for _, a := range articles {
		row := []string{strconv.FormatInt(a.ArticleID, 10), a.ExternalID}
		for _, k := range names {
			row = append(row, a.Fields[k])
		}
		rows = append(rows, row)
	}
	if err := writeTable(base+ArticlesExt, cols, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, f := range files {
		rows = append(rows, []string{
			strconv.FormatInt(f.FileID, 10),
			strconv.FormatInt(f.ArticleID, 10),
			string(f.FileType),
			f.Desc,
			f.URL,
			strings.ReplaceAll(f.Content, "\n", types.ParagraphMark),
		})
	}
	return writeTable(base+FilesExt, []string{"fileId", "articleId", "fileType", "desc", "url", "content"}, rows)
}

func writeTable(path string, cols []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	gz := gzip.NewWriter(f)
	bw := bufio.NewWriter(gz)

	write := func(fields []string) {
		for i, v := range fields {
			if i > 0 {
				bw.WriteByte('\t')
			}
			bw.WriteString(RemoveTabNl(v))
		}
		bw.WriteByte('\n')
	}

	write(cols)
	for _, r := range rows {
		write(r)
	}

	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// RemoveTabNl replaces tabs and line breaks by spaces so a value fits in
// one tab-separated field.
func RemoveTabNl(s string) string {
	if !strings.ContainsAny(s, "\t\n\r") {
		return s
	}
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
}
