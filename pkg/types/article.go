// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the records shared by the pubrun engine: articles
// and their files, parameter bundles and engine configuration.
package types

import "strings"

// FileType classifies the physical text unit of an article.
type FileType string

const (
	FileMain FileType = "main"
	FileSupp FileType = "supp"
	FileMeta FileType = "meta"
)

// ParagraphMark is the control character the document store uses in place
// of line breaks inside file content.
const ParagraphMark = "\a"

// Article is a logical document read from the document store.
type Article struct {
	// ArticleID is the numeric article identifier within the store.
	ArticleID int64 `json:"article_id" yaml:"article_id"`

	// ExternalID is the publisher identifier (PMID, DOI, PMC id, ...).
	ExternalID string `json:"external_id" yaml:"external_id"`

	// Fields holds every other stored metadata column by name
	// (title, authors, journal, year, ...).
	Fields map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Field returns the named metadata field. articleId and externalId are
// addressable by name too. A missing field yields "".
func (a *Article) Field(name string) string {
	if a == nil {
		return ""
	}
	switch name {
	case "articleId":
		return formatInt(a.ArticleID)
	case "externalId":
		return a.ExternalID
	}
	return a.Fields[name]
}

// FileRecord is one physical text unit (main text, supplement, metadata)
// belonging to an article.
type FileRecord struct {
	FileID    int64    `json:"file_id" yaml:"file_id"`
	ArticleID int64    `json:"article_id" yaml:"article_id"`
	FileType  FileType `json:"file_type" yaml:"file_type"`
	Desc      string   `json:"desc,omitempty" yaml:"desc,omitempty"`
	URL       string   `json:"url,omitempty" yaml:"url,omitempty"`

	// Content is the full text. Line breaks are stored as ParagraphMark.
	Content string `json:"content" yaml:"content"`
}

// Text returns the content with paragraph marks translated to newlines.
func (f FileRecord) Text() string {
	return strings.ReplaceAll(f.Content, ParagraphMark, "\n")
}

// WithContent returns a copy of f whose content is replaced. The receiver
// is not modified.
func (f FileRecord) WithContent(content string) FileRecord {
	f.Content = content
	return f
}

// Section is a named half-open character range [Start, End) over a file's text.
type Section struct {
	Name  string `json:"name" yaml:"name"`
	Start int    `json:"start" yaml:"start"`
	End   int    `json:"end" yaml:"end"`
}

// Selection restricts which files of an article are handed to an algorithm.
// OnlyMeta takes precedence over BestMain, which takes precedence over OnlyMain.
type Selection struct {
	OnlyMeta bool
	BestMain bool
	OnlyMain bool
}
