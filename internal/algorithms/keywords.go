// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package algorithms

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/pkg/types"
)

// maxListedArticles bounds the article ids written per keyword.
const maxListedArticles = 20

var errNoKeywords = errors.New(`parameter "keywords" is empty`)

func compileKeywords(params types.Params) (*regexp.Regexp, error) {
	var quoted []string
	for _, w := range params.Strings("keywords") {
		if w = strings.TrimSpace(w); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	if len(quoted) == 0 {
		return nil, errNoKeywords
	}
	// longest first so that overlapping keywords match greedily
	sort.Slice(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// KeywordAnnotator marks every whole-word, case-insensitive occurrence of
// the "keywords" parameter (a list or a comma-separated string).
type KeywordAnnotator struct {
	re *regexp.Regexp
}

func (k *KeywordAnnotator) Headers() []string { return []string{"start", "end", "keyword"} }

func (k *KeywordAnnotator) Flags() alg.Flags { return alg.Flags{Sectioning: true} }

func (k *KeywordAnnotator) Startup(params types.Params, state alg.State) error {
	re, err := compileKeywords(params)
	if err != nil {
		return err
	}
	k.re = re
	return nil
}

func (k *KeywordAnnotator) AnnotateFile(article *types.Article, file types.FileRecord) ([]alg.Row, error) {
	matches := k.re.FindAllStringIndex(file.Content, -1)
	if matches == nil {
		return nil, nil
	}
	rows := make([]alg.Row, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, alg.Row{m[0], m[1], strings.ToLower(file.Content[m[0]:m[1]])})
	}
	return rows, nil
}

// KeywordArticles collects, per keyword, the articles mentioning it.
type KeywordArticles struct {
	re *regexp.Regexp
}

func (k *KeywordArticles) Headers() []string {
	return []string{"keyword", "articleCount", "externalIds"}
}

func (k *KeywordArticles) Startup(params types.Params, state alg.State) error {
	re, err := compileKeywords(params)
	if err != nil {
		return err
	}
	k.re = re
	return nil
}

func (k *KeywordArticles) Map(article *types.Article, file types.FileRecord, text string, state alg.State) error {
	if article == nil {
		return nil
	}
	for _, m := range k.re.FindAllString(text, -1) {
		key := strings.ToLower(m)
		ids, _ := state[key].([]any)
		if len(ids) > 0 && ids[len(ids)-1] == article.ExternalID {
			continue
		}
		state[key] = append(ids, article.ExternalID)
	}
	return nil
}

// End removes articles counted twice for one keyword.
func (k *KeywordArticles) End(state alg.State) (alg.State, error) {
	for key, v := range state {
		ids, _ := v.([]any)
		state[key] = uniq(ids)
	}
	return state, nil
}

func (k *KeywordArticles) Reduce(key string, values []any) ([]any, error) {
	ids := uniq(values)
	listed := make([]string, 0, min(len(ids), maxListedArticles))
	for _, id := range ids[:min(len(ids), maxListedArticles)] {
		listed = append(listed, id.(string))
	}
	return []any{[]any{key, len(ids), strings.Join(listed, ",")}}, nil
}

func uniq(values []any) []any {
	seen := make(map[string]bool, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].(string) < out[j].(string) })
	return out
}
