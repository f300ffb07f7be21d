// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package algorithms

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/pkg/types"
)

// WordCount counts word frequencies over a corpus. Words shorter than
// minLength are ignored; words seen fewer than minCount times are dropped
// on reduce.
type WordCount struct {
	minLength int
	minCount  int64
}

func (w *WordCount) Headers() []string { return []string{"word", "count"} }

func (w *WordCount) Flags() alg.Flags { return alg.Flags{OnlyMain: true} }

func (w *WordCount) Startup(params types.Params, state alg.State) error {
	w.minLength = 1
	if n, ok := params.Int("minLength"); ok {
		w.minLength = int(n)
	}
	w.minCount = 1
	if n, ok := params.Int("minCount"); ok {
		w.minCount = n
	}
	return nil
}

func (w *WordCount) Map(article *types.Article, file types.FileRecord, text string, state alg.State) error {
	for _, word := range Words(text) {
		if len(word) < w.minLength {
			continue
		}
		n, _ := state[word].(int64)
		state[word] = n + 1
	}
	return nil
}

func (w *WordCount) Reduce(key string, values []any) ([]any, error) {
	var sum int64
	for _, v := range values {
		n, ok := types.AsInt(v)
		if !ok {
			return nil, fmt.Errorf("count %v of %q is not a number", v, key)
		}
		sum += n
	}
	if sum < w.minCount {
		return nil, nil
	}
	return []any{[]any{key, sum}}, nil
}

// Words splits text into lower-case words of letters and digits.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
