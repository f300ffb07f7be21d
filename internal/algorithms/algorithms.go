// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package algorithms holds the algorithms shipped with pubrun.
package algorithms

import "github.com/pdiddy/pubrun/internal/alg"

// Register adds the built-in algorithms to reg.
func Register(reg *alg.Registry) {
	reg.Register("wordcount", "Map", func() any { return &WordCount{} })
	reg.Register("keywords", "Annotate", func() any { return &KeywordAnnotator{} })
	reg.Register("keywords", "Map", func() any { return &KeywordArticles{} })
}
