package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/pdiddy/pubrun/internal/pubstore"
	"github.com/pdiddy/pubrun/pkg/types"
)

const (
	sampleDir        = "text/sample"
	samplePartitions = 4
	sampleArticles   = 25
)

var sampleSections = []string{"Introduction", "Methods", "Results", "Discussion"}

// Sample writes a small synthetic dataset to text/sample for trying
// annotate and mapreduce runs locally.
func Sample() error {
	if err := os.MkdirAll(sampleDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", sampleDir, err)
	}
	faker := gofakeit.New(7)
	fileSpace := int64(1000)

	for p := 0; p < samplePartitions; p++ {
		var articles []types.Article
		var files []types.FileRecord
		for i := 0; i < sampleArticles; i++ {
			id := int64(p*sampleArticles + i + 1)
			articles = append(articles, types.Article{
				ArticleID:  id,
				ExternalID: fmt.Sprintf("PMID%d", 10000000+id),
				Fields: map[string]string{
					"title":   faker.Sentence(8),
					"authors": faker.Name() + ", " + faker.Name(),
					"journal": faker.Company(),
					"year":    fmt.Sprint(faker.IntRange(1995, 2025)),
				},
			})
			files = append(files, types.FileRecord{
				FileID:    id * fileSpace,
				ArticleID: id,
				FileType:  types.FileMain,
				Desc:      "main text",
				Content:   sampleText(faker),
			})
			if faker.Bool() {
				files = append(files, types.FileRecord{
					FileID:    id*fileSpace + 1,
					ArticleID: id,
					FileType:  types.FileSupp,
					Desc:      "supplementary table",
					Content:   faker.Paragraph(2, 3, 12, "\n"),
				})
			}
		}
		base := filepath.Join(sampleDir, fmt.Sprintf("0_%05d", p))
		if err := pubstore.WritePartition(base, articles, files); err != nil {
			return fmt.Errorf("writing %s: %w", base, err)
		}
		fmt.Println("  ", base)
	}
	fmt.Printf("Sample dataset written to %s.\n", sampleDir)
	return nil
}

func sampleText(faker *gofakeit.Faker) string {
	var b strings.Builder
	for _, name := range sampleSections {
		b.WriteString(name)
		b.WriteString("\n")
		b.WriteString(faker.Paragraph(2, 4, 14, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}
