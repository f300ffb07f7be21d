// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package section

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubrun/pkg/types"
)

const paper = `Title of the paper
Abstract
We study BRCA1.
1. Introduction
BRCA1 is a gene.
## Materials and Methods
We sequenced it.
Results:
It binds DNA.
References
[1] Someone.
`

func TestHeadingsSections(t *testing.T) {
	secs, ok := Headings{}.Sections(paper)
	require.True(t, ok)

	var names []string
	for _, s := range secs {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{Unknown, "abstract", "intro", "methods", "results", "refs"}, names)

	// Ranges are contiguous and cover the whole text.
	assert.Equal(t, 0, secs[0].Start)
	for i := 1; i < len(secs); i++ {
		assert.Equal(t, secs[i-1].End, secs[i].Start)
	}
	assert.Equal(t, len(paper), secs[len(secs)-1].End)

	assert.Equal(t, "## Materials and Methods\nWe sequenced it.\n", paper[secs[3].Start:secs[3].End])
}

func TestHeadingsRequiresTwoSections(t *testing.T) {
	_, ok := Headings{}.Sections("Abstract\nOnly an abstract here.\n")
	assert.False(t, ok)

	_, ok = Headings{MinSections: 1}.Sections("Abstract\nOnly an abstract here.\n")
	assert.True(t, ok)
}

func TestHeadingsIgnoresRepeatsAndProse(t *testing.T) {
	text := "Methods\nThe results were good.\nResults\nMore.\nResults\nStill results.\n"
	secs, ok := Headings{}.Sections(text)
	require.True(t, ok)
	require.Len(t, secs, 2)
	assert.Equal(t, "results", secs[1].Name)
	assert.Equal(t, len(text), secs[1].End)
}

func TestHeadingName(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{"Introduction\n", "intro", true},
		{"  IV. Discussion  ", "discussion", true},
		{"### Acknowledgments", "ack", true},
		{"CONCLUSIONS", "conclusions", true},
		{"Methods are described below in detail.", "", false},
		{"2.1 Methods", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		name, ok := headingName(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.want, name, tt.line)
	}
}

type stubSectioner struct {
	secs []types.Section
	ok   bool
}

func (s stubSectioner) Sections(string) ([]types.Section, bool) { return s.secs, s.ok }

func TestRanges(t *testing.T) {
	text := "some text"
	whole := func(name string) []types.Section {
		return []types.Section{{Name: name, Start: 0, End: len(text)}}
	}
	split := []types.Section{{Name: "abstract", Start: 0, End: 4}, {Name: "methods", Start: 4, End: 9}}

	tests := []struct {
		name     string
		fileType types.FileType
		enabled  bool
		s        Sectioner
		want     []types.Section
	}{
		{"supplement always whole", types.FileSupp, true, stubSectioner{split, true}, whole(Supplement)},
		{"disabled", types.FileMain, false, stubSectioner{split, true}, whole(Unknown)},
		{"enabled", types.FileMain, true, stubSectioner{split, true}, split},
		{"sectioner fails", types.FileMain, true, stubSectioner{nil, false}, whole(Unknown)},
		{"no sectioner", types.FileMain, true, nil, whole(Unknown)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Ranges(text, tt.fileType, tt.enabled, tt.s))
		})
	}
}
