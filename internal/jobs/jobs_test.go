// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/internal/algorithms"
	"github.com/pdiddy/pubrun/internal/batch"
	"github.com/pdiddy/pubrun/internal/pubstore"
	"github.com/pdiddy/pubrun/pkg/types"
)

// inProcessRunner executes worker commands by calling the engine directly.
type inProcessRunner struct {
	e        *Engine
	dir      string
	cmds     []batch.Command
	finishes int
	cleanup  bool
}

func (r *inProcessRunner) BatchDir() string { return r.dir }

func (r *inProcessRunner) Submit(ctx context.Context, cmd batch.Command) error {
	r.cmds = append(r.cmds, cmd)
	return nil
}

func (r *inProcessRunner) Finish(ctx context.Context, wait, cleanup bool) error {
	r.finishes++
	r.cleanup = cleanup
	for _, cmd := range r.cmds {
		algName, mode, in, out, paramFile := cmd.Args[2], cmd.Args[3], cmd.Args[4], cmd.Args[5], cmd.Args[6]
		params, err := ReadParams(paramFile)
		if err != nil {
			return err
		}
		switch alg.Mode(mode) {
		case alg.ModeAnnotate:
			err = r.e.LocalAnnotate(ctx, algName, in, out, params)
		case alg.ModeMap:
			err = r.e.LocalMap(ctx, algName, in, out, params)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}
	return nil
}

// finder annotates one fixed word, for running next to the keyword
// annotator.
type finder struct{}

func (finder) Headers() []string { return []string{"start", "end", "word"} }

func (finder) AnnotateFile(article *types.Article, file types.FileRecord) ([]alg.Row, error) {
	var rows []alg.Row
	for i := strings.Index(file.Content, "mouse"); i >= 0; {
		rows = append(rows, alg.Row{i, i + 5, "mouse"})
		next := strings.Index(file.Content[i+5:], "mouse")
		if next < 0 {
			break
		}
		i += 5 + next
	}
	return rows, nil
}

var corpus = [][]string{
	{"BRCA1 is a gene. The mouse gene is similar.", "Mutations in gene BRCA1 occur."},
	{"A mouse and a gene.", "No keyword at all."},
}

func writeDataset(t *testing.T, dir string) {
	t.Helper()
	for p, texts := range corpus {
		var articles []types.Article
		var files []types.FileRecord
		for a, text := range texts {
			id := int64(p*10 + a + 1)
			articles = append(articles, types.Article{ArticleID: id, ExternalID: fmt.Sprintf("PMID%d", id)})
			files = append(files, types.FileRecord{FileID: id * 1000, ArticleID: id, FileType: types.FileMain, Content: text})
		}
		require.NoError(t, pubstore.WritePartition(filepath.Join(dir, fmt.Sprintf("0_%05d", p)), articles, files))
	}
}

func newTestEngine(t *testing.T) (*Engine, *inProcessRunner, string) {
	t.Helper()
	root := t.TempDir()
	cfg := types.DefaultEngineConfig()
	cfg.TextDir = filepath.Join(root, "text")
	cfg.TempDir = filepath.Join(root, "tmp")
	cfg.MapReduceTmpDir = filepath.Join(root, "mrtmp")
	writeDataset(t, filepath.Join(cfg.TextDir, "pmc"))

	reg := alg.NewRegistry()
	algorithms.Register(reg)
	reg.Register("finder", "", func() any { return finder{} })

	runner := &inProcessRunner{dir: filepath.Join(root, "batch")}
	e := &Engine{Config: cfg, Registry: reg, Runner: runner, Executable: "pubrun"}
	runner.e = e
	return e, runner, root
}

func TestFindPartitions(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"1_00001.articles.gz", "0_00002.articles.gz", "0_00002.files.gz", "0_00001.articles.gz", "readme.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	got, err := FindPartitions(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "0_00001"), filepath.Join(dir, "0_00002"), filepath.Join(dir, "1_00001")}, got)

	got, err = FindPartitions(dir, []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "1_00001")}, got)

	_, err = FindPartitions(dir, []string{"7"})
	assert.ErrorIs(t, err, ErrNoPartitions)

	_, err = FindPartitions(t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrNoPartitions)
}

func TestIDOffsetsAreDisjoint(t *testing.T) {
	const space = int64(100000)
	for n := 1; n <= 12; n++ {
		type span struct{ lo, hi int64 }
		var spans []span
		for a := range n {
			spans = append(spans, span{IDOffset(a, n, space), IDOffset(a+1, n, space)})
		}
		for a := range spans {
			assert.GreaterOrEqual(t, spans[a].lo, int64(0))
			assert.LessOrEqual(t, spans[a].hi, space)
			for b := range spans {
				if a == b {
					continue
				}
				overlap := spans[a].lo < spans[b].hi && spans[b].lo < spans[a].hi
				assert.False(t, overlap, "n=%d ranges %d and %d overlap", n, a, b)
			}
		}
	}
	assert.Equal(t, int64(50000), IDOffset(1, 2, space))
}

func TestOutName(t *testing.T) {
	assert.Equal(t, "pmc_0_00001", OutName("/data/text/pmc/", "/data/text/pmc/0_00001"))
}

func TestBatchID(t *testing.T) {
	a := BatchID(alg.ModeMap, []string{"wordcount"}, []string{"pmc"})
	assert.Len(t, a, 16)
	assert.Equal(t, a, BatchID(alg.ModeMap, []string{"wordcount"}, []string{"pmc"}))
	assert.NotEqual(t, a, BatchID(alg.ModeAnnotate, []string{"wordcount"}, []string{"pmc"}))
}

func TestSubmitJobsCommandsAndParams(t *testing.T) {
	e, _, root := newTestEngine(t)
	rec := &recordingRunner{dir: filepath.Join(root, "batch")}
	e.Runner = rec

	outA, outB := filepath.Join(root, "outA"), filepath.Join(root, "outB")
	names, err := e.SubmitJobs(context.Background(), SubmitRequest{
		Algs:      []string{"algs/keywords.py", "finder"},
		OutDirs:   []string{outA, outB},
		Datasets:  []string{"pmc"},
		Mode:      alg.ModeAnnotate,
		OutExt:    AnnotateExt,
		Params:    types.Params{"keywords": "gene"},
		AddFields: []string{"year"},
		Wait:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pmc_0_00000", "pmc_0_00001"}, names)
	require.Len(t, rec.cmds, 4)

	first := rec.cmds[0]
	assert.Equal(t, []string{"pubrun", "worker", "algs/keywords.py", "annotate",
		filepath.Join(e.Config.TextDir, "pmc", "0_00000"),
		filepath.Join(outA, "pmc_0_00000.tab.gz"),
		filepath.Join(rec.dir, "keywords"+ParamExt)}, first.Args)
	assert.Equal(t, first.Args[5], first.Output)

	pk, err := ReadParams(filepath.Join(rec.dir, "keywords"+ParamExt))
	require.NoError(t, err)
	assert.Equal(t, int64(0), pk[types.AnnotIDKey("keywords")])
	assert.Equal(t, []string{"year"}, pk.Strings(types.ParamAddFields))
	assert.NotContains(t, pk, types.AnnotIDKey("finder"))

	pf, err := ReadParams(filepath.Join(rec.dir, "finder"+ParamExt))
	require.NoError(t, err)
	assert.Equal(t, int64(50000), pf[types.AnnotIDKey("finder")])
	assert.NotContains(t, pf, types.AnnotIDKey("keywords"))
}

func TestSubmitJobsPassesWorkerFlags(t *testing.T) {
	e, _, root := newTestEngine(t)
	rec := &recordingRunner{dir: filepath.Join(root, "batch")}
	e.Runner = rec
	cfg := filepath.Join(root, "other.yaml")
	e.WorkerFlags = []string{"--config", cfg, "--debug"}

	out := filepath.Join(root, "out")
	_, err := e.SubmitJobs(context.Background(), SubmitRequest{
		Algs: []string{"wordcount"}, OutDirs: []string{out},
		Datasets: []string{"pmc"}, Mode: alg.ModeMap, OutExt: ".msgpack.gz", Wait: true,
	})
	require.NoError(t, err)
	require.Len(t, rec.cmds, 2)
	for _, cmd := range rec.cmds {
		assert.Equal(t, []string{"--config", cfg, "--debug"}, cmd.Args[7:])
		assert.Equal(t, cmd.Args[5], cmd.Output)
	}
}

func TestSubmitJobsErrors(t *testing.T) {
	e, _, root := newTestEngine(t)
	rec := &recordingRunner{dir: filepath.Join(root, "batch")}
	e.Runner = rec
	ctx := context.Background()

	_, err := e.SubmitJobs(ctx, SubmitRequest{Algs: []string{"a", "b"}, OutDirs: []string{"x"}, Datasets: []string{"pmc"}, Mode: alg.ModeMap})
	assert.ErrorIs(t, err, alg.ErrConfig)

	_, err = e.SubmitJobs(ctx, SubmitRequest{Algs: []string{"a"}, OutDirs: []string{root}, Datasets: []string{"nope"}, Mode: alg.ModeMap})
	assert.ErrorIs(t, err, ErrNoPartitions)

	_, err = e.SubmitJobs(ctx, SubmitRequest{Algs: []string{"a"}, OutDirs: []string{root}, Datasets: []string{"pmc"}, Mode: alg.ModeReduce})
	assert.ErrorIs(t, err, alg.ErrConfig)

	assert.Empty(t, rec.cmds)
}

func TestSubmitJobsCleanupRemovesParams(t *testing.T) {
	e, _, root := newTestEngine(t)
	rec := &recordingRunner{dir: filepath.Join(root, "batch")}
	e.Runner = rec

	_, err := e.SubmitJobs(context.Background(), SubmitRequest{
		Algs: []string{"wordcount"}, OutDirs: []string{filepath.Join(root, "out")},
		Datasets: []string{"pmc"}, Mode: alg.ModeMap, OutExt: ".msgpack.gz",
		Wait: true, Cleanup: true,
	})
	require.NoError(t, err)
	assert.True(t, rec.cleanup)
	assert.NoFileExists(t, filepath.Join(rec.dir, "wordcount"+ParamExt))
}

func TestAnnotateEndToEnd(t *testing.T) {
	e, runner, root := newTestEngine(t)
	outK, outF := filepath.Join(root, "keywords"), filepath.Join(root, "finder")

	names, err := e.Annotate(context.Background(), AnnotateRequest{
		Algs:     []string{"keywords", "finder"},
		OutDirs:  []string{outK, outF},
		Datasets: []string{"pmc"},
		Params:   types.Params{"keywords": "gene,BRCA1"},
		Concat:   true,
	})
	require.NoError(t, err)
	assert.Len(t, names, 2)
	assert.Equal(t, 1, runner.finishes)

	keywords := readRows(t, outK+".tab")
	assert.Equal(t, []string{"annotId", "externalId", "start", "end", "keyword", "section", "snippet"}, keywords[0])
	assert.Len(t, keywords, 1+6)

	mice := readRows(t, outF+".tab")
	assert.Equal(t, []string{"annotId", "externalId", "start", "end", "word", "snippet"}, mice[0])
	assert.Len(t, mice, 1+2)

	ids := make(map[string]bool)
	for _, rows := range [][][]string{keywords[1:], mice[1:]} {
		for _, r := range rows {
			assert.Len(t, r[0], e.Config.IDWidth())
			assert.False(t, ids[r[0]], "duplicate annotation id %s", r[0])
			ids[r[0]] = true
		}
	}
	assert.Equal(t, "000000000100000000", keywords[1][0])
	assert.Equal(t, "000000000100050000", mice[1][0])
	assert.Equal(t, "The <<<mouse>>> gene is similar.", mice[1][5])
}

func TestAnnotateFailsCheckBeforeSubmitting(t *testing.T) {
	e, runner, root := newTestEngine(t)
	_, err := e.Annotate(context.Background(), AnnotateRequest{
		Algs:     []string{"finder", "keywords"},
		OutDirs:  []string{filepath.Join(root, "a"), filepath.Join(root, "b")},
		Datasets: []string{"pmc"},
		Params:   types.Params{},
	})
	require.ErrorIs(t, err, alg.ErrConfig)
	assert.Empty(t, runner.cmds)

	_, err = e.Annotate(context.Background(), AnnotateRequest{
		Algs: []string{"missing"}, OutDirs: []string{root}, Datasets: []string{"pmc"},
	})
	assert.ErrorIs(t, err, alg.ErrNotFound)
}

func TestMapReduceEndToEnd(t *testing.T) {
	e, runner, root := newTestEngine(t)
	out := filepath.Join(root, "counts.tab")

	err := e.MapReduce(context.Background(), MapReduceRequest{
		Alg:      "wordcount",
		Datasets: []string{"pmc"},
		OutFile:  out,
		Params:   types.Params{},
		RunTest:  true,
		Cleanup:  true,
	})
	require.NoError(t, err)
	assert.Len(t, runner.cmds, 2)

	want := make(map[string]int)
	for _, texts := range corpus {
		for _, text := range texts {
			for _, w := range algorithms.Words(text) {
				want[w]++
			}
		}
	}
	rows := readRows(t, out)
	assert.Equal(t, []string{"word", "count"}, rows[0])
	got := make(map[string]int)
	for _, r := range rows[1:] {
		var n int
		_, err := fmt.Sscan(r[1], &n)
		require.NoError(t, err)
		got[r[0]] = n
	}
	assert.Equal(t, want, got)
	assert.True(t, sort.SliceIsSorted(rows[1:], func(i, j int) bool { return rows[1+i][0] < rows[1+j][0] }))

	assert.NoDirExists(t, filepath.Join(e.Config.MapReduceTmpDir, "wordcount"))
	assert.FileExists(t, filepath.Join(e.Config.TempDir, "pubRunMapReduce_TestOutput.tmp"))
}

func TestMapReduceOnlyTestAndSkipMap(t *testing.T) {
	e, runner, root := newTestEngine(t)
	ctx := context.Background()
	req := MapReduceRequest{Alg: "wordcount", Datasets: []string{"pmc"}, OutFile: filepath.Join(root, "o.tab"), OnlyTest: true}
	require.NoError(t, e.MapReduce(ctx, req))
	assert.Empty(t, runner.cmds)
	assert.NoFileExists(t, req.OutFile)

	req = MapReduceRequest{Alg: "wordcount", Datasets: []string{"pmc"}, OutFile: filepath.Join(root, "o.tab"),
		SkipMap: true, TmpDir: filepath.Join(root, "absent")}
	assert.Error(t, e.MapReduce(ctx, req))

	req.TmpDir = filepath.Join(root, "empty")
	require.NoError(t, os.MkdirAll(req.TmpDir, 0o755))
	assert.Error(t, e.MapReduce(ctx, req), "nothing to reduce")
}

// recordingRunner records commands without running them.
type recordingRunner struct {
	dir     string
	cmds    []batch.Command
	cleanup bool
}

func (r *recordingRunner) BatchDir() string { return r.dir }

func (r *recordingRunner) Submit(ctx context.Context, cmd batch.Command) error {
	r.cmds = append(r.cmds, cmd)
	return nil
}

func (r *recordingRunner) Finish(ctx context.Context, wait, cleanup bool) error {
	r.cleanup = cleanup
	return nil
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var rows [][]string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		rows = append(rows, strings.Split(sc.Text(), "\t"))
	}
	require.NoError(t, sc.Err())
	return rows
}
