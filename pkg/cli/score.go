package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mchmarny/churnscore/pkg/data"
	"github.com/mchmarny/churnscore/pkg/dataset"
	"github.com/mchmarny/churnscore/pkg/net"
	"github.com/mchmarny/churnscore/pkg/score"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const (
	scoredSuffix       = ".scored"
	scoreWorkerDefault = 4
)

var (
	endpointFlag = &cli.StringFlag{
		Name:  "endpoint",
		Usage: "Remote bulk scoring URL used instead of the local artifact (default: from config)",
	}

	saveFlag = &cli.BoolFlag{
		Name:  "save",
		Usage: "Store each scored file as a run in the history database",
	}

	outDirFlag = &cli.StringFlag{
		Name:  "out-dir",
		Usage: "Directory for scored files (default: next to each input)",
	}

	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Number of files scored concurrently",
		Value: scoreWorkerDefault,
	}

	scoreCmd = &cli.Command{
		Name:      "score",
		Usage:     "Score customer files (.csv or .json) and write the scored copies",
		ArgsUsage: "FILE [FILE...]",
		Action:    cmdScore,
		Flags: []cli.Flag{
			endpointFlag,
			saveFlag,
			outDirFlag,
			workersFlag,
		},
	}
)

// scorer turns a batch of records into scored records.
type scorer func(ctx context.Context, records []score.Record) ([]score.Record, error)

type scoreResult struct {
	Input      string  `json:"input" yaml:"input"`
	Output     string  `json:"output" yaml:"output"`
	Records    int     `json:"records" yaml:"records"`
	MeanProb   float64 `json:"mean_prob" yaml:"meanProb"`
	MeanHealth float64 `json:"mean_health" yaml:"meanHealth"`
	RunID      string  `json:"run_id,omitempty" yaml:"runID,omitempty"`
}

func cmdScore(ctx context.Context, cmd *cli.Command) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		return errors.New("at least one input file required")
	}

	cfg := getConfig(cmd)
	fn, err := newScorer(ctx, cfg, cmd.String(endpointFlag.Name))
	if err != nil {
		return err
	}

	save := cmd.Bool(saveFlag.Name)
	if save {
		// open before fan-out so workers share one handle
		if _, err := cfg.DB(); err != nil {
			return err
		}
	}

	if dir := cmd.String(outDirFlag.Name); dir != "" {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return fmt.Errorf("creating dir %s: %w", dir, err)
		}
	}

	results := make([]*scoreResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cmd.Int(workersFlag.Name), 1))

	for i, f := range files {
		g.Go(func() error {
			res, err := scoreFile(gctx, cfg, fn, f, cmd.String(outDirFlag.Name), save)
			if err != nil {
				return fmt.Errorf("scoring %s: %w", f, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return printResult(cmd, results)
}

// newScorer scores through the remote endpoint when one is set, otherwise
// through a pipeline built from the local artifact.
func newScorer(ctx context.Context, cfg *appConfig, endpoint string) (scorer, error) {
	if endpoint == "" {
		endpoint = cfg.Endpoint
	}
	if endpoint != "" {
		slog.Debug("scoring remotely", "endpoint", endpoint)
		return func(ctx context.Context, records []score.Record) ([]score.Record, error) {
			var out []score.Record
			if err := net.PostJSON(ctx, endpoint, records, &out); err != nil {
				return nil, err
			}
			if len(out) != len(records) {
				return nil, fmt.Errorf("endpoint returned %d records for %d inputs", len(out), len(records))
			}
			return out, nil
		}, nil
	}

	p, err := loadPipeline(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return func(_ context.Context, records []score.Record) ([]score.Record, error) {
		return p.ScoreBatch(records)
	}, nil
}

func scoreFile(ctx context.Context, cfg *appConfig, fn scorer, path, outDir string, save bool) (*scoreResult, error) {
	records, err := dataset.ReadFile(path)
	if err != nil {
		return nil, err
	}

	scored, err := fn(ctx, records)
	if err != nil {
		return nil, err
	}

	res := &scoreResult{
		Input:   path,
		Output:  scoredPath(path, outDir),
		Records: len(scored),
	}
	for _, r := range scored {
		p, _ := score.NumericValue(r[score.FieldProbability])
		h, _ := score.NumericValue(r[score.FieldHealthScore])
		res.MeanProb += p
		res.MeanHealth += h
	}
	if n := len(scored); n > 0 {
		res.MeanProb = score.Round(res.MeanProb/float64(n), 4)
		res.MeanHealth = score.Round(res.MeanHealth/float64(n), 2)
	}

	if err := dataset.WriteFile(res.Output, scored, outputColumns(scored)); err != nil {
		return nil, err
	}

	if save {
		db, err := cfg.DB()
		if err != nil {
			return nil, err
		}
		run, err := data.SaveRun(ctx, db, filepath.Base(path), scored)
		if err != nil {
			return nil, err
		}
		res.RunID = run.ID
	}

	slog.Debug("file scored", "input", path, "records", res.Records)
	return res, nil
}

// scoredPath inserts the scored suffix before the file extension.
func scoredPath(path, outDir string) string {
	ext := filepath.Ext(path)
	name := strings.TrimSuffix(filepath.Base(path), ext) + scoredSuffix + ext
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	return filepath.Join(outDir, name)
}

// outputColumns lists the input columns followed by the scoring columns.
func outputColumns(records []score.Record) []string {
	added := []string{score.FieldProbability, score.FieldHealthScore, score.FieldTopDriver}
	cols := slices.DeleteFunc(dataset.Columns(records), func(c string) bool {
		return slices.Contains(added, c)
	})
	return append(cols, added...)
}
