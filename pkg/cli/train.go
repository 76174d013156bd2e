package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mchmarny/churnscore/pkg/dataset"
	"github.com/mchmarny/churnscore/pkg/model"
	"github.com/mchmarny/churnscore/pkg/train"
	"github.com/urfave/cli/v3"
)

const (
	importancesFileName = "feature_importances.json"
	fileMode            = 0600
)

var (
	trainFileFlag = &cli.StringFlag{
		Name:  "train",
		Usage: "Training set (.csv or .json)",
		Value: trainFileName,
	}

	testFileFlag = &cli.StringFlag{
		Name:  "test",
		Usage: "Evaluation set (.csv or .json)",
		Value: testFileName,
	}

	outFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "Artifact output path (default: configured artifact)",
	}

	maxIterFlag = &cli.IntFlag{
		Name:  "max-iter",
		Usage: "Maximum optimizer iterations",
		Value: train.MaxIterDefault,
	}

	regularizationFlag = &cli.FloatFlag{
		Name:  "c",
		Usage: "Inverse L2 regularization strength",
		Value: train.CDefault,
	}

	trainCmd = &cli.Command{
		Name:   "train",
		Usage:  "Fit the churn model and save the artifact",
		Action: cmdTrain,
		Flags: []cli.Flag{
			trainFileFlag,
			testFileFlag,
			outFlag,
			maxIterFlag,
			regularizationFlag,
		},
	}
)

type trainResult struct {
	Artifact    string         `json:"artifact" yaml:"artifact"`
	Importances string         `json:"importances" yaml:"importances"`
	Features    int            `json:"features" yaml:"features"`
	Metrics     *model.Metrics `json:"metrics" yaml:"metrics"`
}

func cmdTrain(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	trainSet, err := dataset.ReadFile(cmd.String(trainFileFlag.Name))
	if err != nil {
		return err
	}
	testSet, err := dataset.ReadFile(cmd.String(testFileFlag.Name))
	if err != nil {
		return err
	}

	spec := train.Spec{
		NumCols: dataset.NumCols,
		CatCols: dataset.CatCols,
		Label:   dataset.LabelColumn,
	}
	opts := train.Options{
		MaxIter: cmd.Int(maxIterFlag.Name),
		C:       cmd.Float(regularizationFlag.Name),
	}

	a, err := train.Train(trainSet, testSet, spec, opts)
	if err != nil {
		return fmt.Errorf("training model: %w", err)
	}

	out := cmd.String(outFlag.Name)
	if out == "" {
		out = cfg.Artifact
	}
	if err := model.Save(out, a); err != nil {
		return err
	}

	imp, err := model.RankedImportances(a)
	if err != nil {
		return err
	}
	impPath := filepath.Join(filepath.Dir(out), importancesFileName)
	if err := writeJSONFile(impPath, imp); err != nil {
		return err
	}

	return printResult(cmd, &trainResult{
		Artifact:    out,
		Importances: impPath,
		Features:    len(a.Features),
		Metrics:     a.Metrics,
	})
}

func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}
