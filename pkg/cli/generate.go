package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/churnscore/pkg/dataset"
	"github.com/urfave/cli/v3"
)

const (
	generateRowsDefault     = 1500
	generateTestRowsDefault = 500
	generateSeedDefault     = 42

	trainFileName = "train.csv"
	testFileName  = "test.csv"
)

var (
	rowsFlag = &cli.IntFlag{
		Name:  "rows",
		Usage: "Number of customers to generate",
		Value: generateRowsDefault,
	}

	testRowsFlag = &cli.IntFlag{
		Name:  "test-rows",
		Usage: "Number of customers held out for evaluation",
		Value: generateTestRowsDefault,
	}

	seedFlag = &cli.Uint64Flag{
		Name:  "seed",
		Usage: "Random seed",
		Value: generateSeedDefault,
	}

	dirFlag = &cli.StringFlag{
		Name:  "dir",
		Usage: "Output directory",
		Value: ".",
	}

	generateCmd = &cli.Command{
		Name:   "generate",
		Usage:  "Generate synthetic customers as train and test CSV files",
		Action: cmdGenerate,
		Flags: []cli.Flag{
			rowsFlag,
			testRowsFlag,
			seedFlag,
			dirFlag,
		},
	}
)

type generateResult struct {
	Train     string `json:"train" yaml:"train"`
	Test      string `json:"test" yaml:"test"`
	TrainRows int    `json:"train_rows" yaml:"trainRows"`
	TestRows  int    `json:"test_rows" yaml:"testRows"`
}

func cmdGenerate(_ context.Context, cmd *cli.Command) error {
	seed := cmd.Uint64(seedFlag.Name)
	records, err := dataset.Generate(cmd.Int(rowsFlag.Name), seed)
	if err != nil {
		return fmt.Errorf("generating customers: %w", err)
	}

	trainSet, testSet, err := dataset.Split(records, cmd.Int(testRowsFlag.Name), dataset.LabelColumn, seed)
	if err != nil {
		return fmt.Errorf("splitting customers: %w", err)
	}

	dir := cmd.String(dirFlag.Name)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("creating dir %s: %w", dir, err)
	}

	res := &generateResult{
		Train:     filepath.Join(dir, trainFileName),
		Test:      filepath.Join(dir, testFileName),
		TrainRows: len(trainSet),
		TestRows:  len(testSet),
	}
	if err := dataset.WriteFile(res.Train, trainSet, dataset.FileColumns); err != nil {
		return err
	}
	if err := dataset.WriteFile(res.Test, testSet, dataset.FileColumns); err != nil {
		return err
	}
	slog.Debug("customers generated", "train", res.TrainRows, "test", res.TestRows, "seed", seed)

	return printResult(cmd, res)
}
