package cli

import (
	"context"

	"github.com/mchmarny/churnscore/pkg/model"
	"github.com/urfave/cli/v3"
)

var importancesCmd = &cli.Command{
	Name:   "importances",
	Usage:  "List model features by descending importance",
	Action: cmdImportances,
}

func cmdImportances(ctx context.Context, cmd *cli.Command) error {
	p, err := loadPipeline(ctx, getConfig(cmd))
	if err != nil {
		return err
	}

	list, err := model.RankedImportances(p.Artifact())
	if err != nil {
		return err
	}
	return printResult(cmd, list)
}
