package cli

import (
	"context"
	"errors"

	"github.com/mchmarny/churnscore/pkg/dataset"
	"github.com/mchmarny/churnscore/pkg/insights"
	"github.com/urfave/cli/v3"
)

var (
	topFlag = &cli.IntFlag{
		Name:  "top",
		Usage: "Number of most at-risk customers to list",
		Value: insights.TopDefault,
	}

	summaryCmd = &cli.Command{
		Name:      "summary",
		Usage:     "Summarize a scored file: health distribution, risk levels and most at-risk customers",
		ArgsUsage: "SCORED_FILE",
		Action:    cmdSummary,
		Flags: []cli.Flag{
			topFlag,
		},
	}
)

func cmdSummary(_ context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("scored file required")
	}

	scored, err := dataset.ReadFile(path)
	if err != nil {
		return err
	}

	s, err := insights.Summarize(scored, cmd.Int(topFlag.Name))
	if err != nil {
		return err
	}
	return printResult(cmd, s)
}
