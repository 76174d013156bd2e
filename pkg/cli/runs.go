package cli

import (
	"context"
	"errors"

	"github.com/mchmarny/churnscore/pkg/data"
	"github.com/urfave/cli/v3"
)

var (
	runLimitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Limits number of runs returned",
		Value: data.RunListLimitDefault,
	}

	runsCmd = &cli.Command{
		Name:  "runs",
		Usage: "Browse stored scoring runs",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List the most recent runs",
				Action: cmdListRuns,
				Flags: []cli.Flag{
					runLimitFlag,
				},
			},
			{
				Name:      "show",
				Usage:     "Show the scored customers of a run",
				ArgsUsage: "RUN_ID",
				Action:    cmdShowRun,
			},
			{
				Name:   "stats",
				Usage:  "Show run history counts",
				Action: cmdRunStats,
			},
			{
				Name:      "delete",
				Usage:     "Delete a run",
				ArgsUsage: "RUN_ID",
				Action:    cmdDeleteRun,
			},
		},
	}
)

type runDetail struct {
	data.Run `yaml:",inline"`
	Results  []*data.RunResult `json:"results" yaml:"results"`
}

func cmdListRuns(_ context.Context, cmd *cli.Command) error {
	db, err := getConfig(cmd).DB()
	if err != nil {
		return err
	}

	list, err := data.ListRuns(db, cmd.Int(runLimitFlag.Name))
	if err != nil {
		return err
	}
	return printResult(cmd, list)
}

func cmdShowRun(_ context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return errors.New("run ID required")
	}

	db, err := getConfig(cmd).DB()
	if err != nil {
		return err
	}

	run, err := data.GetRun(db, id)
	if err != nil {
		return err
	}
	results, err := data.GetRunResults(db, id)
	if err != nil {
		return err
	}
	return printResult(cmd, &runDetail{Run: *run, Results: results})
}

func cmdDeleteRun(_ context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return errors.New("run ID required")
	}

	db, err := getConfig(cmd).DB()
	if err != nil {
		return err
	}

	if err := data.DeleteRun(db, id); err != nil {
		return err
	}
	return printResult(cmd, map[string]string{"deleted": id})
}

func cmdRunStats(_ context.Context, cmd *cli.Command) error {
	db, err := getConfig(cmd).DB()
	if err != nil {
		return err
	}

	state, err := data.GetDataState(db)
	if err != nil {
		return err
	}
	return printResult(cmd, state)
}
