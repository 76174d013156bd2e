package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mchmarny/churnscore/pkg/score"
	"github.com/urfave/cli/v3"
)

var predictCmd = &cli.Command{
	Name:      "predict",
	Usage:     "Score one customer given as a JSON object (use - to read stdin)",
	ArgsUsage: "JSON",
	Action:    cmdPredict,
}

func cmdPredict(ctx context.Context, cmd *cli.Command) error {
	arg := cmd.Args().First()
	if arg == "" {
		return errors.New("customer JSON argument required")
	}

	var raw []byte
	if arg == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		raw = b
	} else {
		raw = []byte(arg)
	}

	r, err := parseRecord(raw)
	if err != nil {
		return err
	}

	p, err := loadPipeline(ctx, getConfig(cmd))
	if err != nil {
		return err
	}

	res, err := p.ScoreOne(r)
	if err != nil {
		return err
	}
	return printResult(cmd, res)
}

func parseRecord(b []byte) (score.Record, error) {
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()

	var r score.Record
	if err := d.Decode(&r); err != nil {
		return nil, fmt.Errorf("expected a customer JSON object: %w", err)
	}
	if r == nil {
		return nil, errors.New("expected a customer JSON object")
	}
	return r, nil
}
