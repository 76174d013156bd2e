package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mchmarny/churnscore/pkg/config"
	"github.com/mchmarny/churnscore/pkg/data"
	"github.com/mchmarny/churnscore/pkg/logging"
	"github.com/mchmarny/churnscore/pkg/model"
	"github.com/mchmarny/churnscore/pkg/net"
	"github.com/mchmarny/churnscore/pkg/score"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "churn"
	appConfigKey = "app-config"
	dirMode      = 0700

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	configDirFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Directory holding config.yaml (default: $HOME/.churn)",
	}

	artifactFlag = &cli.StringFlag{
		Name:  "artifact",
		Usage: "Path or URL of the trained model artifact (default: from config)",
	}

	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "Run history DSN: sqlite file path or postgres:// URL (default: from config)",
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		stop()
		os.Exit(1)
	}
}

type appConfig struct {
	*config.Config
	Dir    string
	Format string

	db *sql.DB
}

func getConfig(cmd *cli.Command) *appConfig {
	if c, ok := cmd.Root().Metadata[appConfigKey].(*appConfig); ok {
		return c
	}
	return &appConfig{Config: config.Default("."), Format: formatJSON}
}

// DB opens the run history store on first use.
func (c *appConfig) DB() (*sql.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	if c.Config.DB == "" {
		return nil, errors.New("run history database not configured")
	}
	if err := data.Init(c.Config.DB); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	db, err := data.GetDB(c.Config.DB)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	c.db = db
	return db, nil
}

func (c *appConfig) close() {
	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Customer churn scoring: train, score, serve and summarize",
		Metadata:              map[string]any{},
		Flags: []cli.Flag{
			debugFlag,
			formatFlag,
			configDirFlag,
			artifactFlag,
			dbFlag,
		},
		Commands: []*cli.Command{
			generateCmd,
			trainCmd,
			scoreCmd,
			predictCmd,
			serverCmd,
			summaryCmd,
			runsCmd,
			importancesCmd,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			dir := cmd.String(configDirFlag.Name)
			if dir == "" {
				d, _, err := config.GetOrCreateHomeDir(appName)
				if err != nil {
					return ctx, fmt.Errorf("resolving home dir: %w", err)
				}
				dir = d
			}

			c, err := config.ReadOrCreate(dir)
			if err != nil {
				return ctx, fmt.Errorf("reading config: %w", err)
			}
			if v := cmd.String(artifactFlag.Name); v != "" {
				c.Artifact = v
			}
			if v := cmd.String(dbFlag.Name); v != "" {
				c.DB = v
			}
			if cmd.Bool(debugFlag.Name) {
				c.LogLevel = "debug"
			}
			logging.SetDefaultCLILogger(c.LogLevel)

			format := formatJSON
			switch f := cmd.String(formatFlag.Name); f {
			case formatJSON:
			case formatYAML, "yml":
				format = formatYAML
			default:
				return ctx, fmt.Errorf("unsupported output format: %s", f)
			}

			cmd.Root().Metadata[appConfigKey] = &appConfig{
				Config: c,
				Dir:    dir,
				Format: format,
			}
			slog.Debug("config loaded", "dir", dir, "artifact", c.Artifact, "db", c.DB)
			return ctx, nil
		},
		After: func(_ context.Context, cmd *cli.Command) error {
			getConfig(cmd).close()
			return nil
		},
	}
}

// loadPipeline loads the configured artifact, downloading it into the
// config dir first when it is a URL.
func loadPipeline(ctx context.Context, cfg *appConfig) (*score.Pipeline, error) {
	path := cfg.Artifact
	if path == "" {
		return nil, errors.New("model artifact not configured")
	}

	if net.IsURL(path) {
		local := filepath.Join(cfg.Dir, config.DefaultArtifactName)
		slog.Debug("downloading artifact", "url", path, "path", local)
		if err := net.Download(ctx, path, local); err != nil {
			return nil, fmt.Errorf("downloading artifact: %w", err)
		}
		path = local
	}

	a, err := model.Load(path)
	if err != nil {
		return nil, err
	}
	return score.NewPipeline(a)
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

func printResult(cmd *cli.Command, v any) error {
	return encode(writer(cmd), getConfig(cmd).Format, v)
}

func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
