package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mchmarny/churnscore/pkg/api"
	"github.com/mchmarny/churnscore/pkg/data"
	"github.com/mchmarny/churnscore/pkg/logging"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverRecordSource        = "api"
)

var (
	portFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "Port on which the server will listen (default: from config)",
	}

	addressFlag = &cli.StringFlag{
		Name:  "address",
		Usage: "Interface on which the server will listen",
		Value: "127.0.0.1",
	}

	recordFlag = &cli.BoolFlag{
		Name:  "record",
		Usage: "Store every scored batch in the run history database",
	}

	jsonLogsFlag = &cli.BoolFlag{
		Name:  "json-logs",
		Usage: "Write structured JSON logs",
	}

	serverCmd = &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start local HTTP scoring server",
		Action:  cmdStartServer,
		Flags: []cli.Flag{
			portFlag,
			addressFlag,
			recordFlag,
			jsonLogsFlag,
		},
	}
)

func cmdStartServer(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	if cmd.Bool(jsonLogsFlag.Name) {
		logging.SetDefaultJSONLogger(cfg.LogLevel)
	}

	p, err := loadPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	var opts []api.Option
	if cmd.Bool(recordFlag.Name) {
		db, err := cfg.DB()
		if err != nil {
			return err
		}
		opts = append(opts, api.WithRecorder(&data.Recorder{DB: db}, serverRecordSource))
	}

	h, err := api.New(p, opts...)
	if err != nil {
		return err
	}

	port := cmd.Int(portFlag.Name)
	if port == 0 {
		port = cfg.Port
	}
	address := fmt.Sprintf("%s:%d", cmd.String(addressFlag.Name), port)

	s := &http.Server{
		Addr:           address,
		Handler:        api.NewRouter(h),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	return serve(ctx, s)
}

// serve runs s until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, s *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server started", "address", "http://"+s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
		defer cancel()

		if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error shutting down server: %w", err)
		}
		slog.Info("server stopped")
		return nil
	})

	return g.Wait()
}
