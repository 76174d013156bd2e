package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/mchmarny/churnscore/pkg/api"
	"github.com/mchmarny/churnscore/pkg/config"
	"github.com/mchmarny/churnscore/pkg/data"
	"github.com/mchmarny/churnscore/pkg/logging"
	"github.com/mchmarny/churnscore/pkg/model"
	"github.com/mchmarny/churnscore/pkg/score"
)

const (
	recordSource = "lambda"
	predictPath  = "/predict"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
	logging.SetDefaultJSONLogger(cfg.LogLevel)

	h, err := newHandler(cfg)
	if err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}

	lambda.Start(h.handle)
}

// handler holds the pipeline loaded once per container.
type handler struct {
	api *api.Handler
}

func newHandler(cfg *config.Config) (*handler, error) {
	if cfg.Artifact == "" {
		return nil, errors.New("model artifact not configured, set CHURN_ARTIFACT")
	}

	a, err := model.Load(cfg.Artifact)
	if err != nil {
		return nil, err
	}
	p, err := score.NewPipeline(a)
	if err != nil {
		return nil, err
	}

	var opts []api.Option
	if cfg.DB != "" {
		if err := data.Init(cfg.DB); err != nil {
			return nil, fmt.Errorf("initializing database: %w", err)
		}
		db, err := data.GetDB(cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		opts = append(opts, api.WithRecorder(&data.Recorder{DB: db}, recordSource))
	}

	h, err := api.New(p, opts...)
	if err != nil {
		return nil, err
	}
	slog.Info("model loaded", "features", len(a.Features), "artifact", cfg.Artifact)
	return &handler{api: h}, nil
}

// handle scores the proxy request body. Requests whose path ends in
// /predict carry one record, all others a list.
func (h *handler) handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		b, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return proxyResponse(http.StatusBadRequest, []byte(`{"error":"invalid base64 body"}`)), nil
		}
		body = b
	}

	var resp *api.Response
	if strings.HasSuffix(req.Path, predictPath) {
		resp = h.api.One(ctx, body)
	} else {
		resp = h.api.Batch(ctx, body)
	}

	slog.Debug("request handled", "path", req.Path, "status", resp.Status)
	return proxyResponse(resp.Status, resp.Body), nil
}

func proxyResponse(status int, body []byte) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
