package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-workorder-sync/internal/app"
	"github.com/imrishuroy/go-workorder-sync/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("SYNC_CONFIG_FILE"))
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to init sync components")
	}
	p := NewProcessor(a.Coordinator, a.Log)

	// If RUN_LOCAL=true, run a single cycle as if the schedule fired.
	if cfg.RunLocal {
		event := os.Getenv("LOCAL_EVENT")
		if event == "" {
			event = `{"detail-type":"Scheduled Event","id":"local"}`
		}
		report, err := p.Handle(context.Background(), json.RawMessage(event))
		if err != nil {
			a.Log.WithError(err).Fatal("local handler error")
		}
		a.Log.WithFields(report.Fields()).Info("local run complete")
		return
	}

	lambda.Start(p.Handle)
}
