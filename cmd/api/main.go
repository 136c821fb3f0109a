package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
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

	r := a.Router()

	// if RUN_LOCAL is true, run a local HTTP server for development.
	if cfg.RunLocal {
		a.Log.WithField("addr", cfg.HTTPAddr).Info("running local server")
		if err := r.Run(cfg.HTTPAddr); err != nil {
			a.Log.WithError(err).Fatal("failed to run local server")
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
