// Package app builds the sync components from a Config.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-workorder-sync/internal/aws"
	"github.com/imrishuroy/go-workorder-sync/internal/clientfiles"
	"github.com/imrishuroy/go-workorder-sync/internal/config"
	"github.com/imrishuroy/go-workorder-sync/internal/handlers"
	"github.com/imrishuroy/go-workorder-sync/internal/logging"
	"github.com/imrishuroy/go-workorder-sync/internal/store"
	"github.com/imrishuroy/go-workorder-sync/internal/syncer"
	"github.com/imrishuroy/go-workorder-sync/internal/watch"
	"github.com/imrishuroy/go-workorder-sync/internal/workorders"
)

// App holds the wired components of one sync process.
type App struct {
	Config      *config.Config
	Log         *logrus.Logger
	AWS         *aws.AWSClients
	Store       store.Store
	Files       *clientfiles.Files
	Translator  workorders.Translator
	Coordinator *syncer.Coordinator
}

// New wires every component. Nothing is dialed here: the stores connect on
// first use.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	return NewWithLogger(ctx, cfg, log)
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Translator: workorders.NewTranslator()}

	if needsAWS(cfg) {
		clients, err := aws.NewAWSClients(ctx, aws.Options{
			Region:           cfg.AWSRegion,
			EndpointOverride: cfg.EndpointOverride,
			Timeout:          cfg.StoreTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init aws clients: %w", err)
		}
		a.AWS = clients
	}

	st, err := a.newStore()
	if err != nil {
		return nil, err
	}
	a.Store = st

	files, err := clientfiles.NewOS(cfg.InboundDir, cfg.OutboundDir, log)
	if err != nil {
		return nil, err
	}
	a.Files = files

	var opts []syncer.Option
	if a.AWS != nil && cfg.SyncEventsQueueURL != "" {
		opts = append(opts, syncer.WithEvents(aws.NewPublisher(a.AWS.SQS, cfg.SyncEventsQueueURL)))
	}
	if a.AWS != nil && cfg.MetricsNamespace != "" {
		opts = append(opts, syncer.WithMetrics(aws.NewMetricsRecorder(a.AWS.CloudWatch, cfg.MetricsNamespace)))
	}
	a.Coordinator = syncer.New(a.Translator, st, files, files, log, opts...)

	log.WithFields(logrus.Fields{
		"backend":  cfg.StoreBackend,
		"inbound":  files.InboundDir(),
		"outbound": files.OutboundDir(),
		"events":   cfg.SyncEventsQueueURL != "",
		"metrics":  cfg.MetricsNamespace != "",
	}).Debug("sync components ready")
	return a, nil
}

func needsAWS(cfg *config.Config) bool {
	return cfg.StoreBackend == store.BackendDynamoDB || cfg.SyncEventsQueueURL != "" || cfg.MetricsNamespace != ""
}

func (a *App) newStore() (store.Store, error) {
	cfg := a.Config
	switch cfg.StoreBackend {
	case store.BackendDynamoDB:
		policy := cfg.RetryPolicy(store.IsTransientDynamo)
		return store.NewDynamoStore(a.AWS.DynamoDB, cfg.DynamoDBTable, policy, a.Log), nil
	case store.BackendMongoDB:
		policy := cfg.RetryPolicy(store.IsTransientMongo)
		return store.NewMongoStore(store.MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
			Timeout:    cfg.StoreTimeout,
		}, policy, a.Log), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Router returns the HTTP API for this process.
func (a *App) Router() *gin.Engine {
	return handlers.NewRouter(handlers.HandlerConfig{
		Runner:     a.Coordinator,
		Store:      a.Store,
		Inbox:      a.Files,
		Translator: a.Translator,
		Log:        a.Log,
	})
}

// Watcher returns a watcher that runs a full sync whenever the inbound
// directory changes. The Client directories are created first.
func (a *App) Watcher() (*watch.Watcher, error) {
	if err := a.Files.EnsureDirs(); err != nil {
		return nil, err
	}
	return watch.New(a.Files.InboundDir(), a.Config.WatchDebounce, func(ctx context.Context) error {
		_, err := a.Coordinator.Run(ctx)
		return err
	}, a.Log), nil
}

// Close releases the store connection.
func (a *App) Close(ctx context.Context) error {
	return a.Store.Close(ctx)
}
