// Package syncer runs the inbound and outbound work order sync passes.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-workorder-sync/internal/aws"
	"github.com/imrishuroy/go-workorder-sync/internal/clientfiles"
	"github.com/imrishuroy/go-workorder-sync/internal/store"
	"github.com/imrishuroy/go-workorder-sync/internal/validation"
	"github.com/imrishuroy/go-workorder-sync/internal/workorders"
)

// Source yields Client records waiting to be imported.
type Source interface {
	ReadInbound(ctx context.Context) ([]clientfiles.Document, error)
}

// Sink receives Client records exported from the store.
type Sink interface {
	WriteOutbound(ctx context.Context, name string, rec workorders.ClientWorkOrder) error
}

// EventPublisher announces synced work orders.
type EventPublisher interface {
	PublishSynced(ctx context.Context, ev workorders.SyncedEvent) error
}

// MetricsRecorder receives run metrics.
type MetricsRecorder interface {
	Put(ctx context.Context, metrics []aws.Metric) error
}

// OutboundFilename is the Client file name for a work order number.
func OutboundFilename(number int64) string {
	return fmt.Sprintf("workorder_%d.json", number)
}

// Coordinator moves work orders between the Client files and the store.
// Runs on one Coordinator never overlap.
type Coordinator struct {
	translator workorders.Translator
	store      store.Store
	source     Source
	sink       Sink
	validate   *validatorv10.Validate
	log        logrus.FieldLogger
	events     EventPublisher
	metrics    MetricsRecorder
	nowFunc    func() time.Time
	newRunID   func() string

	mu sync.Mutex
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithEvents publishes a SyncedEvent for every synced work order.
func WithEvents(p EventPublisher) Option {
	return func(c *Coordinator) { c.events = p }
}

// WithMetrics reports every run's counters.
func WithMetrics(m MetricsRecorder) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.nowFunc = now }
}

// New returns a Coordinator.
func New(tr workorders.Translator, st store.Store, src Source, sink Sink, log logrus.FieldLogger, opts ...Option) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Coordinator{
		translator: tr,
		store:      st,
		source:     src,
		sink:       sink,
		validate:   validation.New(),
		log:        log,
		nowFunc:    time.Now,
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run probes the store, then runs the inbound and the outbound pass. The
// store is closed before returning, whether or not the run succeeded.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	return c.RunPasses(ctx, true, true)
}

// RunPasses is Run restricted to the selected passes.
func (c *Coordinator) RunPasses(ctx context.Context, inbound, outbound bool) (Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := Report{RunID: c.newRunID(), StartedAt: c.nowFunc()}
	log := c.log.WithField("run_id", report.RunID)

	defer func() {
		if err := c.store.Close(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("closing store")
		}
	}()

	log.WithFields(logrus.Fields{"inbound": inbound, "outbound": outbound}).Info("sync run started")

	if err := c.store.HealthCheck(ctx); err != nil {
		report.Duration = c.nowFunc().Sub(report.StartedAt)
		log.WithError(err).Error("store unreachable, aborting run")
		return report, fmt.Errorf("store health check: %w", err)
	}

	if inbound {
		report.Inbound = c.runInbound(ctx, log)
	}

	var runErr error
	if outbound {
		report.Outbound, runErr = c.runOutbound(ctx, log, report.RunID)
	}

	report.Duration = c.nowFunc().Sub(report.StartedAt)
	entry := log.WithFields(report.Fields())
	if runErr != nil {
		entry.WithError(runErr).Error("sync run failed")
	} else {
		entry.Info("sync run finished")
	}

	if c.metrics != nil {
		if err := c.metrics.Put(ctx, report.Metrics()); err != nil {
			log.WithError(err).Warn("reporting run metrics")
		}
	}

	return report, runErr
}

// RunInbound imports Client records into the store. Per-record failures are
// logged and counted; they never stop the pass.
func (c *Coordinator) RunInbound(ctx context.Context) InboundStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runInbound(ctx, c.log)
}

// RunOutbound exports unsynced store records to the Client. It fails only
// when the unsynced records cannot be read.
func (c *Coordinator) RunOutbound(ctx context.Context) (OutboundStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runOutbound(ctx, c.log, "")
}

func (c *Coordinator) runInbound(ctx context.Context, log logrus.FieldLogger) InboundStats {
	var stats InboundStats

	docs, err := c.source.ReadInbound(ctx)
	if err != nil {
		log.WithError(err).Error("reading client records")
		return stats
	}
	stats.FilesRead = len(docs)

	for _, doc := range docs {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("inbound pass interrupted")
			break
		}
		l := log.WithField("file", doc.Name)

		if err := c.validate.Struct(doc.Record); err != nil {
			stats.Skipped++
			l.WithFields(logrus.Fields{
				"missing": validation.MissingFields(err),
				"fields":  validation.FieldErrors(err),
			}).Warn("invalid client record, skipping")
			continue
		}
		stats.FilesValid++

		wo, err := c.translator.ToInternal(doc.Record)
		if err != nil {
			stats.Errors++
			l.WithError(err).Error("translating client record")
			continue
		}
		stats.Converted++

		l = l.WithField("number", wo.Number)
		if err := c.store.Upsert(ctx, wo); err != nil {
			stats.Errors++
			l.WithError(err).Error("saving work order")
			continue
		}
		stats.Saved++
		l.WithField("status", wo.Status).Debug("work order saved")
	}

	log.WithFields(logrus.Fields{
		"files_read":  stats.FilesRead,
		"files_valid": stats.FilesValid,
		"saved":       stats.Saved,
		"errors":      stats.Errors,
	}).Info("inbound pass finished")
	return stats
}

func (c *Coordinator) runOutbound(ctx context.Context, log logrus.FieldLogger, runID string) (OutboundStats, error) {
	var stats OutboundStats

	records, err := c.store.ReadUnsynced(ctx)
	if err != nil {
		log.WithError(err).Error("reading unsynced work orders")
		return stats, fmt.Errorf("read unsynced work orders: %w", err)
	}
	stats.Read = len(records)

	for _, wo := range records {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("outbound pass interrupted")
			break
		}
		l := log.WithField("number", wo.Number)

		rec, err := c.translator.ToExternal(wo)
		if err != nil {
			stats.Errors++
			l.WithError(err).Error("translating work order")
			continue
		}
		stats.Converted++

		name := OutboundFilename(wo.Number)
		l = l.WithField("file", name)
		if err := c.sink.WriteOutbound(ctx, name, rec); err != nil {
			stats.Errors++
			l.WithError(err).Error("writing client record, leaving work order unsynced")
			continue
		}
		stats.Written++

		ok, err := c.store.MarkSynced(ctx, wo.Number)
		if err != nil {
			stats.Errors++
			l.WithError(err).Error("marking work order synced")
			continue
		}
		if !ok {
			stats.Errors++
			l.Warn("work order disappeared before it could be marked synced")
			continue
		}
		stats.Synced++
		l.Debug("work order synced")

		if c.events != nil {
			ev := workorders.SyncedEvent{
				RunID:    runID,
				Number:   wo.Number,
				File:     name,
				SyncedAt: c.nowFunc(),
			}
			if err := c.events.PublishSynced(ctx, ev); err != nil {
				l.WithError(err).Warn("publishing synced event")
			}
		}
	}

	log.WithFields(logrus.Fields{
		"workorders_read": stats.Read,
		"written":         stats.Written,
		"synced":          stats.Synced,
		"errors":          stats.Errors,
	}).Info("outbound pass finished")
	return stats, nil
}

// HealthCheck probes the store without running a pass.
func (c *Coordinator) HealthCheck(ctx context.Context) error {
	return c.store.HealthCheck(ctx)
}
