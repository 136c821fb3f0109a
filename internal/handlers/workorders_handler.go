package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-workorder-sync/internal/store"
	"github.com/imrishuroy/go-workorder-sync/internal/syncer"
	"github.com/imrishuroy/go-workorder-sync/internal/validation"
	"github.com/imrishuroy/go-workorder-sync/internal/workorders"
)

// SyncRunner runs sync passes on demand.
type SyncRunner interface {
	RunPasses(ctx context.Context, inbound, outbound bool) (syncer.Report, error)
	HealthCheck(ctx context.Context) error
}

// Inbox accepts Client records for the next inbound pass.
type Inbox interface {
	WriteInbound(ctx context.Context, rec workorders.ClientWorkOrder) (string, error)
}

// HandlerConfig groups dependencies for the work order handlers.
type HandlerConfig struct {
	Runner     SyncRunner
	Store      store.Store
	Inbox      Inbox
	Translator workorders.Translator
	Log        logrus.FieldLogger
}

// RegisterRoutes registers the health, sync trigger and work order routes.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Translator == nil {
		cfg.Translator = workorders.NewTranslator()
	}
	v := validation.New()

	r.GET("/health", func(c *gin.Context) {
		if err := cfg.Runner.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/sync", func(c *gin.Context) {
		req := validation.SyncRequest{Direction: validation.DirectionBoth}
		// the body is optional
		if c.Request.ContentLength != 0 {
			if err := validation.BindAndValidate(c, &req, v); err != nil {
				return
			}
		}
		inbound := req.Direction != validation.DirectionOutbound
		outbound := req.Direction != validation.DirectionInbound

		report, err := cfg.Runner.RunPasses(c.Request.Context(), inbound, outbound)
		if err != nil {
			cfg.Log.WithError(err).WithField("run_id", report.RunID).Error("triggered sync failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync_failed", "detail": err.Error(), "report": report})
			return
		}
		c.JSON(http.StatusOK, report)
	})

	r.POST("/workorders", func(c *gin.Context) {
		var rec workorders.ClientWorkOrder
		if err := validation.BindAndValidate(c, &rec, v); err != nil {
			return
		}
		// reject what the inbound pass would reject anyway
		if _, err := cfg.Translator.ToInternal(rec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_work_order", "detail": err.Error()})
			return
		}

		name, err := cfg.Inbox.WriteInbound(c.Request.Context(), rec)
		if err != nil {
			cfg.Log.WithError(err).Error("queueing client record")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "write_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"order_no": *rec.OrderNo, "file": name})
	})

	r.GET("/workorders/unsynced", func(c *gin.Context) {
		records, err := cfg.Store.ReadUnsynced(c.Request.Context())
		if err != nil {
			storeError(c, err)
			return
		}
		if records == nil {
			records = []workorders.WorkOrder{}
		}
		c.JSON(http.StatusOK, gin.H{"count": len(records), "workorders": records})
	})

	r.GET("/workorders/:number", func(c *gin.Context) {
		number, err := strconv.ParseInt(c.Param("number"), 10, 64)
		if err != nil || number <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_number"})
			return
		}

		wo, err := cfg.Store.Get(c.Request.Context(), number)
		if err != nil {
			storeError(c, err)
			return
		}
		if wo == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}

		if c.Query("format") == "client" {
			rec, err := cfg.Translator.ToExternal(*wo)
			if err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "untranslatable", "detail": err.Error()})
				return
			}
			c.JSON(http.StatusOK, rec)
			return
		}
		c.JSON(http.StatusOK, wo)
	})
}

func storeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if store.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": "store_error", "detail": err.Error()})
}
