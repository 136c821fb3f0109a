package syncer

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-workorder-sync/internal/aws"
)

// InboundStats counts what happened to Client files during one inbound pass.
type InboundStats struct {
	FilesRead  int `json:"files_read"`
	FilesValid int `json:"files_valid"`
	Skipped    int `json:"skipped"`
	Converted  int `json:"converted"`
	Saved      int `json:"saved"`
	Errors     int `json:"errors"`
}

// SuccessRate is the share of read files that were saved; 1 when nothing was read.
func (s InboundStats) SuccessRate() float64 {
	return rate(s.Saved, s.FilesRead)
}

// OutboundStats counts what happened to unsynced records during one outbound pass.
type OutboundStats struct {
	Read      int `json:"workorders_read"`
	Converted int `json:"converted"`
	Written   int `json:"written"`
	Synced    int `json:"synced"`
	Errors    int `json:"errors"`
}

// SuccessRate is the share of read records that ended up synced; 1 when nothing was read.
func (s OutboundStats) SuccessRate() float64 {
	return rate(s.Synced, s.Read)
}

func rate(ok, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(ok) / float64(total)
}

// Report summarizes one sync run.
type Report struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Inbound   InboundStats  `json:"inbound"`
	Outbound  OutboundStats `json:"outbound"`
}

// Fields flattens the report for a single structured log entry.
func (r Report) Fields() logrus.Fields {
	return logrus.Fields{
		"run_id":                r.RunID,
		"execution_time":        r.Duration.Seconds(),
		"inbound_files_read":    r.Inbound.FilesRead,
		"inbound_files_valid":   r.Inbound.FilesValid,
		"inbound_skipped":       r.Inbound.Skipped,
		"inbound_converted":     r.Inbound.Converted,
		"inbound_saved":         r.Inbound.Saved,
		"inbound_errors":        r.Inbound.Errors,
		"inbound_success_rate":  r.Inbound.SuccessRate(),
		"outbound_read":         r.Outbound.Read,
		"outbound_converted":    r.Outbound.Converted,
		"outbound_written":      r.Outbound.Written,
		"outbound_synced":       r.Outbound.Synced,
		"outbound_errors":       r.Outbound.Errors,
		"outbound_success_rate": r.Outbound.SuccessRate(),
	}
}

// Metrics converts the report into CloudWatch data points.
func (r Report) Metrics() []aws.Metric {
	in := map[string]string{"Pass": "inbound"}
	out := map[string]string{"Pass": "outbound"}
	return []aws.Metric{
		{Name: "FilesRead", Value: float64(r.Inbound.FilesRead), Dimensions: in},
		{Name: "FilesValid", Value: float64(r.Inbound.FilesValid), Dimensions: in},
		{Name: "Converted", Value: float64(r.Inbound.Converted), Dimensions: in},
		{Name: "Saved", Value: float64(r.Inbound.Saved), Dimensions: in},
		{Name: "Errors", Value: float64(r.Inbound.Errors), Dimensions: in},
		{Name: "SuccessRate", Value: r.Inbound.SuccessRate() * 100, Unit: aws.UnitPercent, Dimensions: in},
		{Name: "RecordsRead", Value: float64(r.Outbound.Read), Dimensions: out},
		{Name: "Converted", Value: float64(r.Outbound.Converted), Dimensions: out},
		{Name: "Written", Value: float64(r.Outbound.Written), Dimensions: out},
		{Name: "Synced", Value: float64(r.Outbound.Synced), Dimensions: out},
		{Name: "Errors", Value: float64(r.Outbound.Errors), Dimensions: out},
		{Name: "SuccessRate", Value: r.Outbound.SuccessRate() * 100, Unit: aws.UnitPercent, Dimensions: out},
		{Name: "ExecutionTime", Value: r.Duration.Seconds(), Unit: aws.UnitSeconds},
	}
}
