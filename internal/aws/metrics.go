package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Units used by sync run metrics.
const (
	UnitCount   = cwtypes.StandardUnitCount
	UnitSeconds = cwtypes.StandardUnitSeconds
	UnitPercent = cwtypes.StandardUnitPercent
)

// Metric is a single data point reported for a sync run.
type Metric struct {
	Name  string
	Value float64
	Unit  cwtypes.StandardUnit
	// Dimensions such as {"Pass": "inbound"}.
	Dimensions map[string]string
}

// maxMetricsPerCall is the PutMetricData batch limit.
const maxMetricsPerCall = 1000

// MetricsRecorder pushes run metrics to CloudWatch under a namespace.
type MetricsRecorder struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	nowFunc    func() time.Time
}

// NewMetricsRecorder returns a recorder for namespace.
func NewMetricsRecorder(client CloudWatchAPI, namespace string) *MetricsRecorder {
	return &MetricsRecorder{
		CloudWatch: client,
		Namespace:  namespace,
		nowFunc:    time.Now,
	}
}

// Put sends metrics in batches, all stamped with the same timestamp.
func (r *MetricsRecorder) Put(ctx context.Context, metrics []Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	ts := r.nowFunc()
	data := make([]cwtypes.MetricDatum, 0, len(metrics))
	for _, m := range metrics {
		m := m // per-iteration copy; &m.Value is retained below
		unit := m.Unit
		if unit == "" {
			unit = UnitCount
		}
		d := cwtypes.MetricDatum{
			MetricName: awsString(m.Name),
			Value:      &m.Value,
			Unit:       unit,
			Timestamp:  &ts,
		}
		keys := make([]string, 0, len(m.Dimensions))
		for k := range m.Dimensions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			d.Dimensions = append(d.Dimensions, cwtypes.Dimension{
				Name:  awsString(k),
				Value: awsString(m.Dimensions[k]),
			})
		}
		data = append(data, d)
	}

	for start := 0; start < len(data); start += maxMetricsPerCall {
		end := start + maxMetricsPerCall
		if end > len(data) {
			end = len(data)
		}
		_, err := r.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  awsString(r.Namespace),
			MetricData: data[start:end],
		})
		if err != nil {
			return fmt.Errorf("put metric data: %w", err)
		}
	}
	return nil
}
