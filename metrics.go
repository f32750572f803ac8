package apihub

import (
	"time"
)

// Metric starts a CloudWatch embedded-format metric. Metrics are written
// when the invocation ends, whatever its outcome, if a namespace is set.
func (c *Context) Metric(metricName string) *MetricBuilder {
	return &MetricBuilder{
		handlerCtx: c,
		name:       metricName,
	}
}

type MetricBuilder struct {
	handlerCtx *Context
	name       string
	dimensions map[string]any
	unit       *string
	value      any
}

func (m *MetricBuilder) Dimension(key string, value any) *MetricBuilder {
	if m.dimensions == nil {
		m.dimensions = make(map[string]any)
	}
	m.dimensions[key] = value
	return m
}

func (m *MetricBuilder) Unit(value string) *MetricBuilder {
	m.unit = &value
	return m
}

func (m *MetricBuilder) Value(value any) {
	m.value = value
	m.handlerCtx.mu.Lock()
	defer m.handlerCtx.mu.Unlock()
	m.handlerCtx.metrics = append(m.handlerCtx.metrics, m)
}

func (c *Context) countFailure(metricName string) {
	c.Metric(metricName).Unit("Count").Value(1)
}

func (c *Context) emitMetrics() {
	c.mu.Lock()
	metrics := c.metrics
	c.metrics = nil
	c.mu.Unlock()

	if len(metrics) < 1 || c.hub == nil || c.hub.settings.MetricNamespace == "" {
		return
	}

	namespace := c.hub.settings.MetricNamespace
	metricList := make([]cwMetricOuter, 0, len(metrics))
	args := make([]any, 0, 2*len(metrics)+2)

	for _, m := range metrics {
		dimensions := make([][]string, 0, 1)
		if len(m.dimensions) > 0 {
			dimKeys := make([]string, 0, len(m.dimensions))
			for k, v := range m.dimensions {
				dimKeys = append(dimKeys, k)
				args = append(args, k, v)
			}
			dimensions = append(dimensions, dimKeys)
		}

		metricList = append(metricList, cwMetricOuter{
			Namespace:  namespace,
			Dimensions: dimensions,
			Metrics: []cwMetricInner{{
				Name: m.name,
				Unit: m.unit,
			}},
		})
		args = append(args, m.name, m.value)
	}

	awsMetrics := cwMetrics{
		Metrics:   metricList,
		Timestamp: time.Now().UnixMilli(),
	}
	args = append(args, "_aws", awsMetrics)

	c.hub.logger.Info("metrics", args...)
}

type cwMetrics struct {
	Metrics   []cwMetricOuter `json:"CloudWatchMetrics"`
	Timestamp int64           `json:"Timestamp"`
}

type cwMetricOuter struct {
	Namespace  string          `json:"Namespace"`
	Dimensions [][]string      `json:"Dimensions"`
	Metrics    []cwMetricInner `json:"Metrics"`
}

type cwMetricInner struct {
	Name              string  `json:"Name"`
	Unit              *string `json:"Unit,omitempty"`
	StorageResolution *int    `json:"StorageResolution,omitempty"`
}
