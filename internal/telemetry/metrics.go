package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 单次审计的指标集合，每次运行使用独立的 registry
type Metrics struct {
	registry *prometheus.Registry

	// PortProbes 按结果状态统计端口探测次数
	PortProbes *prometheus.CounterVec

	// CheckFailures 降级处理的检查项
	CheckFailures *prometheus.CounterVec

	// AuditDuration 从开始扫描到报告生成的耗时
	AuditDuration prometheus.Histogram

	// Dispatches 邮件投递结果
	Dispatches *prometheus.CounterVec

	// OpenPorts 最近一次扫描的开放端口数
	OpenPorts prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PortProbes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cyberhygiene",
				Name:      "port_probes_total",
				Help:      "Total number of port probes by resulting state",
			},
			[]string{"state"},
		),
		CheckFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cyberhygiene",
				Name:      "check_failures_total",
				Help:      "Total number of audit checks recorded as failed",
			},
			[]string{"check"},
		),
		AuditDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "cyberhygiene",
				Name:      "audit_duration_seconds",
				Help:      "Duration of the scanning and aggregation phase",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cyberhygiene",
				Name:      "dispatch_total",
				Help:      "Total number of report dispatch attempts by result",
			},
			[]string{"result"},
		),
		OpenPorts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cyberhygiene",
				Name:      "open_ports",
				Help:      "Number of open ports found by the last scan",
			},
		),
	}

	m.registry.MustRegister(m.PortProbes, m.CheckFailures, m.AuditDuration, m.Dispatches, m.OpenPorts)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile 以 node_exporter textfile collector 格式写出指标
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建指标目录失败: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("写入指标文件失败: %w", err)
	}
	return nil
}
