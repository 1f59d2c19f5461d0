// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordReminderSent(count int)
	RecordDigestSent()
	RecordSendFailure(reason string)
	RecordPassLatency(duration time.Duration)
	RecordRateFetchSuccess()
	RecordRateFetchFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	reminderSent  prometheus.Counter
	digestSent    prometheus.Counter
	sendFail      *prometheus.CounterVec
	passLatency   prometheus.Histogram
	rateFetchOK   prometheus.Counter
	rateFetchFail prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reminderSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subtrack_reminder_sent_total",
			Help: "送信されたリマインダー通知の合計数",
		}),
		digestSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subtrack_digest_sent_total",
			Help: "送信された月次ダイジェストの合計数",
		}),
		sendFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtrack_send_fail_total",
			Help: "通知送信失敗の合計数",
		}, []string{"reason"}),
		passLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "subtrack_notify_pass_seconds",
			Help:    "通知パス1回あたりの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		rateFetchOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subtrack_rate_fetch_success_total",
			Help: "為替レート取得成功の合計数",
		}),
		rateFetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subtrack_rate_fetch_fail_total",
			Help: "為替レート取得失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.reminderSent,
		c.digestSent,
		c.sendFail,
		c.passLatency,
		c.rateFetchOK,
		c.rateFetchFail,
	)

	return c
}

// RecordReminderSent は送信されたリマインダー数を記録する。
func (c *Collector) RecordReminderSent(count int) {
	c.reminderSent.Add(float64(count))
}

// RecordDigestSent は月次ダイジェストの送信を記録する。
func (c *Collector) RecordDigestSent() {
	c.digestSent.Inc()
}

// RecordSendFailure は通知送信失敗を記録する。
func (c *Collector) RecordSendFailure(reason string) {
	c.sendFail.WithLabelValues(reason).Inc()
}

// RecordPassLatency は通知パスの処理時間を記録する。
func (c *Collector) RecordPassLatency(duration time.Duration) {
	c.passLatency.Observe(duration.Seconds())
}

// RecordRateFetchSuccess は為替レート取得成功を記録する。
func (c *Collector) RecordRateFetchSuccess() {
	c.rateFetchOK.Inc()
}

// RecordRateFetchFailure は為替レート取得失敗を記録する。
func (c *Collector) RecordRateFetchFailure() {
	c.rateFetchFail.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
