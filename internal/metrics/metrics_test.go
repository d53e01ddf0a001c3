package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.StreamMessage("trade")
	m.StreamMessage("trade")
	m.StreamMessage("orderbook_delta")
	m.SeqGap()
	m.Reconnect()
	m.SetConnected(true)
	m.RESTRequest("GET", 200, 10*time.Millisecond)
	m.RESTRetry()
	m.SetLiveMarkets(3)

	assert.Equal(t, 2.0, value(t, m, "kalshi_stream_messages_total", "trade"))
	assert.Equal(t, 1.0, value(t, m, "kalshi_stream_messages_total", "orderbook_delta"))
	assert.Equal(t, 1.0, value(t, m, "kalshi_stream_seq_gaps_total", ""))
	assert.Equal(t, 1.0, value(t, m, "kalshi_stream_reconnects_total", ""))
	assert.Equal(t, 1.0, value(t, m, "kalshi_stream_connected", ""))
	assert.Equal(t, 1.0, value(t, m, "kalshi_rest_requests_total", "GET"))
	assert.Equal(t, 1.0, value(t, m, "kalshi_rest_retries_total", ""))
	assert.Equal(t, 3.0, value(t, m, "kalshi_live_markets", ""))

	m.SetConnected(false)
	assert.Equal(t, 0.0, value(t, m, "kalshi_stream_connected", ""))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.StreamMessage("trade")
		m.DecodeError()
		m.SeqGap()
		m.Reconnect()
		m.SetConnected(true)
		m.RESTRequest("GET", 500, time.Second)
		m.RESTRetry()
		m.SetLiveMarkets(1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.StreamMessage("fill")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `kalshi_stream_messages_total{type="fill"} 1`))
}

// value returns the counter or gauge value of the named family. When label is
// non-empty, only series whose first label value matches are considered.
func value(t *testing.T, m *Metrics, name, label string) float64 {
	t.Helper()

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if label != "" && (len(metric.GetLabel()) == 0 || metric.GetLabel()[0].GetValue() != label) {
				continue
			}
			return metricValue(metric)
		}
	}
	t.Fatalf("metric %s{%s} not found", name, label)
	return 0
}

func metricValue(m *dto.Metric) float64 {
	if m.GetCounter() != nil {
		return m.GetCounter().GetValue()
	}
	return m.GetGauge().GetValue()
}
