package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)
	require.NotNil(t, m)
}

func TestRecordChunkProcessedIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordChunkProcessed()
	m.RecordChunkProcessed()

	require.Equal(t, 2.0, counterValue(t, m.chunksProcessed))
}

func TestRecordChunkDroppedByStage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordChunkDropped("verify")
	m.RecordChunkDropped("verify")
	m.RecordChunkDropped("decrypt")

	require.Equal(t, 2.0, counterValue(t, m.chunksDropped.WithLabelValues("verify")))
	require.Equal(t, 1.0, counterValue(t, m.chunksDropped.WithLabelValues("decrypt")))
	require.Equal(t, 0.0, counterValue(t, m.chunksDropped.WithLabelValues("deserialize")))
}

func TestRecordPacketSentAndReceived(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordPacketSent("inmemory")
	m.RecordPacketReceived("tcp")

	require.Equal(t, 1.0, counterValue(t, m.packetsSent.WithLabelValues("inmemory")))
	require.Equal(t, 1.0, counterValue(t, m.packetsReceived.WithLabelValues("tcp")))
}

func TestSetHardwareAccelerationStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.SetHardwareAccelerationStatus("aes", true)

	var out dto.Metric
	require.NoError(t, m.hardwareAcceleration.WithLabelValues("aes").Write(&out))
	require.Equal(t, 1.0, out.GetGauge().GetValue())
}

func TestSetReplyBlocksActive(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.SetReplyBlocksActive(3)

	var out dto.Metric
	require.NoError(t, m.replyBlocksActive.Write(&out))
	require.Equal(t, 3.0, out.GetGauge().GetValue())
}

func TestUpdateGoroutineCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.UpdateGoroutineCount()

	var out dto.Metric
	require.NoError(t, m.goroutines.Write(&out))
	require.Greater(t, out.GetGauge().GetValue(), 0.0)
}

func TestHandlerNotNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)
	require.NotNil(t, m.Handler())
}
