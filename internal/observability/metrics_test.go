package observability

import "testing"

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()
	RecordPDUReceived("initiating-message", "setup")
	RecordPDUSent("successful-outcome", "reset")
	RecordDrop("decode")
	RecordReconnect()
	SetSessionState(3)
	SetSubscriptions(2)
}
