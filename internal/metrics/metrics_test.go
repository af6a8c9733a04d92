package metrics

import (
	"bytes"
	"strings"
	"testing"
)

func TestDumpText_ContainsEngineCounters(t *testing.T) {
	ReadingsDecoded.Inc()
	AlertsEmitted.Inc()

	var buf bytes.Buffer
	if err := DumpText(&buf); err != nil {
		t.Fatalf("DumpText: %v", err)
	}

	out := buf.String()
	for _, name := range []string{
		"motorwatch_readings_decoded_total",
		"motorwatch_alerts_emitted_total",
		"motorwatch_windows_combined_total",
	} {
		if !strings.Contains(out, name) {
			t.Errorf("exposition missing %s", name)
		}
	}
}
