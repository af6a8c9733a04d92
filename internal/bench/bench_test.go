package bench

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/motorwatch/motorwatch/pkg/types"
)

func TestWriteTo_SchemaFieldNames(t *testing.T) {
	m := types.RunMetrics{
		ID:          3,
		UserTime:    120,
		KernelTime:  45,
		PeakRSS:     8 << 20,
		PeakVSize:   64 << 20,
		LoadAverage: 0.25,
		DataType:    DataTypeMotorMonitor,
	}

	var buf bytes.Buffer
	if err := WriteTo(&buf, m); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{
		"id",
		"time_spent_in_user_mode",
		"time_spent_in_kernel_mode",
		"children_time_spent_in_user_mode",
		"children_time_spent_in_kernel_mode",
		"peak_resident_set_size",
		"peak_virtual_memory_size",
		"load_average",
		"benchmark_data_type",
	} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing field %q", key)
		}
	}
	if got["benchmark_data_type"] != DataTypeMotorMonitor {
		t.Errorf("benchmark_data_type = %v, want %q", got["benchmark_data_type"], DataTypeMotorMonitor)
	}
}

func TestSnapshot(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("needs procfs")
	}
	c, err := NewCollector()
	if err != nil {
		t.Skipf("procfs unavailable: %v", err)
	}
	m, err := c.Snapshot(7)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if m.ID != 7 {
		t.Errorf("ID = %d, want 7", m.ID)
	}
	if m.PeakRSS == 0 {
		t.Error("PeakRSS = 0, want nonzero for a live process")
	}
}
