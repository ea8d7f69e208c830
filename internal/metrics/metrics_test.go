package metrics

import "testing"

func TestNewDoesNotPanic(t *testing.T) {
	m := New()
	m.RecordDispatch("text_embedding", "bge-small", "success", 0.01)
	m.RecordCircuitRejection("bge-small")
	m.RecordTimeout("bge-small")
	m.RecordError("bge-small", "no_workers")
	m.MemoryInUseMB.Set(120)
	m.MemoryCeilingMB.Set(4096)
	m.CircuitState.WithLabelValues("bge-small").Set(CircuitStateValue("OPEN"))
}

func TestCircuitStateValue(t *testing.T) {
	cases := map[string]float64{"CLOSED": 0, "OPEN": 1, "HALF_OPEN": 2, "": 0}
	for in, want := range cases {
		if got := CircuitStateValue(in); got != want {
			t.Errorf("CircuitStateValue(%q) = %v, want %v", in, got, want)
		}
	}
}
