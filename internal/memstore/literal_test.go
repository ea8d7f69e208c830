package memstore

import (
	"reflect"
	"testing"
)

func TestVectorLiteralRoundTrip(t *testing.T) {
	in := []float32{0.1, -0.25, 3}
	lit := vectorLiteral(in)
	out := parseVectorLiteral(lit)
	if len(out) != len(in) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if diff := out[i] - in[i]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestParseVectorLiteralEmpty(t *testing.T) {
	if got := parseVectorLiteral("[]"); got != nil {
		t.Errorf("parseVectorLiteral([]) = %v, want nil", got)
	}
}

func TestStringArrayLiteralRoundTrip(t *testing.T) {
	in := []string{"a", "b", "has space"}
	lit := stringArrayLiteral(in)
	out := parseStringArrayLiteral(lit)
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
}

func TestParseStringArrayLiteralEmpty(t *testing.T) {
	if got := parseStringArrayLiteral("{}"); got != nil {
		t.Errorf("parseStringArrayLiteral({}) = %v, want nil", got)
	}
}
