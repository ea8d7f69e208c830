package edge

import "testing"

func TestTenantSPIFFEIDFormatsURI(t *testing.T) {
	got := TenantSPIFFEID("modelrun.example.com", "tenant-42")
	want := "spiffe://modelrun.example.com/tenant/tenant-42"
	if got != want {
		t.Errorf("TenantSPIFFEID = %q, want %q", got, want)
	}
}
