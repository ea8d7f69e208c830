package edge

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
)

// WorkloadIdentity wraps a SPIFFE X509Source and hands out mTLS configs:
// dial an X509Source, check this workload's own SVID against an expected
// tenant SPIFFE ID, and build a tls.Config for outbound mTLS.
type WorkloadIdentity struct {
	source *workloadapi.X509Source
}

// NewWorkloadIdentity connects to the local SPIRE agent over socketPath.
// A 3s connect timeout keeps a missing SPIRE agent from blocking daemon
// startup indefinitely.
func NewWorkloadIdentity(socketPath string) (*WorkloadIdentity, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	source, err := workloadapi.NewX509Source(
		ctx,
		workloadapi.WithClientOptions(workloadapi.WithAddr(socketPath)),
	)
	if err != nil {
		return nil, fmt.Errorf("edge: failed to connect to SPIRE: %w", err)
	}
	slog.Info("edge: connected to SPIRE agent", "socket_path", socketPath)
	return &WorkloadIdentity{source: source}, nil
}

// VerifyTenantID checks that the workload's own SVID matches the SPIFFE
// ID expected for a tenant, returning an error on mismatch.
func (w *WorkloadIdentity) VerifyTenantID(expected string) error {
	id, err := spiffeid.FromString(expected)
	if err != nil {
		return fmt.Errorf("edge: invalid SPIFFE ID %q: %w", expected, err)
	}
	svid, err := w.source.GetX509SVID()
	if err != nil {
		return fmt.Errorf("edge: failed to read local SVID: %w", err)
	}
	if svid.ID.String() != id.String() {
		return fmt.Errorf("edge: SPIFFE ID mismatch: expected %s, got %s", id, svid.ID)
	}
	return nil
}

// TLSConfig returns an mTLS client config authorized against any peer
// identity in the trust domain, for the gRPC interceptor's transport.
func (w *WorkloadIdentity) TLSConfig() *tls.Config {
	return tlsconfig.MTLSClientConfig(w.source, w.source, tlsconfig.AuthorizeAny())
}

// Close releases the underlying SPIRE connection.
func (w *WorkloadIdentity) Close() error {
	return w.source.Close()
}

// TenantSPIFFEID builds the SPIFFE ID for a tenant within trustDomain.
func TenantSPIFFEID(trustDomain, tenantID string) string {
	return fmt.Sprintf("spiffe://%s/tenant/%s", trustDomain, tenantID)
}
