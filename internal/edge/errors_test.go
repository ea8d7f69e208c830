package edge

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"

	"github.com/ocx/modelrun/internal/breaker"
	"github.com/ocx/modelrun/internal/dispatch"
	"github.com/ocx/modelrun/internal/pool"
)

func TestToRPCErrorMapsEveryTaxonomyEntry(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"shutting down", pool.ErrShuttingDown, http.StatusServiceUnavailable, -32000},
		{"circuit open", breaker.ErrCircuitOpen, http.StatusServiceUnavailable, -32001},
		{"no workers", pool.ErrNoWorkers, http.StatusServiceUnavailable, -32002},
		{"memory exhausted", pool.ErrMemoryExhausted, http.StatusServiceUnavailable, -32003},
		{"timeout", pool.ErrTimeout, http.StatusGatewayTimeout, -32004},
		{"recv error", pool.ErrRecvError, http.StatusBadGateway, -32005},
		{"model error", pool.NewModelError("bge-small", errors.New("boom")), http.StatusInternalServerError, -32006},
		{"invalid request", pool.ErrInvalidRequest, http.StatusBadRequest, -32602},
		{"unknown model", dispatch.ErrUnknownModel, http.StatusBadRequest, -32602},
		{"capability mismatch", dispatch.ErrCapabilityMismatch, http.StatusBadRequest, -32602},
		{"invalid args", errInvalidArgs, http.StatusBadRequest, -32602},
		{"send backpressure", pool.ErrSendBackpressure, http.StatusServiceUnavailable, -32008},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := ToRPCError(tc.err)
			if status != tc.wantStatus {
				t.Errorf("status = %d, want %d", status, tc.wantStatus)
			}
			if body.Code != tc.wantCode {
				t.Errorf("code = %d, want %d", body.Code, tc.wantCode)
			}
		})
	}
}

func TestToRPCErrorWrappedErrorStillClassifies(t *testing.T) {
	wrapped := fmt.Errorf("dispatch failed: %w", pool.ErrTimeout)
	status, body := ToRPCError(wrapped)
	if status != http.StatusGatewayTimeout || body.Code != -32004 {
		t.Errorf("wrapped timeout not classified: status=%d code=%d", status, body.Code)
	}
}

func TestToGRPCCodeMapsCircuitOpenToUnavailable(t *testing.T) {
	if got := ToGRPCCode(breaker.ErrCircuitOpen); got != codes.Unavailable {
		t.Errorf("ToGRPCCode(ErrCircuitOpen) = %v, want Unavailable", got)
	}
}

func TestToGRPCCodeMapsTimeoutToDeadlineExceeded(t *testing.T) {
	if got := ToGRPCCode(pool.ErrTimeout); got != codes.DeadlineExceeded {
		t.Errorf("ToGRPCCode(ErrTimeout) = %v, want DeadlineExceeded", got)
	}
}

func TestToRPCErrorUnknownErrorFallsBackToModelError(t *testing.T) {
	status, body := ToRPCError(errors.New("something unexpected"))
	if status != http.StatusInternalServerError || body.Code != -32006 {
		t.Errorf("unknown error should fall back to model_error row: status=%d code=%d", status, body.Code)
	}
}
