package system

import (
	"errors"
	"testing"

	"github.com/ocx/modelrun/internal/config"
	"github.com/ocx/modelrun/internal/memstore"
)

type fakeStore struct{ memstore.Store }

func fakeStoreFactory(cfg config.MemstoreConfig) (memstore.Store, error) {
	return &fakeStore{}, nil
}

func TestInitWiresEveryComponent(t *testing.T) {
	cfg := &config.Config{}
	cfg.Memstore.Backend = "redis"

	sys, err := InitWithMemStore(cfg, fakeStoreFactory)
	if err != nil {
		t.Fatalf("InitWithMemStore returned error: %v", err)
	}
	if sys.Governor == nil || sys.Breakers == nil || sys.Registry == nil ||
		sys.Dispatcher == nil || sys.Metrics == nil || sys.MemStore == nil || sys.Edge == nil {
		t.Fatal("InitWithMemStore left a component nil")
	}
}

func TestInitWithMemStorePropagatesFactoryError(t *testing.T) {
	cfg := &config.Config{}
	boom := errors.New("dial failed")
	failingFactory := func(config.MemstoreConfig) (memstore.Store, error) { return nil, boom }

	if _, err := InitWithMemStore(cfg, failingFactory); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped factory error, got %v", err)
	}
}

func TestNewMemStoreRejectsUnknownBackend(t *testing.T) {
	cfg := config.MemstoreConfig{Backend: "not-a-real-backend"}

	if _, err := newMemStore(cfg); err == nil {
		t.Fatal("expected error for unknown memstore backend")
	}
}
