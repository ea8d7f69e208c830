package registry

import "testing"

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	r.Register(ModelInfo{
		Key:          "stella/400m",
		Provider:     "stella",
		Capabilities: TextEmbedding,
		EstMemoryMB:  300,
		Defaults:     Defaults{EmbeddingDim: 1024},
	}, func() (any, error) { return "model-instance", nil })

	info, factory, ok := r.Lookup("stella/400m")
	if !ok {
		t.Fatal("expected lookup to succeed")
	}
	if info.EstMemoryMB != 300 {
		t.Errorf("EstMemoryMB = %d, want 300", info.EstMemoryMB)
	}
	if !info.Capabilities.Has(TextEmbedding) {
		t.Error("expected TextEmbedding capability")
	}
	inst, err := factory()
	if err != nil || inst != "model-instance" {
		t.Errorf("factory() = %v, %v", inst, err)
	}
}

func TestLookupUnknown(t *testing.T) {
	r := New()
	if _, _, ok := r.Lookup("missing"); ok {
		t.Error("expected lookup of unknown key to fail")
	}
}

func TestKeysFiltersByCapability(t *testing.T) {
	r := New()
	r.Register(ModelInfo{Key: "a", Capabilities: TextEmbedding}, nil)
	r.Register(ModelInfo{Key: "b", Capabilities: Vision}, nil)
	r.Register(ModelInfo{Key: "c", Capabilities: TextEmbedding | Vision}, nil)

	keys := r.Keys(TextEmbedding)
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d: %v", len(keys), keys)
	}
}
