package memstore

import (
	"context"
	"errors"
	"testing"
)

// fakeStore is an in-memory Store used to verify the interface's streaming
// contract without requiring a live Redis or Postgres instance.
type fakeStore struct {
	nodes map[string]Node
}

func newFakeStore() *fakeStore { return &fakeStore{nodes: map[string]Node{}} }

func (f *fakeStore) Create(ctx context.Context, n Node) <-chan Result[Node] {
	f.nodes[n.ID] = n
	return one(n, nil)
}
func (f *fakeStore) Get(ctx context.Context, id string) <-chan Result[Node] {
	n, ok := f.nodes[id]
	if !ok {
		return errOnly[Node](errors.New("not found"))
	}
	return one(n, nil)
}
func (f *fakeStore) Update(ctx context.Context, n Node) <-chan Result[Node] { return f.Create(ctx, n) }
func (f *fakeStore) Delete(ctx context.Context, id string) <-chan Result[struct{}] {
	delete(f.nodes, id)
	return one(struct{}{}, nil)
}
func (f *fakeStore) SearchByVector(ctx context.Context, vector []float32, topK int) <-chan Result[Match] {
	return errOnly[Match](errors.New("unsupported"))
}
func (f *fakeStore) SearchByContent(ctx context.Context, query string, topK int) <-chan Result[Match] {
	return errOnly[Match](errors.New("unsupported"))
}
func (f *fakeStore) QueryByType(ctx context.Context, nodeType string) <-chan Result[Node] {
	out := make(chan Result[Node], len(f.nodes))
	go func() {
		defer close(out)
		for _, n := range f.nodes {
			if n.Type == nodeType {
				out <- Result[Node]{Value: n}
			}
		}
	}()
	return out
}
func (f *fakeStore) PutQuantumSignature(ctx context.Context, sig QuantumSignature) <-chan Result[struct{}] {
	return one(struct{}{}, nil)
}
func (f *fakeStore) GetQuantumSignature(ctx context.Context, memoryID string) <-chan Result[QuantumSignature] {
	return errOnly[QuantumSignature](errors.New("not found"))
}
func (f *fakeStore) CreateEntanglementEdge(ctx context.Context, e EntanglementEdge) <-chan Result[struct{}] {
	return one(struct{}{}, nil)
}
func (f *fakeStore) TraverseEntanglement(ctx context.Context, fromID string, edgeType EntanglementType) <-chan Result[Node] {
	out := make(chan Result[Node])
	close(out)
	return out
}

var _ Store = (*fakeStore)(nil)

func TestCreateThenGetRoundTrips(t *testing.T) {
	s := newFakeStore()
	n := Node{ID: "m1", Type: "fact", Content: "the sky is blue"}

	res := <-s.Create(context.Background(), n)
	if res.Err != nil {
		t.Fatalf("Create: %v", res.Err)
	}

	got := <-s.Get(context.Background(), "m1")
	if got.Err != nil {
		t.Fatalf("Get: %v", got.Err)
	}
	if got.Value.Content != n.Content {
		t.Errorf("Content = %q, want %q", got.Value.Content, n.Content)
	}
}

func TestGetMissingReturnsErrorResult(t *testing.T) {
	s := newFakeStore()
	res := <-s.Get(context.Background(), "missing")
	if res.Err == nil {
		t.Error("expected error for missing node")
	}
}

func TestDeleteThenGetFails(t *testing.T) {
	s := newFakeStore()
	<-s.Create(context.Background(), Node{ID: "m2"})
	<-s.Delete(context.Background(), "m2")
	res := <-s.Get(context.Background(), "m2")
	if res.Err == nil {
		t.Error("expected error after delete")
	}
}

func TestQueryByTypeFiltersOnType(t *testing.T) {
	s := newFakeStore()
	<-s.Create(context.Background(), Node{ID: "a", Type: "fact"})
	<-s.Create(context.Background(), Node{ID: "b", Type: "preference"})

	var count int
	for res := range s.QueryByType(context.Background(), "fact") {
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		count++
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestOneHelperProducesSingleClosedResult(t *testing.T) {
	ch := one(Node{ID: "x"}, nil)
	first, ok := <-ch
	if !ok || first.Value.ID != "x" || !first.Done {
		t.Fatalf("unexpected first result: %+v ok=%v", first, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after one value")
	}
}
