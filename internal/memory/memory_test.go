package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/models"
)

type fakeEmbedder struct{}

// Embed returns a trivial bag-of-letters vector so cosine similarity
// separates obviously different strings in tests.
func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec, nil
}

func TestStoreCreateGet(t *testing.T) {
	s := NewStore(nil)
	owner := id.New(id.PrefixAgent)
	block := s.Create(models.MemoryBlock{Label: "persona", Value: "helpful", Owner: owner})
	if block.ID.IsNil() {
		t.Fatal("expected Create to mint an ID")
	}
	got, ok := s.Get(owner, "persona")
	if !ok || got.Value != "helpful" {
		t.Fatalf("Get returned %+v, ok=%v", got, ok)
	}
}

func TestStoreAppendOverwriteDelete(t *testing.T) {
	s := NewStore(nil)
	owner := id.New(id.PrefixAgent)
	block := s.Create(models.MemoryBlock{Label: "notes", Value: "a", Owner: owner})

	if err := s.Append(block.ID, "b"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, _ := s.Get(owner, "notes")
	if got.Value != "ab" {
		t.Fatalf("Value = %q, want ab", got.Value)
	}

	if err := s.Overwrite(block.ID, "fresh"); err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	got, _ = s.Get(owner, "notes")
	if got.Value != "fresh" {
		t.Fatalf("Value = %q, want fresh", got.Value)
	}

	if err := s.Delete(block.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Get(owner, "notes"); ok {
		t.Fatal("expected block to be gone after Delete")
	}
}

func TestStoreShareWithTransfersOwnership(t *testing.T) {
	s := NewStore(nil)
	origOwner := id.New(id.PrefixAgent)
	newOwner := id.New(id.PrefixAgent)
	block := s.Create(models.MemoryBlock{Label: "shared", Value: "x", Owner: origOwner})

	if err := s.ShareWith(block.ID, newOwner); err != nil {
		t.Fatalf("ShareWith: %v", err)
	}
	if _, ok := s.Get(origOwner, "shared"); ok {
		t.Fatal("original owner should no longer see the block")
	}
	shared := s.Shared(newOwner)
	if len(shared) != 1 || shared[0].ID != block.ID {
		t.Fatalf("Shared(newOwner) = %+v", shared)
	}
}

func TestStoreSearchRanksBySimilarity(t *testing.T) {
	s := NewStore(fakeEmbedder{})
	owner := id.New(id.PrefixAgent)
	s.Create(models.MemoryBlock{Label: "a", Value: "apple apple apple", Owner: owner})
	s.Create(models.MemoryBlock{Label: "b", Value: "zzz zzz zzz", Owner: owner})

	results, err := s.Search(context.Background(), owner, "apple", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Label != "a" {
		t.Fatalf("top result = %q, want a", results[0].Label)
	}
}

func TestStoreSearchWithoutEmbedderReturnsEmpty(t *testing.T) {
	s := NewStore(nil)
	results, err := s.Search(context.Background(), id.New(id.PrefixAgent), "q", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results without an embedder, got %d", len(results))
	}
}
