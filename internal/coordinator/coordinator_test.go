package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/pattern-run/pattern/internal/id"
)

type fakeSource struct {
	id         string
	sourceType string
}

func (f fakeSource) ID() string         { return f.id }
func (f fakeSource) SourceType() string { return f.sourceType }

type searchablePayload struct {
	text string
}

func (p searchablePayload) Relevance(query string) float32 {
	if p.text == query {
		return 1
	}
	return 0
}

func newTestCoordinator() *Coordinator {
	return New(nil, 10, time.Hour)
}

func TestAddSourceRejectsDuplicate(t *testing.T) {
	c := newTestCoordinator()
	agent := id.New(id.PrefixAgent)
	src := fakeSource{id: "bsky", sourceType: "bluesky"}

	if err := c.AddSource(agent, src); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := c.AddSource(agent, src); err != ErrSourceExists {
		t.Fatalf("expected ErrSourceExists, got %v", err)
	}
}

func TestSourcesAreIsolatedPerAgent(t *testing.T) {
	c := newTestCoordinator()
	agentA := id.New(id.PrefixAgent)
	agentB := id.New(id.PrefixAgent)
	src := fakeSource{id: "bsky", sourceType: "bluesky"}

	if err := c.AddSource(agentA, src); err != nil {
		t.Fatalf("AddSource agentA: %v", err)
	}
	if _, err := c.ReadSource(agentB, "bsky", 10, nil); err != ErrSourceNotFound {
		t.Fatalf("expected ErrSourceNotFound for agentB, got %v", err)
	}
}

func TestIngestThenReadSourceReturnsEvents(t *testing.T) {
	c := newTestCoordinator()
	agent := id.New(id.PrefixAgent)
	src := fakeSource{id: "bsky", sourceType: "bluesky"}
	if err := c.AddSource(agent, src); err != nil {
		t.Fatalf("AddSource: %v", err)
	}

	now := time.Now()
	if err := c.Ingest(agent, "bsky", "cursor-1", now, "hello"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := c.Ingest(agent, "bsky", "cursor-2", now.Add(time.Second), "world"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	events, err := c.ReadSource(agent, "bsky", 10, nil)
	if err != nil {
		t.Fatalf("ReadSource: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Item.Payload != "hello" || events[1].Item.Payload != "world" {
		t.Fatalf("unexpected payloads: %+v", events)
	}
}

func TestReadSourceRespectsLimit(t *testing.T) {
	c := newTestCoordinator()
	agent := id.New(id.PrefixAgent)
	src := fakeSource{id: "bsky", sourceType: "bluesky"}
	if err := c.AddSource(agent, src); err != nil {
		t.Fatalf("AddSource: %v", err)
	}

	now := time.Now()
	for i := 0; i < 5; i++ {
		if err := c.Ingest(agent, "bsky", "c", now.Add(time.Duration(i)*time.Second), i); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	events, err := c.ReadSource(agent, "bsky", 2, nil)
	if err != nil {
		t.Fatalf("ReadSource: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Item.Payload != 3 || events[1].Item.Payload != 4 {
		t.Fatalf("expected the 2 most recent items, got %+v", events)
	}
}

func TestPausedSourceDropsIngestedItems(t *testing.T) {
	c := newTestCoordinator()
	agent := id.New(id.PrefixAgent)
	src := fakeSource{id: "bsky", sourceType: "bluesky"}
	if err := c.AddSource(agent, src); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := c.PauseSource(agent, "bsky"); err != nil {
		t.Fatalf("PauseSource: %v", err)
	}
	if err := c.Ingest(agent, "bsky", "c", time.Now(), "dropped"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	events, err := c.ReadSource(agent, "bsky", 10, nil)
	if err != nil {
		t.Fatalf("ReadSource: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected paused source to drop items, got %d", len(events))
	}

	if err := c.ResumeSource(agent, "bsky"); err != nil {
		t.Fatalf("ResumeSource: %v", err)
	}
	if err := c.Ingest(agent, "bsky", "c2", time.Now(), "kept"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	events, err = c.ReadSource(agent, "bsky", 10, nil)
	if err != nil {
		t.Fatalf("ReadSource: %v", err)
	}
	if len(events) != 1 || events[0].Item.Payload != "kept" {
		t.Fatalf("expected resumed source to accept items, got %+v", events)
	}
}

func TestSearchSourceRanksByRelevance(t *testing.T) {
	c := newTestCoordinator()
	agent := id.New(id.PrefixAgent)
	src := fakeSource{id: "bsky", sourceType: "bluesky"}
	if err := c.AddSource(agent, src); err != nil {
		t.Fatalf("AddSource: %v", err)
	}

	now := time.Now()
	if err := c.Ingest(agent, "bsky", "c1", now, searchablePayload{text: "cats"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := c.Ingest(agent, "bsky", "c2", now.Add(time.Second), searchablePayload{text: "dogs"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	results, err := c.SearchSource(agent, "bsky", "cats", 10)
	if err != nil {
		t.Fatalf("SearchSource: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 relevant result, got %d", len(results))
	}
	payload, ok := results[0].Item.Payload.(searchablePayload)
	if !ok || payload.text != "cats" {
		t.Fatalf("expected the cats result, got %+v", results[0])
	}
}

func TestRemoveSourceClosesSubscriberAndForgetsSource(t *testing.T) {
	c := newTestCoordinator()
	agent := id.New(id.PrefixAgent)
	src := fakeSource{id: "bsky", sourceType: "bluesky"}
	if err := c.AddSource(agent, src); err != nil {
		t.Fatalf("AddSource: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := c.Subscribe(ctx, agent, "bsky")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := c.RemoveSource(agent, "bsky"); err != nil {
		t.Fatalf("RemoveSource: %v", err)
	}
	if _, ok := <-sub; ok {
		t.Fatal("expected subscriber channel to be closed")
	}
	if _, err := c.BufferStats(agent, "bsky"); err != ErrSourceNotFound {
		t.Fatalf("expected ErrSourceNotFound after removal, got %v", err)
	}
}

func TestSubscribeDeliversIngestedItems(t *testing.T) {
	c := newTestCoordinator()
	agent := id.New(id.PrefixAgent)
	src := fakeSource{id: "bsky", sourceType: "bluesky"}
	if err := c.AddSource(agent, src); err != nil {
		t.Fatalf("AddSource: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := c.Subscribe(ctx, agent, "bsky")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := c.Ingest(agent, "bsky", "c1", time.Now(), "hi"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	select {
	case event := <-sub:
		if event.Item.Payload != "hi" {
			t.Fatalf("unexpected payload: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("expected subscriber to receive the ingested item")
	}
}

func TestBufferStatsReportsCount(t *testing.T) {
	c := newTestCoordinator()
	agent := id.New(id.PrefixAgent)
	src := fakeSource{id: "bsky", sourceType: "bluesky"}
	if err := c.AddSource(agent, src); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := c.Ingest(agent, "bsky", "c1", time.Now(), "hi"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	stats, err := c.BufferStats(agent, "bsky")
	if err != nil {
		t.Fatalf("BufferStats: %v", err)
	}
	if stats.ItemCount != 1 {
		t.Fatalf("expected ItemCount 1, got %d", stats.ItemCount)
	}
}
