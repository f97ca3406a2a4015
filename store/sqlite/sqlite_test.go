package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	reagent "github.com/nevindra/reagent"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(runID string, n int, reason reagent.CheckpointReason) reagent.CheckpointRecord {
	return reagent.CheckpointRecord{
		RunID:     runID,
		RequestID: "req-1",
		Status:    reagent.StatusAwaitingTools,
		Reason:    reason,
		Token:     fmt.Sprintf("v1.token-%d.sig", n),
		IssuedAt:  int64(1000 + n),
	}
}

func TestSaveAndLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := range 3 {
		if err := s.SaveCheckpoint(ctx, record("run-1", i, reagent.CheckpointAfterTools)); err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}
	}

	latest, err := s.LatestCheckpoint(ctx, "run-1")
	if err != nil {
		t.Fatalf("LatestCheckpoint: %v", err)
	}
	if latest.Token != "v1.token-2.sig" {
		t.Errorf("latest token = %q", latest.Token)
	}
	if latest.Status != reagent.StatusAwaitingTools || latest.Reason != reagent.CheckpointAfterTools {
		t.Errorf("latest = %+v", latest)
	}
}

func TestLatestNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LatestCheckpoint(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	reasons := []reagent.CheckpointReason{
		reagent.CheckpointAfterLLM,
		reagent.CheckpointAfterTools,
		reagent.CheckpointTerminal,
	}
	for i, reason := range reasons {
		if err := s.SaveCheckpoint(ctx, record("run-1", i, reason)); err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}
	}
	// Another run's records must not leak in.
	if err := s.SaveCheckpoint(ctx, record("run-2", 9, reagent.CheckpointAfterLLM)); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	recs, err := s.ListCheckpoints(ctx, "run-1", 10)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %d", len(recs))
	}
	if recs[0].Reason != reagent.CheckpointTerminal || recs[2].Reason != reagent.CheckpointAfterLLM {
		t.Errorf("order = %v, %v, %v", recs[0].Reason, recs[1].Reason, recs[2].Reason)
	}

	limited, err := s.ListCheckpoints(ctx, "run-1", 2)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(limited) != 2 || limited[0].Reason != reagent.CheckpointTerminal {
		t.Errorf("limited = %+v", limited)
	}
}

func TestDeleteRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveCheckpoint(ctx, record("run-1", 0, reagent.CheckpointAfterLLM)); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	if err := s.SaveCheckpoint(ctx, record("run-2", 0, reagent.CheckpointAfterLLM)); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	if err := s.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.LatestCheckpoint(ctx, "run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("run-1 survived delete: %v", err)
	}
	if _, err := s.LatestCheckpoint(ctx, "run-2"); err != nil {
		t.Errorf("run-2 deleted too: %v", err)
	}
}

func TestInitIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestEndToEndWithEngine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Persist a real engine token and read it back through the store.
	cfg, err := reagent.BuildConfig(reagent.ConfigInput{
		Model:       "test-model",
		Provider:    staticProvider{},
		TokenPolicy: reagent.TokenPolicy{SigningSecret: "secret"},
	})
	if err != nil {
		t.Fatalf("BuildConfig: %v", err)
	}
	h, err := reagent.Start(ctx, "hello", cfg, reagent.WithCheckpointStore(s))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := reagent.Collect(ctx, h); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	latest, err := s.LatestCheckpoint(ctx, h.RunID())
	if err != nil {
		t.Fatalf("LatestCheckpoint: %v", err)
	}
	cp, err := reagent.DecodeToken(latest.Token, cfg)
	if err != nil {
		t.Fatalf("stored token does not decode: %v", err)
	}
	if cp.State.Status != reagent.StatusCompleted {
		t.Errorf("stored status = %s", cp.State.Status)
	}
}

// staticProvider answers every turn with a fixed final response.
type staticProvider struct{}

func (staticProvider) Name() string { return "static" }
func (staticProvider) Generate(context.Context, reagent.GenerateRequest) (reagent.GenerateResponse, error) {
	return reagent.GenerateResponse{Text: "done"}, nil
}
func (staticProvider) GenerateStream(_ context.Context, _ reagent.GenerateRequest, ch chan<- reagent.StreamChunk) (reagent.GenerateResponse, error) {
	close(ch)
	return reagent.GenerateResponse{Text: "done"}, nil
}
