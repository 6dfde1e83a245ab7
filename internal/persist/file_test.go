package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/ideascope/internal/pipeline"
)

func finishedResult(id string) pipeline.Result {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return pipeline.Result{
		RunID:      id,
		Success:    true,
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		State: pipeline.Snapshot{
			RunID:         id,
			Proposal:      "Meal planning for families",
			Phase:         pipeline.PhaseDone,
			ClarifiedIdea: &pipeline.ClarifiedIdea{Title: "MealMate", Complete: true},
			Report:        "# MealMate\n\nProceed carefully.",
		},
	}
}

func TestFileStoreSave(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir, nil)
	res := finishedResult("run-1")
	if err := fs.Save(context.Background(), res); err != nil {
		t.Fatalf("save: %v", err)
	}

	base := filepath.Join(dir, "run-1-20260301T100100Z")
	b, err := Read(base + ".json")
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if b.RunID != "run-1" || !b.Success || b.ClarifiedIdea.Title != "MealMate" || b.Report != res.State.Report {
		t.Fatalf("bundle = %+v", b)
	}
	md, err := os.ReadFile(base + ".md")
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.HasPrefix(string(md), "# MealMate") {
		t.Fatalf("report = %s", md)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFileStoreRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir, nil)
	res := finishedResult("run-1")
	if err := fs.Save(context.Background(), res); err != nil {
		t.Fatalf("save: %v", err)
	}
	res.State.Report = "# Different"
	if err := fs.Save(context.Background(), res); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	md, _ := os.ReadFile(filepath.Join(dir, "run-1-20260301T100100Z.md"))
	if !strings.HasPrefix(string(md), "# MealMate") {
		t.Fatalf("existing report was replaced")
	}
}

func TestFileStoreNoReportWritesNothing(t *testing.T) {
	dir := t.TempDir()
	res := finishedResult("run-2")
	res.State.Report = ""
	if err := NewFileStore(dir, nil).Save(context.Background(), res); err == nil {
		t.Fatalf("expected render error")
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("partial artifacts written: %v", entries)
	}
}
