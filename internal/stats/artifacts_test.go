package stats

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"chemsim/internal/model"
	"chemsim/internal/sim"
)

func testArtifacts(id string, created time.Time) RunArtifacts {
	return RunArtifacts{
		Run: model.RunRecord{
			ID:        id,
			CreatedAt: created,
			Network:   "birth-death",
			Simulator: "gillespie-direct",
			Status:    model.RunCompleted,
			Final:     map[string]float64{"X": 9.5},
		},
		Results: &sim.Results{
			Symbols:      []string{"X", "Y"},
			Times:        []float64{0, 0.5, 1},
			Values:       [][]float64{{0, 1}, {2.5, 1.25}, {0, 0}},
			Fluctuations: []float64{0.5, 0.25},
			FilledPoints: 2,
		},
	}
}

func TestWriteRunArtifactsRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	runDir, err := WriteRunArtifacts(baseDir, testArtifacts("run-123", created))
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range []string{runFile, summaryFile} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	run, ok, err := ReadRunRecord(baseDir, "run-123")
	if err != nil || !ok {
		t.Fatalf("read run: ok=%t err=%v", ok, err)
	}
	if run.Network != "birth-death" || run.Final["X"] != 9.5 || !run.CreatedAt.Equal(created) {
		t.Fatalf("unexpected run record: %+v", run)
	}

	summary, ok, err := ReadSummary(baseDir, "run-123")
	if err != nil || !ok {
		t.Fatalf("read summary: ok=%t err=%v", ok, err)
	}
	want := []SummaryRow{
		{Symbol: "X", Final: 2.5, StdDev: 0.5},
		{Symbol: "Y", Final: 1.25, StdDev: 0.25},
	}
	if !reflect.DeepEqual(summary, want) {
		t.Fatalf("unexpected summary: got=%+v want=%+v", summary, want)
	}
}

func TestSummaryWithoutFluctuations(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := testArtifacts("run-456", time.Now())
	artifacts.Results.Fluctuations = nil
	if _, err := WriteRunArtifacts(baseDir, artifacts); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	summary, ok, err := ReadSummary(baseDir, "run-456")
	if err != nil || !ok {
		t.Fatalf("read summary: ok=%t err=%v", ok, err)
	}
	if len(summary) != 2 || summary[0].Final != 2.5 || !math.IsNaN(summary[0].StdDev) {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestReadMissingArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	if _, ok, err := ReadRunRecord(baseDir, "missing"); ok || err != nil {
		t.Fatalf("expected missing run, got ok=%t err=%v", ok, err)
	}
	if _, ok, err := ReadSummary(baseDir, "missing"); ok || err != nil {
		t.Fatalf("expected missing summary, got ok=%t err=%v", ok, err)
	}
	index, err := ListRunIndex(baseDir)
	if err != nil || len(index) != 0 {
		t.Fatalf("expected empty index, got %v err=%v", index, err)
	}
}

func TestRunIndexNewestFirstAndReplacesByID(t *testing.T) {
	baseDir := t.TempDir()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if _, err := WriteRunArtifacts(baseDir, testArtifacts(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}
	failed := testArtifacts("a", base.Add(time.Hour))
	failed.Run.Status = model.RunFailed
	failed.Results = nil
	if _, err := WriteRunArtifacts(baseDir, failed); err != nil {
		t.Fatalf("rewrite a: %v", err)
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	var ids []string
	for _, e := range index {
		ids = append(ids, e.RunID)
	}
	if !reflect.DeepEqual(ids, []string{"a", "c", "b"}) {
		t.Fatalf("unexpected index order %v", ids)
	}
	if index[0].Status != string(model.RunFailed) || index[0].Points != 0 {
		t.Fatalf("expected replaced entry, got %+v", index[0])
	}
	if index[1].Points != 2 {
		t.Fatalf("expected filled point count, got %+v", index[1])
	}
}

func TestWriteRunArtifactsRequiresID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}
