//go:build sqlite

package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"chemsim/internal/model"
)

func TestSimulateCommandSQLiteRecordsRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chemsim.db")
	store := []string{"--store", "sqlite", "--db-path", dbPath}

	out, _, err := executeCmd(t, append([]string{"simulate", "dimerization", "--simulator", "gibson-bruck", "--ensemble", "6", "--workers", "3", "--seed", "11", "--fluctuations", "--json"}, store...)...)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	var result simulateOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode simulate output: %v", err)
	}
	if len(result.Fluctuations) != 2 {
		t.Fatalf("expected pooled fluctuations for A and B, got %v", result.Fluctuations)
	}

	out, _, err = executeCmd(t, append([]string{"runs", "--json"}, store...)...)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	var runs []model.RunRecord
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode runs output: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != result.RunID {
		t.Fatalf("expected run %s, got %+v", result.RunID, runs)
	}
	if runs[0].Status != model.RunCompleted || runs[0].Parameters.EnsembleSize != 6 {
		t.Fatalf("unexpected ledger entry: %+v", runs[0])
	}

	out, _, err = executeCmd(t, append([]string{"show", result.RunID}, store...)...)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"network:     dimerization", "status:      completed", "seed:        11", "final A ="} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in show output:\n%s", want, out)
		}
	}
}
