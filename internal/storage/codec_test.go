package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"chemsim/internal/model"
)

func TestDecodeRunFixture(t *testing.T) {
	run := decodeRunFixture(t, "minimal_run_v1.json")
	if run.ID != "run-minimal-1" || run.Network != "birth-death" {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Status != model.RunCompleted || run.Iterations != 812 {
		t.Fatalf("unexpected outcome: status=%s iterations=%d", run.Status, run.Iterations)
	}
	if run.Parameters.Seed == nil || *run.Parameters.Seed != 7 {
		t.Fatalf("unexpected seed: %+v", run.Parameters.Seed)
	}
	if run.Duration != 1500*time.Microsecond {
		t.Fatalf("unexpected duration: %s", run.Duration)
	}
	if run.Final["X"] != 9.75 {
		t.Fatalf("unexpected final values: %+v", run.Final)
	}
}

func TestDecodeRunRejectsFutureSchema(t *testing.T) {
	data, err := os.ReadFile(fixturePath("future_run_v2.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestEncodeRunRequiresCurrentVersion(t *testing.T) {
	if _, err := EncodeRun(model.RunRecord{ID: "unversioned"}); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestEncodeDecodeRunPreservesSummary(t *testing.T) {
	seed := uint64(3)
	input := Stamp(model.RunRecord{
		ID:           "run-1",
		CreatedAt:    time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Network:      "dimerization",
		Simulator:    "gibson-bruck",
		Parameters:   model.RunParameters{EnsembleSize: 10, Seed: &seed},
		Start:        0,
		End:          5,
		NumPoints:    6,
		Status:       model.RunCancelled,
		Iterations:   42,
		Final:        map[string]float64{"A": 27, "B": 36.5},
		Fluctuations: map[string]float64{"A": 3.5},
	})
	data, err := EncodeRun(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(input, output) {
		t.Fatalf("round trip changed record:\n in: %+v\nout: %+v", input, output)
	}
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}

func decodeRunFixture(t *testing.T, name string) model.RunRecord {
	t.Helper()

	data, err := os.ReadFile(fixturePath(name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	run, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return run
}
