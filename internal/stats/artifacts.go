// Package stats writes simulation run artifacts to disk: the ledger entry,
// a final-state summary and a per-directory index of exported runs.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"chemsim/internal/model"
	"chemsim/internal/sim"
)

const (
	runIndexFile = "run_index.json"
	runFile      = "run.json"
	summaryFile  = "summary.csv"
)

// RunArtifacts is one exported run. Results is optional; failed runs have
// none.
type RunArtifacts struct {
	Run     model.RunRecord
	Results *sim.Results
}

type RunIndexEntry struct {
	RunID     string `json:"run_id"`
	CreatedAt string `json:"created_at_utc"`
	Network   string `json:"network"`
	Simulator string `json:"simulator"`
	Status    string `json:"status"`
	Points    int    `json:"points"`
}

// SummaryRow is one symbol of summary.csv. StdDev is NaN when fluctuations
// were not estimated.
type SummaryRow struct {
	Symbol string
	Final  float64
	StdDev float64
}

// WriteRunArtifacts writes baseDir/<run id>/ and records the run in the
// directory index.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, runFile), artifacts.Run); err != nil {
		return "", err
	}

	points := 0
	if res := artifacts.Results; res != nil {
		points = res.FilledPoints
		if points > 0 {
			if err := writeSummary(filepath.Join(runDir, summaryFile), res); err != nil {
				return "", err
			}
		}
	}

	entry := RunIndexEntry{
		RunID:     artifacts.Run.ID,
		CreatedAt: artifacts.Run.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"),
		Network:   artifacts.Run.Network,
		Simulator: artifacts.Run.Simulator,
		Status:    string(artifacts.Run.Status),
		Points:    points,
	}
	if err := AppendRunIndex(baseDir, entry); err != nil {
		return "", err
	}
	return runDir, nil
}

// AppendRunIndex adds entry to the index, replacing an entry with the same
// run id.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the indexed runs newest first. A missing index is
// empty.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	// later appended entries first for equal timestamps
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt > entries[j].CreatedAt
	})
	return entries, nil
}

func ReadRunRecord(baseDir, runID string) (model.RunRecord, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, runFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, false, err
	}
	return run, true, nil
}

// ReadSummary reads summary.csv back.
func ReadSummary(baseDir, runID string) ([]SummaryRow, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, summaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, fmt.Errorf("%s: missing header", summaryFile)
	}

	rows := make([]SummaryRow, 0, len(records)-1)
	for line, record := range records[1:] {
		final, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, fmt.Errorf("%s line %d: %w", summaryFile, line+2, err)
		}
		sd := math.NaN()
		if record[2] != "" {
			if sd, err = strconv.ParseFloat(record[2], 64); err != nil {
				return nil, false, fmt.Errorf("%s line %d: %w", summaryFile, line+2, err)
			}
		}
		rows = append(rows, SummaryRow{Symbol: record[0], Final: final, StdDev: sd})
	}
	return rows, true, nil
}

func writeSummary(path string, res *sim.Results) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"symbol", "final", "std_dev"}); err != nil {
		return err
	}
	final := res.Values[res.FilledPoints-1]
	for k, name := range res.Symbols {
		sd := ""
		if res.Fluctuations != nil {
			sd = formatFloat(res.Fluctuations[k])
		}
		if err := writer.Write([]string{name, formatFloat(final[k]), sd}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
