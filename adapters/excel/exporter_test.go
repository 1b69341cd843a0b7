package excel

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"neurosig/domain/core"
	"neurosig/domain/stats"
)

func sampleResult() *stats.AllTasksResult {
	return &stats.AllTasksResult{
		SessionID: core.SessionID("s1"),
		PerTask: map[string]*stats.TaskAnalysis{
			"mental_arithmetic": {
				Summary: stats.TaskSummary{
					Task:         "mental_arithmetic",
					RunID:        core.RunID("r1"),
					Seed:         42,
					FisherStat:   12.5,
					FisherNaiveP: 0.002,
					KMCorrectedP: 0.01,
					PermP:        0.005,
					NTested:      2,
					NSignificant: 1,
					RankScore:    0.7,
					Alignment:    "aligned",
				},
				Features: map[string]stats.FeatureResult{
					"beta_power": {
						Feature:     "beta_power",
						TaskMean:    5.05,
						BaseMean:    1.05,
						Delta:       4.0,
						Significant: true,
						Rule:        stats.PassRuleP,
						Tested:      true,
						Bin:         4,
					},
					"alpha_power": {
						Feature: "alpha_power",
						Reason:  "NA (no baseline)",
					},
				},
			},
		},
		Combined: &stats.CombinedSummary{FisherStat: 12.5, FisherP: 0.002, NTasks: 1},
	}
}

func TestWriteAllTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.xlsx")
	e := NewExporter()
	if err := e.WriteAllTasks(path, sampleResult()); err != nil {
		t.Fatalf("WriteAllTasks failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	hasSummary, hasTask := false, false
	for _, s := range sheets {
		if s == "Summary" {
			hasSummary = true
		}
		if s == "mental_arithmetic" {
			hasTask = true
		}
	}
	if !hasSummary || !hasTask {
		t.Fatalf("sheets = %v", sheets)
	}

	if got, _ := f.GetCellValue("Summary", "A2"); got != "mental_arithmetic" {
		t.Errorf("Summary A2 = %q", got)
	}
	// Feature rows are written in sorted feature order.
	if got, _ := f.GetCellValue("mental_arithmetic", "A2"); got != "alpha_power" {
		t.Errorf("First feature row = %q, want alpha_power", got)
	}
	if got, _ := f.GetCellValue("mental_arithmetic", "A3"); got != "beta_power" {
		t.Errorf("Second feature row = %q, want beta_power", got)
	}
}

func TestWriteAllTasks_RejectsEmpty(t *testing.T) {
	e := NewExporter()
	if err := e.WriteAllTasks(filepath.Join(t.TempDir(), "x.xlsx"), nil); err == nil {
		t.Fatal("Expected error for nil result")
	}
}

func TestWriteTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.xlsx")
	e := NewExporter()
	analysis := sampleResult().PerTask["mental_arithmetic"]
	if err := e.WriteTask(path, analysis); err != nil {
		t.Fatalf("WriteTask failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	if got, _ := f.GetCellValue("mental_arithmetic", "A1"); got != "feature" {
		t.Errorf("Header A1 = %q", got)
	}
}

func TestSheetName_Truncation(t *testing.T) {
	long := "a_task_name_far_beyond_the_thirty_one_character_limit"
	if got := sheetName(long); len(got) != 31 {
		t.Errorf("len = %d, want 31", len(got))
	}
	if got := sheetName(""); got != "task" {
		t.Errorf("empty name = %q", got)
	}
	if got := sheetName("short"); got != "short" {
		t.Errorf("short name = %q", got)
	}
}
