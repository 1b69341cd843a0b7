package excel

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"neurosig/domain/stats"
	"neurosig/internal/errors"
)

// Exporter writes analysis results to an XLSX workbook: one summary sheet
// covering every task plus one feature sheet per task.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

var summaryHeaders = []string{
	"task", "run_id", "seed",
	"fisher_stat", "fisher_naive_p", "km_corrected_p", "perm_p", "perm_approx",
	"n_tested", "n_significant", "rank_score", "alignment", "partial",
}

var featureHeaders = []string{
	"feature", "task_mean", "base_mean", "delta", "z_score", "effect_size",
	"percent_change", "p_two_sided", "p_one_sided", "q_value",
	"expected_direction", "bin", "significant", "pass_rule", "reason",
}

// WriteAllTasks writes a full multi-task result to path.
func (e *Exporter) WriteAllTasks(path string, result *stats.AllTasksResult) error {
	if result == nil || len(result.PerTask) == 0 {
		return errors.InvalidInput("nothing to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeSummarySheet(f, result); err != nil {
		return err
	}

	tasks := make([]string, 0, len(result.PerTask))
	for task := range result.PerTask {
		tasks = append(tasks, task)
	}
	sort.Strings(tasks)

	for _, task := range tasks {
		if err := e.writeFeatureSheet(f, task, result.PerTask[task]); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		appErr := errors.New(errors.CodeExportError, "failed to save workbook")
		appErr.Cause = err
		return appErr
	}
	return nil
}

// WriteTask writes a single task analysis to path.
func (e *Exporter) WriteTask(path string, analysis *stats.TaskAnalysis) error {
	if analysis == nil {
		return errors.InvalidInput("nothing to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeFeatureSheet(f, analysis.Summary.Task, analysis); err != nil {
		return err
	}
	// drop the default sheet so the task sheet stands alone
	if idx, err := f.GetSheetIndex("Sheet1"); err == nil && idx != -1 {
		f.DeleteSheet("Sheet1")
	}

	if err := f.SaveAs(path); err != nil {
		appErr := errors.New(errors.CodeExportError, "failed to save workbook")
		appErr.Cause = err
		return appErr
	}
	return nil
}

func (e *Exporter) writeSummarySheet(f *excelize.File, result *stats.AllTasksResult) error {
	sheet := "Summary"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return errors.Wrap(err, "failed to create summary sheet")
	}
	f.SetActiveSheet(idx)
	if sheetIdx, err := f.GetSheetIndex("Sheet1"); err == nil && sheetIdx != -1 {
		f.DeleteSheet("Sheet1")
	}

	if err := writeRow(f, sheet, 1, toCells(summaryHeaders)); err != nil {
		return err
	}

	tasks := make([]string, 0, len(result.PerTask))
	for task := range result.PerTask {
		tasks = append(tasks, task)
	}
	sort.Strings(tasks)

	row := 2
	for _, task := range tasks {
		s := result.PerTask[task].Summary
		cells := []interface{}{
			s.Task, s.RunID.String(), s.Seed,
			s.FisherStat, s.FisherNaiveP, s.KMCorrectedP, s.PermP, s.PermApprox,
			s.NTested, s.NSignificant, s.RankScore, s.Alignment, s.Partial,
		}
		if err := writeRow(f, sheet, row, cells); err != nil {
			return err
		}
		row++
	}

	if result.Combined != nil {
		row++
		if err := writeRow(f, sheet, row, []interface{}{"combined_fisher_stat", result.Combined.FisherStat}); err != nil {
			return err
		}
		row++
		if err := writeRow(f, sheet, row, []interface{}{"combined_fisher_p", result.Combined.FisherP}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) writeFeatureSheet(f *excelize.File, task string, analysis *stats.TaskAnalysis) error {
	sheet := sheetName(task)
	if _, err := f.NewSheet(sheet); err != nil {
		return errors.Wrapf(err, "failed to create sheet for task %s", task)
	}

	if err := writeRow(f, sheet, 1, toCells(featureHeaders)); err != nil {
		return err
	}

	names := make([]string, 0, len(analysis.Features))
	for name := range analysis.Features {
		names = append(names, name)
	}
	sort.Strings(names)

	row := 2
	for _, name := range names {
		fr := analysis.Features[name]
		cells := []interface{}{
			fr.Feature, fr.TaskMean, fr.BaseMean, fr.Delta, fr.ZScore, fr.EffectSize,
			fr.PercentChange, fr.PTwoSided, fr.POneSided, fr.QValue,
			fr.ExpectedDirection, fr.Bin, fr.Significant, string(fr.Rule), fr.Reason,
		}
		if err := writeRow(f, sheet, row, cells); err != nil {
			return err
		}
		row++
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	for i, v := range cells {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return errors.Wrap(err, "failed to write cell")
		}
	}
	return nil
}

func toCells(headers []string) []interface{} {
	out := make([]interface{}, len(headers))
	for i, h := range headers {
		out[i] = h
	}
	return out
}

// sheetName truncates task names to Excel's 31-char sheet name limit.
func sheetName(task string) string {
	if task == "" {
		task = "task"
	}
	if len(task) > 31 {
		return fmt.Sprintf("%s~", task[:30])
	}
	return task
}
