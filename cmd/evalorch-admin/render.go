package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/target/evalorch/internal/catalog"
	"github.com/target/evalorch/internal/domain/model"
	"github.com/target/evalorch/internal/migrate"
)

const timeLayout = time.RFC3339

func renderTable(w io.Writer, header []string, rows [][]string) error {
	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	table := tablewriter.NewWriter(w)
	table.Header(cells...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("render row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}

func renderJobs(w io.Writer, jobs []*model.JobRecord) error {
	if len(jobs) == 0 {
		return writef(w, "no evaluations found\n")
	}
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			job.Category,
			string(job.EvaluationType),
			string(job.Status),
			strconv.Itoa(job.Progress) + "%",
			overall(job.Summary),
			job.StartTime.Format(timeLayout),
		})
	}
	return renderTable(w, []string{"ID", "Category", "Type", "Status", "Progress", "Overall", "Started"}, rows)
}

func renderJob(w io.Writer, job *model.JobRecord) error {
	fields := [][]string{
		{"ID", job.ID},
		{"Status", string(job.Status)},
		{"Category", job.Category},
		{"Type", string(job.EvaluationType)},
		{"Framework", job.Framework},
		{"Progress", strconv.Itoa(job.Progress) + "%"},
		{"Started", job.StartTime.Format(timeLayout)},
	}
	if job.EndTime != nil {
		fields = append(fields, []string{"Ended", job.EndTime.Format(timeLayout)})
	}
	if job.Summary != nil {
		fields = append(fields,
			[]string{"Overall", strconv.Itoa(job.Summary.OverallScore)},
			[]string{"Recommendation", string(job.Summary.Recommendation)},
		)
	}
	if job.Error != "" {
		fields = append(fields, []string{"Error", job.Error})
	}
	if err := renderTable(w, []string{"Field", "Value"}, fields); err != nil {
		return err
	}

	rows := make([][]string, 0, len(job.Models)*len(job.Metrics))
	for _, modelKey := range job.Models {
		mr := job.Results[modelKey]
		if mr == nil {
			continue
		}
		metrics := make([]string, 0, len(mr.Metrics))
		for name := range mr.Metrics {
			metrics = append(metrics, name)
		}
		slices.Sort(metrics)
		for _, name := range metrics {
			res := mr.Metrics[name]
			rows = append(rows, []string{
				modelKey,
				string(mr.Status),
				name,
				strconv.FormatFloat(res.Score, 'f', 1, 64),
				strconv.FormatFloat(res.Threshold, 'f', 0, 64),
				passMark(res),
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if err := writef(w, "\n"); err != nil {
		return err
	}
	return renderTable(w, []string{"Model", "Model Status", "Metric", "Score", "Threshold", "Result"}, rows)
}

func renderCategories(w io.Writer, cats []catalog.CategoryInfo) error {
	rows := make([][]string, 0, len(cats))
	for _, c := range cats {
		rows = append(rows, []string{
			c.Key,
			c.Name,
			strings.Join(c.QualityMetrics, ", "),
			strings.Join(c.SecurityMetrics, ", "),
		})
	}
	return renderTable(w, []string{"Key", "Name", "Quality Metrics", "Security Metrics"}, rows)
}

func renderArchive(w io.Writer, rows []*model.ArchivedEvaluation) error {
	if len(rows) == 0 {
		return writef(w, "no archived evaluations\n")
	}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		score := "-"
		if r.OverallScore != nil {
			score = strconv.Itoa(*r.OverallScore)
		}
		rec := "-"
		if r.Recommendation != nil {
			rec = *r.Recommendation
		}
		out = append(out, []string{
			r.JobID,
			r.Category,
			r.EvaluationType,
			r.Status,
			score,
			rec,
			r.ArchivedAt.Format(timeLayout),
		})
	}
	return renderTable(w, []string{"Job ID", "Category", "Type", "Status", "Overall", "Recommendation", "Archived"}, out)
}

func renderMigrations(w io.Writer, pending []migrate.Migration) error {
	if len(pending) == 0 {
		return writef(w, "database is up to date\n")
	}
	rows := make([][]string, 0, len(pending))
	for _, m := range pending {
		rows = append(rows, []string{m.Version, m.File})
	}
	return renderTable(w, []string{"Pending Version", "File"}, rows)
}

func overall(s *model.Summary) string {
	if s == nil {
		return "-"
	}
	return strconv.Itoa(s.OverallScore)
}

func passMark(res model.MetricResult) string {
	switch {
	case res.Failed():
		return "error: " + res.Error
	case res.Passed:
		return "pass"
	default:
		return "fail"
	}
}
