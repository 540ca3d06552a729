// Package export produces XLSX workbooks summarising processed resumes.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"resume-insights/constants"
	"resume-insights/internal/aggregate"
	"resume-insights/internal/entity"
	"resume-insights/internal/repository"
)

// Service is a tiny façade over the job store that produces XLSX bytes.
type Service struct {
	store  repository.JobStore
	logger *slog.Logger
}

// NewService creates an export Service.
func NewService(store repository.JobStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// ExportCompletedXLSX returns an XLSX workbook with one row per completed
// job: candidate identity, career level, salary band and career suggestions.
func (s *Service) ExportCompletedXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	jobs, err := s.store.ListJobsByStatus(ctx, constants.JobStatusCompleted, 0)
	if err != nil {
		return nil, fmt.Errorf("list completed jobs: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Resumes"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// Drop the default sheet excelize creates.
	if index, _ := f.GetSheetIndex("Sheet1"); index != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Uploaded",
		"File",
		"Candidate",
		"Career Level",
		"Industry Focus",
		"Salary Min",
		"Salary Max",
		"Currency",
		"Suggested Roles",
		"Bias Detected",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, job := range jobs {
		res, err := aggregate.BuildResult(job)
		if err != nil {
			s.logger.Warn("skipping unexportable job", "job_id", job.ID, "error", err)
			continue
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, job.CreatedAt.Format("2006-01-02"))
		write(2, job.FileName)
		write(3, candidateName(res))
		if res.Summary != nil {
			write(4, res.Summary.CareerLevel)
			write(5, res.Summary.IndustryFocus)
		}
		if salary := decodeSlot[entity.SalaryEstimate](res.SalaryEstimate); salary != nil {
			write(6, salary.Min)
			write(7, salary.Max)
			write(8, salary.Currency)
		}
		if career := decodeSlot[entity.CareerProgression](res.CareerProgression); career != nil {
			write(9, strings.Join(career.SuggestedNextRoles, ", "))
		}
		if bias := decodeSlot[entity.BiasReport](res.BiasReport); bias != nil {
			write(10, bias.BiasDetected)
		}
		row++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("export built",
		"rows", row-2,
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func candidateName(res *aggregate.Result) string {
	if res.PersonalInfo != nil && res.PersonalInfo.Name != nil {
		if res.PersonalInfo.Name.Full != "" {
			return res.PersonalInfo.Name.Full
		}
		return strings.TrimSpace(res.PersonalInfo.Name.First + " " + res.PersonalInfo.Name.Last)
	}
	return ""
}

// decodeSlot unmarshals a succeeded slot's data, or nil for anything else.
func decodeSlot[T any](slot aggregate.EnrichmentSlot) *T {
	if slot.State != aggregate.SlotSucceeded || len(slot.Data) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(slot.Data, &v); err != nil {
		return nil
	}
	return &v
}
