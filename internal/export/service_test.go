package export

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"resume-insights/constants"
	"resume-insights/internal/entity"
	"resume-insights/internal/repository"
)

func completedJob(t *testing.T, store repository.JobStore) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	job := &entity.Job{ID: uuid.New(), FileName: "resume.pdf", FileSize: 1024, FilePath: "/tmp/resume.pdf"}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	outputs := map[constants.Stage]json.RawMessage{
		constants.StageExtract:   json.RawMessage(`{"format":"PDF","chars":900}`),
		constants.StageParse:     json.RawMessage(`{"personalInfo":{"name":{"full":"Jane Doe"}},"summary":{"careerLevel":"Senior","industryFocus":"technology"}}`),
		constants.StageBias:      json.RawMessage(`{"biasDetected":false,"findings":[]}`),
		constants.StageAnonymize: json.RawMessage(`{"personalInfo":{"name":{"full":"[REDACTED]"}}}`),
		constants.StageSalary:    json.RawMessage(`{"min":95000,"max":130000,"currency":"USD"}`),
		constants.StageCareer:    json.RawMessage(`{"suggestedNextRoles":["Staff Engineer","Tech Lead"],"improvementAreas":[]}`),
	}
	for _, s := range constants.AllStages {
		if err := store.ClaimStage(ctx, job.ID, s, 1); err != nil {
			t.Fatalf("claim %s: %v", s, err)
		}
		if err := store.FinishStage(ctx, job.ID, s, repository.StageOutcome{
			State: constants.StageStateSucceeded, Output: outputs[s],
		}); err != nil {
			t.Fatalf("finish %s: %v", s, err)
		}
	}
	return job.ID
}

func TestExportCompletedXLSX(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	completedJob(t, store)
	completedJob(t, store)

	svc := NewService(store, nil)
	out, err := svc.ExportCompletedXLSX(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows("Resumes")
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2 data rows", len(rows))
	}
	if rows[0][2] != "Candidate" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][2] != "Jane Doe" {
		t.Errorf("candidate = %q, want Jane Doe", rows[1][2])
	}
	if rows[1][3] != "Senior" {
		t.Errorf("career level = %q, want Senior", rows[1][3])
	}
	if rows[1][5] != "95000" {
		t.Errorf("salary min = %q, want 95000", rows[1][5])
	}
}

func TestExportEmptyStore(t *testing.T) {
	t.Parallel()
	svc := NewService(repository.NewMemoryStore(), nil)

	out, err := svc.ExportCompletedXLSX(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	wb, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows("Resumes")
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, want header only", len(rows))
	}
}
