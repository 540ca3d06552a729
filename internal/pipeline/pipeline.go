// Package pipeline holds the per-stage executors. An executor does the work
// of exactly one stage for one job; scheduling, claiming and persistence stay
// in the worker.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"resume-insights/constants"
	"resume-insights/internal/common"
	"resume-insights/internal/entity"
	"resume-insights/internal/extract"
	"resume-insights/internal/llm"
	"resume-insights/internal/repository"
)

// Executor performs one stage on one job and returns the stage output.
type Executor interface {
	Stage() constants.Stage
	Execute(ctx context.Context, job *entity.Job) (json.RawMessage, error)
}

// Executors builds the stage-to-executor table the worker dispatches on.
func Executors(store repository.JobStore, extractor extract.TextExtractor, enricher llm.Enricher) map[constants.Stage]Executor {
	table := map[constants.Stage]Executor{
		constants.StageExtract:   &extractExecutor{store: store, extractor: extractor},
		constants.StageParse:     &parseExecutor{enricher: enricher},
		constants.StageBias:      &biasExecutor{enricher: enricher},
		constants.StageAnonymize: &anonymizeExecutor{enricher: enricher},
		constants.StageSalary:    &salaryExecutor{enricher: enricher},
		constants.StageCareer:    &careerExecutor{enricher: enricher},
	}
	return table
}

type extractExecutor struct {
	store     repository.JobStore
	extractor extract.TextExtractor
}

func (e *extractExecutor) Stage() constants.Stage { return constants.StageExtract }

// Execute pulls the text out of the uploaded file and stores it on the job.
// The stage output records extraction bookkeeping; the text itself lives in
// the job's raw_text column.
func (e *extractExecutor) Execute(ctx context.Context, job *entity.Job) (json.RawMessage, error) {
	format := constants.MapExtToFormat(filepath.Ext(job.FileName))
	if format == "" {
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedFormat, filepath.Ext(job.FileName))
	}

	text, err := e.extractor.Extract(ctx, job.FilePath, format)
	if err != nil {
		return nil, err
	}
	if err := e.store.SetRawText(ctx, job.ID, text); err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{
		"format": format,
		"chars":  len(text),
	})
}

type parseExecutor struct {
	enricher llm.Enricher
}

func (e *parseExecutor) Stage() constants.Stage { return constants.StageParse }

func (e *parseExecutor) Execute(ctx context.Context, job *entity.Job) (json.RawMessage, error) {
	text, err := rawText(job)
	if err != nil {
		return nil, err
	}
	return e.enricher.ParseResume(ctx, text)
}

type biasExecutor struct {
	enricher llm.Enricher
}

func (e *biasExecutor) Stage() constants.Stage { return constants.StageBias }

func (e *biasExecutor) Execute(ctx context.Context, job *entity.Job) (json.RawMessage, error) {
	text, err := rawText(job)
	if err != nil {
		return nil, err
	}
	return e.enricher.DetectBias(ctx, text)
}

type anonymizeExecutor struct {
	enricher llm.Enricher
}

func (e *anonymizeExecutor) Stage() constants.Stage { return constants.StageAnonymize }

func (e *anonymizeExecutor) Execute(ctx context.Context, job *entity.Job) (json.RawMessage, error) {
	parsed, err := parseOutput(job)
	if err != nil {
		return nil, err
	}
	return e.enricher.Anonymize(ctx, parsed)
}

type salaryExecutor struct {
	enricher llm.Enricher
}

func (e *salaryExecutor) Stage() constants.Stage { return constants.StageSalary }

func (e *salaryExecutor) Execute(ctx context.Context, job *entity.Job) (json.RawMessage, error) {
	parsed, err := parseOutput(job)
	if err != nil {
		return nil, err
	}
	return e.enricher.EstimateSalary(ctx, parsed)
}

type careerExecutor struct {
	enricher llm.Enricher
}

func (e *careerExecutor) Stage() constants.Stage { return constants.StageCareer }

func (e *careerExecutor) Execute(ctx context.Context, job *entity.Job) (json.RawMessage, error) {
	parsed, err := parseOutput(job)
	if err != nil {
		return nil, err
	}
	return e.enricher.SuggestCareerPath(ctx, parsed)
}

// rawText returns the extracted text a post-extract stage works on. A missing
// text with extract already succeeded means the upload produced nothing
// usable, which no amount of retrying fixes.
func rawText(job *entity.Job) (string, error) {
	if job.RawText == nil || *job.RawText == "" {
		return "", fmt.Errorf("%w: job %s has no extracted text", common.ErrFatalData, job.ID)
	}
	return *job.RawText, nil
}

// parseOutput returns the parse stage's stored output for the enrichment
// stages that build on it.
func parseOutput(job *entity.Job) (json.RawMessage, error) {
	sr := job.Stage(constants.StageParse)
	if sr.State != constants.StageStateSucceeded || len(sr.Output) == 0 {
		return nil, fmt.Errorf("%w: parse output unavailable for job %s", common.ErrFatalData, job.ID)
	}
	return sr.Output, nil
}
