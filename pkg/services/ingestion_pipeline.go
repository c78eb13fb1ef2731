package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
)

// IngestionClient is the remote loader the export files are delivered to.
type IngestionClient interface {
	ResumeUpload(ctx context.Context, fileName string, content []byte) (uploadID string, err error)
	CommitUpload(ctx context.Context, uploadID, fileName string, content []byte) error
	MakeUploadAvailable(ctx context.Context, uploadID string) error
	FetchClassificationID(ctx context.Context) (string, error)
	CreateLoaderJob(ctx context.Context, jobName, classificationID string) (jobID string, err error)
	AttachFile(ctx context.Context, fileName, uploadID, jobID string) error
	AttachWorkflow(ctx context.Context, jobID string) error
}

// IngestionContext carries one file through the pipeline; each step fills in the
// identifiers later steps need.
type IngestionContext struct {
	FileName         string
	Content          []byte
	UploadID         string
	ClassificationID string
	JobName          string
	JobID            string
}

// Pipeline step names.
const (
	StepResumeUpload        = "resume-upload"
	StepCommitUpload        = "commit-upload"
	StepPublish             = "publish"
	StepFetchClassification = "fetch-classification"
	StepCreateJob           = "create-job"
	StepAttachFile          = "attach-file"
	StepAttachWorkflow      = "attach-workflow"
)

// PipelineStep is one remote call of the ingestion pipeline.
type PipelineStep interface {
	Name() string
	// Requires reports which earlier outputs are missing; nil means the step can run.
	Requires(ic *IngestionContext) error
	Execute(ctx context.Context, ic *IngestionContext) error
}

// baseStep provides the name and logger shared by every step.
type baseStep struct {
	name   string
	client IngestionClient
	logger *zap.Logger
}

func newBaseStep(name string, client IngestionClient, logger *zap.Logger) baseStep {
	return baseStep{name: name, client: client, logger: logger.Named(name)}
}

func (b baseStep) Name() string { return b.name }

func requireField(value, field string) error {
	if value == "" {
		return fmt.Errorf("%s not available", field)
	}
	return nil
}

type resumeUploadStep struct{ baseStep }

func (s *resumeUploadStep) Requires(ic *IngestionContext) error {
	return requireField(ic.FileName, "file name")
}

func (s *resumeUploadStep) Execute(ctx context.Context, ic *IngestionContext) error {
	id, err := s.client.ResumeUpload(ctx, ic.FileName, ic.Content)
	if err != nil {
		return err
	}
	if id == "" {
		return errors.New("loader returned an empty upload id")
	}
	ic.UploadID = id
	return nil
}

type commitUploadStep struct{ baseStep }

func (s *commitUploadStep) Requires(ic *IngestionContext) error {
	return requireField(ic.UploadID, "upload id")
}

func (s *commitUploadStep) Execute(ctx context.Context, ic *IngestionContext) error {
	return s.client.CommitUpload(ctx, ic.UploadID, ic.FileName, ic.Content)
}

type publishStep struct{ baseStep }

func (s *publishStep) Requires(ic *IngestionContext) error {
	return requireField(ic.UploadID, "upload id")
}

func (s *publishStep) Execute(ctx context.Context, ic *IngestionContext) error {
	return s.client.MakeUploadAvailable(ctx, ic.UploadID)
}

type fetchClassificationStep struct{ baseStep }

func (s *fetchClassificationStep) Requires(*IngestionContext) error { return nil }

func (s *fetchClassificationStep) Execute(ctx context.Context, ic *IngestionContext) error {
	id, err := s.client.FetchClassificationID(ctx)
	if err != nil {
		return err
	}
	if id == "" {
		return errors.New("loader classification not found")
	}
	ic.ClassificationID = id
	return nil
}

type createJobStep struct{ baseStep }

func (s *createJobStep) Requires(ic *IngestionContext) error {
	return requireField(ic.ClassificationID, "classification id")
}

func (s *createJobStep) Execute(ctx context.Context, ic *IngestionContext) error {
	ic.JobName = "job-" + uuid.NewString()
	s.logger.Debug("Creating loader job",
		zap.String("file", ic.FileName),
		zap.String("job_name", ic.JobName))
	id, err := s.client.CreateLoaderJob(ctx, ic.JobName, ic.ClassificationID)
	if err != nil {
		return err
	}
	if id == "" {
		return errors.New("loader returned an empty job id")
	}
	ic.JobID = id
	return nil
}

type attachFileStep struct{ baseStep }

func (s *attachFileStep) Requires(ic *IngestionContext) error {
	if err := requireField(ic.UploadID, "upload id"); err != nil {
		return err
	}
	return requireField(ic.JobID, "job id")
}

func (s *attachFileStep) Execute(ctx context.Context, ic *IngestionContext) error {
	return s.client.AttachFile(ctx, ic.FileName, ic.UploadID, ic.JobID)
}

type attachWorkflowStep struct{ baseStep }

func (s *attachWorkflowStep) Requires(ic *IngestionContext) error {
	return requireField(ic.JobID, "job id")
}

func (s *attachWorkflowStep) Execute(ctx context.Context, ic *IngestionContext) error {
	return s.client.AttachWorkflow(ctx, ic.JobID)
}

// DefaultIngestionSteps returns the loader steps in execution order.
func DefaultIngestionSteps(client IngestionClient, logger *zap.Logger) []PipelineStep {
	return []PipelineStep{
		&resumeUploadStep{newBaseStep(StepResumeUpload, client, logger)},
		&commitUploadStep{newBaseStep(StepCommitUpload, client, logger)},
		&publishStep{newBaseStep(StepPublish, client, logger)},
		&fetchClassificationStep{newBaseStep(StepFetchClassification, client, logger)},
		&createJobStep{newBaseStep(StepCreateJob, client, logger)},
		&attachFileStep{newBaseStep(StepAttachFile, client, logger)},
		&attachWorkflowStep{newBaseStep(StepAttachWorkflow, client, logger)},
	}
}

// PipelineRunner executes steps in order. The first failure aborts the remaining
// steps; completed steps are not rolled back.
type PipelineRunner struct {
	steps  []PipelineStep
	logger *zap.Logger
}

// NewPipelineRunner creates a runner over steps.
func NewPipelineRunner(steps []PipelineStep, logger *zap.Logger) *PipelineRunner {
	return &PipelineRunner{
		steps:  steps,
		logger: logger.Named("ingestion-pipeline"),
	}
}

// Run delivers one file. Any error is a *apperrors.PipelineStepError.
func (r *PipelineRunner) Run(ctx context.Context, ic *IngestionContext) error {
	for _, step := range r.steps {
		fail := func(err error) error {
			r.logger.Error("Ingestion step failed",
				zap.String("file", ic.FileName),
				zap.String("step", step.Name()),
				zap.Error(err))
			return &apperrors.PipelineStepError{File: ic.FileName, Step: step.Name(), Cause: err}
		}

		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if err := step.Requires(ic); err != nil {
			return fail(err)
		}
		if err := step.Execute(ctx, ic); err != nil {
			return fail(err)
		}
		r.logger.Debug("Ingestion step completed",
			zap.String("file", ic.FileName),
			zap.String("step", step.Name()))
	}

	r.logger.Info("File ingested",
		zap.String("file", ic.FileName),
		zap.String("job_id", ic.JobID))
	return nil
}

// IngestionFileResult is the outcome for one delivered file.
type IngestionFileResult struct {
	FileName string `json:"file_name"`
	JobID    string `json:"job_id,omitempty"`
	Err      error  `json:"-"`
}

// IngestionService delivers export results to the loader.
type IngestionService struct {
	runner     *PipelineRunner
	narrowName string
	longName   string
	logger     *zap.Logger
}

// NewIngestionService creates a service delivering the narrow and long tables under
// the given file names.
func NewIngestionService(client IngestionClient, narrowName, longName string, logger *zap.Logger) *IngestionService {
	return &IngestionService{
		runner:     NewPipelineRunner(DefaultIngestionSteps(client, logger), logger),
		narrowName: narrowName,
		longName:   longName,
		logger:     logger.Named("ingestion"),
	}
}

// IngestExport sends the narrow table, then the long table. A failure of one file
// does not stop the other.
func (s *IngestionService) IngestExport(ctx context.Context, result *ExportResult) []IngestionFileResult {
	files := []struct {
		name    string
		content string
	}{
		{s.narrowName, result.NarrowCSV()},
		{s.longName, result.LongCSV()},
	}

	out := make([]IngestionFileResult, 0, len(files))
	for _, f := range files {
		ic := &IngestionContext{FileName: f.name, Content: []byte(f.content)}
		err := s.runner.Run(ctx, ic)
		out = append(out, IngestionFileResult{FileName: f.name, JobID: ic.JobID, Err: err})
	}

	failed := 0
	for _, r := range out {
		if r.Err != nil {
			failed++
		}
	}
	s.logger.Info("Export ingestion finished",
		zap.Int("files", len(out)),
		zap.Int("failed", failed))
	return out
}
