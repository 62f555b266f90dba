package backoffice

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/internal/apiclient"
)

// ImportKind selects the synchronous CSV import endpoint.
type ImportKind string

const (
	ImportOrders   ImportKind = "orders"
	ImportMileage  ImportKind = "mileage"
	ImportExpenses ImportKind = "expenses"
)

// ImportsService uploads CSV files.
type ImportsService struct {
	client *apiclient.Client
	logger *zap.Logger
}

func csvForm(filename string, content []byte) *apiclient.MultipartForm {
	return apiclient.NewMultipartForm().AddFile("file", filename, "text/csv", content)
}

// ImportFile uploads a CSV to /<kind>/import-file and returns the tally.
func (s *ImportsService) ImportFile(ctx context.Context, kind ImportKind, filename string, content []byte) (*ImportResult, error) {
	switch kind {
	case ImportOrders, ImportMileage, ImportExpenses:
	default:
		return nil, fmt.Errorf("import: unknown kind %q", kind)
	}

	var out ImportResult
	path := "/" + string(kind) + "/import-file"
	if err := s.client.Post(ctx, path, csvForm(filename, content), &out); err != nil {
		return nil, err
	}
	s.logger.Info("backoffice.import_done",
		zap.String("kind", string(kind)),
		zap.Int("imported", out.Imported),
		zap.Int("skipped", out.Skipped),
		zap.Int("errors", len(out.Errors)))
	return &out, nil
}

// StartJob submits a CSV for asynchronous import.
func (s *ImportsService) StartJob(ctx context.Context, filename string, content []byte) (*ImportJob, error) {
	var out ImportJob
	if err := s.client.Post(ctx, "/imports/", csvForm(filename, content), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ImportsService) Job(ctx context.Context, jobID string) (*ImportJob, error) {
	var out ImportJob
	if err := s.client.Get(ctx, "/imports/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitJob polls the job every interval until it is done or ctx ends.
func (s *ImportsService) WaitJob(ctx context.Context, jobID string, interval time.Duration) (*ImportJob, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.Job(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
