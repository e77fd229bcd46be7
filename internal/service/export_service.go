package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/farhanpavel/cognit-api/internal/models"
	appErrors "github.com/farhanpavel/cognit-api/pkg/errors"
	"github.com/farhanpavel/cognit-api/pkg/export"
)

// Supported audit export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type auditSource interface {
	AuditTrail(ctx context.Context, actor models.Actor, requestID string) (*models.DonationRequest, []models.AuditEntry, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportResult is a rendered document ready to be sent as an attachment.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders the audit trail of a request as CSV or PDF.
type ExportService struct {
	audit     auditSource
	renderers map[string]datasetRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService with the CSV and PDF renderers.
func NewExportService(audit auditSource, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		audit: audit,
		renderers: map[string]datasetRenderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
	}
}

// ExportAudit renders the audit trail of requestID in format.
func (s *ExportService) ExportAudit(ctx context.Context, actor models.Actor, requestID, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	req, entries, err := s.audit.AuditTrail(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}

	body, err := renderer.Render(auditDataset(req, entries))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render audit trail")
	}
	s.logger.Info("audit trail exported",
		zap.String("request_id", requestID),
		zap.String("format", format),
		zap.Int("entries", len(entries)),
	)
	return &ExportResult{
		Filename:    fmt.Sprintf("donation-request-%s-audit.%s", req.ID, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

func auditDataset(req *models.DonationRequest, entries []models.AuditEntry) export.Dataset {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.CreatedAt.UTC().Format(time.RFC3339),
			entry.DonorID,
			entry.RecordID,
			entry.StatusName,
		})
	}
	return export.Dataset{
		Title: fmt.Sprintf("Donation request %s", req.ID),
		Subtitle: []string{
			fmt.Sprintf("%s blood at %s", req.BloodGroupName, req.HospitalName),
			fmt.Sprintf("%d of %d bags received", req.BagsReceived, req.BagsNeeded),
		},
		Headers: []string{"Time", "Donor", "Record", "Status"},
		Rows:    rows,
	}
}
