package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/farhanpavel/cognit-api/pkg/errors"
)

func TestExportServiceAuditCSV(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	req := f.create(t, 1)
	rec := f.accept(t, req.ID, donor1, 1)
	_, err := f.svc.Confirm(ctx, patient, rec.ID, confirmBags(1))
	require.NoError(t, err)

	svc := NewExportService(f.svc, zap.NewNop())
	out, err := svc.ExportAudit(ctx, patient, req.ID, "CSV")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", out.ContentType)
	assert.Equal(t, "donation-request-"+req.ID+"-audit.csv", out.Filename)

	body := string(out.Body)
	assert.Contains(t, body, "Time,Donor,Record,Status\n")
	assert.Contains(t, body, "donor-1,"+rec.ID+",Accepted\n")
	assert.Contains(t, body, "donor-1,"+rec.ID+",Confirmed by patient\n")
}

func TestExportServiceAuditPDF(t *testing.T) {
	f := newLifecycleFixture(t)
	req := f.create(t, 1)
	f.accept(t, req.ID, donor1, 1)

	svc := NewExportService(f.svc, nil)
	out, err := svc.ExportAudit(context.Background(), patient, req.ID, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", out.ContentType)
	assert.True(t, bytes.HasPrefix(out.Body, []byte("%PDF")))
}

func TestExportServiceRejectsUnknownFormatAndStrangers(t *testing.T) {
	f := newLifecycleFixture(t)
	req := f.create(t, 1)
	svc := NewExportService(f.svc, nil)

	_, err := svc.ExportAudit(context.Background(), patient, req.ID, "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.ExportAudit(context.Background(), stranger, req.ID, "csv")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
