package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Dataset {
	return Dataset{
		Title:    "Audit trail",
		Subtitle: []string{"Request req-1"},
		Headers:  []string{"Record", "Donor", "Status", "At"},
		Rows: [][]string{
			{"rec-1", "donor-1", "Accepted", "2026-10-15T09:00:00Z"},
			{"rec-1", "donor-1", "Confirmed by patient", "2026-10-15T11:00:00Z"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sample())
	require.NoError(t, err)
	assert.Equal(t, "Record,Donor,Status,At\nrec-1,donor-1,Accepted,2026-10-15T09:00:00Z\nrec-1,donor-1,Confirmed by patient,2026-10-15T11:00:00Z\n", string(out))
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sample())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestExportersRejectRaggedRows(t *testing.T) {
	data := sample()
	data.Rows = append(data.Rows, []string{"only-one"})
	_, err := NewCSVExporter().Render(data)
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{})
	assert.Error(t, err)
}
