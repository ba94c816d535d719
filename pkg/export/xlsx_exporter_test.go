package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestXLSXExporterRender(t *testing.T) {
	exporter := NewXLSXExporter()
	data := Dataset{
		Headers: []string{"Title", "Status"},
		Rows: []map[string]string{
			{"Title": "Poster A", "Status": "DONE"},
			{"Title": "Logo B", "Status": "PROGRESS"},
		},
	}

	payload, err := exporter.Render(data, "Design Requests")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := f.GetRows("Design Requests")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Title", "Status"}, rows[0])
	assert.Equal(t, []string{"Poster A", "DONE"}, rows[1])
}

func TestXLSXExporterRequiresHeaders(t *testing.T) {
	_, err := NewXLSXExporter().Render(Dataset{}, "empty")
	assert.Error(t, err)
}

func TestCSVExporterRender(t *testing.T) {
	payload, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"Title"},
		Rows:    []map[string]string{{"Title": "Poster A"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Title\nPoster A\n", string(payload))
}
