package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterDataset() Dataset {
	return Dataset{
		Title:   "CS101 roster",
		Headers: []string{"Position", "Student ID", "Status"},
		Rows: [][]string{
			{"1", "s1", "ENROLLED"},
			{"2", "s, jr", "WAITLISTED"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	payload, err := NewCSVExporter().Render(rosterDataset())
	require.NoError(t, err)
	assert.Equal(t, "Position,Student ID,Status\n1,s1,ENROLLED\n2,\"s, jr\",WAITLISTED\n", string(payload))
}

func TestPDFExporterRender(t *testing.T) {
	payload, err := NewPDFExporter().Render(rosterDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
}

func TestExportersRejectRaggedRows(t *testing.T) {
	data := rosterDataset()
	data.Rows = append(data.Rows, []string{"3"})

	_, err := NewCSVExporter().Render(data)
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(data)
	assert.Error(t, err)
	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}
