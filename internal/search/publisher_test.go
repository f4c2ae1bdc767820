package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/models"
)

func sampleReport() *models.Report {
	score := 100
	return &models.Report{
		Header:  []string{"Id", "Name"},
		Profile: "contact",
		Rows: []models.OutputRow{
			{RowNumber: 1, UniqueID: "001", Values: []string{"001", "Acme Ltd"}, FinalStatus: "Pass",
				IsMatchedTo: "Matched by row 2 [ID: 002] (Score: 100)", Involved: true, MatchKey: 1},
			{RowNumber: 2, UniqueID: "002", Values: []string{"002", "ACME LIMITED"}, FinalStatus: "Pass",
				DuplicateScore: &score, DuplicateDetails: "Best match with row 1 [ID: 001] (Name:100)", Involved: true, MatchKey: 1},
		},
	}
}

func TestDocuments(t *testing.T) {
	docs := Documents("crm export/2024.csv", sampleReport())
	require.Len(t, docs, 2)

	first := docs[0]
	assert.Equal(t, "crm_export_2024_csv-1", first[PrimaryKey])
	assert.Equal(t, "crm export/2024.csv", first["dataset"])
	assert.Equal(t, "contact", first["profile"])
	assert.Equal(t, map[string]string{"Id": "001", "Name": "Acme Ltd"}, first["record"])
	_, hasScore := first["duplicate_score"]
	assert.False(t, hasScore)

	second := docs[1]
	assert.Equal(t, 100, second["duplicate_score"])
	assert.Equal(t, 1, second["match_key"])
	assert.Equal(t, true, second["is_duplicate_or_matched"])
}

func TestFilter(t *testing.T) {
	assert.Equal(t, `dataset = "run1"`, Filter("run1", ""))
	assert.Equal(t, `dataset = "run1" AND final_status = "Fail"`, Filter("run1", "Fail"))
}

func TestNewPublisher_RequiresIndex(t *testing.T) {
	_, err := NewPublisher(PublisherConfig{Host: "http://localhost:7700"}, zap.NewNop())
	assert.Error(t, err)
}

func TestPublisher_Publish(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	// Needs a running Meilisearch; skipped otherwise.
	p, err := NewPublisher(PublisherConfig{Host: "http://localhost:7700", APIKey: "masterKey", IndexName: "dq_rows_test"}, logger)
	if err != nil {
		t.Skipf("meilisearch not available: %v", err)
	}
	require.NoError(t, p.EnsureIndex())
	n, err := p.Publish(context.Background(), "run1", sampleReport())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
