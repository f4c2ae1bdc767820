// Package search publishes annotated rows to Meilisearch so reviewers can
// look up duplicates and failed rows across runs.
package search

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/models"
)

// PrimaryKey of published documents.
const PrimaryKey = "doc_id"

var reUnsafeID = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// PublisherConfig holds the Meilisearch connection settings.
type PublisherConfig struct {
	Host      string
	APIKey    string
	IndexName string
	BatchSize int
}

// Publisher writes one document per output row.
type Publisher struct {
	client    meilisearch.ServiceManager
	indexName string
	batchSize int
	logger    *zap.Logger
}

// NewPublisher connects and checks server health.
func NewPublisher(cfg PublisherConfig, logger *zap.Logger) (*Publisher, error) {
	if cfg.IndexName == "" {
		return nil, errors.New("meilisearch index name is required")
	}
	client := meilisearch.New(cfg.Host, meilisearch.WithAPIKey(cfg.APIKey))
	if _, err := client.Health(); err != nil {
		return nil, fmt.Errorf("cannot reach meilisearch at %s: %w", cfg.Host, err)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Publisher{client: client, indexName: cfg.IndexName, batchSize: cfg.BatchSize, logger: logger}, nil
}

// EnsureIndex applies the index settings the review filters rely on.
func (p *Publisher) EnsureIndex() error {
	index := p.client.Index(p.indexName)
	task, err := index.UpdateSettings(&meilisearch.Settings{
		FilterableAttributes: []string{"dataset", "profile", "final_status", "match_key", "is_duplicate_or_matched"},
		SortableAttributes:   []string{"row_number", "total_row_score"},
	})
	if err != nil {
		return fmt.Errorf("configure index %s: %w", p.indexName, err)
	}
	p.logger.Info("Meilisearch index configured", zap.String("index", p.indexName), zap.Int64("task_uid", task.TaskUID))
	return nil
}

// Publish uploads every row of rep under dataset and returns the number of
// documents sent.
func (p *Publisher) Publish(ctx context.Context, dataset string, rep *models.Report) (int, error) {
	docs := Documents(dataset, rep)
	index := p.client.Index(p.indexName)
	for i := 0; i < len(docs); i += p.batchSize {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		end := min(i+p.batchSize, len(docs))
		task, err := index.AddDocuments(docs[i:end], PrimaryKey)
		if err != nil {
			return i, fmt.Errorf("add documents %d-%d: %w", i, end, err)
		}
		p.logger.Debug("Published batch", zap.Int("from", i), zap.Int("to", end), zap.Int64("task_uid", task.TaskUID))
	}
	p.logger.Info("Published report", zap.String("dataset", dataset), zap.Int("documents", len(docs)))
	return len(docs), nil
}

// Search queries published rows. filter uses Meilisearch filter syntax,
// e.g. `final_status = "Fail" AND match_key = 3`.
func (p *Publisher) Search(q, filter string, limit int64) (*meilisearch.SearchResponse, error) {
	req := &meilisearch.SearchRequest{Limit: limit}
	if filter != "" {
		req.Filter = filter
	}
	return p.client.Index(p.indexName).Search(q, req)
}

// Documents converts rep into Meilisearch documents. Column values are
// kept under "record" so arbitrary headers cannot clash with the
// annotation fields.
func Documents(dataset string, rep *models.Report) []map[string]interface{} {
	prefix := reUnsafeID.ReplaceAllString(dataset, "_")
	docs := make([]map[string]interface{}, 0, len(rep.Rows))
	for _, row := range rep.Rows {
		record := make(map[string]string, len(rep.Header))
		for i, h := range rep.Header {
			record[h] = row.Values[i]
		}
		doc := map[string]interface{}{
			PrimaryKey:                prefix + "-" + strconv.Itoa(row.RowNumber),
			"dataset":                 dataset,
			"profile":                 rep.Profile,
			"row_number":              row.RowNumber,
			"unique_id":               row.UniqueID,
			"record":                  record,
			"total_row_score":         row.TotalRowScore,
			"final_status":            row.FinalStatus,
			"duplicate_match_details": row.DuplicateDetails,
			"is_matched_to":           row.IsMatchedTo,
			"is_duplicate_or_matched": row.Involved,
			"match_key":               row.MatchKey,
		}
		if row.DuplicateScore != nil {
			doc["duplicate_score"] = *row.DuplicateScore
		}
		docs = append(docs, doc)
	}
	return docs
}

// Filter builds a filter expression for one dataset, optionally
// restricted to a final status.
func Filter(dataset, status string) string {
	if status == "" {
		return fmt.Sprintf("dataset = %q", dataset)
	}
	return fmt.Sprintf("dataset = %q AND final_status = %q", dataset, status)
}
