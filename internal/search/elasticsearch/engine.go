package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/storefront/internal/search"
)

// Engine is an Elasticsearch-backed implementation of search.Engine.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger
}

type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source search.Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New connects to esURL and makes sure the index exists. An empty
// indexName selects DefaultIndexName.
func New(ctx context.Context, esURL, indexName string, logger *slog.Logger) (*Engine, error) {
	if indexName == "" {
		indexName = DefaultIndexName
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{esURL}})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	e := &Engine{client: client, indexName: indexName, logger: logger}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch: ensure index: %w", err)
	}
	return e, nil
}

// Ping checks whether the cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

func (e *Engine) ensureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.indexName}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	_ = res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if err := responseError("create index", res); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "elasticsearch index created", slog.String("index", e.indexName))
	return nil
}

// Index adds or updates a single product.
func (e *Engine) Index(ctx context.Context, doc *search.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal document: %w", err)
	}

	res, err := e.client.Index(
		e.indexName,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(doc.ID),
		e.client.Index.WithRefresh("true"),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	return responseError("elasticsearch index", res)
}

// Delete removes a product. A missing document is not an error.
func (e *Engine) Delete(ctx context.Context, id string) error {
	res, err := e.client.Delete(e.indexName, id, e.client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	return responseError("elasticsearch delete", res)
}

// BulkIndex adds or updates docs using the NDJSON bulk API.
func (e *Engine) BulkIndex(ctx context.Context, docs []search.Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range docs {
		action := map[string]any{"index": map[string]any{"_index": e.indexName, "_id": docs[i].ID}}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}
		if err := enc.Encode(docs[i]); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh("true"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if err := responseError("elasticsearch bulk index", res); err != nil {
		return err
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}
	if bulkResp.Errors {
		var msgs []string
		for _, item := range bulkResp.Items {
			if item.Index.Error.Type != "" {
				msgs = append(msgs, fmt.Sprintf("id=%s: %s: %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
			}
		}
		return fmt.Errorf("elasticsearch bulk index: partial errors: %s", strings.Join(msgs, "; "))
	}

	e.logger.InfoContext(ctx, "bulk indexed products", slog.Int("count", len(docs)))
	return nil
}

// Search runs query and returns one page of matches.
func (e *Engine) Search(ctx context.Context, query *search.Query) (*search.Result, error) {
	q := *query
	q.Normalize()

	data, err := json.Marshal(buildQuery(&q))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithTrackTotalHits(true),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if err := responseError("elasticsearch search", res); err != nil {
		return nil, err
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	docs := make([]search.Document, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		docs = append(docs, hit.Source)
	}

	return &search.Result{
		Documents: docs,
		Total:     esResp.Hits.Total.Value,
		Page:      q.Page,
		PerPage:   q.PerPage,
		TookMs:    int64(esResp.Took),
	}, nil
}

// buildQuery translates q into the query DSL.
func buildQuery(q *search.Query) map[string]any {
	var must any = map[string]any{"match_all": map[string]any{}}
	if text := strings.TrimSpace(q.Text); text != "" {
		must = map[string]any{
			"multi_match": map[string]any{
				"query":         text,
				"fields":        []string{"name^3", "name.autocomplete^2", "description"},
				"type":          "best_fields",
				"fuzziness":     "AUTO",
				"prefix_length": 1,
			},
		}
	}

	var filters []any
	if q.Gender != nil {
		filters = append(filters, map[string]any{"term": map[string]any{"gender": *q.Gender}})
	}
	if q.Category != nil && *q.Category != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"category": *q.Category}})
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		r := map[string]any{}
		if q.MinPrice != nil {
			r["gte"] = *q.MinPrice
		}
		if q.MaxPrice != nil {
			r["lte"] = *q.MaxPrice
		}
		filters = append(filters, map[string]any{"range": map[string]any{"price": r}})
	}

	boolQuery := map[string]any{"must": []any{must}}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	return map[string]any{
		"query":            map[string]any{"bool": boolQuery},
		"from":             (q.Page - 1) * q.PerPage,
		"size":             q.PerPage,
		"track_total_hits": true,
		"sort":             buildSort(q.SortBy),
	}
}

func buildSort(sortBy string) []any {
	switch sortBy {
	case search.SortPriceAsc:
		return []any{map[string]any{"price": "asc"}}
	case search.SortPriceDesc:
		return []any{map[string]any{"price": "desc"}}
	case search.SortNewest:
		return []any{map[string]any{"created_at": "desc"}}
	case search.SortRating:
		return []any{map[string]any{"ratings": "desc"}}
	default:
		return []any{map[string]any{"_score": "desc"}}
	}
}

// responseError turns an error response into a Go error, preferring the
// cluster's own type and reason.
func responseError(op string, res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	var errResp esErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}
