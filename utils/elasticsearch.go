package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"client-directory/models"
)

type ElasticsearchClient interface {
	IndexClient(ctx context.Context, doc models.ClientDocument) error
	SearchClients(ctx context.Context, text string) ([]models.ClientDocument, error)
	DeleteClient(ctx context.Context, id uint) error
	Close() error
}

type elasticsearchClient struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchClient(url, index string) (ElasticsearchClient, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{url},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := es.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch ping error: %s", res.Status())
	}

	return &elasticsearchClient{client: es, index: index}, nil
}

// The client keeps no connections of its own.
func (e *elasticsearchClient) Close() error {
	return nil
}

func (e *elasticsearchClient) IndexClient(ctx context.Context, doc models.ClientDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: strconv.FormatUint(uint64(doc.ID), 10),
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("Elasticsearch error: %s", res.String())
	}

	return nil
}

func (e *elasticsearchClient) SearchClients(ctx context.Context, text string) ([]models.ClientDocument, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(ClientSearchQuery(text)); err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(&buf),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch error: %s", res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	docs := make([]models.ClientDocument, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		docs[i] = hit.Source
	}
	return docs, nil
}

func (e *elasticsearchClient) DeleteClient(ctx context.Context, id uint) error {
	req := esapi.DeleteRequest{
		Index:      e.index,
		DocumentID: strconv.FormatUint(uint64(id), 10),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("Elasticsearch error: %s", res.String())
	}

	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.ClientDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// ClientSearchQuery matches text against names, email and phone numbers.
func ClientSearchQuery(text string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"fields": []string{"first_name", "last_name", "email", "phones"},
			},
		},
	}
}
