package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleetwatch/internal/config"
	"fleetwatch/internal/logger"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// AlertEvent is one alert lifecycle event indexed for search and dashboards
type AlertEvent struct {
	Event     string                 `json:"event"` // fired, resolved, acknowledged, diagnosis_requested
	AlertID   string                 `json:"alert_id"`
	RuleID    uint                   `json:"rule_id"`
	RuleName  string                 `json:"rule_name"`
	Severity  string                 `json:"severity"`
	Status    string                 `json:"status"`
	Cluster   string                 `json:"cluster,omitempty"`
	Namespace string                 `json:"namespace,omitempty"`
	Resource  string                 `json:"resource,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	MissionID string                 `json:"mission_id,omitempty"`
	Timestamp time.Time              `json:"@timestamp"`
}

type Client struct {
	es        *elasticsearch.Client
	config    config.ElasticsearchConfig
	indexName string
}

func NewClient(cfg config.ElasticsearchConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	esConfig := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	es, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.String())
	}

	// Daily rolling index
	indexName := fmt.Sprintf("%s-%s", cfg.IndexPrefix, time.Now().Format("2006.01.02"))

	client := &Client{
		es:        es,
		config:    cfg,
		indexName: indexName,
	}

	logger.Info("Elasticsearch client initialized")

	return client, nil
}

// IndexAlertEvent indexes one alert event. Safe to call on a nil client.
func (c *Client) IndexAlertEvent(event *AlertEvent) error {
	if c == nil || c.es == nil {
		return nil
	}

	c.indexName = fmt.Sprintf("%s-%s", c.config.IndexPrefix, time.Now().Format("2006.01.02"))

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	req := esapi.IndexRequest{
		Index: c.indexName,
		Body:  bytes.NewReader(body),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to index alert event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch index error: %s", res.String())
	}

	return nil
}

// CreateIndexTemplate installs the index template for alert event indices
func (c *Client) CreateIndexTemplate() error {
	if c == nil || c.es == nil {
		return nil
	}

	template := map[string]interface{}{
		"index_patterns": []string{c.config.IndexPrefix + "-*"},
		"template": map[string]interface{}{
			"settings": map[string]interface{}{
				"number_of_shards":   1,
				"number_of_replicas": 0,
			},
			"mappings": map[string]interface{}{
				"properties": map[string]interface{}{
					"@timestamp": map[string]string{"type": "date"},
					"event":      map[string]string{"type": "keyword"},
					"alert_id":   map[string]string{"type": "keyword"},
					"rule_id":    map[string]string{"type": "long"},
					"rule_name":  map[string]string{"type": "keyword"},
					"severity":   map[string]string{"type": "keyword"},
					"status":     map[string]string{"type": "keyword"},
					"cluster":    map[string]string{"type": "keyword"},
					"namespace":  map[string]string{"type": "keyword"},
					"resource":   map[string]string{"type": "keyword"},
					"mission_id": map[string]string{"type": "keyword"},
					"message":    map[string]string{"type": "text"},
				},
			},
		},
	}

	body, err := json.Marshal(template)
	if err != nil {
		return fmt.Errorf("failed to marshal index template: %w", err)
	}

	req := esapi.IndicesPutIndexTemplateRequest{
		Name: c.config.IndexPrefix,
		Body: bytes.NewReader(body),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to create index template: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch template error: %s", res.String())
	}

	return nil
}

// SearchAlertEvents runs a raw query against the alert event indices
func (c *Client) SearchAlertEvents(ctx context.Context, query map[string]interface{}) ([]AlertEvent, error) {
	if c == nil || c.es == nil {
		return nil, fmt.Errorf("elasticsearch is not enabled")
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.config.IndexPrefix+"-*"),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search alert events: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source AlertEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	events := make([]AlertEvent, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		events = append(events, hit.Source)
	}

	return events, nil
}
