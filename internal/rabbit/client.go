// Package rabbit is a thin client for the RabbitMQ Management HTTP API. The
// audit subsystem treats it as an opaque collaborator: every call reports
// success, a typed error with a message, or (for future multi-target
// operations) a partial result.
package rabbit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitdeck/backend/internal/domain"
)

// APIError is a non-2xx response from the management API.
type APIError struct {
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rabbitmq management api: %d %s", e.StatusCode, e.Reason)
}

// Client talks to one or more RabbitMQ clusters' management APIs. The target
// cluster (URL + credentials) travels with every call, so one client serves
// the whole console.
type Client struct {
	httpClient *http.Client
}

// NewClient creates the management API client
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ExchangeSettings body for exchange declaration
type ExchangeSettings struct {
	Type       string                 `json:"type"`
	Durable    bool                   `json:"durable"`
	AutoDelete bool                   `json:"auto_delete"`
	Internal   bool                   `json:"internal"`
	Arguments  map[string]interface{} `json:"arguments,omitempty"`
}

// QueueSettings body for queue declaration
type QueueSettings struct {
	Durable    bool                   `json:"durable"`
	AutoDelete bool                   `json:"auto_delete"`
	Arguments  map[string]interface{} `json:"arguments,omitempty"`
}

// Message one message fetched from a queue
type Message struct {
	PayloadBytes    int                    `json:"payload_bytes"`
	Redelivered     bool                   `json:"redelivered"`
	Exchange        string                 `json:"exchange"`
	RoutingKey      string                 `json:"routing_key"`
	Payload         string                 `json:"payload"`
	PayloadEncoding string                 `json:"payload_encoding"`
	Properties      map[string]interface{} `json:"properties"`
}

// Overview returns the cluster overview document
func (c *Client) Overview(ctx context.Context, cluster *domain.Cluster) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, cluster, http.MethodGet, "/api/overview", nil, &out)
	return out, err
}

// ListConnections lists client connections
func (c *Client) ListConnections(ctx context.Context, cluster *domain.Cluster) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	err := c.do(ctx, cluster, http.MethodGet, "/api/connections", nil, &out)
	return out, err
}

// ListChannels lists open channels
func (c *Client) ListChannels(ctx context.Context, cluster *domain.Cluster) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	err := c.do(ctx, cluster, http.MethodGet, "/api/channels", nil, &out)
	return out, err
}

// ListExchanges lists exchanges across vhosts
func (c *Client) ListExchanges(ctx context.Context, cluster *domain.Cluster) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	err := c.do(ctx, cluster, http.MethodGet, "/api/exchanges", nil, &out)
	return out, err
}

// ListQueues lists queues across vhosts
func (c *Client) ListQueues(ctx context.Context, cluster *domain.Cluster) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	err := c.do(ctx, cluster, http.MethodGet, "/api/queues", nil, &out)
	return out, err
}

// PutExchange declares an exchange
func (c *Client) PutExchange(ctx context.Context, cluster *domain.Cluster, vhost, name string, settings ExchangeSettings) error {
	path := fmt.Sprintf("/api/exchanges/%s/%s", escape(vhost), escape(name))
	return c.do(ctx, cluster, http.MethodPut, path, settings, nil)
}

// DeleteExchange removes an exchange
func (c *Client) DeleteExchange(ctx context.Context, cluster *domain.Cluster, vhost, name string) error {
	path := fmt.Sprintf("/api/exchanges/%s/%s", escape(vhost), escape(name))
	return c.do(ctx, cluster, http.MethodDelete, path, nil, nil)
}

// PutQueue declares a queue
func (c *Client) PutQueue(ctx context.Context, cluster *domain.Cluster, vhost, name string, settings QueueSettings) error {
	path := fmt.Sprintf("/api/queues/%s/%s", escape(vhost), escape(name))
	return c.do(ctx, cluster, http.MethodPut, path, settings, nil)
}

// DeleteQueue removes a queue
func (c *Client) DeleteQueue(ctx context.Context, cluster *domain.Cluster, vhost, name string) error {
	path := fmt.Sprintf("/api/queues/%s/%s", escape(vhost), escape(name))
	return c.do(ctx, cluster, http.MethodDelete, path, nil, nil)
}

// PurgeQueue drops all ready messages from a queue
func (c *Client) PurgeQueue(ctx context.Context, cluster *domain.Cluster, vhost, name string) error {
	path := fmt.Sprintf("/api/queues/%s/%s/contents", escape(vhost), escape(name))
	return c.do(ctx, cluster, http.MethodDelete, path, nil, nil)
}

// CreateBinding binds source exchange to a destination exchange ("e") or
// queue ("q")
func (c *Client) CreateBinding(ctx context.Context, cluster *domain.Cluster, vhost, source, destType, destination, routingKey string, args map[string]interface{}) error {
	path := fmt.Sprintf("/api/bindings/%s/e/%s/%s/%s", escape(vhost), escape(source), destType, escape(destination))
	body := map[string]interface{}{
		"routing_key": routingKey,
	}
	if len(args) > 0 {
		body["arguments"] = args
	}
	return c.do(ctx, cluster, http.MethodPost, path, body, nil)
}

// DeleteBinding removes one binding identified by its properties key
func (c *Client) DeleteBinding(ctx context.Context, cluster *domain.Cluster, vhost, source, destType, destination, propertiesKey string) error {
	path := fmt.Sprintf("/api/bindings/%s/e/%s/%s/%s/%s",
		escape(vhost), escape(source), destType, escape(destination), escape(propertiesKey))
	return c.do(ctx, cluster, http.MethodDelete, path, nil, nil)
}

// defaultExchangeSegment is how the management API addresses the nameless
// default exchange in URLs; an empty path segment would not match its routes.
const defaultExchangeSegment = "amq.default"

// Publish publishes one message through an exchange and reports whether it
// was routed to at least one queue. An empty exchange name targets the
// default exchange.
func (c *Client) Publish(ctx context.Context, cluster *domain.Cluster, vhost, exchange, routingKey, payload string, properties map[string]interface{}) (bool, error) {
	segment := exchange
	if segment == "" {
		segment = defaultExchangeSegment
	}
	path := fmt.Sprintf("/api/exchanges/%s/%s/publish", escape(vhost), escape(segment))
	if properties == nil {
		properties = map[string]interface{}{}
	}
	body := map[string]interface{}{
		"properties":       properties,
		"routing_key":      routingKey,
		"payload":          payload,
		"payload_encoding": "string",
	}
	var out struct {
		Routed bool `json:"routed"`
	}
	err := c.do(ctx, cluster, http.MethodPost, path, body, &out)
	return out.Routed, err
}

// GetMessages fetches up to count messages from a queue, removing them
// (ackmode ack_requeue_false). This is the read half of a console-side move.
func (c *Client) GetMessages(ctx context.Context, cluster *domain.Cluster, vhost, queue string, count int) ([]Message, error) {
	path := fmt.Sprintf("/api/queues/%s/%s/get", escape(vhost), escape(queue))
	body := map[string]interface{}{
		"count":    count,
		"ackmode":  "ack_requeue_false",
		"encoding": "auto",
	}
	var out []Message
	err := c.do(ctx, cluster, http.MethodPost, path, body, &out)
	return out, err
}

// QueueMessageCount reads the current message count of a queue
func (c *Client) QueueMessageCount(ctx context.Context, cluster *domain.Cluster, vhost, queue string) (int, error) {
	path := fmt.Sprintf("/api/queues/%s/%s", escape(vhost), escape(queue))
	var out struct {
		Messages int `json:"messages"`
	}
	if err := c.do(ctx, cluster, http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	return out.Messages, nil
}

// do performs one management API call with the cluster's credentials.
func (c *Client) do(ctx context.Context, cluster *domain.Cluster, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(cluster.ApiUrl, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(cluster.Username, cluster.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cluster %s unreachable: %w", cluster.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Reason:     readReason(resp.Body),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// readReason extracts the management API's error reason field, falling back
// to the raw body.
func readReason(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "no response body"
	}
	var parsed struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if json.Unmarshal(data, &parsed) == nil && parsed.Reason != "" {
		if parsed.Error != "" {
			return parsed.Error + ": " + parsed.Reason
		}
		return parsed.Reason
	}
	return strings.TrimSpace(string(data))
}

func escape(s string) string {
	return url.PathEscape(s)
}
