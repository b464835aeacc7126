package ntfy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultServerURL = "https://ntfy.sh"
	requestTimeout   = 10 * time.Second
)

// Message is a single ntfy notification
type Message struct {
	Title    string
	Body     string
	Priority int      // 1 (min) to 5 (max); 0 leaves the server default
	Tags     []string // emoji shortcodes or plain tags
}

// Client publishes notifications to one ntfy topic
type Client struct {
	ServerURL string
	Topic     string
	Token     string

	httpClient *http.Client
}

// NewClient creates a client. An empty server URL means ntfy.sh.
func NewClient(serverURL, topic, token string) *Client {
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		ServerURL:  serverURL,
		Topic:      topic,
		Token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// IsConfigured returns true if the topic is set
func (c *Client) IsConfigured() bool {
	return c.Topic != "" && c.ServerURL != ""
}

func (c *Client) topicURL() string {
	return strings.TrimRight(c.ServerURL, "/") + "/" + strings.TrimLeft(c.Topic, "/")
}

// Send publishes a plain notification tagged as coming from clipper
func (c *Client) Send(ctx context.Context, title, message string) error {
	return c.Publish(ctx, Message{Title: title, Body: message, Tags: []string{"clapper"}})
}

// Test publishes a notification to confirm the topic works
func (c *Client) Test(ctx context.Context) error {
	return c.Publish(ctx, Message{
		Title: "Clipper",
		Body:  "Test notification - ntfy is configured correctly!",
		Tags:  []string{"white_check_mark"},
	})
}

// Publish posts msg to the topic. Title, priority and tags travel as headers.
func (c *Client) Publish(ctx context.Context, msg Message) error {
	if !c.IsConfigured() {
		return fmt.Errorf("ntfy topic not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.topicURL(), strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if msg.Priority > 0 {
		req.Header.Set("Priority", strconv.Itoa(msg.Priority))
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("publish to ntfy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	return nil
}

// responseError reads ntfy's JSON error body when there is one
func responseError(resp *http.Response) error {
	var body struct {
		Code  int    `json:"code"`
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("ntfy returned status %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
}
