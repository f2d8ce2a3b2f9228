package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/voslund/vigil/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the vigil dashboard API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// AgentInfo fetches the agent's identity from the daemon.
func (c *Client) AgentInfo() (*models.AgentInfo, error) {
	var info models.AgentInfo
	if err := c.getJSON("/api/agent-info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Memory fetches the serialized memory document.
func (c *Client) Memory() (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	if err := c.getJSON("/api/memory", &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// Logs fetches the most recent log entries.
func (c *Client) Logs(limit int) ([]models.LogEntry, error) {
	var entries []models.LogEntry
	path := fmt.Sprintf("/api/logs?limit=%d", limit)
	if err := c.getJSON(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// LogsSince fetches entries strictly after the given timestamp, for
// incremental polling without duplication or gaps.
func (c *Client) LogsSince(since time.Time) ([]models.LogEntry, error) {
	var entries []models.LogEntry
	path := "/api/logs/since?timestamp=" + url.QueryEscape(since.Format(time.RFC3339Nano))
	if err := c.getJSON(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// LatestInteraction fetches the most recent completed prompt/response pair.
func (c *Client) LatestInteraction() (*models.Interaction, error) {
	var out models.Interaction
	if err := c.getJSON("/api/latest-interaction", &out); err != nil {
		return nil, err
	}
	if out.Prompt.Content == "" && out.Response.Content == "" {
		return nil, nil
	}
	return &out, nil
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s", string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
