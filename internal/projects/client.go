// Package projects предоставляет клиент для внешней системы управления проектами.
package projects

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует HTTP-взаимодействие с системой проектов.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Assignment описывает назначение агента и куратора на проект.
type Assignment struct {
	ProjectID     int64  `json:"project_id"`
	AgentUserID   int64  `json:"agent_user_id"`
	CuratorUserID *int64 `json:"curator_user_id,omitempty"`
}

// NewClient создаёт HTTP-клиент для обращения к системе проектов по указанному адресу.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc.StandardClient(),
	}
}

// GetAssignment запрашивает назначение агента и куратора для указанного проекта.
// Возвращает nil без ошибки, если проект не найден или назначение отсутствует.
func (c *Client) GetAssignment(ctx context.Context, projectID int64) (*Assignment, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("projects client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := fmt.Sprintf("%s/api/projects/%d/assignment", base, projectID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result Assignment
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if result.AgentUserID == 0 {
		return nil, nil
	}

	return &result, nil
}
