package main

import (
	"net/http"
	"time"
)

// APIClient talks to a running pmr daemon.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewAPIClient(baseURL, token string, timeout time.Duration) *APIClient {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Ping reports whether the daemon answers an authenticated list request.
func (c *APIClient) Ping() bool {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/processes", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
