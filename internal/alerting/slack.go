package alerting

import (
	"context"
	"net/http"
)

type SlackClient struct {
	webhookURL string
	client     *http.Client
}

func NewSlackClient(webhookURL string) *SlackClient {
	return &SlackClient{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: webhookTimeout},
	}
}

func (c *SlackClient) Name() string { return "slack" }

func (c *SlackClient) Send(ctx context.Context, message string) error {
	return postJSON(ctx, c.client, c.webhookURL, map[string]string{"text": message})
}
