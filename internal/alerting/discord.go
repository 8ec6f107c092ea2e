package alerting

import (
	"context"
	"net/http"
)

// Discord rejects messages longer than this.
const discordMaxContent = 2000

type DiscordClient struct {
	webhookURL string
	client     *http.Client
}

func NewDiscordClient(webhookURL string) *DiscordClient {
	return &DiscordClient{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: webhookTimeout},
	}
}

func (c *DiscordClient) Name() string { return "discord" }

func (c *DiscordClient) Send(ctx context.Context, message string) error {
	if len(message) > discordMaxContent {
		message = message[:discordMaxContent]
	}
	return postJSON(ctx, c.client, c.webhookURL, map[string]string{"content": message})
}
