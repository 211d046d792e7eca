// Package translator adapts the Cloud Translation API to catalog.Translator.
package translator

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/translate"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// Config selects credentials and endpoint for the translation client.
type Config struct {
	APIKey string
	// Endpoint overrides the service base URL. It must end with a slash.
	Endpoint string
}

// Client translates single strings.
type Client struct {
	client *translate.Client
	logger *zap.Logger
}

// New dials the translation service. Without an API key the client falls back
// to application default credentials.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	var opts []option.ClientOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create translate client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: client, logger: logger.Named("translator")}, nil
}

// Translate renders text from source into target. Both are language codes;
// an empty source asks the service to detect it.
func (c *Client) Translate(ctx context.Context, text, source, target string) (string, error) {
	targetTag, err := language.Parse(target)
	if err != nil {
		return "", fmt.Errorf("target language %q: %w", target, err)
	}
	opts := &translate.Options{Format: translate.Text}
	if source != "" {
		sourceTag, err := language.Parse(source)
		if err != nil {
			return "", fmt.Errorf("source language %q: %w", source, err)
		}
		opts.Source = sourceTag
	}
	out, err := c.client.Translate(ctx, []string{text}, targetTag, opts)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	if len(out) == 0 {
		return "", errors.New("translate: empty response")
	}
	c.logger.Debug("translated", zap.String("target", targetTag.String()), zap.Int("chars", len(text)))
	return out[0].Text, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}
