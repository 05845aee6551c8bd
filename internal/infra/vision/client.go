// Package vision provides the Anthropic vision client that turns screen
// samples into context summaries and music generation requests.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/app/generation"
	"github.com/osa030/vibebox/internal/domain/prefs"
	"github.com/osa030/vibebox/internal/domain/screen"
)

const anthropicVersion = "2023-06-01"

// summaryCacheEntry represents a cached context summary.
type summaryCacheEntry struct {
	summary screen.Summary
}

// Client is an Anthropic messages API client.
type Client struct {
	apiKey     string
	model      string
	maxTokens  int
	baseURL    string
	httpClient *http.Client

	// Cache for context summaries, keyed by fingerprint
	summaryCache map[string]*summaryCacheEntry
	cacheMu      sync.RWMutex
}

// Config represents vision client configuration.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string
}

// messagesRequest is the Anthropic messages API request body.
type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string    `json:"role"`
	Content []content `json:"content"`
}

type content struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// messagesResponse is the Anthropic messages API response body.
type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// New creates a new vision client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}

	return &Client{
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		summaryCache: make(map[string]*summaryCacheEntry),
	}, nil
}

// Describe classifies a screen sample into a short context summary. Results
// are cached by fingerprint; the same screen is never analyzed twice.
func (c *Client) Describe(ctx context.Context, sample screen.Sample) (*screen.Summary, error) {
	cacheKey := fingerprintKey(sample)

	c.cacheMu.RLock()
	if entry, ok := c.summaryCache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("using cached summary: key=%s tag=%s", cacheKey, entry.summary.Tag)
		s := entry.summary
		return &s, nil
	}
	c.cacheMu.RUnlock()

	raw, err := c.call(ctx, describePrompt, sample.ImagePath)
	if err != nil {
		return nil, err
	}

	block, ok := extractJSONBlock(raw)
	if !ok {
		return nil, errors.Newf("describe response did not contain JSON: %s", shorten(raw, 120))
	}

	var summary screen.Summary
	if err := json.Unmarshal([]byte(block), &summary); err != nil {
		return nil, errors.Wrap(err, "failed to parse summary JSON")
	}
	if summary.Tag == "" {
		return nil, errors.New("summary is missing a context tag")
	}

	c.cacheMu.Lock()
	c.summaryCache[cacheKey] = &summaryCacheEntry{summary: summary}
	c.cacheMu.Unlock()
	zlog.Debug().Msgf("cached summary: key=%s tag=%s", cacheKey, summary.Tag)

	return &summary, nil
}

// ComposeRequest derives a full generation request from the screen sample,
// the user preferences snapshot and the recent-genre diversity list.
func (c *Client) ComposeRequest(ctx context.Context, sample screen.Sample, p prefs.Preferences, recentGenres []string) (*generation.Prompt, error) {
	raw, err := c.call(ctx, buildComposePrompt(p, recentGenres), sample.ImagePath)
	if err != nil {
		return nil, err
	}

	block, ok := extractJSONBlock(raw)
	if !ok {
		return nil, errors.Newf("compose response did not contain JSON: %s", shorten(raw, 120))
	}

	prompt, err := parseComposeResponse(block, p)
	if err != nil {
		return nil, err
	}

	// Reuse a cached summary for the same screen as the context tag.
	c.cacheMu.RLock()
	if entry, ok := c.summaryCache[fingerprintKey(sample)]; ok {
		prompt.ContextTag = entry.summary.Tag
	}
	c.cacheMu.RUnlock()

	return prompt, nil
}

// call sends one prompt with the image attached and returns the text of the
// first content block.
func (c *Client) call(ctx context.Context, prompt, imagePath string) (string, error) {
	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read image: %s", imagePath)
	}

	reqBody := messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []message{{
			Role: "user",
			Content: []content{
				{Type: "text", Text: prompt},
				{Type: "image", Source: &imageSource{
					Type:      "base64",
					MediaType: mediaTypeOf(imagePath),
					Data:      base64.StdEncoding.EncodeToString(imageBytes),
				}},
			},
		}},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("anthropic API error (%d): %s", resp.StatusCode, shorten(string(body), 200))
	}

	var response messagesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrap(err, "failed to parse response")
	}
	if len(response.Content) == 0 {
		return "", errors.New("empty content in response")
	}

	return response.Content[0].Text, nil
}

func fingerprintKey(sample screen.Sample) string {
	if sample.Fingerprint.Hash == nil {
		return sample.ImagePath
	}
	return fmt.Sprintf("%016x", sample.Fingerprint.Hash.GetHash())
}

func mediaTypeOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}
