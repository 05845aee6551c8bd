// Package suno provides a client for the Suno-style music generation API.
package suno

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/app/generation"
)

// ErrGenerationFailed marks a task the API reported as FAILED.
var ErrGenerationFailed = errors.New("generation task failed")

// Client is a generation API client.
type Client struct {
	apiKey          string
	baseURL         string
	model           string
	pollInterval    time.Duration
	pollMaxAttempts int
	httpClient      *http.Client
}

// Config represents generation client configuration.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	PollInterval    time.Duration
	PollMaxAttempts int
}

// generateRequest is the POST /api/v1/generate body.
type generateRequest struct {
	Prompt       string `json:"prompt,omitempty"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	NegativeTags string `json:"negativeTags,omitempty"`
	VocalGender  string `json:"vocalGender,omitempty"`
	CallbackURL  string `json:"callBackUrl,omitempty"`
}

// generateResponse is the generate endpoint envelope.
type generateResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

// trackInfo is one generated clip in a status response.
type trackInfo struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Tags           string  `json:"tags"`
	Duration       float64 `json:"duration"`
	AudioURL       string  `json:"audio_url"`
	StreamAudioURL string  `json:"stream_audio_url"`
}

// statusResponse is the record-info endpoint envelope.
type statusResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		TaskID   string `json:"taskId"`
		Status   string `json:"status"`
		Response *struct {
			Data []trackInfo `json:"data"`
		} `json:"response"`
	} `json:"data"`
}

// creditsResponse is the get-credits endpoint envelope.
type creditsResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Credits int64 `json:"credits"`
	} `json:"data"`
}

// New creates a new generation API client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("generation API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sunoapi.org"
	}
	if cfg.Model == "" {
		cfg.Model = "V4_5"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = 36 // ~3 minutes at the default interval
	}

	return &Client{
		apiKey:          cfg.APIKey,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		model:           cfg.Model,
		pollInterval:    cfg.PollInterval,
		pollMaxAttempts: cfg.PollMaxAttempts,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// GenerateAndWait submits a generation request and polls until a playable
// URL is available. Streaming URLs are preferred over the final audio URL
// since they become available earlier.
func (c *Client) GenerateAndWait(ctx context.Context, prompt generation.Prompt) (*generation.Clip, error) {
	taskID, err := c.submit(ctx, prompt)
	if err != nil {
		return nil, err
	}
	zlog.Info().Msgf("generation task submitted: task_id=%s tags=%s", taskID, prompt.Tags)

	for attempt := 0; attempt < c.pollMaxAttempts; attempt++ {
		status, err := c.status(ctx, taskID)
		if err != nil {
			return nil, err
		}

		if status.Data != nil {
			if strings.EqualFold(status.Data.Status, "FAILED") {
				return nil, errors.Wrapf(ErrGenerationFailed, "task %s", taskID)
			}
			if status.Data.Response != nil {
				if clip, ok := pickClip(status.Data.Response.Data); ok {
					zlog.Info().Msgf("generation ready: task_id=%s attempts=%d", taskID, attempt+1)
					return clip, nil
				}
			}
		}

		select {
		case <-time.After(c.pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, errors.Newf("timed out waiting for task %s", taskID)
}

// Credits returns the remaining API credits.
func (c *Client) Credits(ctx context.Context) (int64, error) {
	body, err := c.do(ctx, "GET", "/api/v1/get-credits", nil)
	if err != nil {
		return 0, err
	}

	var parsed creditsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, errors.Wrap(err, "failed to parse credits response")
	}
	if parsed.Code != 200 {
		return 0, errors.Newf("credits API returned code %d: %s", parsed.Code, parsed.Msg)
	}
	if parsed.Data == nil {
		return 0, nil
	}
	return parsed.Data.Credits, nil
}

// submit posts the generation request and returns the task ID.
func (c *Client) submit(ctx context.Context, prompt generation.Prompt) (string, error) {
	req := generateRequest{
		Prompt:       prompt.Lyrics,
		Style:        prompt.Tags,
		Title:        prompt.Topic,
		CustomMode:   true,
		Instrumental: prompt.Instrumental,
		Model:        c.model,
		NegativeTags: prompt.NegativeTags,
		VocalGender:  prompt.VocalGender,
	}

	body, err := c.do(ctx, "POST", "/api/v1/generate", req)
	if err != nil {
		return "", err
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", errors.Wrap(err, "failed to parse generate response")
	}
	if parsed.Code != 200 {
		return "", errors.Newf("generate API returned code %d: %s", parsed.Code, parsed.Msg)
	}
	if parsed.Data == nil || parsed.Data.TaskID == "" {
		return "", errors.New("generate response is missing a task ID")
	}
	return parsed.Data.TaskID, nil
}

// status fetches the record-info for a task.
func (c *Client) status(ctx context.Context, taskID string) (*statusResponse, error) {
	body, err := c.do(ctx, "GET", "/api/v1/generate/record-info?taskId="+taskID, nil)
	if err != nil {
		return nil, err
	}

	var parsed statusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, "failed to parse status response")
	}
	return &parsed, nil
}

// do issues one authenticated request and returns the body of a successful
// response.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("generation API error (%d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// pickClip returns the first clip with a playable URL, preferring the
// stream URL.
func pickClip(tracks []trackInfo) (*generation.Clip, bool) {
	for _, t := range tracks {
		url := t.StreamAudioURL
		if url == "" {
			url = t.AudioURL
		}
		if url == "" {
			continue
		}
		return &generation.Clip{
			URL:   url,
			Title: t.Title,
			Tags:  t.Tags,
		}, true
	}
	return nil, false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s...", s[:max])
}
