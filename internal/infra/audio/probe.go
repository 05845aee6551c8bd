// Package audio provides duration probing for generated audio clips.
package audio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hajimehoshi/go-mp3"
	zlog "github.com/rs/zerolog/log"
)

// Prober fetches an MP3 stream and decodes its playable duration. The
// result arms the end-of-track timer; a failed probe just falls back to a
// configured default, so callers treat errors as advisory.
type Prober struct {
	httpClient *http.Client
}

// NewProber creates a duration prober.
func NewProber() *Prober {
	return &Prober{
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Probe downloads the clip at url and returns its decoded duration.
func (p *Prober) Probe(ctx context.Context, url string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "failed to fetch audio")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return 0, errors.Newf("audio fetch returned %d", resp.StatusCode)
	}

	// The decoder needs a seekable source to report the total length.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read audio body")
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, errors.Wrap(err, "failed to decode mp3")
	}

	// Length is the decoded PCM byte count: 2 channels of 16-bit samples.
	seconds := float64(decoder.Length()) / float64(4*decoder.SampleRate())
	d := time.Duration(seconds * float64(time.Second))

	zlog.Debug().Msgf("probed audio duration: url=%s duration=%v", url, d)
	return d, nil
}
