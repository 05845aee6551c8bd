package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibebox/internal/app/notification"
	"github.com/osa030/vibebox/internal/app/orchestrator"
	"github.com/osa030/vibebox/internal/domain/prefs"
	"github.com/osa030/vibebox/internal/domain/track"
	"github.com/osa030/vibebox/internal/infra/history"
)

type fakeController struct {
	calls  []string
	err    error
	prefs  prefs.Preferences
	status orchestrator.Status
}

func (f *fakeController) Generate(context.Context) error  { return f.record("generate") }
func (f *fakeController) Back(context.Context) error      { return f.record("back") }
func (f *fakeController) Forward(context.Context) error   { return f.record("forward") }
func (f *fakeController) PlayPause(context.Context) error { return f.record("playpause") }

func (f *fakeController) SetPreferences(_ context.Context, p prefs.Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	f.prefs = p
	return f.record("preferences")
}

func (f *fakeController) Status() orchestrator.Status { return f.status }

func (f *fakeController) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

type fakeHistory struct {
	entries []history.Entry
	gotN    int
}

func (f *fakeHistory) Recent(_ context.Context, n int) ([]history.Entry, error) {
	f.gotN = n
	return f.entries, nil
}

type fakeCredits struct {
	n   int64
	err error
}

func (f *fakeCredits) Credits(context.Context) (int64, error) { return f.n, f.err }

func newTestServer(t *testing.T, ctrl *fakeController, hist HistoryReader, credits CreditsProvider) (*httptest.Server, *notification.Manager) {
	t.Helper()
	manager := notification.NewManager()
	t.Cleanup(manager.Close)
	s := NewServer(":0", ctrl, hist, credits, manager)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, manager
}

func TestCommands(t *testing.T) {
	ctrl := &fakeController{}
	srv, _ := newTestServer(t, ctrl, nil, nil)

	for _, name := range []string{"generate", "back", "forward", "playpause"} {
		resp, err := http.Post(srv.URL+"/api/command/"+name, "application/json", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Equal(t, []string{"generate", "back", "forward", "playpause"}, ctrl.calls)
}

func TestUnknownCommand(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, nil, nil)

	resp, err := http.Post(srv.URL+"/api/command/louder", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCommandFailure(t *testing.T) {
	ctrl := &fakeController{err: errors.New("no context sample yet")}
	srv, _ := newTestServer(t, ctrl, nil, nil)

	resp, err := http.Post(srv.URL+"/api/command/generate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "no context sample")
}

func TestPutPreferences(t *testing.T) {
	ctrl := &fakeController{}
	srv, _ := newTestServer(t, ctrl, nil, nil)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/preferences",
		strings.NewReader(`{"genres":["jazz","lo-fi"],"instrumental":false,"vocals_gender":"female"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"jazz", "lo-fi"}, ctrl.prefs.Genres)
	assert.Equal(t, prefs.VocalsFemale, ctrl.prefs.VocalsGender)
}

func TestPutPreferencesInvalid(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, nil, nil)

	for _, body := range []string{`not json`, `{"vocals_gender":"robot"}`} {
		req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/preferences", strings.NewReader(body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestStatus(t *testing.T) {
	ctrl := &fakeController{status: orchestrator.Status{
		PlaybackState: "playing",
		CurrentTrack:  &track.Track{ID: "t1", URL: "u", Title: "Focus"},
		HistoryDepth:  2,
	}}
	srv, _ := newTestServer(t, ctrl, nil, nil)

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got orchestrator.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "playing", got.PlaybackState)
	require.NotNil(t, got.CurrentTrack)
	assert.Equal(t, "Focus", got.CurrentTrack.Title)
	assert.Equal(t, 2, got.HistoryDepth)
}

func TestHistory(t *testing.T) {
	hist := &fakeHistory{entries: []history.Entry{
		{Track: track.Track{ID: "t2"}, PlayedAt: time.Now()},
		{Track: track.Track{ID: "t1"}, PlayedAt: time.Now().Add(-time.Minute)},
	}}
	srv, _ := newTestServer(t, &fakeController{}, hist, nil)

	resp, err := http.Get(srv.URL + "/api/history?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, hist.gotN)

	var got []history.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, "t2", got[0].Track.ID)
}

func TestHistoryBadLimit(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, &fakeHistory{}, nil)

	for _, limit := range []string{"0", "-1", "abc", "9999"} {
		resp, err := http.Get(srv.URL + "/api/history?limit=" + limit)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", limit)
		resp.Body.Close()
	}
}

func TestHistoryUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, nil, nil)

	resp, err := http.Get(srv.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCredits(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, nil, &fakeCredits{n: 420})

	resp, err := http.Get(srv.URL + "/api/credits")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, int64(420), got["credits"])
}

func TestCreditsUpstreamFailure(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, nil, &fakeCredits{err: errors.New("suno is down")})

	resp, err := http.Get(srv.URL + "/api/credits")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, nil, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsExposed(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, nil, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	srv, manager := newTestServer(t, &fakeController{}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Wait for the subscription to register before broadcasting.
	require.Eventually(t, func() bool {
		return manager.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	manager.Broadcast(&notification.Notification{
		Type:  notification.TypeMusicSwitch,
		Track: &notification.TrackPayload{ID: "t1", URL: "u", Title: "Focus"},
	})

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimPrefix(line, "data: ")
		}
	}
	assert.Equal(t, notification.TypeMusicSwitch, eventLine)

	var n notification.Notification
	require.NoError(t, json.Unmarshal([]byte(dataLine), &n))
	assert.Equal(t, uint64(1), n.SequenceNo)
	require.NotNil(t, n.Track)
	assert.Equal(t, "Focus", n.Track.Title)
}
