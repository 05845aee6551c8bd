// Package main provides the control CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/vibebox/internal/app/notification"
	"github.com/osa030/vibebox/internal/app/orchestrator"
	"github.com/osa030/vibebox/internal/domain/prefs"
	"github.com/osa030/vibebox/internal/infra/history"
)

var (
	app    = kingpin.New("vibecli", "vibebox control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()

	statusCmd = app.Command("status", "Show orchestration status")

	generateCmd  = app.Command("generate", "Generate a track for the current context now")
	backCmd      = app.Command("back", "Return to the previous track")
	forwardCmd   = app.Command("forward", "Skip to the next track")
	playPauseCmd = app.Command("playpause", "Toggle playback")

	historyCmd   = app.Command("history", "Show recently played tracks")
	historyLimit = historyCmd.Flag("limit", "Number of entries").Default("20").Int()

	creditsCmd = app.Command("credits", "Show remaining generation credits")

	prefsCmd          = app.Command("prefs", "Update generation preferences")
	prefsGenres       = prefsCmd.Flag("genre", "Preferred genre (repeatable)").Strings()
	prefsVocals       = prefsCmd.Flag("vocals", "Vocal gender (male or female)").Enum("male", "female")
	prefsInstrumental = prefsCmd.Flag("instrumental", "Generate instrumental tracks").Default("true").Bool()
	prefsSilly        = prefsCmd.Flag("silly", "Enable silly lyric mode").Bool()

	watchCmd = app.Command("watch", "Tail the server event stream")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	ctx := context.Background()

	switch command {
	case statusCmd.FullCommand():
		showStatus(ctx)
	case generateCmd.FullCommand():
		postCommand(ctx, "generate")
	case backCmd.FullCommand():
		postCommand(ctx, "back")
	case forwardCmd.FullCommand():
		postCommand(ctx, "forward")
	case playPauseCmd.FullCommand():
		postCommand(ctx, "playpause")
	case historyCmd.FullCommand():
		showHistory(ctx, *historyLimit)
	case creditsCmd.FullCommand():
		showCredits(ctx)
	case prefsCmd.FullCommand():
		putPreferences(ctx)
	case watchCmd.FullCommand():
		watch(ctx)
	}
}

func fatalf(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}

// call issues a request and decodes the JSON response into out (unless nil).
// Non-2xx responses surface the server's error message.
func call(ctx context.Context, method, path string, body io.Reader, out any) {
	req, err := http.NewRequestWithContext(ctx, method, *server+path, body)
	if err != nil {
		fatalf("Error: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("Error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			fatalf("Error [%d]: %s", resp.StatusCode, apiErr.Error)
		}
		fatalf("Error: server returned %s", resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fatalf("Error: invalid response: %v", err)
		}
	}
}

func postCommand(ctx context.Context, name string) {
	call(ctx, http.MethodPost, "/api/command/"+name, nil, nil)
	fmt.Printf("OK: %s accepted\n", name)
}

func showStatus(ctx context.Context) {
	var status orchestrator.Status
	call(ctx, http.MethodGet, "/api/status", nil, &status)

	fmt.Printf("Playback:  %s\n", status.PlaybackState)
	if tk := status.CurrentTrack; tk != nil {
		fmt.Printf("Track:     %s [%s]\n", orDash(tk.Title), orDash(tk.Tags))
		fmt.Printf("Topic:     %s\n", orDash(tk.Topic))
		if tk.Duration > 0 {
			fmt.Printf("Duration:  %s\n", tk.Duration.Round(time.Second))
		}
	}
	if c := status.CurrentContext; c != nil {
		fmt.Printf("Context:   %s\n", c.Tag)
	}
	if p := status.PreviousContext; p != nil {
		fmt.Printf("Previous:  %s\n", p.Tag)
	}
	fmt.Printf("History:   %d tracks\n", status.HistoryDepth)
	fmt.Printf("Buffered:  %v\n", status.NextBuffered)
	if len(status.RecentGenres) > 0 {
		fmt.Printf("Genres:    %s\n", strings.Join(status.RecentGenres, ", "))
	}
}

func showHistory(ctx context.Context, limit int) {
	var entries []history.Entry
	call(ctx, http.MethodGet, fmt.Sprintf("/api/history?limit=%d", limit), nil, &entries)

	if len(entries) == 0 {
		fmt.Println("No tracks played yet.")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s  %-30s [%s] (%s)\n",
			e.PlayedAt.Local().Format("15:04:05"),
			orDash(e.Track.Title), orDash(e.Track.Tags), orDash(e.Track.ContextTag))
	}
}

func showCredits(ctx context.Context) {
	var resp map[string]int64
	call(ctx, http.MethodGet, "/api/credits", nil, &resp)
	fmt.Printf("Credits remaining: %d\n", resp["credits"])
}

func putPreferences(ctx context.Context) {
	p := prefs.Preferences{
		Genres:       *prefsGenres,
		VocalsGender: prefs.VocalsGender(*prefsVocals),
		Instrumental: *prefsInstrumental,
		SillyMode:    *prefsSilly,
	}
	payload, err := json.Marshal(p)
	if err != nil {
		fatalf("Error: %v", err)
	}

	var applied prefs.Preferences
	call(ctx, http.MethodPut, "/api/preferences", bytes.NewReader(payload), &applied)
	fmt.Printf("Preferences updated: %+v\n", applied)
}

func watch(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *server+"/api/events", nil)
	if err != nil {
		fatalf("Error: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("Error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fatalf("Error: server returned %s", resp.Status)
	}

	fmt.Println("Watching events. Press Ctrl+C to exit.")

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var n notification.Notification
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &n); err != nil {
			continue
		}
		printNotification(&n)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printNotification(n *notification.Notification) {
	ts := n.At.Local().Format("15:04:05")
	switch n.Type {
	case notification.TypeMusicSwitch:
		if n.Track != nil {
			fmt.Printf("%s [%d] track switch: %s [%s]\n", ts, n.SequenceNo, orDash(n.Track.Title), orDash(n.Track.Tags))
		}
	case notification.TypeContextStatus:
		if n.Context != nil {
			fmt.Printf("%s [%d] context: %s distance=%.2f action=%s\n", ts, n.SequenceNo, n.Context.Tag, n.Context.Distance, n.Context.Action)
		}
	case notification.TypePlaybackState:
		if n.Playback != nil {
			fmt.Printf("%s [%d] playback: %s\n", ts, n.SequenceNo, n.Playback.State)
		}
	case notification.TypeMusicError:
		fmt.Printf("%s [%d] error: %s\n", ts, n.SequenceNo, n.Error)
	default:
		fmt.Printf("%s [%d] %s\n", ts, n.SequenceNo, n.Type)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
