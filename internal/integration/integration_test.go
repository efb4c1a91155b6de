//go:build integration
// +build integration

package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	httpapi "github.com/moonrise/moonrise/internal/api/http"
	"github.com/moonrise/moonrise/internal/application/orchestrator"
	"github.com/moonrise/moonrise/internal/application/scheduler"
	"github.com/moonrise/moonrise/internal/config"
	"github.com/moonrise/moonrise/internal/domain/archive"
	"github.com/moonrise/moonrise/internal/domain/death"
	"github.com/moonrise/moonrise/internal/domain/game"
	"github.com/moonrise/moonrise/internal/domain/phase"
	"github.com/moonrise/moonrise/internal/infrastructure/memory"
	"github.com/moonrise/moonrise/internal/infrastructure/postgres"
	"github.com/moonrise/moonrise/internal/infrastructure/sse"
	"github.com/moonrise/moonrise/internal/infrastructure/ws"
)

type streamEvent struct {
	Event string
	Data  json.RawMessage
}

func TestVillageHangsTheWolfIntegration(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	players := []string{"ana", "bo", "cy", "dee"}
	var created orchestrator.View
	postJSON(t, server.URL+"/v1/sessions", map[string]interface{}{"players": players}, http.StatusCreated, &created)
	base := server.URL + "/v1/sessions/" + created.ID

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	streams := make(map[string]<-chan streamEvent, len(players))
	for _, p := range players {
		streams[p] = openStream(t, ctx, base+"/players/"+p+"/events")
		waitFor(t, streams[p], game.EventStateSync)
	}

	postJSON(t, base+"/start", nil, http.StatusOK, nil)

	wolf := ""
	for _, p := range players {
		var role orchestrator.RolePayload
		decode(t, waitFor(t, streams[p], game.EventRoleAssigned), &role)
		if role.Role == game.RoleWolf {
			wolf = p
		}
	}
	if wolf == "" {
		t.Fatalf("no wolf dealt")
	}

	// Night passes on deadlines. Every survivor then votes: the village for
	// the wolf, the wolf for anyone else.
	for _, p := range players {
		go func(p string) {
			for ev := range streams[p] {
				if ev.Event != game.EventVoteOptions {
					continue
				}
				var opts orchestrator.VoteOptionsPayload
				if err := json.Unmarshal(ev.Data, &opts); err != nil {
					return
				}
				target := wolf
				if p == wolf {
					target = opts.Options[0]
				}
				sendAction(server.URL, created.ID, p, orchestrator.Command{Type: orchestrator.CmdVote, Target: target})
			}
		}(p)
	}

	rec := waitArchived(t, ctx, server.URL+"/v1/archive/"+created.ID)
	if rec.Winner != game.WinnerVillage {
		t.Fatalf("expected village win, got %s", rec.Winner)
	}
	if rec.Roles[wolf] != game.RoleWolf {
		t.Fatalf("archived roles do not match the deal: %v", rec.Roles)
	}
	hanged := false
	for _, d := range rec.Deaths {
		if d.Victim == wolf && d.Cause == game.CauseVote {
			hanged = true
		}
	}
	if !hanged {
		t.Fatalf("wolf not recorded as hanged: %+v", rec.Deaths)
	}

	var snap orchestrator.View
	getJSON(t, base, http.StatusOK, &snap)
	if snap.Phase != phase.Ended {
		t.Fatalf("expected ended session, got %s", snap.Phase)
	}
}

func TestArchiveListingIntegration(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	var out struct {
		Games []archive.Record `json:"games"`
	}
	getJSON(t, server.URL+"/v1/archive?limit=5", http.StatusOK, &out)
	if len(out.Games) != 0 {
		t.Fatalf("expected empty archive after reset, got %d", len(out.Games))
	}
	getJSON(t, server.URL+"/v1/archive/unknown", http.StatusNotFound, nil)
}

func openStream(t *testing.T, ctx context.Context, url string) <-chan streamEvent {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("stream status %d", resp.StatusCode)
	}

	out := make(chan streamEvent, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var event string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				var msg sse.Message
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
					continue
				}
				select {
				case out <- streamEvent{Event: event, Data: msg.Data}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func waitFor(t *testing.T, ch <-chan streamEvent, event string) json.RawMessage {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("stream closed waiting for %s", event)
			}
			if ev.Event == event {
				return ev.Data
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func waitArchived(t *testing.T, ctx context.Context, url string) *archive.Record {
	t.Helper()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.Fatalf("game was not archived in time")
		case <-ticker.C:
			resp, err := http.Get(url)
			if err != nil {
				t.Fatalf("get archive: %v", err)
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				continue
			}
			var rec archive.Record
			err = json.NewDecoder(resp.Body).Decode(&rec)
			resp.Body.Close()
			if err != nil {
				t.Fatalf("decode archive: %v", err)
			}
			return &rec
		}
	}
}

func sendAction(baseURL, sessionID, playerID string, cmd orchestrator.Command) {
	body, _ := json.Marshal(cmd)
	resp, err := http.Post(baseURL+"/v1/sessions/"+sessionID+"/players/"+playerID+"/actions", "application/json", bytes.NewReader(body))
	if err == nil {
		resp.Body.Close()
	}
}

func postJSON(t *testing.T, url string, payload interface{}, want int, out interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	checkResponse(t, resp, want, out)
}

func getJSON(t *testing.T, url string, want int, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	checkResponse(t, resp, want, out)
}

func checkResponse(t *testing.T, resp *http.Response, want int, out interface{}) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d (want %d): %s", resp.StatusCode, want, string(body))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}

func decode(t *testing.T, data json.RawMessage, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
}

func fastRules() *config.Rules {
	r := config.DefaultRules()
	r.Timing.NightAction = 200 * time.Millisecond
	r.Timing.LoversAck = 200 * time.Millisecond
	r.Timing.Seer = 200 * time.Millisecond
	r.Timing.Wolves = 200 * time.Millisecond
	r.Timing.Witch = 200 * time.Millisecond
	r.Timing.MorningAck = 200 * time.Millisecond
	r.Timing.Vote = 3 * time.Second
	r.Timing.VoteAck = 200 * time.Millisecond
	r.Timing.HunterShot = 200 * time.Millisecond
	r.Timing.PacingMin = 10 * time.Millisecond
	r.Timing.PacingMax = 20 * time.Millisecond
	r.Timing.RevoteDelay = 50 * time.Millisecond
	return r
}

func newTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	dsn := testDatabaseURL(t)

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn, 0)
	if err != nil {
		t.Fatalf("db pool: %v", err)
	}

	root := repoRoot(t)
	if err := postgres.RunMigrations(ctx, pool, filepath.Join(root, "internal", "migrations")); err != nil {
		pool.Close()
		t.Fatalf("migrations: %v", err)
	}
	if err := resetDatabase(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("reset db: %v", err)
	}

	logger := zerolog.Nop()
	archiveRepo := postgres.NewArchiveRepository(pool)
	hub := sse.NewHub(logger)
	timers := scheduler.New(logger)

	gameSvc := orchestrator.NewService(
		memory.NewStore(time.Minute, logger),
		phase.NewMachine(),
		death.NewEngine(),
		timers,
		hub,
		config.StaticRules(fastRules()),
		nil,
		archiveRepo,
		logger,
	)
	apiServer := httpapi.NewServer(gameSvc, archiveRepo, hub, ws.NewHandler(gameSvc, hub, nil, logger), logger)
	server := httptest.NewServer(apiServer.Router())

	cleanup := func() {
		timers.Stop()
		hub.Stop()
		server.Close()
		gameSvc.Wait()
		pool.Close()
	}

	return server, cleanup
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	return ""
}

func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}

func resetDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE TABLE game_archive RESTART IDENTITY CASCADE`)
	return err
}
