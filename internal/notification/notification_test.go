package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"binance-ats/config"
)

type recordingNotifier struct {
	mu      sync.Mutex
	name    string
	enabled bool
	err     error
	texts   []string
	files   []string
}

func (r *recordingNotifier) Name() string    { return r.name }
func (r *recordingNotifier) IsEnabled() bool { return r.enabled }

func (r *recordingNotifier) SendText(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return r.err
}

func (r *recordingNotifier) SendFile(ctx context.Context, path, caption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, path)
	return r.err
}

func TestManagerFanOutAndMute(t *testing.T) {
	ctx := context.Background()
	ok := &recordingNotifier{name: "ok", enabled: true}
	failing := &recordingNotifier{name: "failing", enabled: true, err: errors.New("boom")}
	off := &recordingNotifier{name: "off"}

	m := NewManager()
	m.AddNotifier(ok)
	m.AddNotifier(failing)
	m.AddNotifier(off)

	m.SendText(ctx, "hello")
	m.SendFile(ctx, "/tmp/pool.json", "pool")

	if len(ok.texts) != 1 || len(failing.texts) != 1 || len(off.texts) != 0 {
		t.Errorf("unexpected fan-out ok=%d failing=%d off=%d", len(ok.texts), len(failing.texts), len(off.texts))
	}
	if len(ok.files) != 1 {
		t.Errorf("file not sent")
	}

	muted := true
	m.SetMute(func() bool { return muted })
	m.SendText(ctx, "quiet")
	if len(ok.texts) != 1 {
		t.Error("muted manager must not send")
	}
	muted = false
	m.SendText(ctx, "loud")
	if len(ok.texts) != 2 {
		t.Error("unmuted manager should send")
	}
}

func TestNewFromConfigDisabled(t *testing.T) {
	rec := &recordingNotifier{name: "rec", enabled: true}
	m := NewFromConfig(config.NotificationConfig{Enabled: false})
	m.AddNotifier(rec)
	m.SendText(context.Background(), "x")
	if len(rec.texts) != 0 {
		t.Error("disabled manager must not send")
	}
}

func TestDiscordNotifier(t *testing.T) {
	var gotContent string
	var gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var payload map[string]string
			json.NewDecoder(r.Body).Decode(&payload)
			gotContent = payload["content"]
		} else {
			f, _, err := r.FormFile("file")
			if err == nil {
				data, _ := io.ReadAll(f)
				gotFile = string(data)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordNotifier(config.DiscordConfig{Enabled: true, WebhookURL: srv.URL})
	if err := d.SendText(context.Background(), "scan done"); err != nil {
		t.Fatal(err)
	}
	if gotContent != "scan done" {
		t.Errorf("content = %q", gotContent)
	}

	path := filepath.Join(t.TempDir(), "pool_20240101.json")
	os.WriteFile(path, []byte(`{"symbols":["BTCUSDT"]}`), 0o644)
	if err := d.SendFile(context.Background(), path, "pool"); err != nil {
		t.Fatal(err)
	}
	if gotFile != `{"symbols":["BTCUSDT"]}` {
		t.Errorf("file = %q", gotFile)
	}
}

func TestDiscordNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDiscordNotifier(config.DiscordConfig{Enabled: true, WebhookURL: srv.URL})
	if err := d.SendText(context.Background(), "x"); err == nil {
		t.Error("expected error on 429")
	}
}

func TestTelegramNotifier(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"ats","username":"ats_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			r.ParseForm()
			mu.Lock()
			sent = append(sent, r.FormValue("chat_id")+":"+r.FormValue("text"))
			mu.Unlock()
			io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
	defer srv.Close()

	cfg := config.TelegramConfig{Enabled: true, BotToken: "123:abc", ChatID: "42"}
	tg, err := newTelegramNotifier(cfg, srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("newTelegramNotifier: %v", err)
	}
	if !tg.IsEnabled() || tg.Name() != "telegram" {
		t.Error("notifier should be enabled")
	}
	if err := tg.SendText(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 || sent[0] != "42:hello" {
		t.Errorf("sent = %v", sent)
	}

	if _, err := newTelegramNotifier(config.TelegramConfig{BotToken: "t", ChatID: "@channel"}, srv.URL+"/bot%s/%s", srv.Client()); err == nil {
		t.Error("non numeric chat id should be rejected")
	}
}

func TestFormatScanSummary(t *testing.T) {
	s := Summary{
		TS:       time.Date(2024, 6, 1, 13, 0, 15, 0, time.UTC),
		PoolSize: 48,
		Scanned:  30,
		Mode:     "dry",
		Rows: []SummaryRow{
			{Symbol: "SOLUSDT", Trend: 100, Structure: 30, Volume: 30, Total: 58, Gates: true},
			{Symbol: "BTCUSDT", Trend: 60, Structure: 25, Volume: 12, Total: 35},
			{Symbol: "ETHUSDT", Trend: 0, Structure: 15, Volume: 0, Total: 5},
		},
		APlus:        []SummaryRow{{Symbol: "SOLUSDT", Total: 58, Gates: true}},
		Plans:        []string{"SOLUSDT"},
		ErrorCount:   1,
		ErrorSamples: []ErrorSample{{Symbol: "XUSDT", Error: "insufficient history"}},
	}

	got := FormatScanSummary(s, 2)
	for _, want := range []string{
		"📊 Scan complete 2024-06-01 13:00:15 UTC",
		"Pool: 48 | scanned: 30 | mode: dry",
		"• SOLUSDT | Trend 100 / Struct 30 / Flow 30 → 58",
		"• BTCUSDT | Trend 60 / Struct 25 / Flow 12 → 35",
		"  - SOLUSDT | 58 | Gates=Y",
		"📝 Plans: SOLUSDT",
		"  - XUSDT: insufficient history",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "ETHUSDT") {
		t.Error("topN should cut the third row")
	}

	empty := FormatScanSummary(Summary{TS: s.TS}, 5)
	if !strings.Contains(empty, "❎ No A+ this pass") {
		t.Errorf("empty summary:\n%s", empty)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 10); got != "héllo" {
		t.Errorf("got %q", got)
	}
	if got := truncate("héllo", 3); got != "hé…" {
		t.Errorf("got %q", got)
	}
}
