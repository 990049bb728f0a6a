package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/viper"

	"chatcollab/internal/chat"
	"chatcollab/internal/event"
	"chatcollab/internal/eventloop"
	"chatcollab/internal/syncclient"
)

type fakeChatClient struct {
	connects    int
	disconnects int
	reconnects  int
	submitted   []string
}

func (f *fakeChatClient) Connect()           { f.connects++ }
func (f *fakeChatClient) Disconnect()        { f.disconnects++ }
func (f *fakeChatClient) Reconnect()         { f.reconnects++ }
func (f *fakeChatClient) Submit(text string) { f.submitted = append(f.submitted, text) }

func newTestModel(client chatClient) model {
	cfg := appConfig{session: "s1", server: defaultServer, transport: transportSSE}
	m := newModel(cfg, client, "Alice", nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(model)
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return out
}

func connected(t *testing.T, m model) model {
	return update(t, m, syncConnectionMsg{view: chat.ConnectionView{State: chat.Connected, InputEnabled: true}})
}

func TestNormalizeTransport(t *testing.T) {
	cases := map[string]string{
		"":            transportSSE,
		"SSE":         transportSSE,
		"eventsource": transportSSE,
		" ws ":        transportWS,
		"WebSocket":   transportWS,
		"grpc":        "",
	}
	for raw, want := range cases {
		if got := normalizeTransport(raw); got != want {
			t.Fatalf("normalizeTransport(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestClampDuration(t *testing.T) {
	fallback := 5 * time.Second
	if got := clampDuration(0, time.Second, time.Minute, fallback); got != fallback {
		t.Fatalf("expected fallback for zero, got %s", got)
	}
	if got := clampDuration(10*time.Millisecond, time.Second, time.Minute, fallback); got != time.Second {
		t.Fatalf("expected lower clamp, got %s", got)
	}
	if got := clampDuration(time.Hour, time.Second, time.Minute, fallback); got != time.Minute {
		t.Fatalf("expected upper clamp, got %s", got)
	}
	if got := clampDuration(3*time.Second, time.Second, time.Minute, fallback); got != 3*time.Second {
		t.Fatalf("expected passthrough, got %s", got)
	}
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("DEBUG")
	if err != nil || level != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v err=%v", level, err)
	}
	level, err = parseLevel("")
	if err != nil || level != slog.LevelInfo {
		t.Fatalf("expected info default, got %v err=%v", level, err)
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Fatalf("expected invalid level to fail")
	}
}

func TestLoadConfigNormalizes(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("server", "  ")
	viper.Set("transport", "websocket")
	viper.Set("retry_delay", 10*time.Millisecond)
	viper.Set("request_timeout", time.Hour)
	viper.Set("log_level", "warn")
	viper.Set("name_cache", filepath.Join(t.TempDir(), "names.yaml"))

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
	if cfg.server != defaultServer {
		t.Fatalf("expected default server, got %q", cfg.server)
	}
	if cfg.transport != transportWS {
		t.Fatalf("expected ws transport, got %q", cfg.transport)
	}
	if cfg.retryDelay != time.Second {
		t.Fatalf("expected retry delay clamped to 1s, got %s", cfg.retryDelay)
	}
	if cfg.requestTimeout != 5*time.Minute {
		t.Fatalf("expected request timeout clamped to 5m, got %s", cfg.requestTimeout)
	}
	if cfg.logLevel != slog.LevelWarn {
		t.Fatalf("expected warn level, got %v", cfg.logLevel)
	}
}

func TestLoadConfigRejectsUnknownTransport(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("transport", "carrier-pigeon")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected unknown transport to fail")
	}
}

func TestLoadAgentsPrefersRosterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte("Planner: plans\nCoder:\n"), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	agents, err := loadAgents(appConfig{rosterPath: path, agents: []string{"Ignored"}})
	if err != nil {
		t.Fatalf("expected roster to load, got %v", err)
	}
	if len(agents) != 2 || agents[0].Name != "Planner" || agents[1].Name != "Coder" {
		t.Fatalf("unexpected agents: %+v", agents)
	}

	agents, err = loadAgents(appConfig{agents: []string{"Planner, Coder"}})
	if err != nil || len(agents) != 2 {
		t.Fatalf("expected list agents, got %+v err=%v", agents, err)
	}
}

func TestReadConfigFileValuesAndSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: http://example.test\nretry_delay: 3s\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	values := readConfigFileValues(path)
	if !values["server"] || !values["retry_delay"] || values["session"] {
		t.Fatalf("unexpected file keys: %v", values)
	}
	if got := detectSource("server", "CHATCOLLAB_TEST_UNSET_SERVER", values); got != "(file)" {
		t.Fatalf("expected file source, got %q", got)
	}
	t.Setenv("CHATCOLLAB_TEST_SESSION", "x")
	if got := detectSource("session", "CHATCOLLAB_TEST_SESSION", values); got != "(env: CHATCOLLAB_TEST_SESSION)" {
		t.Fatalf("expected env source, got %q", got)
	}
	if got := detectSource("metrics_addr", "CHATCOLLAB_TEST_UNSET_METRICS", values); got != "(default)" {
		t.Fatalf("expected default source, got %q", got)
	}
	if len(readConfigFileValues(filepath.Join(t.TempDir(), "missing.yaml"))) != 0 {
		t.Fatalf("expected missing file to yield no keys")
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	if got != "one two\nthree\nfour" {
		t.Fatalf("unexpected wrap: %q", got)
	}
	if wrapText("keep", 0) != "keep" {
		t.Fatalf("expected zero width to return input")
	}
}

func TestCompactTimelineMessage(t *testing.T) {
	raw := "line1\n\n\n\nline2\nline3\nline4"
	got := compactTimelineMessage(raw, 3, 0)
	if strings.Count(got, "\n\n\n") > 0 {
		t.Fatalf("expected repeated blank lines to collapse: %q", got)
	}
	if !strings.Contains(got, "[... 2 lines hidden]") {
		t.Fatalf("expected hidden line marker, got %q", got)
	}

	long := strings.Repeat("x", 100)
	got = compactTimelineMessage(long, 0, 40)
	if !strings.HasSuffix(got, "[... truncated]") {
		t.Fatalf("expected truncation marker, got %q", got)
	}
}

func TestTruncateRespectsRunes(t *testing.T) {
	if got := truncate("héllo wörld", 8); got != "héllo..." {
		t.Fatalf("unexpected truncate result: %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("expected no truncation, got %q", got)
	}
	if got := compactSingleLine("a\n  b\tc", 20); got != "a b c" {
		t.Fatalf("unexpected compact line: %q", got)
	}
}

func TestEnterSubmitsWhenInputEnabled(t *testing.T) {
	client := &fakeChatClient{}
	m := connected(t, newTestModel(client))
	m.input.SetValue("  hello team  ")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(client.submitted) != 1 || client.submitted[0] != "hello team" {
		t.Fatalf("expected trimmed submit, got %v", client.submitted)
	}
	if m.input.Value() != "" {
		t.Fatalf("expected input cleared after submit, got %q", m.input.Value())
	}
}

func TestEnterKeepsDraftWhenDisconnected(t *testing.T) {
	client := &fakeChatClient{}
	m := newTestModel(client)
	m.input.SetValue("draft")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(client.submitted) != 0 {
		t.Fatalf("did not expect submit while disconnected")
	}
	if m.input.Value() != "draft" {
		t.Fatalf("expected draft kept, got %q", m.input.Value())
	}
	if !strings.Contains(m.statusLine, "not connected") {
		t.Fatalf("unexpected status line: %q", m.statusLine)
	}
}

func TestEnterWhileSendingReportsInFlight(t *testing.T) {
	client := &fakeChatClient{}
	m := update(t, newTestModel(client), syncConnectionMsg{view: chat.ConnectionView{State: chat.Connected, Sending: true}})
	m.input.SetValue("second")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(client.submitted) != 0 {
		t.Fatalf("did not expect submit while sending")
	}
	if m.statusLine != "still sending previous message" {
		t.Fatalf("unexpected status line: %q", m.statusLine)
	}
}

func TestSlashCommands(t *testing.T) {
	client := &fakeChatClient{}
	m := newTestModel(client)

	for _, cmd := range []string{"/reconnect", "/connect", "/disconnect"} {
		m.input.SetValue(cmd)
		m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	}
	if client.reconnects != 1 || client.connects != 1 || client.disconnects != 1 {
		t.Fatalf("unexpected client calls: %+v", client)
	}
	if len(client.submitted) != 0 {
		t.Fatalf("slash commands must not be sent as messages")
	}

	m.input.SetValue("/bogus")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.HasPrefix(m.statusLine, "unknown command") {
		t.Fatalf("unexpected status line: %q", m.statusLine)
	}

	m.input.SetValue("/help")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.activeTab != tabHelp {
		t.Fatalf("expected /help to switch to help tab")
	}
}

func TestCtrlRReconnects(t *testing.T) {
	client := &fakeChatClient{}
	m := update(t, newTestModel(client), tea.KeyMsg{Type: tea.KeyCtrlR})
	if client.reconnects != 1 {
		t.Fatalf("expected one reconnect, got %d", client.reconnects)
	}
	if m.statusLine != "reconnecting..." {
		t.Fatalf("unexpected status line: %q", m.statusLine)
	}
}

func TestQuitConfirmFlow(t *testing.T) {
	m := newTestModel(&fakeChatClient{})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if !m.quitConfirm {
		t.Fatalf("expected esc in chat to open quit confirmation")
	}
	if !strings.Contains(m.View(), "LEAVE SESSION?") {
		t.Fatalf("expected quit modal in view")
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	if m.quitConfirm {
		t.Fatalf("expected n to cancel quit")
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestSyncMessagesUpdateModel(t *testing.T) {
	m := newTestModel(&fakeChatClient{})
	m = update(t, m, syncParticipantMsg{participant: chat.Participant{Key: "coder", Name: "Coder", Role: chat.RoleAgent, Status: chat.StatusTyping}})
	m = update(t, m, syncParticipantMsg{participant: chat.Participant{Key: "planner", Name: "Planner", Role: chat.RoleAgent, Status: chat.StatusIdle}})
	m = update(t, m, syncAppendMsg{msg: chat.Message{SenderName: "Coder", Text: "interim", Role: chat.RoleAgent, Timestamp: 1}})
	m = update(t, m, syncResetMsg{msgs: []chat.Message{
		{SenderName: "Planner", Text: "from history", Role: chat.RoleAgent, Timestamp: 1},
	}})

	if len(m.messages) != 1 || m.messages[0].Text != "from history" {
		t.Fatalf("expected history to replace the log, got %+v", m.messages)
	}
	if names := m.typingNames(); len(names) != 1 || names[0] != "Coder" {
		t.Fatalf("unexpected typing names: %v", names)
	}

	m = update(t, m, syncParticipantMsg{participant: chat.Participant{Key: "coder", Name: "Coder", Role: chat.RoleAgent, Status: chat.StatusIdle}})
	if len(m.participants) != 2 || len(m.typingNames()) != 0 {
		t.Fatalf("expected participant updated in place, got %+v", m.participants)
	}

	m = update(t, m, syncStageMsg{stage: chat.StageInfo{ID: "1", Name: "Plan", Progress: 40}})
	if m.stage.Name != "Plan" {
		t.Fatalf("expected stage applied, got %+v", m.stage)
	}
	if !strings.Contains(m.renderSidebar(), "Plan") {
		t.Fatalf("expected stage in sidebar")
	}

	m = update(t, m, syncAppendMsg{msg: chat.Message{SenderName: "System", Text: "Error: agent crashed", Role: chat.RoleSystem, Timestamp: 2}})
	if last := m.logs[len(m.logs)-1]; !strings.Contains(last, "agent crashed") {
		t.Fatalf("expected system message mirrored in log, got %q", last)
	}
}

func TestConnectionTransitionsUpdateStatus(t *testing.T) {
	m := newTestModel(&fakeChatClient{})
	m = update(t, m, syncConnectionMsg{view: chat.ConnectionView{State: chat.Connecting}})
	if m.statusLine != "connecting..." {
		t.Fatalf("unexpected status line: %q", m.statusLine)
	}
	m = update(t, m, syncConnectionMsg{view: chat.ConnectionView{State: chat.Connected, Sending: true}})
	m.statusLine = "sending..."
	m = update(t, m, syncConnectionMsg{view: chat.ConnectionView{State: chat.Connected, InputEnabled: true}})
	if m.statusLine != "connected" {
		t.Fatalf("expected status reset after send, got %q", m.statusLine)
	}
}

func TestTeaRendererStopsAfterDone(t *testing.T) {
	out := make(chan tea.Msg)
	done := make(chan struct{})
	close(done)
	r := teaRenderer{out: out, done: done}
	finished := make(chan struct{})
	go func() {
		r.AppendMessage(chat.Message{Text: "late"})
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("renderer blocked after the UI finished")
	}
}

func TestHistoryMessagesLimitAndRoles(t *testing.T) {
	now := time.UnixMilli(1_000)
	hist := event.History{Messages: []event.Message{
		{Source: "Planner", Text: "one", Timestamp: 10},
		{Source: "Alice", Text: "two", Timestamp: 20},
		{Source: "System", Text: "", Timestamp: 0},
	}}
	msgs := historyMessages(hist, "Alice", now, 2)
	if len(msgs) != 2 {
		t.Fatalf("expected limit applied, got %d", len(msgs))
	}
	if msgs[0].Role != chat.RoleUser {
		t.Fatalf("expected own message as user, got %s", msgs[0].Role)
	}
	if msgs[1].Role != chat.RoleSystem || msgs[1].Text != "(empty message)" || msgs[1].Timestamp != now.UnixMilli() {
		t.Fatalf("unexpected system record conversion: %+v", msgs[1])
	}
}

func TestForwardLinesSkipsBlank(t *testing.T) {
	var got []string
	err := forwardLines(context.Background(), strings.NewReader("hi\n\n  there  \n"), func(_ context.Context, s string) error {
		got = append(got, s)
		return nil
	})
	if err != nil {
		t.Fatalf("expected clean end of input, got %v", err)
	}
	if len(got) != 2 || got[0] != "hi" || got[1] != "there" {
		t.Fatalf("unexpected forwarded lines: %v", got)
	}
}

type lateOpenTransport struct {
	delay time.Duration
}

type nopConn struct{}

func (nopConn) Close() error { return nil }

func (t lateOpenTransport) Open(ctx context.Context, cb syncclient.Callbacks) syncclient.Conn {
	go func() {
		select {
		case <-time.After(t.delay):
			cb.OnOpen()
		case <-ctx.Done():
		}
	}()
	return nopConn{}
}

type emptyHistory struct{}

func (emptyHistory) FetchHistory(context.Context) (event.History, error) {
	return event.History{}, nil
}

type slowSender struct {
	delay time.Duration
	mu    sync.Mutex
	sent  []string
}

func (s *slowSender) Send(ctx context.Context, msg syncclient.Outbound) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg.Text)
	s.mu.Unlock()
	return nil
}

func TestForwardLinesDeliversEveryLine(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	loop := eventloop.New()
	go func() { _ = loop.Run(ctx) }()
	sender := &slowSender{delay: 20 * time.Millisecond}
	client, err := syncclient.New(syncclient.Config{
		Transport: lateOpenTransport{delay: 30 * time.Millisecond},
		History:   emptyHistory{},
		Sender:    sender,
		Loop:      loop,
		Username:  "Alice",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.Connect()

	err = forwardLines(ctx, strings.NewReader("a\nb\n\nc\n"), client.SubmitWait)
	if err != nil {
		t.Fatalf("expected every line forwarded, got %v", err)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if strings.Join(sender.sent, ",") != "a,b,c" {
		t.Fatalf("expected a,b,c sent in order, got %v", sender.sent)
	}
}
