package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/metrics"
)

type call struct {
	system string
	turns  []Turn
}

// scriptedProvider records every call and answers from a function.
type scriptedProvider struct {
	mu     sync.Mutex
	calls  []call
	answer func(n int, turns []Turn) (string, error)
}

func (p *scriptedProvider) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	p.mu.Lock()
	n := len(p.calls)
	p.calls = append(p.calls, call{system: system, turns: append([]Turn(nil), turns...)})
	p.mu.Unlock()
	return p.answer(n, turns)
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func echoProvider() *scriptedProvider {
	return &scriptedProvider{answer: func(n int, turns []Turn) (string, error) {
		return "reply to " + turns[len(turns)-1].Text, nil
	}}
}

func TestBridge_DisabledWithoutCredential(t *testing.T) {
	for _, cred := range []string{"", "   ", PlaceholderCredential} {
		p := echoProvider()
		b := New(Config{Credential: cred}, p)
		if b.Enabled() {
			t.Fatalf("credential %q: Enabled() = true", cred)
		}
		if err := b.StartConversation(); !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("credential %q: StartConversation err=%v", cred, err)
		}
		reply, err := b.SendMessage(context.Background(), "hello")
		if err != nil || reply != DisabledReply {
			t.Fatalf("credential %q: SendMessage = %q, %v", cred, reply, err)
		}
		b.EndConversation()
		if len(b.Transcript()) != 0 {
			t.Fatalf("disabled bridge mutated transcript: %v", b.Transcript())
		}
		if p.callCount() != 0 {
			t.Fatalf("disabled bridge called provider")
		}
	}
}

func TestBridge_DisabledWithoutProvider(t *testing.T) {
	b := New(Config{Credential: "sk-test"}, nil)
	if b.Enabled() {
		t.Fatalf("nil provider must disable the bridge")
	}
}

func TestBridge_LocalProviderNeedsNoCredential(t *testing.T) {
	b := New(Config{LocalProvider: true}, echoProvider())
	if !b.Enabled() {
		t.Fatalf("local provider bridge disabled")
	}
	if b := New(Config{LocalProvider: true}, nil); b.Enabled() {
		t.Fatalf("nil provider enabled")
	}
}

func TestBridge_SystemDirective(t *testing.T) {
	p := echoProvider()
	b := New(Config{Credential: "sk-test", AgentName: "Nova", Personality: "curious tour guide"}, p)
	if _, err := b.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	sys := p.calls[0].system
	if !strings.HasPrefix(sys, "You are Nova, a curious tour guide.\n") {
		t.Fatalf("system directive = %q", sys)
	}
	if !strings.Contains(sys, "concise (2-3 sentences max)") {
		t.Fatalf("system directive missing brevity instruction: %q", sys)
	}

	def := New(Config{Credential: "sk-test"}, p)
	if !strings.HasPrefix(def.SystemPrompt(), "You are AI Assistant, a friendly and helpful assistant.") {
		t.Fatalf("default directive = %q", def.SystemPrompt())
	}
}

func TestBridge_SuccessfulExchangeAppendsBothTurns(t *testing.T) {
	p := echoProvider()
	b := New(Config{Credential: "sk-test"}, p)
	if err := b.StartConversation(); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	reply, err := b.SendMessage(context.Background(), "hello")
	if err != nil || reply != "reply to hello" {
		t.Fatalf("SendMessage = %q, %v", reply, err)
	}
	got := b.Transcript()
	want := []Turn{{RoleUser, "hello"}, {RoleAssistant, "reply to hello"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("Transcript=%v, want %v", got, want)
	}
	if turns := p.calls[0].turns; len(turns) != 1 || turns[0] != (Turn{RoleUser, "hello"}) {
		t.Fatalf("provider saw %v", turns)
	}
}

func TestBridge_WindowKeepsTenExchanges(t *testing.T) {
	p := echoProvider()
	b := New(Config{Credential: "sk-test"}, p)

	for i := 1; i <= 11; i++ {
		if _, err := b.SendMessage(context.Background(), fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatalf("SendMessage %d: %v", i, err)
		}
	}
	got := b.Transcript()
	if len(got) != 20 {
		t.Fatalf("transcript len=%d, want 20", len(got))
	}
	if got[0].Text != "msg-2" || got[19].Text != "reply to msg-11" {
		t.Fatalf("window = %v .. %v", got[0], got[19])
	}

	if _, err := b.SendMessage(context.Background(), "msg-12"); err != nil {
		t.Fatalf("SendMessage 12: %v", err)
	}
	var want []Turn
	for i := 2; i <= 11; i++ {
		want = append(want,
			Turn{RoleUser, fmt.Sprintf("msg-%d", i)},
			Turn{RoleAssistant, fmt.Sprintf("reply to msg-%d", i)})
	}
	want = append(want, Turn{RoleUser, "msg-12"})
	if got := p.calls[11].turns; fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("12th request carried %d turns:\n%v\nwant %d:\n%v", len(got), got, len(want), want)
	}

	got = b.Transcript()
	if len(got) != 20 || got[0].Text != "msg-3" || got[19].Text != "reply to msg-12" {
		t.Fatalf("window after 12 exchanges = %v", got)
	}
}

func TestBridge_FailureAtFullWindowKeepsUserTurn(t *testing.T) {
	p := &scriptedProvider{answer: func(n int, turns []Turn) (string, error) {
		if n == 10 {
			return "", &ProviderError{Kind: ErrorKindRateLimited, StatusCode: 429}
		}
		return "reply to " + turns[len(turns)-1].Text, nil
	}}
	b := New(Config{Credential: "sk-test"}, p)
	for i := 1; i <= 11; i++ {
		_, _ = b.SendMessage(context.Background(), fmt.Sprintf("msg-%d", i))
	}

	if turns := p.calls[10].turns; len(turns) != 21 || turns[0].Text != "msg-1" {
		t.Fatalf("11th request = %v", turns)
	}
	got := b.Transcript()
	if len(got) != 20 || got[19] != (Turn{RoleUser, "msg-11"}) {
		t.Fatalf("window after failure = %v", got)
	}
}

func TestBridge_FailureKindsMapToFallbacks(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
		m    string
	}{
		{"rate limited", &ProviderError{Kind: ErrorKindRateLimited, StatusCode: 429, Err: errors.New("slow down")}, RateLimitedReply, metrics.AIFallbackRateLimited},
		{"auth", &ProviderError{Kind: ErrorKindAuth, StatusCode: 401, Err: errors.New("bad key")}, AuthFailureReply, metrics.AIFallbackAuth},
		{"wrapped auth", fmt.Errorf("call: %w", &ProviderError{Kind: ErrorKindAuth}), AuthFailureReply, metrics.AIFallbackAuth},
		{"network", errors.New("connection refused"), OtherFailureReply, metrics.AIFallbackOther},
		{"timeout", context.DeadlineExceeded, OtherFailureReply, metrics.AIFallbackOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := metrics.New()
			p := &scriptedProvider{answer: func(n int, turns []Turn) (string, error) { return "", tc.err }}
			b := New(Config{Credential: "sk-test", Metrics: m}, p)

			reply, err := b.SendMessage(context.Background(), "hello")
			if err != nil {
				t.Fatalf("SendMessage err=%v, want fallback", err)
			}
			if reply != tc.want {
				t.Fatalf("reply=%q, want %q", reply, tc.want)
			}
			if m.Get(tc.m) != 1 {
				t.Fatalf("metric %s not recorded", tc.m)
			}
		})
	}
}

func TestBridge_RateLimitKeepsUserTurnOnly(t *testing.T) {
	p := &scriptedProvider{answer: func(n int, turns []Turn) (string, error) {
		if n == 1 {
			return "", &ProviderError{Kind: ErrorKindRateLimited, StatusCode: 429}
		}
		return "ok " + turns[len(turns)-1].Text, nil
	}}
	b := New(Config{Credential: "sk-test"}, p)

	_, _ = b.SendMessage(context.Background(), "first")
	reply, err := b.SendMessage(context.Background(), "second")
	if err != nil || reply != RateLimitedReply {
		t.Fatalf("SendMessage = %q, %v", reply, err)
	}
	got := b.Transcript()
	want := []Turn{{RoleUser, "first"}, {RoleAssistant, "ok first"}, {RoleUser, "second"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("Transcript=%v, want %v", got, want)
	}
}

func TestBridge_EmptyCompletionIsFailure(t *testing.T) {
	p := &scriptedProvider{answer: func(int, []Turn) (string, error) { return "  ", nil }}
	b := New(Config{Credential: "sk-test"}, p)
	reply, err := b.SendMessage(context.Background(), "hello")
	if err != nil || reply != OtherFailureReply {
		t.Fatalf("SendMessage = %q, %v", reply, err)
	}
	if got := b.Transcript(); len(got) != 1 {
		t.Fatalf("Transcript=%v, want only the user turn", got)
	}
}

func TestBridge_StartAndEndClear(t *testing.T) {
	b := New(Config{Credential: "sk-test"}, echoProvider())
	_, _ = b.SendMessage(context.Background(), "a")
	if err := b.StartConversation(); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if len(b.Transcript()) != 0 {
		t.Fatalf("StartConversation did not clear")
	}
	_, _ = b.SendMessage(context.Background(), "b")
	b.EndConversation()
	if len(b.Transcript()) != 0 {
		t.Fatalf("EndConversation did not clear")
	}
}

func TestBridge_LateReplyAfterEndIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	p := &scriptedProvider{answer: func(int, []Turn) (string, error) {
		close(entered)
		<-release
		return "late", nil
	}}
	m := metrics.New()
	b := New(Config{Credential: "sk-test", Metrics: m}, p)

	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		r, err := b.SendMessage(context.Background(), "hello")
		done <- result{r, err}
	}()

	<-entered
	b.EndConversation()
	close(release)

	res := <-done
	if !errors.Is(res.err, ErrConversationReset) {
		t.Fatalf("err=%v, want ErrConversationReset", res.err)
	}
	if len(b.Transcript()) != 0 {
		t.Fatalf("late reply resurrected transcript: %v", b.Transcript())
	}
	if m.Get(metrics.AIReplyDiscarded) != 1 {
		t.Fatalf("discard metric not recorded")
	}
}

func TestBridge_TurnsAreSerialized(t *testing.T) {
	var (
		mu       sync.Mutex
		inflight int
		maxSeen  int
	)
	p := &scriptedProvider{answer: func(n int, turns []Turn) (string, error) {
		mu.Lock()
		inflight++
		if inflight > maxSeen {
			maxSeen = inflight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inflight--
		mu.Unlock()
		return "r", nil
	}}
	b := New(Config{Credential: "sk-test"}, p)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = b.SendMessage(context.Background(), fmt.Sprint(i))
		}(i)
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("max concurrent provider calls = %d, want 1", maxSeen)
	}
	got := b.Transcript()
	if len(got) != 16 {
		t.Fatalf("transcript len=%d, want 16", len(got))
	}
	for i := 0; i < len(got); i += 2 {
		if got[i].Role != RoleUser || got[i+1].Role != RoleAssistant {
			t.Fatalf("turns interleaved at %d: %v", i, got)
		}
	}
}

func TestBridge_RequestTimeout(t *testing.T) {
	b := New(Config{Credential: "sk-test", RequestTimeout: 20 * time.Millisecond}, ProviderFunc(
		func(ctx context.Context, system string, turns []Turn) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}))
	reply, err := b.SendMessage(context.Background(), "hello")
	if err != nil || reply != OtherFailureReply {
		t.Fatalf("SendMessage = %q, %v", reply, err)
	}
}

func TestProviderError(t *testing.T) {
	base := errors.New("boom")
	err := &ProviderError{Kind: ErrorKindRateLimited, StatusCode: 429, Err: base}
	if !errors.Is(err, base) {
		t.Fatalf("ProviderError does not unwrap")
	}
	if !strings.Contains(err.Error(), "rate_limited") || !strings.Contains(err.Error(), "429") {
		t.Fatalf("Error()=%q", err.Error())
	}
	for status, want := range map[int]ErrorKind{429: ErrorKindRateLimited, 401: ErrorKindAuth, 403: ErrorKindAuth, 500: ErrorKindOther, 400: ErrorKindOther} {
		if got := KindForStatus(status); got != want {
			t.Fatalf("KindForStatus(%d)=%v, want %v", status, got, want)
		}
	}
}
