package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/goleak"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestPublishersImplementPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	var _ Publisher = (*NATSPublisher)(nil)
	var _ Publisher = (*Hub)(nil)
	var _ Publisher = Multi(nil)
}

func TestNoopPublisher(t *testing.T) {
	pub := &NoopPublisher{}
	if err := pub.Publish(context.Background(), Topic("gm-1", KindFrame), SessionClosed{}); err != nil {
		t.Fatalf("Publish returned unexpected error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close returned unexpected error: %v", err)
	}
}

func TestTopic(t *testing.T) {
	if got := Topic("gm-abc", KindPopulation); got != "gapminder.session.gm-abc.population" {
		t.Errorf("Topic = %q", got)
	}
	if !MatchTopic(SessionTopics("gm-abc"), Topic("gm-abc", KindFrame)) {
		t.Error("session pattern should match its frame topic")
	}
	if MatchTopic(SessionTopics("gm-abc"), Topic("gm-xyz", KindFrame)) {
		t.Error("session pattern should not match another session")
	}
}

func TestMatchTopic(t *testing.T) {
	for _, tc := range []struct {
		pattern, topic string
		want           bool
	}{
		{"a.b.c", "a.b.c", true},
		{"a.*.c", "a.b.c", true},
		{"a.*", "a.b.c", false},
		{"a.>", "a.b.c", true},
		{"a.b.>", "a.b", false},
		{"a.b.c.d", "a.b.c", false},
	} {
		if got := MatchTopic(tc.pattern, tc.topic); got != tc.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
		}
	}
}

func TestHubFanOutAndReplay(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewHub()
	mine := h.Subscribe(SessionTopics("gm-1"))
	all := h.Subscribe()
	defer h.Unsubscribe(mine)
	defer h.Unsubscribe(all)

	ctx := context.Background()
	if err := h.Publish(ctx, Topic("gm-1", KindFrame), map[string]int{"year": 1970}); err != nil {
		t.Fatal(err)
	}
	if err := h.Publish(ctx, Topic("gm-2", KindFrame), map[string]int{"year": 1980}); err != nil {
		t.Fatal(err)
	}

	evt := <-mine.C()
	if evt.ID != 1 || string(evt.Data) != `{"year":1970}` {
		t.Errorf("unexpected event %d %s", evt.ID, evt.Data)
	}
	select {
	case evt := <-mine.C():
		t.Fatalf("subscription should not see other sessions, got %s", evt.Topic)
	default:
	}
	if got := len(all.C()); got != 2 {
		t.Errorf("unfiltered subscription should hold 2 events, has %d", got)
	}

	replay := h.EventsSince(1)
	if len(replay) != 1 || replay[0].ID != 2 {
		t.Fatalf("EventsSince(1) = %+v", replay)
	}
	if h.Subscribers() != 2 {
		t.Errorf("Subscribers = %d", h.Subscribers())
	}
}

func TestHubPublishRejectsUnencodable(t *testing.T) {
	h := NewHub()
	if err := h.Publish(context.Background(), "x", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
	if len(h.EventsSince(0)) != 0 {
		t.Error("failed publish must not be buffered")
	}
}

type failing struct{ err error }

func (f failing) Publish(context.Context, string, any) error { return f.err }
func (f failing) Close() error                              { return f.err }

func TestMultiTriesEveryPublisher(t *testing.T) {
	boom := errors.New("boom")
	h := NewHub()
	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	m := Multi{failing{boom}, h}
	if err := m.Publish(context.Background(), "t", 1); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(sub.C()) != 1 {
		t.Error("hub after a failing publisher should still receive the event")
	}
	if err := m.Close(); !errors.Is(err, boom) {
		t.Fatalf("expected boom from Close, got %v", err)
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	// Subscribe to capture published messages.
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("gapminder.session.*.closed", ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := SessionClosed{SessionID: "gm-pub1", Reason: "idle"}
	if err := pub.Publish(context.Background(), Topic("gm-pub1", KindClosed), event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		var got SessionClosed
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got != event {
			t.Errorf("got %+v, want %+v", got, event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNewNATSPublisher_BadURL(t *testing.T) {
	if _, err := NewNATSPublisher("nats://127.0.0.1:1"); err == nil {
		t.Fatal("expected connection error")
	}
}
