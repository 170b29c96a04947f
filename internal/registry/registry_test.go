package registry

import (
	"reflect"
	"testing"

	"github.com/danmuck/edgerelay/internal/store"
	"github.com/danmuck/edgerelay/internal/testutil/testlog"
)

func TestConnectionsOrderedAndRemovable(t *testing.T) {
	testlog.Start(t)
	s := store.NewMemStore()

	got, err := Connections(s)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no connections, got %q err=%v", got, err)
	}

	for _, ch := range []string{"channel-2", "channel-1", "channel-10"} {
		if err := Connect(s, ch); err != nil {
			t.Fatalf("connect %s: %v", ch, err)
		}
	}
	got, _ = Connections(s)
	want := []string{"channel-1", "channel-10", "channel-2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("connections got=%q want=%q", got, want)
	}

	if err := Disconnect(s, "channel-10"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if ok, _ := IsConnected(s, "channel-10"); ok {
		t.Fatalf("expected channel-10 disconnected")
	}
	if ok, _ := IsConnected(s, "channel-1"); !ok {
		t.Fatalf("expected channel-1 connected")
	}
}

func TestCounterDefaultsAndIncrements(t *testing.T) {
	testlog.Start(t)
	s := store.NewMemStore()

	if n, err := Counter(s, "channel-1"); err != nil || n != 0 {
		t.Fatalf("expected default 0, got %d err=%v", n, err)
	}
	for want := uint32(1); want <= 3; want++ {
		n, err := Increment(s, "channel-1")
		if err != nil || n != want {
			t.Fatalf("increment: got %d want %d err=%v", n, want, err)
		}
	}
	if n, _ := Counter(s, "channel-2"); n != 0 {
		t.Fatalf("counters must be partitioned by channel, got %d", n)
	}
}
