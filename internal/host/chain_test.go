package host

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/edgerelay/internal/ack"
	"github.com/danmuck/edgerelay/internal/store"
	"github.com/danmuck/edgerelay/internal/testutil/testlog"
)

func TestExecuteCommitsOnlyOnSuccess(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	c := newTestChain(t, "chain-a")
	deploy(t, c, "alpha", probe{})

	res, err := c.Execute(ctx, "user", "alpha", mustJSON(t, probeMsg{Set: &probeKV{Key: "k", Value: "v"}}))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(res.Data) != "v" {
		t.Fatalf("unexpected data %q", res.Data)
	}
	if v, ok := res.Attr("alpha", "set"); !ok || v != "k" {
		t.Fatalf("missing set attribute: %+v", res.Events)
	}
	if got := queryKey(t, c, "alpha", "k"); got != "v" {
		t.Fatalf("expected committed write, got %q", got)
	}

	if _, err := c.Execute(ctx, "user", "alpha", mustJSON(t, probeMsg{Fail: "nope"})); err == nil || err.Error() != "nope" {
		t.Fatalf("expected contract error, got %v", err)
	}
	if got := queryKey(t, c, "alpha", "failed"); got != "" {
		t.Fatalf("failed execute leaked write %q", got)
	}
	if _, err := c.Execute(ctx, "user", "missing", []byte(`{}`)); !errors.Is(err, ErrContractNotFound) {
		t.Fatalf("expected ErrContractNotFound, got %v", err)
	}
}

func TestInstantiateRejectsDuplicatesAndBadAddresses(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	c := newTestChain(t, "chain-a")
	deploy(t, c, "alpha", probe{})

	if _, err := c.Instantiate(ctx, "admin", "alpha", probe{}, nil); !errors.Is(err, ErrContractExists) {
		t.Fatalf("expected ErrContractExists, got %v", err)
	}
	if _, err := c.Instantiate(ctx, "admin", "Bad Addr", probe{}, nil); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if got := queryKey(t, c, "alpha", "creator"); got != "admin" {
		t.Fatalf("unexpected creator %q", got)
	}
	infos, err := c.Contracts()
	if err != nil || len(infos) != 1 || infos[0].IBCPort != "wasm.alpha" {
		t.Fatalf("unexpected contract infos %+v err=%v", infos, err)
	}
}

func TestSubMessageErrorReplyKeepsParentState(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	c := newTestChain(t, "chain-a")
	deploy(t, c, "alpha", probe{})
	deploy(t, c, "beta", probe{})

	msg := probeMsg{Call: &probeCall{
		Target:  "beta",
		Msg:     mustJSON(t, probeMsg{Fail: "beta broke"}),
		ReplyOn: ReplyAlways,
		ID:      7,
	}}
	res, err := c.Execute(ctx, "user", "alpha", mustJSON(t, msg))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := queryKey(t, c, "alpha", "reply/7"); got != "err:beta broke" {
		t.Fatalf("unexpected reply record %q", got)
	}
	if got := queryKey(t, c, "alpha", "called"); got != "yes" {
		t.Fatalf("parent write lost: %q", got)
	}
	if got := queryKey(t, c, "beta", "failed"); got != "" {
		t.Fatalf("failed sub-call leaked write %q", got)
	}
	if string(res.Data) != "reply:err:beta broke" {
		t.Fatalf("reply data should override response data, got %q", res.Data)
	}
}

func TestSubMessageFailureWithoutErrorReplyAborts(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	c := newTestChain(t, "chain-a")
	deploy(t, c, "alpha", probe{})
	deploy(t, c, "beta", probe{})

	for _, on := range []ReplyOn{ReplyNever, ReplySuccess} {
		msg := probeMsg{Call: &probeCall{Target: "beta", Msg: mustJSON(t, probeMsg{Fail: "beta broke"}), ReplyOn: on, ID: 1}}
		if _, err := c.Execute(ctx, "user", "alpha", mustJSON(t, msg)); err == nil || err.Error() != "beta broke" {
			t.Fatalf("reply_on=%d: expected abort, got %v", on, err)
		}
		if got := queryKey(t, c, "alpha", "called"); got != "" {
			t.Fatalf("reply_on=%d: aborted parent leaked write", on)
		}
	}
}

func TestSubMessageSuccessReplyCarriesDataAndEvents(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	c := newTestChain(t, "chain-a")
	deploy(t, c, "alpha", probe{})
	deploy(t, c, "beta", probe{})

	msg := probeMsg{Call: &probeCall{
		Target:  "beta",
		Msg:     mustJSON(t, probeMsg{Set: &probeKV{Key: "x", Value: "beta-data"}}),
		ReplyOn: ReplySuccess,
		ID:      3,
		Data:    "parent-data",
	}}
	res, err := c.Execute(ctx, "user", "alpha", mustJSON(t, msg))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := queryKey(t, c, "alpha", "reply/3"); got != "ok:beta-data" {
		t.Fatalf("unexpected reply record %q", got)
	}
	if string(res.Data) != "reply:ok:beta-data" {
		t.Fatalf("unexpected data %q", res.Data)
	}
	if v, ok := res.Attr("beta", "set"); !ok || v != "x" {
		t.Fatalf("sub-call events missing from result: %+v", res.Events)
	}

	never := probeMsg{Call: &probeCall{
		Target: "beta",
		Msg:    mustJSON(t, probeMsg{Set: &probeKV{Key: "y", Value: "ignored"}}),
		Data:   "parent-data",
	}}
	res, err = c.Execute(ctx, "user", "alpha", mustJSON(t, never))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(res.Data) != "parent-data" {
		t.Fatalf("sub-call without reply must not override data, got %q", res.Data)
	}
}

func TestReplyErrorAbortsInvocation(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	c := newTestChain(t, "chain-a")
	deploy(t, c, "alpha", probe{})
	deploy(t, c, "beta", probe{})

	msg := probeMsg{Call: &probeCall{Target: "beta", Msg: mustJSON(t, probeMsg{Set: &probeKV{Key: "x", Value: "1"}}), ReplyOn: ReplyAlways, ID: 99}}
	if _, err := c.Execute(ctx, "user", "alpha", mustJSON(t, msg)); err == nil || err.Error() != "reply rejected" {
		t.Fatalf("expected reply error, got %v", err)
	}
	if got := queryKey(t, c, "beta", "x"); got != "" {
		t.Fatalf("sub-call write survived aborted reply: %q", got)
	}
}

func TestReplyRequiresHandler(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	c := newTestChain(t, "chain-a")
	deploy(t, c, "alpha", probe{})
	deploy(t, c, "gamma", plain{})

	if _, err := c.Execute(ctx, "user", "gamma", []byte("call-back")); !errors.Is(err, ErrNoReplyHandler) {
		t.Fatalf("expected ErrNoReplyHandler, got %v", err)
	}
	if got := queryKey(t, c, "alpha", "from-plain"); got != "" {
		t.Fatalf("aborted call leaked write %q", got)
	}
	msg := probeMsg{Call: &probeCall{Target: "gamma", Msg: json.RawMessage(`{}`), ReplyOn: ReplySuccess, ID: 1}}
	if _, err := c.Execute(ctx, "user", "alpha", mustJSON(t, msg)); err != nil {
		t.Fatalf("probe can reply: %v", err)
	}
	if got := queryKey(t, c, "alpha", "reply/1"); got != "ok:plain" {
		t.Fatalf("unexpected reply record %q", got)
	}
}

func TestCallDepthLimit(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	cfg := DefaultConfig("chain-a")
	cfg.MaxCallDepth = 2
	c, err := NewChain(cfg, store.NewMemStore())
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	deploy(t, c, "alpha", probe{})

	inner := mustJSON(t, probeMsg{Set: &probeKV{Key: "deep", Value: "1"}})
	mid := mustJSON(t, probeMsg{Call: &probeCall{Target: "alpha", Msg: inner}})
	outer := mustJSON(t, probeMsg{Call: &probeCall{Target: "alpha", Msg: mid}})
	if _, err := c.Execute(ctx, "user", "alpha", outer); !errors.Is(err, ErrCallDepth) {
		t.Fatalf("expected ErrCallDepth, got %v", err)
	}
	if _, err := c.Execute(ctx, "user", "alpha", mid); err != nil {
		t.Fatalf("depth 2 should pass: %v", err)
	}
}

func TestClockPersistsAcrossRestart(t *testing.T) {
	testlog.Start(t)
	root := store.NewMemStore()
	c, err := NewChain(DefaultConfig("chain-a"), root)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	start := c.Now()
	if err := c.AdvanceBlocks(3); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := c.AdvanceTime(time.Minute); err != nil {
		t.Fatalf("advance time: %v", err)
	}
	if err := c.AdvanceTime(-time.Second); err == nil {
		t.Fatalf("expected backwards clock rejection")
	}

	again, err := NewChain(DefaultConfig("chain-a"), root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	st, _ := again.Status(context.Background())
	if st.Height != 5 {
		t.Fatalf("unexpected height %d", st.Height)
	}
	if want := start.Add(15*time.Second + time.Minute); !again.Now().Equal(want) {
		t.Fatalf("unexpected time %s want %s", again.Now(), want)
	}
	if _, err := NewChain(DefaultConfig("chain-b"), root); err == nil {
		t.Fatalf("expected chain id mismatch")
	}
}

func TestAttachRequiresPersistedInstance(t *testing.T) {
	testlog.Start(t)
	root := store.NewMemStore()
	c, _ := NewChain(DefaultConfig("chain-a"), root)
	deploy(t, c, "alpha", probe{})
	_, _ = c.Execute(context.Background(), "user", "alpha", mustJSON(t, probeMsg{Set: &probeKV{Key: "k", Value: "kept"}}))

	again, _ := NewChain(DefaultConfig("chain-a"), root)
	if err := again.Attach("beta", probe{}); !errors.Is(err, ErrContractNotFound) {
		t.Fatalf("expected ErrContractNotFound, got %v", err)
	}
	if err := again.Attach("alpha", probe{}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if got := queryKey(t, again, "alpha", "k"); got != "kept" {
		t.Fatalf("state not resumed, got %q", got)
	}
}

func TestCancelledContextIsRejected(t *testing.T) {
	testlog.Start(t)
	c := newTestChain(t, "chain-a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Execute(ctx, "user", "alpha", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestValidAddress(t *testing.T) {
	cases := map[string]bool{
		"dispatcher":      true,
		"echo-1":          true,
		"wasm.controller": true,
		"":                false,
		"-lead":           false,
		"trail_":          false,
		"double..sep":     false,
		"Upper":           false,
		"has space":       false,
	}
	for in, want := range cases {
		if got := ValidAddress(in); got != want {
			t.Fatalf("ValidAddress(%q)=%v want %v", in, got, want)
		}
	}
}

func TestAckOutcome(t *testing.T) {
	if got := ackOutcome(Receipt{}); got != "pending" {
		t.Fatalf("unexpected outcome %q", got)
	}
	if got := ackOutcome(Receipt{Written: true, Ack: ack.Success()}); got != "success" {
		t.Fatalf("unexpected outcome %q", got)
	}
	if got := ackOutcome(Receipt{Written: true, Ack: ack.Fail("x")}); got != "error" {
		t.Fatalf("unexpected outcome %q", got)
	}
}
