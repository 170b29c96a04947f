package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/danmuck/edgerelay/internal/testutil/testlog"
)

func TestDemoRelaysPingAndDispatch(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	report, err := runDemo(context.Background(), &out)
	if err != nil {
		t.Fatalf("demo: %v\n%s", err, out.String())
	}
	if report.Pong != "pong" {
		t.Fatalf("unexpected pong: %q", report.Pong)
	}
	if report.Result != demoEcho || report.Echo != demoEcho {
		t.Fatalf("unexpected dispatch result=%q echo=%q", report.Result, report.Echo)
	}
	if report.Counter != 2 {
		t.Fatalf("unexpected counter: %d", report.Counter)
	}
	if !strings.Contains(out.String(), "ping acked") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}
