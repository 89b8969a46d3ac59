package log

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Writer: &buf, Component: ComponentFetch})
	l.Info("hello", FieldSender, "shop")

	out := buf.String()
	for _, want := range []string{"component=fetch", "sender=shop", "msg=hello"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}

	buf.Reset()
	l.WithComponent(ComponentCache).Warn("switched")
	if !strings.Contains(buf.String(), "component=cache") {
		t.Errorf("expected component=cache in %q", buf.String())
	}
}

func TestConfigForVerbose(t *testing.T) {
	var buf bytes.Buffer
	cfg := ConfigFor(false)
	cfg.Writer = &buf
	New(cfg).Debug("quiet")
	if buf.Len() != 0 {
		t.Fatalf("debug logged at info level: %q", buf.String())
	}

	cfg = ConfigFor(true)
	cfg.Writer = &buf
	New(cfg).Debug("loud")
	if !strings.Contains(buf.String(), "loud") {
		t.Fatalf("debug not logged in verbose mode")
	}
}

func TestContextRoundTrip(t *testing.T) {
	l := Discard().WithComponent(ComponentHTTP)
	if got := FromContext(NewContext(context.Background(), l)); got != l {
		t.Fatalf("logger not propagated")
	}
	if FromContext(context.Background()).Component() != ComponentApp {
		t.Fatalf("expected fallback logger")
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Writer: &buf}))
	r := httptest.NewRequest(http.MethodGet, "/chart", nil)

	sl.LogHTTPEnd(context.Background(), r, "req-1", 500, 3, "1.2.3.4")
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "request_id=req-1") {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	sl.LogHTTPEnd(context.Background(), r, "req-2", 404, 1, "1.2.3.4")
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	sl.LogFetchCompleted(context.Background(), "run", "shop", 10, 2)
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "failures=2") {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	sl.LogDetailFailed(context.Background(), "run", "r3", errors.New("bad"))
	for _, want := range []string{"error=bad", "operation=detail", "receipt_key=r3", "run_id=run"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected %q in %q", want, buf.String())
		}
	}
}
