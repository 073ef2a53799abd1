package obs

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev, flags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prev)
		log.SetFlags(flags)
	})
	return &buf
}

func TestTimeLogsOpAndRequestID(t *testing.T) {
	buf := captureLog(t)
	ctx := WithRequestID(context.Background(), "abc")
	var err error
	Time(ctx, "solve")(&err)
	line := buf.String()
	if !strings.Contains(line, "req_id=abc op=solve dur=") {
		t.Fatalf("unexpected log line %q", line)
	}
	if strings.Contains(line, "err=") {
		t.Fatalf("no error expected: %q", line)
	}
}

func TestTimeLogsError(t *testing.T) {
	buf := captureLog(t)
	err := errors.New("boom")
	Time(context.Background(), "load")(&err)
	if !strings.Contains(buf.String(), "op=load") || !strings.Contains(buf.String(), "err=boom") {
		t.Fatalf("unexpected log line %q", buf.String())
	}
	Time(context.Background(), "nil")(nil)
}

func TestRequestIDMissing(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("want empty id, got %q", got)
	}
}
