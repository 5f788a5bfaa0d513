//go:build !tinygo

package pkg

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// valuer counts how often the handler resolves it.
type valuer struct{ calls *int }

func (v valuer) LogValue() slog.Value {
	*v.calls++
	return slog.StringValue("resolved")
}

func TestTraceLevelGate(t *testing.T) {
	original := DefaultLogger
	defer func() { DefaultLogger = original }()

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var calls int
	Trace(slog.LevelDebug, ComponentISR, "dropped", "v", valuer{&calls})
	if buf.Len() != 0 || calls != 0 {
		t.Errorf("Trace() below level wrote %q, resolved %d values", buf.String(), calls)
	}

	Trace(slog.LevelInfo, ComponentISR, "bus reset", "v", valuer{&calls})
	out := buf.String()
	for _, want := range []string{"bus reset", "component=isr", "v=resolved"} {
		if !strings.Contains(out, want) {
			t.Errorf("Trace() output %q missing %q", out, want)
		}
	}
	if calls != 1 {
		t.Errorf("value resolved %d times, want 1", calls)
	}
}

func TestHexLogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger.Debug("regs", "epr", Hex16(0x3220), "request", Hex8(6))

	out := buf.String()
	for _, want := range []string{"epr=0x3220", "request=0x06"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}

	buf.Reset()
	logger = NewJSONLogger(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger.Debug("regs", "epr", Hex16(0x0621))
	if !strings.Contains(buf.String(), `"epr":"0x0621"`) {
		t.Errorf("JSON output %q missing hex string", buf.String())
	}
}

func TestWrap(t *testing.T) {
	err := Wrap(ErrBusy, "endpoint %d send", 3)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("Wrap() = %v, want to wrap ErrBusy", err)
	}
	if got, want := err.Error(), "endpoint 3 send: resource busy"; got != want {
		t.Errorf("Wrap().Error() = %q, want %q", got, want)
	}
	if got := Wrap(ErrNAK, "no args").Error(); got != "no args: NAK received" {
		t.Errorf("Wrap() without args = %q", got)
	}
}
