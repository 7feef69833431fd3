package recovery

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

var discard = slog.New(slog.DiscardHandler)

func TestCall(t *testing.T) {
	err := Call(discard, "Stream", func() error { panic("boom") })
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("error = %v, want ErrPanic", err)
	}
	var pe *PanicError
	if !errors.As(err, &pe) || pe.Op != "Stream" || pe.Value != "boom" {
		t.Errorf("PanicError = %+v", pe)
	}
	if err.Error() != "Stream panicked: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}

	want := errors.New("plain")
	if err := Call(discard, "Stream", func() error { return want }); err != want {
		t.Errorf("error = %v, want %v", err, want)
	}
}

func TestGet(t *testing.T) {
	v, err := Get(discard, "Collection", func() (int, error) { return 7, nil })
	if v != 7 || err != nil {
		t.Errorf("Get() = %d, %v", v, err)
	}

	v, err = Get(discard, "Collection", func() (int, error) {
		var m map[string]int
		m["x"] = 1
		return 1, nil
	})
	if v != 0 || !errors.Is(err, ErrPanic) {
		t.Errorf("Get() after panic = %d, %v", v, err)
	}
}

func TestPanicLogAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	_, _ = Get(logger, "Scan", func() (string, error) { panic("bad scan") },
		slog.String("schema", "main"), slog.String("collection", "people"))

	out := buf.String()
	for _, want := range []string{"operation=Scan", `panic="bad scan"`, "schema=main", "collection=people", "stack="} {
		if !strings.Contains(out, want) {
			t.Errorf("log record missing %q: %s", want, out)
		}
	}
}

func TestCleanup(t *testing.T) {
	called := false
	Cleanup(discard, "Release", func() {
		called = true
		panic("ignored")
	})
	if !called {
		t.Error("function not called")
	}
}
