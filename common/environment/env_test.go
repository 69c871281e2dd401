package environment_test

import (
	"strings"
	"testing"
	"time"

	"github.com/La100/vibeplanner-sub001/common/environment"
)

func TestOverlay_String(t *testing.T) {
	t.Setenv("VP_TEST_DB", " /tmp/x.db ")
	o := environment.NewOverlay("VP_TEST_")

	dst := "default.db"
	o.String("DB", &dst)
	if dst != "/tmp/x.db" {
		t.Errorf("expected trimmed override, got %q", dst)
	}

	keep := "keep"
	o.String("MISSING", &keep)
	if keep != "keep" {
		t.Errorf("unset variable must not override, got %q", keep)
	}
	if err := o.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOverlay_EmptyDoesNotOverride(t *testing.T) {
	t.Setenv("VP_TEST_EMPTY", "")
	o := environment.NewOverlay("VP_TEST_")
	dst := "x"
	o.String("EMPTY", &dst)
	if dst != "x" {
		t.Fatalf("empty variable must not override, got %q", dst)
	}
}

func TestOverlay_TypedValues(t *testing.T) {
	t.Setenv("VP_TEST_ON", "true")
	t.Setenv("VP_TEST_N", "7")
	t.Setenv("VP_TEST_WAIT", "1500ms")
	t.Setenv("VP_TEST_ROOMS", "!a:x, ,!b:x")
	o := environment.NewOverlay("VP_TEST_")

	var on bool
	var n int
	var wait time.Duration
	var rooms []string
	o.Bool("ON", &on)
	o.Int("N", &n)
	o.Duration("WAIT", &wait)
	o.StringSlice("ROOMS", &rooms)

	if err := o.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !on || n != 7 || wait != 1500*time.Millisecond {
		t.Errorf("got on=%v n=%d wait=%s", on, n, wait)
	}
	if len(rooms) != 2 || rooms[0] != "!a:x" || rooms[1] != "!b:x" {
		t.Errorf("unexpected rooms %v", rooms)
	}
}

func TestOverlay_CollectsErrors(t *testing.T) {
	t.Setenv("VP_TEST_N", "seven")
	t.Setenv("VP_TEST_WAIT", "soon")
	o := environment.NewOverlay("VP_TEST_")

	n := 3
	wait := time.Second
	o.Int("N", &n)
	o.Duration("WAIT", &wait)

	if n != 3 || wait != time.Second {
		t.Errorf("bad values must not override: n=%d wait=%s", n, wait)
	}
	err := o.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"VP_TEST_N", "VP_TEST_WAIT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %s", err, want)
		}
	}
}
