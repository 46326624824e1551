package forma

import (
	"hash/fnv"
	"reflect"
	"testing"
	"time"
)

func newOf(t *testing.T, sh *Shape) any {
	t.Helper()
	return reflect.New(sh.Type).Interface()
}

func derefAny(ptr any) any { return reflect.ValueOf(ptr).Elem().Interface() }

func TestParseTextScalars(t *testing.T) {
	cases := []struct {
		name string
		sh   *Shape
		text string
		want any
	}{
		{"bool", ShapeOf[bool](), "true", true},
		{"int", ShapeOf[int64](), "-42", int64(-42)},
		{"uint", ShapeOf[uint32](), "7", uint32(7)},
		{"float", ShapeOf[float64](), "2.5", 2.5},
		{"string", ShapeOf[string](), "plain", "plain"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ptr := newOf(t, tc.sh)
			ok, err := tc.sh.CallParseText(ptr, tc.text)
			if !ok || err != nil {
				t.Fatalf("CallParseText: ok=%v err=%v", ok, err)
			}
			got := derefAny(ptr)
			if got != tc.want {
				t.Fatalf("got %v (%T), want %v (%T)", got, got, tc.want, tc.want)
			}
		})
	}
}

func TestParseTextFailureIsTagged(t *testing.T) {
	var n int64
	ok, err := ShapeOf[int64]().CallParseText(&n, "zzz")
	if !ok {
		t.Fatal("int64 must support parse_text")
	}
	if !IsCode(err, CodeParseError) {
		t.Fatalf("err = %v, want code %s", err, CodeParseError)
	}
}

func TestParseTextUnsupported(t *testing.T) {
	type plain struct{ A int64 }
	var v plain
	ok, err := ShapeOf[plain]().CallParseText(&v, "anything")
	if ok {
		t.Fatal("structs must not support parse_text")
	}
	if err != nil {
		t.Fatalf("unsupported op returned error: %v", err)
	}
}

func TestParseTextTime(t *testing.T) {
	sh := ShapeOf[time.Time]()
	cases := []struct {
		text string
		want time.Time
	}{
		{"2026-08-29T10:00:00Z", time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)},
		{"2026-08-29 10:00:00", time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)},
		{"2026-08-29", time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		var ts time.Time
		ok, err := sh.CallParseText(&ts, tc.text)
		if !ok || err != nil {
			t.Fatalf("CallParseText %q: ok=%v err=%v", tc.text, ok, err)
		}
		if !ts.Equal(tc.want) {
			t.Fatalf("parsed %q to %v, want %v", tc.text, ts, tc.want)
		}
	}
	var ts time.Time
	if _, err := sh.CallParseText(&ts, "yesterday"); err == nil {
		t.Fatal("nonsense timestamp parsed")
	}
}

func TestTryFromLossless(t *testing.T) {
	var n int32
	sh := ShapeOf[int32]()
	ok, err := sh.CallTryFrom(&n, int64(100))
	if !ok || err != nil {
		t.Fatalf("TryFrom: ok=%v err=%v", ok, err)
	}
	if n != 100 {
		t.Fatalf("got %d", n)
	}
	ok, err = sh.CallTryFrom(&n, float64(3.0))
	if !ok || err != nil {
		t.Fatalf("TryFrom float: ok=%v err=%v", ok, err)
	}
	if n != 3 {
		t.Fatalf("got %d", n)
	}
}

func TestTryFromRejectsLossy(t *testing.T) {
	sh := ShapeOf[int8]()
	var n int8
	ok, err := sh.CallTryFrom(&n, int64(1000))
	if !ok {
		t.Fatal("int8 must support try_from")
	}
	if err == nil {
		t.Fatal("lossy narrowing succeeded")
	}
	ok, err = sh.CallTryFrom(&n, 2.5)
	if !ok {
		t.Fatal("int8 must support try_from")
	}
	if err == nil {
		t.Fatal("fractional conversion succeeded")
	}
}

func TestEqualCompareHash(t *testing.T) {
	sh := ShapeOf[string]()
	a, b := "apple", "banana"
	if eq, ok := sh.CallEqual(&a, &b); !ok || eq {
		t.Fatalf("Equal = %v ok=%v", eq, ok)
	}
	if c, ok := sh.CallCompare(&a, &b); !ok || c >= 0 {
		t.Fatalf("Compare = %d ok=%v", c, ok)
	}
	h1, h2 := fnv.New64a(), fnv.New64a()
	if !sh.CallHash(&a, h1) {
		t.Fatal("string must support hash")
	}
	sh.CallHash(&a, h2)
	if h1.Sum64() != h2.Sum64() {
		t.Fatal("hash is not deterministic")
	}
}

func TestCompareInts(t *testing.T) {
	sh := ShapeOf[int64]()
	cases := []struct {
		a, b int64
		want int
	}{
		{1, 2, -1},
		{2, 2, 0},
		{3, 2, 1},
		{-5, 5, -1},
	}
	for _, tc := range cases {
		if c, ok := sh.CallCompare(&tc.a, &tc.b); !ok || c != tc.want {
			t.Fatalf("Compare(%d, %d) = %d ok=%v, want %d", tc.a, tc.b, c, ok, tc.want)
		}
	}
}

func TestDisplayAndDebug(t *testing.T) {
	s := "quote\"me"
	sh := ShapeOf[string]()
	if d, ok := sh.CallDisplay(&s); !ok || d != s {
		t.Fatalf("Display = %q ok=%v", d, ok)
	}
	if d, ok := sh.CallDebug(&s); !ok || d != `"quote\"me"` {
		t.Fatalf("Debug = %q ok=%v", d, ok)
	}
}

func TestRegisteredOpsOverlayBuiltins(t *testing.T) {
	type celsius float64
	RegisterOps[celsius](Ops[celsius]{
		Display: func(c *celsius) string { return "degrees" },
	})
	sh := ShapeOf[celsius]()
	var c celsius = 20
	// the overlay wins for the op it defines
	if d, ok := sh.CallDisplay(&c); !ok || d != "degrees" {
		t.Fatalf("Display = %q ok=%v", d, ok)
	}
	// builtins of the underlying kind survive for the rest
	if ok, err := sh.CallParseText(&c, "21.5"); !ok || err != nil {
		t.Fatalf("ParseText: ok=%v err=%v", ok, err)
	}
	if c != 21.5 {
		t.Fatalf("got %v", c)
	}
}

func TestCloneInto(t *testing.T) {
	sh := ShapeOf[[]byte]()
	src := []byte("payload")
	var dst []byte
	ok, err := sh.CallCloneInto(&dst, &src)
	if !ok || err != nil {
		t.Fatalf("CloneInto: ok=%v err=%v", ok, err)
	}
	if string(dst) != "payload" {
		t.Fatalf("got %q", dst)
	}
	src[0] = 'X'
	if dst[0] == 'X' {
		t.Fatal("clone shares backing storage")
	}
}

func TestDefaultOp(t *testing.T) {
	sh := ShapeOf[int64]()
	n := int64(9)
	ok, err := sh.CallDefault(&n)
	if !ok || err != nil {
		t.Fatalf("Default: ok=%v err=%v", ok, err)
	}
	if n != 0 {
		t.Fatalf("got %d", n)
	}
}
