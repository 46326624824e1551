package partial

import (
	"reflect"
	"testing"

	forma "github.com/unformed/forma"
)

func buildListItem(t *testing.T, p *Partial, v any) {
	t.Helper()
	if err := p.BeginListItem(); err != nil {
		t.Fatalf("BeginListItem: %v", err)
	}
	if err := p.Set(v); err != nil {
		t.Fatalf("Set item: %v", err)
	}
	if err := p.End(); err != nil {
		t.Fatalf("End item: %v", err)
	}
}

func TestBuildList(t *testing.T) {
	p := New(forma.ShapeOf[[]int64]())
	for _, v := range []int64{1, 2, 3} {
		buildListItem(t, p, v)
	}
	v, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(v, []int64{1, 2, 3}) {
		t.Fatalf("got %v", v)
	}
}

func TestEmptyListViaSetDefault(t *testing.T) {
	p := New(forma.ShapeOf[[]string]())
	if err := p.SetDefault(); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	v, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := v.([]string)
	if got == nil || len(got) != 0 {
		t.Fatalf("got %#v, want empty non-nil slice", got)
	}
}

func TestListAbandonMidElement(t *testing.T) {
	p := New(forma.ShapeOf[[]int64]())
	buildListItem(t, p, int64(1))
	if err := p.BeginListItem(); err != nil {
		t.Fatalf("BeginListItem: %v", err)
	}
	if err := p.Set(int64(2)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// the second element is initialized but never ended: its slot stays
	// uncounted and the builder can only be abandoned
	root := p.frames[0]
	p.Abandon()
	if root.slot.IsValid() {
		t.Fatal("root slot not released")
	}
}

func TestListElementNotEnded(t *testing.T) {
	p := New(forma.ShapeOf[[]int64]())
	defer p.Abandon()
	if err := p.BeginListItem(); err != nil {
		t.Fatalf("BeginListItem: %v", err)
	}
	if err := p.Set(int64(1)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// starting the next element before ending this one is driver misuse;
	// the element frame is a scalar, so the call is a kind mismatch there
	err := p.BeginListItem()
	if fe, ok := forma.AsError(err); !ok || fe.Code != forma.CodeWasNotA {
		t.Fatalf("err = %v, want code %s", err, forma.CodeWasNotA)
	}
}

func TestBuildSetDeduplicates(t *testing.T) {
	p := New(forma.ShapeOf[map[string]struct{}]())
	for _, v := range []string{"a", "b", "a"} {
		if err := p.BeginSetItem(); err != nil {
			t.Fatalf("BeginSetItem: %v", err)
		}
		if err := p.Set(v); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := p.End(); err != nil {
			t.Fatalf("End: %v", err)
		}
	}
	v, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := v.(map[string]struct{})
	want := map[string]struct{}{"a": {}, "b": {}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v", got)
	}
}

func buildMapEntry(t *testing.T, p *Partial, k, v any) {
	t.Helper()
	if err := p.BeginKey(); err != nil {
		t.Fatalf("BeginKey: %v", err)
	}
	if err := p.Set(k); err != nil {
		t.Fatalf("Set key: %v", err)
	}
	if err := p.End(); err != nil {
		t.Fatalf("End key: %v", err)
	}
	if err := p.BeginValue(); err != nil {
		t.Fatalf("BeginValue: %v", err)
	}
	if err := p.Set(v); err != nil {
		t.Fatalf("Set value: %v", err)
	}
	if err := p.End(); err != nil {
		t.Fatalf("End value: %v", err)
	}
}

func TestBuildMap(t *testing.T) {
	p := New(forma.ShapeOf[map[string]int64]())
	buildMapEntry(t, p, "one", int64(1))
	buildMapEntry(t, p, "two", int64(2))
	v, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := map[string]int64{"one": 1, "two": 2}
	if !reflect.DeepEqual(v, want) {
		t.Fatalf("got %v", v)
	}
}

func TestMapDuplicateKeyReplaces(t *testing.T) {
	p := New(forma.ShapeOf[map[string]int64]())
	buildMapEntry(t, p, "k", int64(1))
	buildMapEntry(t, p, "k", int64(2))
	v, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := v.(map[string]int64)
	if len(got) != 1 || got["k"] != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestMapValueWithoutKey(t *testing.T) {
	p := New(forma.ShapeOf[map[string]int64]())
	defer p.Abandon()
	err := p.BeginValue()
	if fe, ok := forma.AsError(err); !ok || fe.Code != forma.CodeKeyWithoutValue {
		t.Fatalf("err = %v, want code %s", err, forma.CodeKeyWithoutValue)
	}
}

func TestMapKeyTwiceWithoutValue(t *testing.T) {
	p := New(forma.ShapeOf[map[string]int64]())
	defer p.Abandon()
	if err := p.BeginKey(); err != nil {
		t.Fatalf("BeginKey: %v", err)
	}
	if err := p.Set("k"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := p.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	// a second key before the pending value completes the protocol
	err := p.BeginKey()
	if fe, ok := forma.AsError(err); !ok || fe.Code != forma.CodeKeyWithoutValue {
		t.Fatalf("err = %v, want code %s", err, forma.CodeKeyWithoutValue)
	}
}

func TestMapAbandonMidInsertion(t *testing.T) {
	p := New(forma.ShapeOf[map[string]int64]())
	buildMapEntry(t, p, "done", int64(1))
	if err := p.BeginKey(); err != nil {
		t.Fatalf("BeginKey: %v", err)
	}
	if err := p.Set("pending"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := p.End(); err != nil {
		t.Fatalf("End key: %v", err)
	}
	// key complete, value never begun: abandonment must drop the parked key
	p.Abandon()
}

func TestBuildMapOfStructs(t *testing.T) {
	p := New(forma.ShapeOf[map[string]point]())
	if err := p.BeginKey(); err != nil {
		t.Fatalf("BeginKey: %v", err)
	}
	if err := p.Set("origin"); err != nil {
		t.Fatalf("Set key: %v", err)
	}
	if err := p.End(); err != nil {
		t.Fatalf("End key: %v", err)
	}
	if err := p.BeginValue(); err != nil {
		t.Fatalf("BeginValue: %v", err)
	}
	if err := p.SetField("X", int64(0)); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if err := p.SetField("Y", int64(0)); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if err := p.End(); err != nil {
		t.Fatalf("End value: %v", err)
	}
	v, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := map[string]point{"origin": {}}
	if !reflect.DeepEqual(v, want) {
		t.Fatalf("got %v", v)
	}
}

func TestBuildNestedLists(t *testing.T) {
	p := New(forma.ShapeOf[[][]string]())
	for _, row := range [][]string{{"a"}, {"b", "c"}} {
		if err := p.BeginListItem(); err != nil {
			t.Fatalf("BeginListItem: %v", err)
		}
		for _, s := range row {
			buildListItem(t, p, s)
		}
		if err := p.End(); err != nil {
			t.Fatalf("End row: %v", err)
		}
	}
	v, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(v, [][]string{{"a"}, {"b", "c"}}) {
		t.Fatalf("got %v", v)
	}
}
