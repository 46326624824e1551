package forma

import (
	"testing"
)

func TestDynamicScalars(t *testing.T) {
	var d Dynamic
	if !d.IsNull() {
		t.Fatal("zero dynamic is not null")
	}
	d.SetInt(42)
	if d.Kind() != DynInt || d.Int() != 42 {
		t.Fatalf("got %s", d.String())
	}
	d.SetString("x")
	if d.Kind() != DynString || d.Str() != "x" {
		t.Fatalf("got %s", d.String())
	}
	d.Reset()
	if !d.IsNull() {
		t.Fatal("reset did not return to null")
	}
}

func TestDynamicFloatWidening(t *testing.T) {
	var d Dynamic
	d.SetInt(3)
	if d.Float() != 3.0 {
		t.Fatalf("int did not widen: %v", d.Float())
	}
	d.SetFloat(2.5)
	if d.Float() != 2.5 {
		t.Fatalf("got %v", d.Float())
	}
}

func TestDynamicObjectMutation(t *testing.T) {
	var d Dynamic
	d.BecomeObject()
	var v Dynamic
	v.SetInt(1)
	if err := d.SetMember("a", v); err != nil {
		t.Fatalf("SetMember: %v", err)
	}
	if d.Len() != 1 || d.Member("a").Int() != 1 {
		t.Fatalf("got %s", d.String())
	}
	// overwriting resets the stored entry through the null sentinel, so a
	// previously structured member cannot leak old children
	var arr Dynamic
	arr.BecomeArray()
	var e Dynamic
	e.SetInt(9)
	if err := arr.Append(e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := d.SetMember("a", arr); err != nil {
		t.Fatalf("SetMember overwrite: %v", err)
	}
	m := d.Member("a")
	if m.Kind() != DynArray || m.Len() != 1 || m.Index(0).Int() != 9 {
		t.Fatalf("got %s", d.String())
	}

	var s Dynamic
	s.SetString("plain")
	if err := d.SetMember("a", s); err != nil {
		t.Fatalf("SetMember scalar: %v", err)
	}
	if d.Member("a").Kind() != DynString {
		t.Fatalf("got %s", d.String())
	}
}

func TestDynamicMemberPointersAreStable(t *testing.T) {
	var d Dynamic
	d.BecomeObject()
	var v Dynamic
	v.SetInt(1)
	if err := d.SetMember("a", v); err != nil {
		t.Fatalf("SetMember: %v", err)
	}
	m := d.Member("a")
	m.SetInt(2)
	if d.Member("a").Int() != 2 {
		t.Fatal("member write through pointer not visible")
	}
}

func TestDynamicContainerMisuse(t *testing.T) {
	var d Dynamic
	d.SetInt(1)
	var e Dynamic
	if err := d.Append(e); err == nil {
		t.Fatal("Append on a scalar succeeded")
	}
	if err := d.SetMember("k", e); err == nil {
		t.Fatal("SetMember on a scalar succeeded")
	}
}

func TestDynamicKeysSorted(t *testing.T) {
	var d Dynamic
	d.BecomeObject()
	for _, k := range []string{"b", "a", "c"} {
		var v Dynamic
		v.SetInt(1)
		if err := d.SetMember(k, v); err != nil {
			t.Fatalf("SetMember: %v", err)
		}
	}
	keys := d.Keys()
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestDynamicEqual(t *testing.T) {
	mk := func() *Dynamic {
		var d Dynamic
		d.BecomeObject()
		var n Dynamic
		n.SetInt(1)
		d.SetMember("n", n)
		var arr Dynamic
		arr.BecomeArray()
		var s Dynamic
		s.SetString("x")
		arr.Append(s)
		d.SetMember("xs", arr)
		return &d
	}
	a, b := mk(), mk()
	if !a.Equal(b) {
		t.Fatalf("%s != %s", a, b)
	}
	var n Dynamic
	n.SetInt(2)
	b.SetMember("n", n)
	if a.Equal(b) {
		t.Fatal("distinct values compare equal")
	}
}
