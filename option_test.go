package forma

import "testing"

func TestOptionAccessors(t *testing.T) {
	s := Some(7)
	if v, ok := s.Get(); !ok || v != 7 {
		t.Fatalf("got %v ok=%v", v, ok)
	}
	n := None[int]()
	if _, ok := n.Get(); ok {
		t.Fatal("none reported present")
	}
	if n.OrElse(3) != 3 || s.OrElse(3) != 7 {
		t.Fatal("OrElse fallback wrong")
	}
}

func TestResultAccessors(t *testing.T) {
	ok := OkOf[int, string](1)
	if v, isOk := ok.Unpack(); !isOk || v != 1 {
		t.Fatalf("got %v ok=%v", v, isOk)
	}
	if _, hasErr := ok.ErrValue(); hasErr {
		t.Fatal("ok arm reported err")
	}
	e := ErrOf[int]("bad")
	if _, isOk := e.Unpack(); isOk {
		t.Fatal("err arm reported ok")
	}
	if msg, hasErr := e.ErrValue(); !hasErr || msg != "bad" {
		t.Fatalf("got %q hasErr=%v", msg, hasErr)
	}
}
