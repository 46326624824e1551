package forma

import (
	"testing"
	"time"
)

func TestDeriveKinds(t *testing.T) {
	type node struct {
		Name string
	}
	cases := []struct {
		name string
		sh   *Shape
		kind Kind
	}{
		{"bool", ShapeOf[bool](), KindScalar},
		{"int64", ShapeOf[int64](), KindScalar},
		{"string", ShapeOf[string](), KindScalar},
		{"bytes", ShapeOf[[]byte](), KindScalar},
		{"time", ShapeOf[time.Time](), KindScalar},
		{"struct", ShapeOf[node](), KindStruct},
		{"list", ShapeOf[[]int64](), KindList},
		{"array", ShapeOf[[4]byte](), KindArray},
		{"map", ShapeOf[map[string]int64](), KindMap},
		{"set", ShapeOf[map[string]struct{}](), KindSet},
		{"option", ShapeOf[Option[string]](), KindOption},
		{"result", ShapeOf[Result[int64, string]](), KindResult},
		{"pointer", ShapeOf[*node](), KindPointer},
		{"dynamic", ShapeOf[Dynamic](), KindDynamic},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.sh.Kind != tc.kind {
				t.Fatalf("kind = %s, want %s", tc.sh.Kind, tc.kind)
			}
		})
	}
}

func TestDeriveInternsShapes(t *testing.T) {
	type once struct{ A int64 }
	if ShapeOf[once]() != ShapeOf[once]() {
		t.Fatal("same type derived to different shapes")
	}
}

func TestDeriveRecursiveType(t *testing.T) {
	type listNode struct {
		Value int64
		Next  *listNode
	}
	sh := ShapeOf[listNode]()
	next, ok := sh.FieldByName("Next")
	if !ok {
		t.Fatal("Next not derived")
	}
	if next.Shape().Kind != KindPointer {
		t.Fatalf("Next kind = %s", next.Shape().Kind)
	}
	if next.Shape().Elem != sh {
		t.Fatal("recursive pointee is not the interned shape")
	}
}

func TestFieldKeyResolution(t *testing.T) {
	type wire struct {
		A int64 `forma:"name=alpha" json:"ignored"`
		B int64 `json:"beta,omitempty"`
		C int64
		D int64 `json:"-"`
		e int64
	}
	_ = wire{e: 0}
	sh := ShapeOf[wire]()
	var names []string
	for i := range sh.Fields {
		names = append(names, sh.Fields[i].Name)
	}
	want := []string{"alpha", "beta", "C"}
	if len(names) != len(want) {
		t.Fatalf("fields = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("fields = %v, want %v", names, want)
		}
	}
}

func TestOptionShape(t *testing.T) {
	sh := ShapeOf[Option[int64]]()
	if sh.Elem == nil || sh.Elem.Kind != KindScalar {
		t.Fatalf("option elem = %v", sh.Elem)
	}
	if !sh.IsAbsenceShaped() {
		t.Fatal("option is not absence-shaped")
	}
}

func TestResultShape(t *testing.T) {
	sh := ShapeOf[Result[int64, string]]()
	if sh.OkShape == nil || sh.OkShape.Type.Kind().String() != "int64" {
		t.Fatalf("ok shape = %v", sh.OkShape)
	}
	if sh.ErrShape == nil || sh.ErrShape.Type.Kind().String() != "string" {
		t.Fatalf("err shape = %v", sh.ErrShape)
	}
	if sh.IsAbsenceShaped() {
		t.Fatal("result must not be absence-shaped")
	}
}

func TestMapAndSetShapes(t *testing.T) {
	m := ShapeOf[map[string]float64]()
	if m.KeyShape.Type.Kind().String() != "string" || m.ValShape.Type.Kind().String() != "float64" {
		t.Fatalf("map shapes = %v/%v", m.KeyShape, m.ValShape)
	}
	s := ShapeOf[map[int64]struct{}]()
	if s.Kind != KindSet || s.Elem.Type.Kind().String() != "int64" {
		t.Fatalf("set shape = %v", s)
	}
}

func TestArrayShape(t *testing.T) {
	sh := ShapeOf[[3]string]()
	if sh.ArrayLen != 3 || sh.Elem.Kind != KindScalar {
		t.Fatalf("array shape = %+v", sh)
	}
}

func TestDefaultTagParsing(t *testing.T) {
	type cfg struct {
		N int64  `default:"12"`
		S string `default:"hi"`
	}
	sh := ShapeOf[cfg]()
	n, _ := sh.FieldByName("N")
	v, declared, err := n.FieldDefault()
	if !declared || err != nil {
		t.Fatalf("FieldDefault: declared=%v err=%v", declared, err)
	}
	if v.(int64) != 12 {
		t.Fatalf("got %v", v)
	}
	s, _ := sh.FieldByName("S")
	v, declared, err = s.FieldDefault()
	if !declared || err != nil || v.(string) != "hi" {
		t.Fatalf("got %v declared=%v err=%v", v, declared, err)
	}
}

func TestBadDefaultTagSurfacesParseError(t *testing.T) {
	type cfg struct {
		N int64 `default:"not-a-number"`
	}
	sh := ShapeOf[cfg]()
	n, _ := sh.FieldByName("N")
	_, declared, err := n.FieldDefault()
	if !declared {
		t.Fatal("default not declared")
	}
	if err == nil {
		t.Fatal("bad default text parsed")
	}
	if !IsCode(err, CodeParseError) {
		t.Fatalf("err = %v, want code %s", err, CodeParseError)
	}
}

func TestWantTypeDefaultWithoutImpl(t *testing.T) {
	type inner struct{ A int64 }
	type cfg struct {
		I inner `default:""`
	}
	sh := ShapeOf[cfg]()
	f, _ := sh.FieldByName("I")
	if !f.WantsTypeDefault() {
		t.Fatal("bare default tag not recorded")
	}
	_, declared, err := f.FieldDefault()
	if !declared {
		t.Fatal("default not declared")
	}
	// plain structs carry no Default operation
	if !IsCode(err, CodeNoDefaultImpl) {
		t.Fatalf("err = %v, want code %s", err, CodeNoDefaultImpl)
	}
}

func TestExpectKind(t *testing.T) {
	sh := ShapeOf[int64]()
	if err := sh.ExpectKind(KindScalar, "scalar"); err != nil {
		t.Fatalf("ExpectKind: %v", err)
	}
	err := sh.ExpectKind(KindList, "list")
	if !IsCode(err, CodeWasNotA) {
		t.Fatalf("err = %v, want code %s", err, CodeWasNotA)
	}
}
