package json

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	forma "github.com/unformed/forma"
)

type address struct {
	Street string `json:"street"`
	City   string `json:"city"`
}

type person struct {
	Name      string               `json:"name"`
	Age       int32                `json:"age"`
	Nick      forma.Option[string] `json:"nick"`
	Addresses []address            `json:"addresses"`
	Tags      map[string]struct{}  `json:"tags"`
	Scores    map[string]float64   `json:"scores"`
	Joined    time.Time            `json:"joined"`
}

func TestUnmarshalStruct(t *testing.T) {
	data := []byte(`{
		"name": "ada",
		"age": 36,
		"nick": "al",
		"addresses": [{"street": "1 Main", "city": "Springfield"}],
		"tags": ["admin", "ops", "admin"],
		"scores": {"math": 99.5},
		"joined": "2026-01-02T03:04:05Z"
	}`)
	got, err := Unmarshal[person](data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := person{
		Name:      "ada",
		Age:       36,
		Nick:      forma.Some("al"),
		Addresses: []address{{Street: "1 Main", City: "Springfield"}},
		Tags:      map[string]struct{}{"admin": {}, "ops": {}},
		Scores:    map[string]float64{"math": 99.5},
		Joined:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalMissingAbsenceFields(t *testing.T) {
	got, err := Unmarshal[person]([]byte(`{"name": "bo", "age": 1, "joined": "2026-01-01"}`))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Nick.IsSome() || got.Addresses != nil || got.Tags != nil || got.Scores != nil {
		t.Fatalf("absence-shaped fields not empty: %+v", got)
	}
}

func TestUnmarshalMissingRequiredField(t *testing.T) {
	_, err := Unmarshal[person]([]byte(`{"name": "bo"}`))
	if err == nil {
		t.Fatal("Unmarshal succeeded without age")
	}
	fe, ok := forma.AsError(err)
	if !ok || fe.Code != forma.CodeUninitializedField {
		t.Fatalf("err = %v", err)
	}
}

func TestUnmarshalUnknownField(t *testing.T) {
	data := []byte(`{"name": "bo", "age": 1, "joined": "2026-01-01", "extra": true}`)
	_, err := Unmarshal[person](data)
	fe, ok := forma.AsError(err)
	if !ok || fe.Code != forma.CodeUnknownField || fe.Field != "extra" {
		t.Fatalf("err = %v", err)
	}
	if _, err := Unmarshal[person](data, IgnoreUnknownFields()); err != nil {
		t.Fatalf("IgnoreUnknownFields: %v", err)
	}
}

func TestUnmarshalNullIntoOption(t *testing.T) {
	got, err := Unmarshal[person]([]byte(`{"name": "bo", "age": 1, "joined": "2026-01-01", "nick": null}`))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Nick.IsSome() {
		t.Fatalf("null decoded to some: %+v", got.Nick)
	}
}

func TestUnmarshalNumberLossless(t *testing.T) {
	type narrow struct {
		N int8 `json:"n"`
	}
	if _, err := Unmarshal[narrow]([]byte(`{"n": 12}`)); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	_, err := Unmarshal[narrow]([]byte(`{"n": 1000}`))
	if err == nil {
		t.Fatal("1000 fit into int8")
	}
	_, err = Unmarshal[narrow]([]byte(`{"n": 1.5}`))
	if err == nil {
		t.Fatal("1.5 fit into int8")
	}
}

func TestUnmarshalLargeInt64(t *testing.T) {
	type big struct {
		N int64 `json:"n"`
	}
	// above float64's integer precision; survives because numbers stay
	// textual until conversion
	got, err := Unmarshal[big]([]byte(`{"n": 9007199254740993}`))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.N != 9007199254740993 {
		t.Fatalf("got %d", got.N)
	}
}

func TestUnmarshalNestedErrorPath(t *testing.T) {
	data := []byte(`{"name": "bo", "age": 1, "joined": "2026-01-01",
		"addresses": [{"street": "x", "city": "y"}, {"street": "only"}]}`)
	_, err := Unmarshal[person](data)
	fe, ok := forma.AsError(err)
	if !ok || fe.Code != forma.CodeUninitializedField || fe.Field != "city" {
		t.Fatalf("err = %v", err)
	}
	if fe.Path != "/addresses/1" {
		t.Fatalf("path = %q, want /addresses/1", fe.Path)
	}
}

func TestUnmarshalResult(t *testing.T) {
	type report struct {
		Outcome forma.Result[int64, string] `json:"outcome"`
	}
	got, err := Unmarshal[report]([]byte(`{"outcome": {"ok": 7}}`))
	if err != nil {
		t.Fatalf("Unmarshal ok: %v", err)
	}
	if v, isOk := got.Outcome.Unpack(); !isOk || v != 7 {
		t.Fatalf("got %+v", got.Outcome)
	}
	got, err = Unmarshal[report]([]byte(`{"outcome": {"err": "nope"}}`))
	if err != nil {
		t.Fatalf("Unmarshal err: %v", err)
	}
	if e, isErr := got.Outcome.ErrValue(); !isErr || e != "nope" {
		t.Fatalf("got %+v", got.Outcome)
	}
	if _, err := Unmarshal[report]([]byte(`{"outcome": {"both": 1}}`)); err == nil {
		t.Fatal("bad envelope decoded")
	}
}

type action interface {
	actionName() string
}

type move struct {
	Dx int64 `json:"dx"`
	Dy int64 `json:"dy"`
}

func (move) actionName() string { return "move" }

type quit struct{}

func (quit) actionName() string { return "quit" }

func init() {
	forma.RegisterEnum[action](
		forma.VariantOf[move]("move"),
		forma.VariantOf[quit]("quit"),
	)
}

func TestUnmarshalEnum(t *testing.T) {
	type command struct {
		Do action `json:"do"`
	}
	got, err := Unmarshal[command]([]byte(`{"do": {"type": "move", "dx": 1, "dy": -2}}`))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	mv, ok := got.Do.(move)
	if !ok || mv != (move{Dx: 1, Dy: -2}) {
		t.Fatalf("got %#v", got.Do)
	}

	got, err = Unmarshal[command]([]byte(`{"do": "quit"}`))
	if err != nil {
		t.Fatalf("Unmarshal bare variant: %v", err)
	}
	if _, ok := got.Do.(quit); !ok {
		t.Fatalf("got %#v", got.Do)
	}

	_, err = Unmarshal[command]([]byte(`{"do": {"type": "dance"}}`))
	if !forma.IsCode(err, forma.CodeUnknownVariant) {
		t.Fatalf("err = %v", err)
	}
	_, err = Unmarshal[command]([]byte(`{"do": {"dx": 1}}`))
	if !forma.IsCode(err, forma.CodeUnknownVariant) {
		t.Fatalf("err = %v", err)
	}
}

func TestUnmarshalDynamic(t *testing.T) {
	got, err := Unmarshal[forma.Dynamic]([]byte(`{"n": 1, "xs": ["a", true, 2.5], "deep": {"k": null}}`))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Member("n").Int() != 1 {
		t.Fatalf("got %s", got.String())
	}
	xs := got.Member("xs")
	if xs.Len() != 3 || xs.Index(0).Str() != "a" || !xs.Index(1).Bool() || xs.Index(2).Float() != 2.5 {
		t.Fatalf("got %s", got.String())
	}
	if !got.Member("deep").Member("k").IsNull() {
		t.Fatalf("got %s", got.String())
	}
}

func TestUnmarshalPointerAndArray(t *testing.T) {
	type inner struct {
		V [2]int64 `json:"v"`
	}
	type doc struct {
		P *inner `json:"p"`
	}
	got, err := Unmarshal[doc]([]byte(`{"p": {"v": [1, 2]}}`))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.P == nil || got.P.V != [2]int64{1, 2} {
		t.Fatalf("got %+v", got)
	}
	if _, err := Unmarshal[doc]([]byte(`{"p": {"v": [1]}}`)); !forma.IsCode(err, forma.CodeOutOfBounds) {
		t.Fatalf("err = %v", err)
	}
}

func TestUnmarshalBytes(t *testing.T) {
	type blob struct {
		Data []byte `json:"data"`
	}
	got, err := Unmarshal[blob]([]byte(`{"data": "aGVsbG8="}`))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(got.Data) != "hello" {
		t.Fatalf("got %q", got.Data)
	}
}

func TestUnmarshalInto(t *testing.T) {
	var p person
	err := UnmarshalInto(&p, []byte(`{"name": "c", "age": 2, "joined": "2026-01-01"}`))
	if err != nil {
		t.Fatalf("UnmarshalInto: %v", err)
	}
	if p.Name != "c" || p.Age != 2 {
		t.Fatalf("got %+v", p)
	}
}

func TestUnmarshalSyntaxError(t *testing.T) {
	_, err := Unmarshal[person]([]byte(`{"name":`))
	if !forma.IsCode(err, forma.CodeParseError) {
		t.Fatalf("err = %v", err)
	}
}

func TestUnmarshalTypeMismatch(t *testing.T) {
	_, err := Unmarshal[person]([]byte(`{"name": 5, "age": 1, "joined": "2026-01-01"}`))
	fe, ok := forma.AsError(err)
	if !ok {
		t.Fatalf("err = %v", err)
	}
	if fe.Path != "/name" {
		t.Fatalf("path = %q", fe.Path)
	}
}
