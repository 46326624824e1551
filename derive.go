package forma

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// shapeCache interns one *Shape per reflect.Type for the program's lifetime.
var shapeCache sync.Map // reflect.Type -> *Shape

var (
	optionIface = reflect.TypeOf((*optionMarker)(nil)).Elem()
	resultIface = reflect.TypeOf((*resultMarker)(nil)).Elem()
	dynamicType = reflect.TypeOf(Dynamic{})
	emptyStruct = reflect.TypeOf(struct{}{})
)

// DeriveOption customizes shape derivation for one type.
type DeriveOption func(*deriveConfig)

type deriveConfig struct {
	defaultable   bool
	fieldDefaults map[string]func() (any, error)
	validators    map[string][]Validator
}

// WithDefaultable marks the container as defaultable: unset fields whose type
// supports default construction are filled instead of being required.
func WithDefaultable() DeriveOption {
	return func(c *deriveConfig) { c.defaultable = true }
}

// WithFieldDefault declares a custom default for the named field.
func WithFieldDefault(field string, fn func() (any, error)) DeriveOption {
	return func(c *deriveConfig) {
		if c.fieldDefaults == nil {
			c.fieldDefaults = map[string]func() (any, error){}
		}
		c.fieldDefaults[field] = fn
	}
}

// WithValidator declares a validator for the named field, run after the field
// is initialized (explicitly or by default filling).
func WithValidator(field string, fn Validator) DeriveOption {
	return func(c *deriveConfig) {
		if c.validators == nil {
			c.validators = map[string][]Validator{}
		}
		c.validators[field] = append(c.validators[field], fn)
	}
}

// ShapeOf derives (or returns the interned) shape for T.
func ShapeOf[T any]() *Shape {
	return ShapeOfType(reflect.TypeOf((*T)(nil)).Elem())
}

// Derive derives the shape for T with options folded in. Options only take
// effect on the first derivation of T; deriving an already-interned shape
// with conflicting options panics, because shapes are immutable once shared.
func Derive[T any](opts ...DeriveOption) *Shape {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if len(opts) == 0 {
		return ShapeOfType(rt)
	}
	cfg := &deriveConfig{}
	for _, o := range opts {
		o(cfg)
	}
	if cached, ok := shapeCache.Load(rt); ok {
		panic(fmt.Sprintf("forma: Derive with options after shape of %s was interned", cached.(*Shape)))
	}
	sh := deriveType(rt, cfg)
	return sh
}

// ShapeOfType is the non-generic form of ShapeOf.
func ShapeOfType(rt reflect.Type) *Shape {
	if cached, ok := shapeCache.Load(rt); ok {
		return cached.(*Shape)
	}
	return deriveType(rt, nil)
}

var deriveMu sync.Mutex

func deriveType(rt reflect.Type, cfg *deriveConfig) *Shape {
	// single-flight derivation so recursive types see a stable in-progress
	// shape via the cache
	deriveMu.Lock()
	defer deriveMu.Unlock()
	if cached, ok := shapeCache.Load(rt); ok {
		return cached.(*Shape)
	}
	return deriveLocked(rt, cfg)
}

func deriveLocked(rt reflect.Type, cfg *deriveConfig) *Shape {
	if cached, ok := shapeCache.Load(rt); ok {
		return cached.(*Shape)
	}

	sh := &Shape{
		Type:  rt,
		Size:  rt.Size(),
		Align: rt.Align(),
		ops:   lookupOps(rt),
	}
	if cfg != nil {
		sh.Defaultable = cfg.defaultable
	}
	// intern before populating members so recursive types terminate
	shapeCache.Store(rt, sh)

	switch {
	case rt == dynamicType:
		sh.Kind = KindDynamic
	case rt.Implements(optionIface):
		sh.Kind = KindOption
		inner, _ := rt.FieldByName("Value")
		sh.Elem = deriveLocked(inner.Type, nil)
	case rt.Implements(resultIface):
		sh.Kind = KindResult
		okF, _ := rt.FieldByName("Ok")
		errF, _ := rt.FieldByName("Err")
		sh.OkShape = deriveLocked(okF.Type, nil)
		sh.ErrShape = deriveLocked(errF.Type, nil)
	case rt.Kind() == reflect.Interface:
		defs, ok := lookupEnum(rt)
		if !ok {
			panic(fmt.Sprintf("forma: interface %s is not a registered enum", rt))
		}
		sh.Kind = KindEnum
		sh.Variants = make([]Variant, len(defs))
		for i, d := range defs {
			payload := deriveLocked(d.typ, nil)
			if len(payload.Fields) > MaxFields {
				panic(fmt.Sprintf("forma: variant %q of %s exceeds %d fields", d.name, rt, MaxFields))
			}
			sh.Variants[i] = Variant{
				Name:         d.name,
				Discriminant: i,
				Type:         d.typ,
				shape:        payload,
				byPointer:    !d.typ.Implements(rt),
			}
		}
	case rt.Kind() == reflect.Pointer:
		sh.Kind = KindPointer
		sh.Elem = deriveLocked(rt.Elem(), nil)
	case rt.Kind() == reflect.Struct:
		sh.Kind = KindStruct
		sh.Fields = deriveFields(rt, cfg)
		if len(sh.Fields) > MaxFields {
			panic(fmt.Sprintf("forma: struct %s exceeds %d fields", rt, MaxFields))
		}
	case rt.Kind() == reflect.Array:
		sh.Kind = KindArray
		sh.ArrayLen = rt.Len()
		sh.Elem = deriveLocked(rt.Elem(), nil)
		if sh.ArrayLen > MaxFields {
			panic(fmt.Sprintf("forma: array %s exceeds %d elements", rt, MaxFields))
		}
	case rt.Kind() == reflect.Slice && rt.Elem().Kind() == reflect.Uint8:
		// []byte stays a scalar: it is set and parsed whole
		sh.Kind = KindScalar
	case rt.Kind() == reflect.Slice:
		sh.Kind = KindList
		sh.Elem = deriveLocked(rt.Elem(), nil)
	case rt.Kind() == reflect.Map && rt.Elem() == emptyStruct:
		// map[T]struct{} is the set convention, mirroring how such maps are
		// used across Go codebases
		sh.Kind = KindSet
		sh.Elem = deriveLocked(rt.Key(), nil)
	case rt.Kind() == reflect.Map:
		sh.Kind = KindMap
		sh.KeyShape = deriveLocked(rt.Key(), nil)
		sh.ValShape = deriveLocked(rt.Elem(), nil)
	default:
		sh.Kind = KindScalar
	}
	return sh
}

func deriveFields(rt reflect.Type, cfg *deriveConfig) []Field {
	fields := make([]Field, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := resolveFieldKey(sf)
		if name == "-" || name == "" {
			continue
		}
		f := Field{
			Name:   name,
			Index:  i,
			Offset: sf.Offset,
			shape:  deriveLocked(sf.Type, nil),
		}
		if dv, ok := sf.Tag.Lookup("default"); ok {
			if dv == "" {
				f.wantTypeDefault = true
			} else {
				f.DefaultText = dv
				f.hasDefaultText = true
			}
		}
		if cfg != nil {
			if fn, ok := cfg.fieldDefaults[name]; ok {
				f.defaultFn = fn
			}
			f.validators = cfg.validators[name]
		}
		fields = append(fields, f)
	}
	return fields
}

// resolveFieldKey resolves the wire name of a struct field: a `forma` tag
// (name=... entry) wins, then a `json` tag, then the Go field name.
func resolveFieldKey(sf reflect.StructField) string {
	if ft := sf.Tag.Get("forma"); ft != "" {
		for _, p := range strings.Split(ft, ",") {
			p = strings.TrimSpace(p)
			if strings.HasPrefix(p, "name=") {
				return strings.TrimPrefix(p, "name=")
			}
		}
	}
	if jt := sf.Tag.Get("json"); jt != "" {
		if jt == "-" {
			return "-"
		}
		if i := strings.IndexByte(jt, ','); i >= 0 {
			return jt[:i]
		}
		return jt
	}
	return sf.Name
}
