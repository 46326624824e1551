package forma

import (
	"fmt"
	"reflect"
	"sync"
)

// Go interfaces are structurally open, so the closed variant set of an enum
// cannot be derived by reflection alone. RegisterEnum declares it explicitly:
// the interface type I together with every payload struct type that may
// inhabit it. Shape derivation for I then yields KindEnum with the registered
// variant descriptors.

var (
	enumMu   sync.RWMutex
	enumDefs = map[reflect.Type][]enumVariantDef{}
)

type enumVariantDef struct {
	name string
	typ  reflect.Type
}

// VariantDef declares one enum variant: its wire name and its payload struct
// type. The payload (or a pointer to it) must implement the enum interface.
type VariantDef struct {
	Name string
	Type reflect.Type
}

// VariantOf builds a VariantDef for payload type P.
func VariantOf[P any](name string) VariantDef {
	return VariantDef{Name: name, Type: reflect.TypeOf((*P)(nil)).Elem()}
}

// RegisterEnum declares interface type I as a closed enum with the given
// variants, in discriminant order. Registration must happen before the first
// shape derivation of I; re-registering an already-derived enum panics, since
// shapes are interned forever.
func RegisterEnum[I any](variants ...VariantDef) {
	iface := reflect.TypeOf((*I)(nil)).Elem()
	if iface.Kind() != reflect.Interface {
		panic(fmt.Sprintf("forma: RegisterEnum requires an interface type, got %s", iface))
	}
	if len(variants) == 0 {
		panic(fmt.Sprintf("forma: enum %s needs at least one variant", iface))
	}
	defs := make([]enumVariantDef, 0, len(variants))
	seen := map[string]struct{}{}
	for _, v := range variants {
		if v.Type.Kind() != reflect.Struct {
			panic(fmt.Sprintf("forma: enum %s variant %q payload must be a struct, got %s", iface, v.Name, v.Type))
		}
		if !v.Type.Implements(iface) && !reflect.PointerTo(v.Type).Implements(iface) {
			panic(fmt.Sprintf("forma: enum %s variant %q payload %s does not implement the interface", iface, v.Name, v.Type))
		}
		if _, dup := seen[v.Name]; dup {
			panic(fmt.Sprintf("forma: enum %s declares variant %q twice", iface, v.Name))
		}
		seen[v.Name] = struct{}{}
		defs = append(defs, enumVariantDef{name: v.Name, typ: v.Type})
	}
	enumMu.Lock()
	defer enumMu.Unlock()
	if _, derived := shapeCache.Load(iface); derived {
		panic(fmt.Sprintf("forma: enum %s registered after its shape was derived", iface))
	}
	enumDefs[iface] = defs
}

func lookupEnum(iface reflect.Type) ([]enumVariantDef, bool) {
	enumMu.RLock()
	defer enumMu.RUnlock()
	defs, ok := enumDefs[iface]
	return defs, ok
}
