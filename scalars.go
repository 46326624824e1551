package forma

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash"
	"reflect"
	"strconv"
	"strings"
	"time"

	timefmt "github.com/itchyny/timefmt-go"
)

// TimeLayouts are the textual layouts accepted when parsing time.Time scalars,
// tried in order. The strftime entries are handled by timefmt; RFC 3339 is
// tried first because it is what the wire formats emit.
var TimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"%Y-%m-%d %H:%M:%S",
	"%Y-%m-%d",
}

var timeType = reflect.TypeOf(time.Time{})

// builtinOps returns a fresh operation table pre-populated for the built-in
// scalar types. Unknown types get an empty table; composites get their
// behavior from the builder, not from ops.
func builtinOps(rt reflect.Type) *OpTable {
	if rt == timeType {
		return timeOps()
	}
	switch rt.Kind() {
	case reflect.Bool:
		return boolOps(rt)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intOps(rt)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uintOps(rt)
	case reflect.Float32, reflect.Float64:
		return floatOps(rt)
	case reflect.String:
		return stringOps(rt)
	case reflect.Slice:
		if rt.Elem().Kind() == reflect.Uint8 {
			return bytesOps(rt)
		}
	}
	return &OpTable{}
}

func deref(ptr any) reflect.Value { return reflect.ValueOf(ptr).Elem() }

func zeroDefault(rt reflect.Type) func(any) error {
	return func(ptr any) error {
		deref(ptr).Set(reflect.Zero(rt))
		return nil
	}
}

func assignClone() func(dst, src any) error {
	return func(dst, src any) error {
		deref(dst).Set(deref(src))
		return nil
	}
}

func boolOps(rt reflect.Type) *OpTable {
	return &OpTable{
		Default:   zeroDefault(rt),
		CloneInto: assignClone(),
		ParseText: func(ptr any, s string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return err
			}
			deref(ptr).SetBool(b)
			return nil
		},
		Equal:   func(a, b any) bool { return deref(a).Bool() == deref(b).Bool() },
		Compare: func(a, b any) int { return boolCmp(deref(a).Bool(), deref(b).Bool()) },
		Hash: func(ptr any, sink hash.Hash) {
			if deref(ptr).Bool() {
				sink.Write([]byte{1})
			} else {
				sink.Write([]byte{0})
			}
		},
		Display: func(ptr any) string { return strconv.FormatBool(deref(ptr).Bool()) },
		Debug:   func(ptr any) string { return strconv.FormatBool(deref(ptr).Bool()) },
	}
}

func boolCmp(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	default:
		return 1
	}
}

func int64Cmp(a, b int64) int {
	switch {
	case a == b:
		return 0
	case a < b:
		return -1
	default:
		return 1
	}
}

func intOps(rt reflect.Type) *OpTable {
	return &OpTable{
		Default:   zeroDefault(rt),
		CloneInto: assignClone(),
		ParseText: func(ptr any, s string) error {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, rt.Bits())
			if err != nil {
				return err
			}
			deref(ptr).SetInt(n)
			return nil
		},
		Equal:   func(a, b any) bool { return deref(a).Int() == deref(b).Int() },
		Compare: func(a, b any) int { return int64Cmp(deref(a).Int(), deref(b).Int()) },
		Hash: func(ptr any, sink hash.Hash) {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], uint64(deref(ptr).Int()))
			sink.Write(buf[:])
		},
		Display: func(ptr any) string { return strconv.FormatInt(deref(ptr).Int(), 10) },
		Debug:   func(ptr any) string { return strconv.FormatInt(deref(ptr).Int(), 10) },
		TryFrom: numericTryFrom(rt),
	}
}

func uintOps(rt reflect.Type) *OpTable {
	return &OpTable{
		Default:   zeroDefault(rt),
		CloneInto: assignClone(),
		ParseText: func(ptr any, s string) error {
			n, err := strconv.ParseUint(strings.TrimSpace(s), 10, rt.Bits())
			if err != nil {
				return err
			}
			deref(ptr).SetUint(n)
			return nil
		},
		Equal: func(a, b any) bool { return deref(a).Uint() == deref(b).Uint() },
		Compare: func(a, b any) int {
			x, y := deref(a).Uint(), deref(b).Uint()
			switch {
			case x == y:
				return 0
			case x < y:
				return -1
			default:
				return 1
			}
		},
		Hash: func(ptr any, sink hash.Hash) {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], deref(ptr).Uint())
			sink.Write(buf[:])
		},
		Display: func(ptr any) string { return strconv.FormatUint(deref(ptr).Uint(), 10) },
		Debug:   func(ptr any) string { return strconv.FormatUint(deref(ptr).Uint(), 10) },
		TryFrom: numericTryFrom(rt),
	}
}

func floatOps(rt reflect.Type) *OpTable {
	return &OpTable{
		Default:   zeroDefault(rt),
		CloneInto: assignClone(),
		ParseText: func(ptr any, s string) error {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), rt.Bits())
			if err != nil {
				return err
			}
			deref(ptr).SetFloat(f)
			return nil
		},
		Equal: func(a, b any) bool { return deref(a).Float() == deref(b).Float() },
		Compare: func(a, b any) int {
			x, y := deref(a).Float(), deref(b).Float()
			switch {
			case x == y:
				return 0
			case x < y:
				return -1
			default:
				return 1
			}
		},
		Hash: func(ptr any, sink hash.Hash) {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], uint64(int64(deref(ptr).Float()*1e9)))
			sink.Write(buf[:])
		},
		Display: func(ptr any) string { return strconv.FormatFloat(deref(ptr).Float(), 'g', -1, rt.Bits()) },
		Debug:   func(ptr any) string { return strconv.FormatFloat(deref(ptr).Float(), 'g', -1, rt.Bits()) },
		TryFrom: numericTryFrom(rt),
	}
}

// numericTryFrom widens/narrows from any Go numeric value, rejecting lossy
// narrowing.
func numericTryFrom(rt reflect.Type) func(dst any, src any) error {
	return func(dst any, src any) error {
		sv := reflect.ValueOf(src)
		if !sv.IsValid() || !sv.Type().ConvertibleTo(rt) {
			return fmt.Errorf("cannot convert %T to %s", src, rt)
		}
		converted := sv.Convert(rt)
		// round-trip check so narrowing conversions fail loudly
		if converted.Type().ConvertibleTo(sv.Type()) {
			back := converted.Convert(sv.Type())
			if !back.Equal(sv) {
				return fmt.Errorf("value %v does not fit in %s", src, rt)
			}
		}
		deref(dst).Set(converted)
		return nil
	}
}

func stringOps(rt reflect.Type) *OpTable {
	return &OpTable{
		Default:   zeroDefault(rt),
		CloneInto: assignClone(),
		ParseText: func(ptr any, s string) error {
			deref(ptr).SetString(s)
			return nil
		},
		Equal:   func(a, b any) bool { return deref(a).String() == deref(b).String() },
		Compare: func(a, b any) int { return strings.Compare(deref(a).String(), deref(b).String()) },
		Hash: func(ptr any, sink hash.Hash) {
			sink.Write([]byte(deref(ptr).String()))
		},
		Display: func(ptr any) string { return deref(ptr).String() },
		Debug:   func(ptr any) string { return strconv.Quote(deref(ptr).String()) },
	}
}

func bytesOps(rt reflect.Type) *OpTable {
	return &OpTable{
		Default: zeroDefault(rt),
		CloneInto: func(dst, src any) error {
			deref(dst).SetBytes(bytes.Clone(deref(src).Bytes()))
			return nil
		},
		ParseText: func(ptr any, s string) error {
			raw, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return err
			}
			deref(ptr).SetBytes(raw)
			return nil
		},
		Display: func(ptr any) string {
			return base64.StdEncoding.EncodeToString(deref(ptr).Bytes())
		},
		Equal:   func(a, b any) bool { return bytes.Equal(deref(a).Bytes(), deref(b).Bytes()) },
		Compare: func(a, b any) int { return bytes.Compare(deref(a).Bytes(), deref(b).Bytes()) },
		Hash: func(ptr any, sink hash.Hash) {
			sink.Write(deref(ptr).Bytes())
		},
		Debug: func(ptr any) string { return fmt.Sprintf("%x", deref(ptr).Bytes()) },
	}
}

func timeOps() *OpTable {
	return &OpTable{
		Default: func(ptr any) error {
			*(ptr.(*time.Time)) = time.Time{}
			return nil
		},
		CloneInto: func(dst, src any) error {
			*(dst.(*time.Time)) = *(src.(*time.Time))
			return nil
		},
		ParseText: func(ptr any, s string) error {
			s = strings.TrimSpace(s)
			var lastErr error
			for _, layout := range TimeLayouts {
				var t time.Time
				var err error
				if strings.ContainsRune(layout, '%') {
					t, err = timefmt.Parse(s, layout)
				} else {
					t, err = time.Parse(layout, s)
				}
				if err == nil {
					*(ptr.(*time.Time)) = t
					return nil
				}
				lastErr = err
			}
			return lastErr
		},
		Equal: func(a, b any) bool { return a.(*time.Time).Equal(*b.(*time.Time)) },
		Compare: func(a, b any) int {
			return a.(*time.Time).Compare(*b.(*time.Time))
		},
		Hash: func(ptr any, sink hash.Hash) {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], uint64(ptr.(*time.Time).UnixNano()))
			sink.Write(buf[:])
		},
		Display: func(ptr any) string { return ptr.(*time.Time).Format(time.RFC3339Nano) },
		Debug: func(ptr any) string {
			return timefmt.Format(*ptr.(*time.Time), "%Y-%m-%dT%H:%M:%S.%f%z")
		},
	}
}
