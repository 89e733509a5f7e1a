// Package envconf fills configuration structs from environment variables.
//
// Fields opt in with an `env:"NAME"` tag. A `default:"..."` tag supplies the
// value when NAME is unset; a tagged field without a default is required.
// Slices are read as comma separated lists. Untagged struct (and
// pointer-to-struct) fields are loaded recursively. Load reports every
// missing or malformed variable at once instead of stopping at the first.
package envconf

import (
	"encoding"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingRequired = errors.New("missing required environment variable")
	ErrUnsupportedType = errors.New("unsupported field type")
	ErrInvalidTarget   = errors.New("destination must be a non-nil pointer to a struct")
)

type lookupFunc func(string) (string, bool)

var (
	durationType        = reflect.TypeFor[time.Duration]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// Load populates dst, which must be a non-nil pointer to a struct.
func Load(dst any) error {
	return load(dst, os.LookupEnv)
}

func load(dst any, lookup lookupFunc) error {
	v := reflect.ValueOf(dst)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ErrInvalidTarget
	}

	var errs []error
	walk(v.Elem(), lookup, &errs)

	return errors.Join(errs...)
}

func walk(v reflect.Value, lookup lookupFunc, errs *[]error) {
	t := v.Type()

	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		fv := v.Field(i)
		name, tagged := sf.Tag.Lookup("env")

		switch {
		case name == "-":
		case !tagged || name == "":
			if inner, ok := nestedStruct(fv); ok {
				walk(inner, lookup, errs)
			}
		default:
			err := loadField(sf, fv, name, lookup)
			if err != nil {
				*errs = append(*errs, err)
			}
		}
	}
}

// nestedStruct returns the struct an untagged field should be walked into,
// allocating nil struct pointers.
func nestedStruct(fv reflect.Value) (reflect.Value, bool) {
	switch {
	case fv.Kind() == reflect.Struct && !fv.Addr().Type().Implements(textUnmarshalerType):
		return fv, true
	case fv.Kind() == reflect.Pointer && fv.Type().Elem().Kind() == reflect.Struct:
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		return fv.Elem(), true
	default:
		return reflect.Value{}, false
	}
}

func loadField(sf reflect.StructField, fv reflect.Value, name string, lookup lookupFunc) error {
	raw, ok := lookup(name)
	if !ok {
		raw, ok = sf.Tag.Lookup("default")
		if !ok {
			return fmt.Errorf("%w: %s (field %s)", ErrMissingRequired, name, sf.Name)
		}
	}

	raw = strings.TrimSpace(raw)
	if raw == "" && fv.Kind() != reflect.String {
		// an empty optional value leaves the zero value in place
		return nil
	}

	err := assign(fv, raw)
	if err != nil {
		return fmt.Errorf("%s (field %s): %w", name, sf.Name, err)
	}

	return nil
}

type parser func(fv reflect.Value, raw string) error

// parsers is filled in init: the list and pointer parsers recurse through assign.
var parsers map[reflect.Kind]parser

func init() {
	parsers = map[reflect.Kind]parser{
		reflect.String: func(fv reflect.Value, raw string) error {
			fv.SetString(raw)
			return nil
		},
		reflect.Bool: func(fv reflect.Value, raw string) error {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return err
			}
			fv.SetBool(b)
			return nil
		},
		reflect.Float32: parseFloat,
		reflect.Float64: parseFloat,
		reflect.Slice:   parseList,
		reflect.Pointer: parsePointer,
	}

	for _, k := range []reflect.Kind{reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64} {
		parsers[k] = parseInt
	}
	for _, k := range []reflect.Kind{reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64} {
		parsers[k] = parseUint
	}
}

func assign(fv reflect.Value, raw string) error {
	if fv.CanAddr() {
		if u, ok := fv.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return u.UnmarshalText([]byte(raw))
		}
	}

	p, ok := parsers[fv.Kind()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, fv.Type())
	}

	return p(fv, raw)
}

func parseInt(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}

	i, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
	if err != nil {
		return err
	}
	fv.SetInt(i)

	return nil
}

func parseUint(fv reflect.Value, raw string) error {
	u, err := strconv.ParseUint(raw, 10, fv.Type().Bits())
	if err != nil {
		return err
	}
	fv.SetUint(u)

	return nil
}

func parseFloat(fv reflect.Value, raw string) error {
	f, err := strconv.ParseFloat(raw, fv.Type().Bits())
	if err != nil {
		return err
	}
	fv.SetFloat(f)

	return nil
}

func parseList(fv reflect.Value, raw string) error {
	parts := strings.Split(raw, ",")
	list := reflect.MakeSlice(fv.Type(), 0, len(parts))

	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		elem := reflect.New(fv.Type().Elem()).Elem()
		err := assign(elem, part)
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		list = reflect.Append(list, elem)
	}

	fv.Set(list)

	return nil
}

func parsePointer(fv reflect.Value, raw string) error {
	elem := reflect.New(fv.Type().Elem())

	err := assign(elem.Elem(), raw)
	if err != nil {
		return err
	}
	fv.Set(elem)

	return nil
}
