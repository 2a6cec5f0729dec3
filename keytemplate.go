package cachify

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// KeyTemplate renders store keys from a pattern with named placeholders,
// e.g. "read_user-{ID}" or "order-{Order.ID}". It is parsed once at wrap
// time and reused for every call.
//
// Rendering is pure and deterministic: it performs no I/O, so a key can be
// computed speculatively before deciding whether to touch the store.
type KeyTemplate struct {
	raw      string
	segments []keySegment
}

type keySegment struct {
	literal string
	// path is non-empty for placeholder segments: the dotted path split
	// into elements ("Order.ID" -> ["Order", "ID"]).
	path []string
}

// maxPathDepth bounds placeholder path walking so failure modes stay
// enumerable instead of devolving into open-ended introspection.
const maxPathDepth = 8

// ParseKeyTemplate parses a key template. Placeholder names must be
// non-empty dotted identifiers; braces must balance.
func ParseKeyTemplate(raw string) (*KeyTemplate, error) {
	t := &KeyTemplate{raw: raw}
	rest := raw
	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.IndexByte(rest, '}') >= 0 {
				return nil, &KeyResolutionError{Template: raw, Reason: "unmatched '}'"}
			}
			t.segments = append(t.segments, keySegment{literal: rest})
			break
		}
		if open > 0 {
			lit := rest[:open]
			if strings.IndexByte(lit, '}') >= 0 {
				return nil, &KeyResolutionError{Template: raw, Reason: "unmatched '}'"}
			}
			t.segments = append(t.segments, keySegment{literal: lit})
		}
		rest = rest[open+1:]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return nil, &KeyResolutionError{Template: raw, Reason: "unmatched '{'"}
		}
		name := rest[:end]
		path, err := splitPlaceholderPath(raw, name)
		if err != nil {
			return nil, err
		}
		t.segments = append(t.segments, keySegment{path: path})
		rest = rest[end+1:]
	}
	if len(t.segments) == 0 {
		return nil, &KeyResolutionError{Template: raw, Reason: "template is empty"}
	}
	return t, nil
}

// MustParseKeyTemplate is ParseKeyTemplate for templates known at compile
// time; it panics on malformed input.
func MustParseKeyTemplate(raw string) *KeyTemplate {
	t, err := ParseKeyTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Raw returns the original template string.
func (t *KeyTemplate) Raw() string { return t.raw }

// Render substitutes each placeholder with the string form of the matching
// field of arg. arg may be a struct (exported fields, optionally renamed via
// a `cachify:"..."` tag), a string-keyed map, or any nesting of the two
// behind pointers/interfaces. Terminal values must be scalar.
func (t *KeyTemplate) Render(arg any) (string, error) {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.path == nil {
			b.WriteString(seg.literal)
			continue
		}
		v := reflect.ValueOf(arg)
		for _, elem := range seg.path {
			var err error
			v, err = walkPathElement(v, elem)
			if err != nil {
				return "", &KeyResolutionError{
					Template:    t.raw,
					Placeholder: strings.Join(seg.path, "."),
					Reason:      err.Error(),
				}
			}
		}
		s, err := stringifyKeyValue(v)
		if err != nil {
			return "", &KeyResolutionError{
				Template:    t.raw,
				Placeholder: strings.Join(seg.path, "."),
				Reason:      err.Error(),
			}
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func splitPlaceholderPath(template, name string) ([]string, error) {
	if name == "" {
		return nil, &KeyResolutionError{Template: template, Reason: "empty placeholder"}
	}
	path := strings.Split(name, ".")
	if len(path) > maxPathDepth {
		return nil, &KeyResolutionError{Template: template, Placeholder: name, Reason: "path too deep"}
	}
	for _, elem := range path {
		if !isIdent(elem) {
			return nil, &KeyResolutionError{Template: template, Placeholder: name, Reason: fmt.Sprintf("invalid path element %q", elem)}
		}
	}
	return path, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// walkPathElement resolves one path element against v: deref pointers and
// interfaces, then index a string-keyed map or look up a struct field by
// name or by its cachify tag.
func walkPathElement(v reflect.Value, elem string) (reflect.Value, error) {
	v, err := derefValue(v)
	if err != nil {
		return reflect.Value{}, err
	}
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, fmt.Errorf("map key type %s is not string", v.Type().Key())
		}
		got := v.MapIndex(reflect.ValueOf(elem).Convert(v.Type().Key()))
		if !got.IsValid() {
			return reflect.Value{}, fmt.Errorf("map has no key %q", elem)
		}
		return got, nil
	case reflect.Struct:
		if f := v.FieldByName(elem); f.IsValid() && isExportedField(v.Type(), elem) {
			return f, nil
		}
		typ := v.Type()
		for i := 0; i < typ.NumField(); i++ {
			field := typ.Field(i)
			if !field.IsExported() {
				continue
			}
			if tag, ok := field.Tag.Lookup("cachify"); ok && tag == elem {
				return v.Field(i), nil
			}
		}
		return reflect.Value{}, fmt.Errorf("no field or cachify tag %q on %s", elem, typ)
	default:
		return reflect.Value{}, fmt.Errorf("cannot descend into %s", v.Kind())
	}
}

func isExportedField(typ reflect.Type, name string) bool {
	field, ok := typ.FieldByName(name)
	return ok && field.IsExported()
}

func derefValue(v reflect.Value) (reflect.Value, error) {
	for depth := 0; v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface; depth++ {
		if depth > maxPathDepth {
			return reflect.Value{}, fmt.Errorf("pointer chain too deep")
		}
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil value along path")
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("invalid value along path")
	}
	return v, nil
}

// stringifyKeyValue converts a terminal placeholder value to its key form.
// Only scalars are allowed: composite values have no stable string form and
// would make keys non-deterministic.
func stringifyKeyValue(v reflect.Value) (string, error) {
	v, err := derefValue(v)
	if err != nil {
		return "", err
	}
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("value of kind %s is not a scalar", v.Kind())
	}
}
