package schema

import (
	"encoding"
	"encoding/base64"
	"reflect"
	"strconv"
	"unicode/utf8"

	"cogentcore.org/core/base/reflectx"

	"github.com/matzehuels/persist/pkg/errors"
)

// FormatValue returns the text form of a Primitive value.
// ok is false when v is a nil pointer or nil byte slice, which callers omit.
func FormatValue(v reflect.Value) (s string, ok bool, err error) {
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return "", false, nil
	}
	if tm, isText := asMarshaler(v); isText {
		b, err := tm.MarshalText()
		if err != nil {
			return "", false, errors.Wrap(errors.ErrCodeSerialization, err, "format %s", v.Type())
		}
		return validText(v.Type(), string(b))
	}
	v = reflectx.NonPointerValue(v)
	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10), true, nil
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32), true, nil
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), true, nil
	case reflect.String:
		return validText(v.Type(), v.String())
	case reflect.Slice:
		if v.IsNil() {
			return "", false, nil
		}
		return base64.StdEncoding.EncodeToString(v.Bytes()), true, nil
	}
	return "", false, errors.Serialization("cannot format %s as text", v.Type())
}

// validText rejects text that no codec can carry unchanged. Byte data
// belongs in a []byte member, which is written as base64.
func validText(t reflect.Type, s string) (string, bool, error) {
	if !utf8.ValidString(s) {
		return "", false, errors.Serialization("%s value %q is not valid UTF-8", t, s)
	}
	return s, true, nil
}

func asMarshaler(v reflect.Value) (encoding.TextMarshaler, bool) {
	if v.Type().Implements(textMarshalerType) {
		return v.Interface().(encoding.TextMarshaler), true
	}
	if v.Kind() != reflect.Pointer && reflect.PointerTo(v.Type()).Implements(textMarshalerType) {
		return reflectx.PointerValue(v).Interface().(encoding.TextMarshaler), true
	}
	return nil, false
}

// ParseValue parses s into dst, which must be settable.
// Pointer destinations are allocated.
func ParseValue(s string, dst reflect.Value) error {
	if dst.Kind() == reflect.Pointer {
		p := reflect.New(dst.Type().Elem())
		if err := ParseValue(s, p.Elem()); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}
	if u, ok := dst.Addr().Interface().(encoding.TextUnmarshaler); ok {
		if err := u.UnmarshalText([]byte(s)); err != nil {
			return errors.Wrap(errors.ErrCodeSerialization, err, "invalid %s value %q", dst.Type(), s)
		}
		return nil
	}

	var err error
	switch dst.Kind() {
	case reflect.Bool:
		var b bool
		if b, err = strconv.ParseBool(s); err == nil {
			dst.SetBool(b)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		if n, err = strconv.ParseInt(s, 10, dst.Type().Bits()); err == nil {
			dst.SetInt(n)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		var n uint64
		if n, err = strconv.ParseUint(s, 10, dst.Type().Bits()); err == nil {
			dst.SetUint(n)
		}
	case reflect.Float32, reflect.Float64:
		var f float64
		if f, err = strconv.ParseFloat(s, dst.Type().Bits()); err == nil {
			dst.SetFloat(f)
		}
	case reflect.String:
		dst.SetString(s)
	case reflect.Slice:
		var b []byte
		if b, err = base64.StdEncoding.DecodeString(s); err == nil {
			dst.SetBytes(b)
		}
	default:
		return errors.Serialization("cannot parse text into %s", dst.Type())
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeSerialization, err, "invalid %s value %q", dst.Type(), s)
	}
	return nil
}
