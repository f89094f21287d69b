package schema

import (
	"reflect"
	"strings"

	"github.com/matzehuels/persist/pkg/errors"
)

// TagKey is the struct tag key read by the schema builder.
const TagKey = "persist"

// MetadataProvider lets a type keep its persistence annotations on a
// separate shadow struct. PersistMetadata returns a value (or pointer) of a
// struct whose fields share names with the real type's fields; their
// `persist` tags replace the real fields' tags. Fields absent from the shadow
// keep their own tags.
type MetadataProvider interface {
	PersistMetadata() any
}

var metadataProviderType = reflect.TypeFor[MetadataProvider]()

// fieldTag holds the parsed options of one `persist` struct tag.
type fieldTag struct {
	name     string
	named    bool
	ignore   bool
	ref      bool
	inline   bool
	readonly bool
	child    string
	key      string
	value    string
	entry    string
}

// parseTag parses a tag of the form
//
//	Name,ref,inline,readonly,child=Item,key=K,value=V,entry=E
//
// Every part is optional. A lone "-" excludes the field.
func parseTag(tag string) (fieldTag, error) {
	var ft fieldTag
	if tag == "-" {
		ft.ignore = true
		return ft, nil
	}
	if tag == "" {
		return ft, nil
	}
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		ft.name = parts[0]
		ft.named = true
	}
	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		k, v, hasValue := strings.Cut(opt, "=")
		switch {
		case opt == "":
		case opt == "ref":
			ft.ref = true
		case opt == "inline":
			ft.inline = true
		case opt == "readonly":
			ft.readonly = true
		case hasValue && k == "child":
			ft.child = v
		case hasValue && k == "key":
			ft.key = v
		case hasValue && k == "value":
			ft.value = v
		case hasValue && k == "entry":
			ft.entry = v
		default:
			return ft, errors.Schema("unknown tag option %q in %q", opt, tag)
		}
	}
	for _, n := range []string{ft.name, ft.child, ft.key, ft.value, ft.entry} {
		if n == "" {
			continue
		}
		if err := errors.ValidateName(n); err != nil {
			return ft, errors.Wrap(errors.ErrCodeSchema, err, "invalid name in tag %q", tag)
		}
	}
	return ft, nil
}

// shadowType returns the struct type holding annotations for t, or nil.
func (r *Registry) shadowType(t reflect.Type) reflect.Type {
	r.mu.Lock()
	shadow, ok := r.metadata[t]
	r.mu.Unlock()
	if ok {
		return shadow
	}
	if !reflect.PointerTo(t).Implements(metadataProviderType) {
		return nil
	}
	md := reflect.New(t).Interface().(MetadataProvider).PersistMetadata()
	if md == nil {
		return nil
	}
	st := reflect.TypeOf(md)
	for st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil
	}
	return st
}

// lookupTag returns the effective `persist` tag of field f.
func lookupTag(f reflect.StructField, shadow reflect.Type) string {
	if shadow != nil {
		if sf, ok := shadow.FieldByName(f.Name); ok {
			return sf.Tag.Get(TagKey)
		}
	}
	return f.Tag.Get(TagKey)
}
