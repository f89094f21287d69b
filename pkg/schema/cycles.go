package schema

import "github.com/matzehuels/persist/pkg/errors"

const (
	white = iota
	gray
	black
)

// checkCycles rejects schemas whose non-reference object members form a
// cycle. Edges through sequence and mapping items are not followed: a
// collection may be empty, so recursive trees such as a node holding a
// slice of child nodes terminate.
func checkCycles(objects []*ObjectSchema) error {
	color := make(map[*ObjectSchema]int, len(objects))

	var visit func(o *ObjectSchema) error
	visit = func(o *ObjectSchema) error {
		color[o] = gray
		for _, v := range o.Variants {
			for _, m := range v.Members {
				if m.Kind != Object || m.IsReference {
					continue
				}
				switch color[m.Object] {
				case gray:
					return errors.Schema("cycle through member %s.%s (type %s): mark a member on the cycle as ref",
						m.DeclaringType.Name(), m.Field, m.Type)
				case white:
					if err := visit(m.Object); err != nil {
						return err
					}
				}
			}
		}
		color[o] = black
		return nil
	}

	for _, o := range objects {
		if color[o] == white {
			if err := visit(o); err != nil {
				return err
			}
		}
	}
	return nil
}
