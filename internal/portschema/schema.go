// Package portschema describes the structural shape of values flowing
// across a workflow edge and the compatibility predicate used to
// validate that an edge's source can feed its target.
package portschema

import "encoding/json"

// Kind identifies which shape variant a Schema holds.
type Kind string

const (
	KindAny     Kind = "any"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindJSON    Kind = "json"
)

// Schema is a union of the port shapes the engine understands. Array
// and Object carry nested schemas; JSON carries an opaque raw document
// used only for structural equality against another JSON schema.
type Schema struct {
	Kind Kind `json:"kind"`

	// Array only: the element schema. Nil means "any".
	Inner *Schema `json:"inner,omitempty"`

	// Object only: named fields and whether each is required.
	Fields map[string]Field `json:"fields,omitempty"`

	// JSON only: the raw schema document, compared structurally.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Field is one named member of an Object schema.
type Field struct {
	Schema   Schema `json:"schema"`
	Required bool   `json:"required"`
}

// Any returns the universal schema, compatible with everything and
// accepted by everything.
func Any() Schema { return Schema{Kind: KindAny} }

// String returns the string primitive schema.
func String() Schema { return Schema{Kind: KindString} }

// Number returns the number primitive schema.
func Number() Schema { return Schema{Kind: KindNumber} }

// Boolean returns the boolean primitive schema.
func Boolean() Schema { return Schema{Kind: KindBoolean} }

// Array returns an array schema with the given element schema. Pass
// Any() for an array of unconstrained elements.
func Array(inner Schema) Schema {
	return Schema{Kind: KindArray, Inner: &inner}
}

// Object returns an object schema with the given fields.
func Object(fields map[string]Field) Schema {
	return Schema{Kind: KindObject, Fields: fields}
}

// JSON returns a raw JSON-schema document wrapper.
func JSON(raw json.RawMessage) Schema {
	return Schema{Kind: KindJSON, Raw: raw}
}

// IsCompatibleWith reports whether any value conforming to s also
// conforms to other — i.e. whether an edge from a port typed s to a
// port typed other is structurally sound.
//
// Rules, in order: other == any is always compatible; json(raw)
// schemas are compared structurally against another json(raw) schema
// and are any-compatible against every other kind; the same primitive
// kind is always compatible with itself; arrays are compatible if
// their (absent-as-any) inner schemas are compatible; objects are
// compatible field-wise with width subtyping — every field other
// requires must be present on s with a compatible schema, extra fields
// on s are ignored.
func (s Schema) IsCompatibleWith(other Schema) bool {
	if other.Kind == KindAny {
		return true
	}
	if other.Kind == KindJSON {
		if s.Kind != KindJSON {
			return s.Kind == KindAny
		}
		return jsonEqual(s.Raw, other.Raw)
	}
	if s.Kind == KindJSON {
		// json source is only directly compatible with any/json,
		// handled above; against a concrete target it fails.
		return false
	}
	if s.Kind == KindAny {
		// any is universal: it is compatible with every target, since
		// a value already typed any might conform to anything.
		return true
	}

	switch other.Kind {
	case KindString, KindNumber, KindBoolean:
		return s.Kind == other.Kind
	case KindArray:
		if s.Kind != KindArray {
			return false
		}
		return s.innerOrAny().IsCompatibleWith(other.innerOrAny())
	case KindObject:
		if s.Kind != KindObject {
			return false
		}
		for name, otherField := range other.Fields {
			if !otherField.Required {
				continue
			}
			selfField, ok := s.Fields[name]
			if !ok {
				return false
			}
			if !selfField.Schema.IsCompatibleWith(otherField.Schema) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (s Schema) innerOrAny() Schema {
	if s.Inner == nil {
		return Any()
	}
	return *s.Inner
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv interface{}
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return deepEqual(av, bv)
}

func deepEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !deepEqual(v, bvv) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
