// Package schema describes the setup fields an indexer needs from the user
// and serializes them for display and for persistence. Every indexer type
// declares a static ordered field list; the field ID derived from the display
// name is the join key between submitted payloads and the schema, and is part
// of the persisted configuration format.
package schema

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/Appsum/JackettCore/internal/protect"
)

// FieldType identifies how a field is rendered and serialized.
type FieldType string

const (
	TypeText      FieldType = "inputstring"
	TypeBool      FieldType = "inputbool"
	TypeHidden    FieldType = "hiddendata"
	TypeInfo      FieldType = "displayinfo"
	TypeImage     FieldType = "displayimage"
	TypeChallenge FieldType = "challenge"
)

// PasswordMask is emitted in place of a stored secret in display payloads.
// A submitted value equal to the mask means "keep the previous secret".
const PasswordMask = "|||%%UNCHANGEDPASSWD%%|||"

const imageMIME = "image/jpeg"

// Field is one typed, named setup item.
type Field struct {
	Type    FieldType
	Name    string
	Value   string
	Checked bool   // bool fields
	Cookie  string // challenge fields: session cookie issued with the token
	SiteKey string // challenge fields
	Image   []byte // image fields
}

// ID returns the stable identifier for the field: the display name
// lower-cased with all whitespace removed.
func (f *Field) ID() string {
	return strings.ToLower(strings.Join(strings.Fields(f.Name), ""))
}

// Secret reports whether the field holds a secret value. Matching the display
// name against the literal word "password" preserves the historical format of
// persisted configurations; see the schema docs for the trade-off.
func (f *Field) Secret() bool {
	return f.Type == TypeText && strings.EqualFold(f.Name, "password")
}

// Field constructors for indexer setup declarations.

func Text(name string) *Field          { return &Field{Type: TypeText, Name: name} }
func Bool(name string, v bool) *Field  { return &Field{Type: TypeBool, Name: name, Checked: v} }
func Hidden(name string) *Field        { return &Field{Type: TypeHidden, Name: name} }
func Info(name, text string) *Field    { return &Field{Type: TypeInfo, Name: name, Value: text} }
func Image(name string) *Field         { return &Field{Type: TypeImage, Name: name} }
func Challenge(name string) *Field     { return &Field{Type: TypeChallenge, Name: name} }

// ValidationError reports a malformed configuration payload.
type ValidationError struct {
	FieldID string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.FieldID != "" {
		return fmt.Sprintf("invalid configuration value for %q: %s", e.FieldID, e.Reason)
	}
	return "invalid configuration payload: " + e.Reason
}

// FieldValue is the wire form of one field in a configuration payload.
type FieldValue struct {
	ID      string    `json:"id"`
	Type    FieldType `json:"type"`
	Name    string    `json:"name"`
	Value   any       `json:"value"`
	Cookie  string    `json:"cookie,omitempty"`
	SiteKey string    `json:"sitekey,omitempty"`
}

// Payload is an ordered configuration payload.
type Payload []FieldValue

// Schema is the ordered set of setup fields for one indexer instance.
// Every schema carries an implicit CookieHeader hidden field used to persist
// the session cookie across restarts.
type Schema struct {
	fields       []*Field
	byID         map[string]*Field
	cookieHeader *Field
}

// New builds a schema from the given fields plus the implicit CookieHeader
// field. It fails when two fields collapse to the same identifier; indexer
// constructors run at startup, so a collision surfaces immediately.
func New(fields ...*Field) (*Schema, error) {
	cookie := Hidden("CookieHeader")
	all := make([]*Field, 0, len(fields)+1)
	all = append(all, cookie)
	all = append(all, fields...)

	byID := make(map[string]*Field, len(all))
	for _, f := range all {
		id := f.ID()
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("schema: duplicate field id %q", id)
		}
		byID[id] = f
	}

	return &Schema{fields: all, byID: byID, cookieHeader: cookie}, nil
}

// MustNew is New for statically known field lists.
func MustNew(fields ...*Field) *Schema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Field looks up a field by its identifier.
func (s *Schema) Field(id string) (*Field, bool) {
	f, ok := s.byID[id]
	return f, ok
}

// Fields returns the ordered field list.
func (s *Schema) Fields() []*Field {
	return s.fields
}

// CookieHeader returns the implicit session-cookie field.
func (s *Schema) CookieHeader() *Field {
	return s.cookieHeader
}

// Clone returns a deep copy of the schema, used for last-known-good snapshots.
func (s *Schema) Clone() *Schema {
	out := &Schema{
		fields: make([]*Field, 0, len(s.fields)),
		byID:   make(map[string]*Field, len(s.fields)),
	}
	for _, f := range s.fields {
		c := *f
		if f.Image != nil {
			c.Image = append([]byte(nil), f.Image...)
		}
		out.fields = append(out.fields, &c)
		out.byID[c.ID()] = &c
		if f == s.cookieHeader {
			out.cookieHeader = &c
		}
	}
	return out
}

// Restore copies all field values from a previously cloned snapshot.
func (s *Schema) Restore(snapshot *Schema) {
	for _, f := range s.fields {
		if prev, ok := snapshot.byID[f.ID()]; ok {
			f.Value = prev.Value
			f.Checked = prev.Checked
			f.Cookie = prev.Cookie
			if prev.Image != nil {
				f.Image = append([]byte(nil), prev.Image...)
			} else {
				f.Image = nil
			}
		}
	}
}

// Load applies a submitted or persisted payload onto the schema. Payload
// entries with unknown identifiers are ignored; schema fields absent from the
// payload keep their prior values. For a secret text field, the mask value
// means "no change"; any other value replaces the stored secret, run through
// the protector so persisted ciphertext and fresh plaintext both load.
func (s *Schema) Load(payload Payload, p protect.Protector) error {
	for _, fv := range payload {
		f, ok := s.byID[fv.ID]
		if !ok {
			continue
		}

		switch f.Type {
		case TypeText:
			v, err := stringValue(fv)
			if err != nil {
				return err
			}
			if f.Secret() {
				if v == PasswordMask {
					continue
				}
				if p != nil {
					plain, err := p.Unprotect(v)
					if err != nil {
						return &ValidationError{FieldID: fv.ID, Reason: "cannot decrypt stored secret"}
					}
					v = plain
				}
			}
			f.Value = v

		case TypeHidden, TypeInfo:
			v, err := stringValue(fv)
			if err != nil {
				return err
			}
			f.Value = v

		case TypeBool:
			v, ok := fv.Value.(bool)
			if !ok {
				return &ValidationError{FieldID: fv.ID, Reason: "expected a boolean value"}
			}
			f.Checked = v

		case TypeChallenge:
			v, err := stringValue(fv)
			if err != nil {
				return err
			}
			f.Value = v
			f.Cookie = fv.Cookie

		case TypeImage:
			v, err := stringValue(fv)
			if err != nil {
				return err
			}
			img, err := decodeDataURL(v)
			if err != nil {
				return &ValidationError{FieldID: fv.ID, Reason: "expected an image data URL"}
			}
			f.Image = img
		}
	}
	return nil
}

// Payload serializes the schema. The display form masks secrets and omits
// hidden and image fields; the persisted form emits every field with secrets
// encrypted when a protector is supplied. Loading the persisted form back
// restores the original values exactly.
func (s *Schema) Payload(p protect.Protector, forDisplay bool) (Payload, error) {
	out := make(Payload, 0, len(s.fields))
	for _, f := range s.fields {
		if forDisplay && (f.Type == TypeHidden || f.Type == TypeImage) {
			continue
		}

		fv := FieldValue{ID: f.ID(), Type: f.Type, Name: f.Name}

		switch f.Type {
		case TypeText:
			v := f.Value
			if f.Secret() && v != "" {
				if forDisplay {
					v = PasswordMask
				} else if p != nil {
					enc, err := p.Protect(v)
					if err != nil {
						return nil, fmt.Errorf("protect field %q: %w", fv.ID, err)
					}
					v = enc
				}
			}
			fv.Value = v
		case TypeHidden, TypeInfo:
			fv.Value = f.Value
		case TypeBool:
			fv.Value = f.Checked
		case TypeChallenge:
			fv.Value = f.Value
			fv.Cookie = f.Cookie
			fv.SiteKey = f.SiteKey
		case TypeImage:
			fv.Value = encodeDataURL(f.Image)
		}

		out = append(out, fv)
	}
	return out, nil
}

func stringValue(fv FieldValue) (string, error) {
	if fv.Value == nil {
		return "", nil
	}
	v, ok := fv.Value.(string)
	if !ok {
		return "", &ValidationError{FieldID: fv.ID, Reason: "expected a string value"}
	}
	return v, nil
}

func encodeDataURL(img []byte) string {
	if len(img) == 0 {
		return ""
	}
	return "data:" + imageMIME + ";base64," + base64.StdEncoding.EncodeToString(img)
}

func decodeDataURL(v string) ([]byte, error) {
	if v == "" {
		return nil, nil
	}
	idx := strings.Index(v, ";base64,")
	if !strings.HasPrefix(v, "data:") || idx < 0 {
		return nil, fmt.Errorf("not a data URL")
	}
	return base64.StdEncoding.DecodeString(v[idx+len(";base64,"):])
}
