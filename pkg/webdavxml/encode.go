package webdavxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"reflect"
	"strconv"

	"github.com/beevik/etree"
)

// Encoder wraps an encoding/xml.Encoder, adding the namespace-prefix
// bookkeeping and field-schema dispatch the struct-tag codec needs.
type Encoder struct {
	buf   *bytes.Buffer
	enc   *xml.Encoder
	ns    map[string]string // namespace URI -> prefix, declared on the root
}

// Marshal encodes v (a struct value, not a pointer) as a complete XML
// document rooted at root.Name, declaring root.Prefixes' namespaces on the
// root element the way every multistatus/error response in this protocol
// does.
func Marshal(v any, root Root) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString(xml.Header)
	e := &Encoder{buf: buf, enc: xml.NewEncoder(buf), ns: root.prefixes()}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if !rv.CanAddr() {
		tmp := reflect.New(rv.Type())
		tmp.Elem().Set(rv)
		rv = tmp.Elem()
	}

	start := e.startElement(root.Name, true)
	if err := e.enc.EncodeToken(start); err != nil {
		return nil, err
	}
	if err := e.encodeValue(rv); err != nil {
		return nil, err
	}
	if err := e.enc.EncodeToken(start.End()); err != nil {
		return nil, err
	}
	if err := e.enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fromName(n Name) xml.Name { return xml.Name{Space: n.Space, Local: n.Local} }

// startElement builds the xml.StartElement for n, attaching xmlns
// declarations when root is true (the outermost call only — nested elements
// reuse the root's declared prefixes without re-declaring them).
func (e *Encoder) startElement(n Name, root bool) xml.StartElement {
	start := xml.StartElement{Name: fromName(n)}
	if root {
		for uri, prefix := range e.ns {
			attrName := xml.Name{Local: "xmlns"}
			if prefix != "" {
				attrName = xml.Name{Space: "xmlns", Local: prefix}
			}
			start.Attr = append(start.Attr, xml.Attr{Name: attrName, Value: uri})
		}
	}
	return start
}

func (e *Encoder) encodeNamed(n Name, v reflect.Value) error {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	start := e.startElement(n, false)

	if vs, ok := addrInterface(v).(ValueSerialize); ok {
		text, err := vs.SerializeValue()
		if err != nil {
			return err
		}
		if err := e.enc.EncodeToken(start); err != nil {
			return err
		}
		if text != "" {
			if err := e.enc.EncodeToken(xml.CharData(text)); err != nil {
				return err
			}
		}
		return e.enc.EncodeToken(start.End())
	}

	switch v.Kind() {
	case reflect.String:
		if err := e.enc.EncodeToken(start); err != nil {
			return err
		}
		if err := e.enc.EncodeToken(xml.CharData(v.String())); err != nil {
			return err
		}
		return e.enc.EncodeToken(start.End())
	case reflect.Bool:
		if err := e.enc.EncodeToken(start); err != nil {
			return err
		}
		if err := e.enc.EncodeToken(xml.CharData(strconv.FormatBool(v.Bool()))); err != nil {
			return err
		}
		return e.enc.EncodeToken(start.End())
	case reflect.Int, reflect.Int32, reflect.Int64:
		if err := e.enc.EncodeToken(start); err != nil {
			return err
		}
		if err := e.enc.EncodeToken(xml.CharData(strconv.FormatInt(v.Int(), 10))); err != nil {
			return err
		}
		return e.enc.EncodeToken(start.End())
	case reflect.Struct:
		if v.Type() == reflect.TypeOf(etree.Element{}) {
			return e.encodeVerbatim(v.Addr().Interface().(*etree.Element))
		}
		schema := schemaFor(v.Type())
		start.Attr = append(start.Attr, e.encodeAttrs(schema, v)...)
		if err := e.enc.EncodeToken(start); err != nil {
			return err
		}
		if err := e.encodeChildren(schema, v); err != nil {
			return err
		}
		return e.enc.EncodeToken(start.End())
	default:
		return fmt.Errorf("webdavxml: no encoder for kind %s", v.Kind())
	}
}

// encodeValue encodes v's children directly into the currently open parent
// element (used for the document root, whose own start/end tags are written
// by Marshal).
func (e *Encoder) encodeValue(v reflect.Value) error {
	schema := schemaFor(v.Type())
	return e.encodeChildren(schema, v)
}

func (e *Encoder) encodeAttrs(schema *typeSchema, v reflect.Value) []xml.Attr {
	var attrs []xml.Attr
	for n, idx := range schema.attrs {
		fi := schema.fields[idx]
		field := v.FieldByIndex(fi.index)
		if fi.omitempty && field.IsZero() {
			continue
		}
		text := leafText(field)
		attrs = append(attrs, xml.Attr{Name: fromName(n), Value: text})
	}
	return attrs
}

func (e *Encoder) encodeChildren(schema *typeSchema, v reflect.Value) error {
	for _, fi := range schema.fields {
		field := v.FieldByIndex(fi.index)
		switch fi.kind {
		case kindTag:
			if fi.flatten || field.Kind() == reflect.Slice {
				for i := 0; i < field.Len(); i++ {
					if err := e.encodeNamed(fi.name, field.Index(i)); err != nil {
						return err
					}
				}
				continue
			}
			if fi.omitempty && field.IsZero() {
				continue
			}
			if field.Kind() == reflect.Ptr && field.IsNil() {
				continue
			}
			if err := e.encodeNamed(fi.name, field); err != nil {
				return err
			}
		case kindUntagged:
			if field.Kind() == reflect.Slice {
				for i := 0; i < field.Len(); i++ {
					if err := e.encodeUntagged(field.Index(i)); err != nil {
						return err
					}
				}
				continue
			}
			if field.Kind() == reflect.Ptr && field.IsNil() {
				continue
			}
			if err := e.encodeUntagged(field); err != nil {
				return err
			}
		case kindText:
			if err := e.enc.EncodeToken(xml.CharData(leafText(field))); err != nil {
				return err
			}
		}
	}
	return nil
}

// encodeUntagged writes a child whose name comes from the value itself (an
// etree.Element dead property, or a struct that knows its own Name via a
// kindTagName field) rather than from the parent's schema.
func (e *Encoder) encodeUntagged(v reflect.Value) error {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Type() == reflect.TypeOf(etree.Element{}) {
		return e.encodeVerbatim(v.Addr().Interface().(*etree.Element))
	}
	if v.Kind() == reflect.Struct {
		schema := schemaFor(v.Type())
		if schema.tagNameIx >= 0 {
			n := v.FieldByIndex(schema.fields[schema.tagNameIx].index).Interface().(Name)
			return e.encodeNamed(n, v)
		}
	}
	return fmt.Errorf("webdavxml: untagged field of kind %s has no derivable element name", v.Kind())
}

// encodeVerbatim replays a captured dead-property subtree byte-for-byte.
func (e *Encoder) encodeVerbatim(el *etree.Element) error {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	raw, err := doc.WriteToBytes()
	if err != nil {
		return err
	}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if err := e.enc.EncodeToken(xml.CopyToken(tok)); err != nil {
			return err
		}
	}
	return nil
}

func addrInterface(v reflect.Value) any {
	if !v.CanAddr() {
		return nil
	}
	return v.Addr().Interface()
}

func leafText(v reflect.Value) string {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if vs, ok := addrInterface(v).(ValueSerialize); ok {
		text, _ := vs.SerializeValue()
		return text
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	}
	return fmt.Sprint(v.Interface())
}
