package webdavxml

import (
	"encoding/xml"
	"fmt"
	"io"
	"reflect"
	"strconv"

	"github.com/beevik/etree"
)

// Decoder wraps an encoding/xml.Decoder as the low-level tokenizer for the
// schema-directed codec. It never exposes encoding/xml's own struct-tag
// unmarshalling; that plumbing is reimplemented here so namespace
// resolution, tagged-field and untagged catch-all dispatch, and
// dead-property capture all go through one code path.
type Decoder struct {
	d *xml.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{d: xml.NewDecoder(r)}
}

// Unmarshal decodes a full XML document into v, which must be a pointer to
// a struct. It skips leading tokens (the XML declaration, whitespace) until
// it finds the document's root start element.
func Unmarshal(data []byte, v any) error {
	dec := NewDecoder(byteReader(data))
	return dec.Decode(v)
}

type byteReaderT struct {
	b []byte
	i int
}

func byteReader(b []byte) io.Reader { return &byteReaderT{b: b} }

func (r *byteReaderT) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}

// Decode reads the next start element from the stream and decodes it into v
// (a pointer). Use this directly when reading a root element off a shared
// stream (e.g. the HTTP request body) rather than a standalone buffer.
func (dec *Decoder) Decode(v any) error {
	for {
		tok, err := dec.d.Token()
		if err != nil {
			if err == io.EOF {
				return ErrEOF
			}
			return err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return dec.decodeElement(start, reflect.ValueOf(v))
		}
	}
}

func toName(n xml.Name) Name { return Name{Space: n.Space, Local: n.Local} }

// decodeElement decodes the element whose StartElement token has already
// been consumed (start) into the value pointed to by rv.
func (dec *Decoder) decodeElement(start xml.StartElement, rv reflect.Value) error {
	if rv.Kind() != reflect.Ptr {
		return fmt.Errorf("webdavxml: Decode target must be a pointer, got %s", rv.Type())
	}
	if rv.IsNil() {
		rv.Set(reflect.New(rv.Type().Elem()))
	}
	elem := rv.Elem()

	if vd, ok := rv.Interface().(ValueDeserialize); ok {
		text, err := dec.readTextAndSkip(start)
		if err != nil {
			return err
		}
		return vd.DeserializeValue(text)
	}

	switch elem.Kind() {
	case reflect.String:
		text, err := dec.readTextAndSkip(start)
		if err != nil {
			return err
		}
		elem.SetString(text)
		return nil
	case reflect.Bool:
		text, err := dec.readTextAndSkip(start)
		if err != nil {
			return err
		}
		b, err := strconv.ParseBool(text)
		if err != nil {
			return invalidValue(toName(start.Name), err.Error())
		}
		elem.SetBool(b)
		return nil
	case reflect.Int, reflect.Int32, reflect.Int64:
		text, err := dec.readTextAndSkip(start)
		if err != nil {
			return err
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return invalidValue(toName(start.Name), err.Error())
		}
		elem.SetInt(n)
		return nil
	case reflect.Struct:
		if elem.Type() == reflect.TypeOf(etree.Element{}) {
			return dec.captureVerbatim(start, elem.Addr().Interface().(*etree.Element))
		}
		return dec.decodeStruct(start, elem)
	}
	return fmt.Errorf("webdavxml: unsupported decode target kind %s", elem.Kind())
}

// decodeStruct walks the children of start, dispatching each to the field
// schema computed for elem's type.
func (dec *Decoder) decodeStruct(start xml.StartElement, elem reflect.Value) error {
	schema := schemaFor(elem.Type())

	if schema.tagNameIx >= 0 {
		fi := schema.fields[schema.tagNameIx]
		elem.FieldByIndex(fi.index).Set(reflect.ValueOf(toName(start.Name)))
	}

	for _, attr := range start.Attr {
		n := toName(attr.Name)
		if idx, ok := schema.attrs[n]; ok {
			if err := setLeafText(elem.FieldByIndex(schema.fields[idx].index), n, attr.Value); err != nil {
				return err
			}
		}
	}

	var textBuf []byte
	for {
		tok, err := dec.d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := toName(t.Name)
			idx, ok := schema.byTag[n]
			if !ok && n.Space == start.Name.Space {
				// a field tagged without a namespace inherits the parent's
				idx, ok = schema.byTag[Name{Local: n.Local}]
			}
			if ok {
				fi := schema.fields[idx]
				if err := dec.assignTagField(t, elem.FieldByIndex(fi.index), fi); err != nil {
					return err
				}
				continue
			}
			if schema.untagged >= 0 {
				fi := schema.fields[schema.untagged]
				if err := dec.assignTagField(t, elem.FieldByIndex(fi.index), fi); err != nil {
					return err
				}
				continue
			}
			if err := dec.d.Skip(); err != nil {
				return err
			}
		case xml.CharData:
			textBuf = append(textBuf, t...)
		case xml.EndElement:
			if schema.text >= 0 {
				fi := schema.fields[schema.text]
				if err := setLeafText(elem.FieldByIndex(fi.index), Name{}, string(textBuf)); err != nil {
					return err
				}
			}
			return nil
		}
	}
}

func isNilable(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return true
	}
	return false
}

// assignTagField decodes one child element into a field that may be a
// plain value, a pointer, or (if flatten) a slice collecting repeats.
func (dec *Decoder) assignTagField(start xml.StartElement, field reflect.Value, fi fieldInfo) error {
	if fi.flatten || field.Kind() == reflect.Slice {
		elemType := field.Type().Elem()
		ptr := reflect.New(elemType)
		if err := dec.decodeElement(start, ptr); err != nil {
			return err
		}
		field.Set(reflect.Append(field, ptr.Elem()))
		return nil
	}

	switch field.Kind() {
	case reflect.Ptr:
		ptr := reflect.New(field.Type().Elem())
		if err := dec.decodeElement(start, ptr); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	default:
		ptr := reflect.New(field.Type())
		if err := dec.decodeElement(start, ptr); err != nil {
			return err
		}
		field.Set(ptr.Elem())
		return nil
	}
}

// readTextAndSkip consumes all tokens of start's subtree and concatenates
// any character data, used for leaf scalar fields (string/bool/int/custom
// ValueDeserialize).
func (dec *Decoder) readTextAndSkip(start xml.StartElement) (string, error) {
	var buf []byte
	depth := 0
	for {
		tok, err := dec.d.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf = append(buf, t...)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return string(buf), nil
			}
			depth--
		}
	}
}

// captureVerbatim reads start's whole subtree into an etree.Element,
// preserving unknown ("dead") properties exactly as received so they can be
// stored and played back byte-for-byte on a later PROPFIND.
func (dec *Decoder) captureVerbatim(start xml.StartElement, out *etree.Element) error {
	sink := &etreeSink{}
	enc := xml.NewEncoder(sink)
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.d.Token()
		if err != nil {
			return err
		}
		if err := enc.EncodeToken(tok); err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(sink.buf); err != nil {
		return err
	}
	if root := doc.Root(); root != nil {
		*out = *root
	}
	return nil
}

// etreeSink is an io.Writer that accumulates bytes for etree.Document.ReadFromBytes.
type etreeSink struct {
	buf []byte
}

func (s *etreeSink) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func setLeafText(field reflect.Value, n Name, text string) error {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return setLeafText(field.Elem(), n, text)
	}
	if vd, ok := field.Addr().Interface().(ValueDeserialize); ok {
		return vd.DeserializeValue(text)
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(text)
	case reflect.Bool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return invalidValue(n, err.Error())
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return invalidValue(n, err.Error())
		}
		field.SetInt(i)
	default:
		return fmt.Errorf("webdavxml: no leaf decoder for kind %s", field.Kind())
	}
	return nil
}
