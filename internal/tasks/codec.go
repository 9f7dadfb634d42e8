package tasks

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Format names a wire format a payload can be carried in.
type Format string

const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
	FormatCBOR Format = "cbor"
)

const (
	mediaJSON = "application/json"
	mediaXML  = "application/xml"
	mediaCBOR = "application/cbor"
)

// Codec converts between records and one wire format.
//
// Decode reports false when the payload cannot be used: malformed input,
// a top level that is not an object, trailing garbage. It never panics.
// Encode accepts a Record or a []Record.
type Codec interface {
	Format() Format
	ContentType() string
	Decode(data []byte) (Record, bool)
	Encode(v any) ([]byte, error)
}

var codecs = map[Format]Codec{
	FormatJSON: jsonCodec{},
	FormatXML:  xmlCodec{},
	FormatCBOR: newCBORCodec(),
}

// CodecFor returns the codec registered for f.
func CodecFor(f Format) (Codec, bool) {
	c, ok := codecs[f]
	return c, ok
}

var errUnsupportedValue = errors.New("unsupported value")

// ---- JSON ----

type jsonCodec struct{}

func (jsonCodec) Format() Format      { return FormatJSON }
func (jsonCodec) ContentType() string { return mediaJSON }

func (jsonCodec) Decode(data []byte) (Record, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil || rec == nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}

	return rec, true
}

func (jsonCodec) Encode(v any) ([]byte, error) {
	switch x := v.(type) {
	case Record:
		return json.Marshal(x)
	case []Record:
		if x == nil {
			x = []Record{}
		}
		return json.Marshal(x)
	default:
		return nil, fmt.Errorf("json: %w %T", errUnsupportedValue, v)
	}
}

// ---- XML ----

const (
	xmlListTag   = "tasks"
	xmlRecordTag = "task"
)

type xmlCodec struct{}

func (xmlCodec) Format() Format      { return FormatXML }
func (xmlCodec) ContentType() string { return mediaXML }

// Decode reads the direct children of the root element as fields. Every
// value arrives as text, except completed, which is true only for the text
// "true" in any case.
func (xmlCodec) Decode(data []byte) (Record, bool) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	rec := Record{}
	var (
		depth    int
		seenRoot bool
		key      string
		text     strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				if seenRoot {
					return nil, false
				}
				seenRoot = true
			}
			if depth == 2 {
				key = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			switch depth {
			case 0:
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, false
				}
			case 2:
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				rec[key] = text.String()
			}
			depth--
		}
	}

	if !seenRoot {
		return nil, false
	}

	if v, ok := rec["completed"]; ok {
		s, _ := v.(string)
		rec["completed"] = strings.EqualFold(s, "true")
	}

	return rec, true
}

func (xmlCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	switch x := v.(type) {
	case Record:
		if err := encodeXMLRecord(enc, x); err != nil {
			return nil, err
		}
	case []Record:
		list := xml.StartElement{Name: xml.Name{Local: xmlListTag}}
		if err := enc.EncodeToken(list); err != nil {
			return nil, err
		}
		for _, rec := range x {
			if err := encodeXMLRecord(enc, rec); err != nil {
				return nil, err
			}
		}
		if err := enc.EncodeToken(list.End()); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("xml: %w %T", errUnsupportedValue, v)
	}

	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeXMLRecord(enc *xml.Encoder, rec Record) error {
	start := xml.StartElement{Name: xml.Name{Local: xmlRecordTag}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, k := range rec.keys() {
		field := xml.StartElement{Name: xml.Name{Local: k}}
		if err := enc.EncodeElement(textOf(rec[k]), field); err != nil {
			return fmt.Errorf("xml field %q: %w", k, err)
		}
	}
	return enc.EncodeToken(start.End())
}

// ---- CBOR ----

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("tasks: CBOR encoder initialization failed: " + err.Error())
	}

	// Records only ever have text keys; decode untyped maps as
	// map[string]any so nested values look the same as in JSON.
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("tasks: CBOR decoder initialization failed: " + err.Error())
	}

	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Format() Format      { return FormatCBOR }
func (cborCodec) ContentType() string { return mediaCBOR }

func (c cborCodec) Decode(data []byte) (Record, bool) {
	var rec Record
	if err := c.dec.Unmarshal(data, &rec); err != nil || rec == nil {
		return nil, false
	}
	return rec, true
}

func (c cborCodec) Encode(v any) ([]byte, error) {
	switch x := v.(type) {
	case Record:
		return c.enc.Marshal(map[string]any(x))
	case []Record:
		list := make([]map[string]any, len(x))
		for i, rec := range x {
			list[i] = rec
		}
		return c.enc.Marshal(list)
	default:
		return nil, fmt.Errorf("cbor: %w %T", errUnsupportedValue, v)
	}
}
