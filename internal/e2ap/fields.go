package e2ap

import "encoding/binary"

// FieldType tags the value encoding of one TLV field.
type FieldType uint8

const (
	FieldUint8  FieldType = 1
	FieldUint16 FieldType = 2
	FieldUint32 FieldType = 3
	FieldUint64 FieldType = 4
	FieldString FieldType = 5
	FieldBytes  FieldType = 6
)

// Field identifiers used by the payload codecs. Repeated identifiers
// encode list elements in order.
const (
	fieldCause            uint16 = 1
	fieldTimeToWait       uint16 = 2
	fieldNodeID           uint16 = 3
	fieldRANFunction      uint16 = 4
	fieldRICID            uint16 = 5
	fieldAcceptedFunction uint16 = 6
	fieldRequestorID      uint16 = 7
	fieldInstanceID       uint16 = 8
	fieldFunctionID       uint16 = 9
	fieldAction           uint16 = 10
	fieldAdmittedAction   uint16 = 11
)

// Field is one decoded TLV field.
type Field struct {
	ID    uint16
	Type  FieldType
	Value []byte
}

// NewFieldUint8 creates a uint8 TLV field.
func NewFieldUint8(id uint16, v uint8) Field {
	return Field{ID: id, Type: FieldUint8, Value: []byte{v}}
}

// NewFieldUint16 creates a uint16 TLV field.
func NewFieldUint16(id uint16, v uint16) Field {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return Field{ID: id, Type: FieldUint16, Value: buf}
}

// NewFieldUint32 creates a uint32 TLV field.
func NewFieldUint32(id uint16, v uint32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return Field{ID: id, Type: FieldUint32, Value: buf}
}

// NewFieldUint64 creates a uint64 TLV field.
func NewFieldUint64(id uint16, v uint64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return Field{ID: id, Type: FieldUint64, Value: buf}
}

// NewFieldString creates a string TLV field.
func NewFieldString(id uint16, v string) Field {
	return Field{ID: id, Type: FieldString, Value: []byte(v)}
}

// NewFieldBytes creates a bytes TLV field.
func NewFieldBytes(id uint16, v []byte) Field {
	buf := make([]byte, len(v))
	copy(buf, v)
	return Field{ID: id, Type: FieldBytes, Value: buf}
}

// Uint8 returns the field value as uint8.
func (f Field) Uint8() (uint8, error) {
	if f.Type != FieldUint8 {
		return 0, ErrFieldTypeMismatch
	}
	if len(f.Value) != 1 {
		return 0, ErrInvalidLength
	}
	return f.Value[0], nil
}

// Uint16 returns the field value as uint16.
func (f Field) Uint16() (uint16, error) {
	if f.Type != FieldUint16 {
		return 0, ErrFieldTypeMismatch
	}
	if len(f.Value) != 2 {
		return 0, ErrInvalidLength
	}
	return binary.BigEndian.Uint16(f.Value), nil
}

// Uint32 returns the field value as uint32.
func (f Field) Uint32() (uint32, error) {
	if f.Type != FieldUint32 {
		return 0, ErrFieldTypeMismatch
	}
	if len(f.Value) != 4 {
		return 0, ErrInvalidLength
	}
	return binary.BigEndian.Uint32(f.Value), nil
}

// Uint64 returns the field value as uint64.
func (f Field) Uint64() (uint64, error) {
	if f.Type != FieldUint64 {
		return 0, ErrFieldTypeMismatch
	}
	if len(f.Value) != 8 {
		return 0, ErrInvalidLength
	}
	return binary.BigEndian.Uint64(f.Value), nil
}

// String returns the field value as string.
func (f Field) String() (string, error) {
	if f.Type != FieldString {
		return "", ErrFieldTypeMismatch
	}
	return string(f.Value), nil
}

// Bytes returns the field value as bytes.
func (f Field) Bytes() ([]byte, error) {
	if f.Type != FieldBytes {
		return nil, ErrFieldTypeMismatch
	}
	buf := make([]byte, len(f.Value))
	copy(buf, f.Value)
	return buf, nil
}

type fieldSet struct {
	fields []Field
}

func (s fieldSet) first(id uint16) (Field, bool) {
	for _, f := range s.fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func (s fieldSet) all(id uint16) []Field {
	var out []Field
	for _, f := range s.fields {
		if f.ID == id {
			out = append(out, f)
		}
	}
	return out
}

func (s fieldSet) requiredUint8(id uint16) (uint8, error) {
	f, ok := s.first(id)
	if !ok {
		return 0, MissingFieldError{FieldID: id}
	}
	return f.Uint8()
}

func (s fieldSet) requiredUint32(id uint16) (uint32, error) {
	f, ok := s.first(id)
	if !ok {
		return 0, MissingFieldError{FieldID: id}
	}
	return f.Uint32()
}

func (s fieldSet) requiredUint64(id uint16) (uint64, error) {
	f, ok := s.first(id)
	if !ok {
		return 0, MissingFieldError{FieldID: id}
	}
	return f.Uint64()
}

func (s fieldSet) optionalUint32(id uint16) (uint32, error) {
	f, ok := s.first(id)
	if !ok {
		return 0, nil
	}
	return f.Uint32()
}
