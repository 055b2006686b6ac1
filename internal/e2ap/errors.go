package e2ap

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMagic        = errors.New("e2ap: invalid magic")
	ErrUnsupportedVersion  = errors.New("e2ap: unsupported version")
	ErrInvalidHeaderLen    = errors.New("e2ap: invalid header length")
	ErrInvalidClass        = errors.New("e2ap: invalid envelope class")
	ErrTruncated           = errors.New("e2ap: truncated data")
	ErrInvalidLength       = errors.New("e2ap: invalid length")
	ErrTrailingBytes       = errors.New("e2ap: trailing bytes after payload")
	ErrFieldTypeMismatch   = errors.New("e2ap: field type mismatch")
	ErrPayloadTooLarge     = errors.New("e2ap: payload too large")
	ErrNilPDU              = errors.New("e2ap: nil pdu")
	ErrUnencodablePayload  = errors.New("e2ap: payload does not match class and procedure")
	ErrInvalidFieldValue   = errors.New("e2ap: invalid field value")
)

// MissingFieldError indicates a required field was not present in a
// decoded payload.
type MissingFieldError struct {
	FieldID uint16
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("e2ap: missing required field %d", e.FieldID)
}
