package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrTruncatedInput           = errors.New("protocol: truncated input")
	ErrOverflow                 = errors.New("protocol: length exceeds prefix ceiling")
	ErrUnknownMessageType       = errors.New("protocol: unknown message type")
	ErrMalformedFrequencyMarker = errors.New("protocol: malformed frequency marker")
	ErrNilField                 = errors.New("protocol: nil variable field")
	ErrCountMismatch            = errors.New("protocol: block count mismatch")
	ErrFieldKindMismatch        = errors.New("protocol: field kind mismatch")
	ErrUnknownField             = errors.New("protocol: unknown field")
	ErrUnknownBlock             = errors.New("protocol: unknown block")
	ErrTrailingBytes            = errors.New("protocol: trailing bytes after message")
	ErrInvalidMessageID         = errors.New("protocol: message id not representable in frequency class")
	ErrInvalidDescriptor        = errors.New("protocol: invalid descriptor")
	ErrDuplicateMessage         = errors.New("protocol: duplicate message")
	ErrExpansionLimit           = errors.New("protocol: zero-coded body expands beyond limit")
	ErrDatagramTooLarge         = errors.New("protocol: datagram too large")
)

// FieldError locates a codec failure inside a message.
type FieldError struct {
	Message string
	Block   string
	Index   int
	Field   string
	Err     error
}

func (e *FieldError) Error() string {
	switch {
	case e.Block == "":
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Field == "":
		return fmt.Sprintf("%s.%s[%d]: %v", e.Message, e.Block, e.Index, e.Err)
	default:
		return fmt.Sprintf("%s.%s[%d].%s: %v", e.Message, e.Block, e.Index, e.Field, e.Err)
	}
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Reason maps err onto the codec error taxonomy. It is used as a metrics label.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedFrequencyMarker):
		return "malformed_frequency_marker"
	case errors.Is(err, ErrTruncatedInput):
		return "truncated_input"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, ErrUnknownMessageType):
		return "unknown_message_type"
	case errors.Is(err, ErrTrailingBytes):
		return "trailing_bytes"
	case errors.Is(err, ErrExpansionLimit):
		return "expansion_limit"
	case errors.Is(err, ErrDatagramTooLarge):
		return "datagram_too_large"
	case errors.Is(err, ErrNilField), errors.Is(err, ErrCountMismatch), errors.Is(err, ErrFieldKindMismatch):
		return "invalid_message"
	default:
		return "other"
	}
}
