package undump

import (
	"errors"
	"fmt"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

// Format errors. All decoding failures wrap one of these together with the
// path of the field being decoded.
var (
	ErrTruncated          = errors.New("truncated chunk")
	ErrBadMagic           = errors.New("bad chunk signature")
	ErrUnsupportedVersion = errors.New("unsupported chunk version")
	ErrUnknownConstantTag = errors.New("unknown constant tag")
	ErrUnknownOpcode      = bytecode.ErrUnknownOpcode
)

// FormatError records which field failed to decode.
type FormatError struct {
	Field  string
	Offset int64
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s (offset %d): %v", e.Field, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func (rd *reader) fail(field string, err error) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		return err
	}
	return &FormatError{Field: field, Offset: rd.offset, Err: err}
}
