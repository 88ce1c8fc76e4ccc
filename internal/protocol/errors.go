package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed reports a frame that could not be parsed. The relay logs and
// drops the decoded form but still forwards the bytes.
var ErrMalformed = errors.New("protocol: malformed frame")

func malformed(n int) error {
	return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
}
