package chatmodel

import (
	"github.com/cockroachdb/errors"
)

var (
	ErrFailedUnmarshalInput = errors.New("failed to unmarshal input: check the schema and try again")
)

// ContentProvider exposes the textual content of a value for chat
// transcripts and follow-up prompts.
type ContentProvider interface {
	GetContent() string
}
