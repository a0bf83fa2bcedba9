package encoding

import (
	"github.com/bububa/ljson"
	"github.com/effective-security/toolgate/pkg/llmutils"
)

// Decode unmarshals an LLM-emitted JSON document, tolerating surrounding
// prose, code fences and truncation. Models wrap JSON in commentary more
// often than not; strict decoding would reject most of what they say.
func Decode(bs []byte, ret any) error {
	return ljson.Unmarshal(llmutils.CleanJSON(bs), ret)
}

// DecodeString is Decode for string input.
func DecodeString(s string, ret any) error {
	return Decode([]byte(s), ret)
}
