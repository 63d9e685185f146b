// Package wire implements the compact binary codec used for
// SystemCommand.Payload blobs (currently: process registration), which
// travel opaquely inside the JSON-native SystemCommand envelope rather
// than as a bus-level published message. Anything delivered directly
// through Bus.Publish/Receive must stay encoding/json, since Local and
// Remote both json.Marshal the published value and bus.Receive[T]
// json.Unmarshals it. See DESIGN.md for why this stays on the standard
// library's encoding/gob rather than a third-party binary format: no
// example repo in the corpus pulls in a MessagePack/protobuf/FlatBuffers
// dependency for payloads this small, so there is nothing in-pack to
// ground one on.
package wire

import (
	"bytes"
	"encoding/gob"
)

// Encode serializes v into the compact binary wire format.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes data produced by Encode into v, which must be a
// pointer to the same concrete type that was encoded.
func Decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
