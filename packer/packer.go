// Package packer wraps the wire encoding used for journalled payloads so
// the rest of the module never imports the codec directly.
package packer

import "github.com/vmihailenco/msgpack/v5"

func Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
