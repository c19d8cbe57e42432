package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/hackmesh/termhack/pkg/missions"
)

func init() {
	gob.Register(missions.Snapshot{})
	gob.Register(Account{})
	gob.Register(SessionSave{})
}

// encode serializes a value to bytes using gob.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode deserializes bytes into the pointed-to value.
func decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
