/*
 * @module internal/store/jsonfloats
 * @description Scanner/Valuer for a JSON array of reals, the wire shape the
 *   feature store uses to persist latent-factor vectors. Adapted from the
 *   JSONB Scan/Value pattern used throughout the source models package.
 * @dependencies database/sql/driver, encoding/json
 */
package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONFloats is a []float64 that reads/writes as a JSON array column.
type JSONFloats []float64

func (f *JSONFloats) Scan(value interface{}) error {
	if value == nil {
		*f = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("JSONFloats: unsupported scan source, want []byte or string")
	}

	return json.Unmarshal(raw, f)
}

func (f JSONFloats) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	return json.Marshal(f)
}
