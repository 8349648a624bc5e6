// Package bunmodels holds the Bun ORM row types backing the durable
// core's Postgres tables, plus the JSONBMap/StringSlice column types
// they share.
package bunmodels

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONBMap is a custom type for JSONB columns: Value/Scan for
// PostgreSQL jsonb round-tripping through map[string]any.
type JSONBMap map[string]interface{}

// Value implements driver.Valuer.
func (j JSONBMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (j *JSONBMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONBMap)
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			b = []byte(s)
		} else {
			return errors.New("failed to scan JSONBMap: unsupported type")
		}
	}
	if len(b) == 0 {
		*j = make(JSONBMap)
		return nil
	}
	return json.Unmarshal(b, j)
}

// StringSlice is a custom type for PostgreSQL TEXT[] columns.
type StringSlice []string

// Value implements driver.Valuer.
func (a StringSlice) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	s := string(b)
	return "{" + s[1:len(s)-1] + "}", nil
}

// Scan implements sql.Scanner.
func (a *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("failed to scan StringSlice: unsupported type")
	}
	s := string(b)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return errors.New("invalid PostgreSQL array format")
	}
	if s == "{}" {
		*a = nil
		return nil
	}
	jsonStr := "[" + s[1:len(s)-1] + "]"
	return json.Unmarshal([]byte(jsonStr), a)
}
