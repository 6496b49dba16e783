package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
)

// StringList is a custom type for string collections stored in text columns.
// It implements sql.Scanner and driver.Valuer. Writes always produce a JSON
// array; reads accept a JSON array first and fall back to splitting legacy
// comma-separated values.
type StringList []string

// Scan implements the sql.Scanner interface.
func (s *StringList) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}

	var data string
	switch v := value.(type) {
	case string:
		data = v
	case []byte:
		data = string(v)
	default:
		return errors.New("unsupported type for StringList")
	}

	data = strings.TrimSpace(data)
	if data == "" {
		*s = nil
		return nil
	}

	var items []string
	if err := json.Unmarshal([]byte(data), &items); err == nil {
		*s = NormalizeStringArray(items)
		return nil
	}

	// Legacy rows hold comma-separated values.
	*s = NormalizeStringArray(strings.Split(data, ","))
	return nil
}

// Value implements the driver.Valuer interface.
func (s StringList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}
