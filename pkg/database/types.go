package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringArray stores a list of object keys as a JSON array in a text column,
// which every supported dialect handles the same way.
type StringArray []string

// Scan implements sql.Scanner.
func (a *StringArray) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("StringArray: cannot scan %T", value)
	}
	if len(data) == 0 {
		*a = StringArray{}
		return nil
	}

	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("StringArray: %w", err)
	}
	*a = out
	return nil
}

// Value implements driver.Valuer. A nil array is stored as NULL.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// GormDataType implements schema.GormDataTypeInterface.
func (StringArray) GormDataType() string {
	return "text"
}
