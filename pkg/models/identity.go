package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Identity is an opaque identifier for meals, custom meals and restaurants.
// The web client sends these as numbers or strings, so both decode to the same value.
type Identity string

func (id Identity) String() string {
	return string(id)
}

func (id *Identity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = Identity(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identity must be a string or number: %w", err)
	}
	*id = Identity(n.String())
	return nil
}
