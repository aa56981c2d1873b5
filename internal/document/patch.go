package document

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Query returns the value at a gjson path of a raw JSON document.
func Query(data []byte, path string) (any, bool) {
	res := gjson.GetBytes(data, path)
	if !res.Exists() {
		return nil, false
	}
	return fromResult(res), true
}

// Patch sets the value at a gjson path of a raw JSON document. rawValue must
// itself be valid JSON. The rest of the document, key order included, is
// left untouched.
func Patch(data []byte, path string, rawValue string) ([]byte, error) {
	if !gjson.Valid(rawValue) {
		return nil, fmt.Errorf("value %q is not valid JSON", rawValue)
	}
	out, err := sjson.SetRawBytes(data, path, []byte(rawValue))
	if err != nil {
		return nil, fmt.Errorf("failed to set %q: %w", path, err)
	}
	return out, nil
}

// Remove deletes the value at a gjson path of a raw JSON document.
func Remove(data []byte, path string) ([]byte, error) {
	out, err := sjson.DeleteBytes(data, path)
	if err != nil {
		return nil, fmt.Errorf("failed to delete %q: %w", path, err)
	}
	return out, nil
}
