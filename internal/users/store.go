// Package users reads the account records of the platform. The records are
// owned by the authentication layer; maat only lists them.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"maat-go/internal/maat"
	"maat-go/internal/model"
)

// secretFields are never copied into UserRecord.Extra.
var secretFields = map[string]bool{
	"password": true,
	"hash":     true,
	"salt":     true,
}

// JSONStore loads users from a JSON file holding an array of objects,
// each with at least a "username" field.
type JSONStore struct {
	path string
}

// NewJSONStore creates a store reading the file at path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the users file location.
func (s *JSONStore) Path() string { return s.path }

// LoadUsers reads and decodes the users file. A missing file is an empty
// user list; an unreadable or undecodable one is an error.
func (s *JSONStore) LoadUsers(ctx context.Context) ([]model.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.UserRecord{}, nil
		}
		return nil, &maat.ScanError{Root: s.path, Err: err}
	}

	records, err := Decode(data)
	if err != nil {
		return nil, &maat.ScanError{Root: s.path, Err: err}
	}
	return records, nil
}

// Decode parses users file contents. Objects without a string username
// are dropped.
func Decode(data []byte) ([]model.UserRecord, error) {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}

	out := make([]model.UserRecord, 0, len(raw))
	for _, obj := range raw {
		name, _ := obj["username"].(string)
		if name == "" {
			continue
		}
		rec := model.UserRecord{Username: name, Admin: truthy(obj["admin"])}
		for k, v := range obj {
			if k == "username" || k == "admin" || secretFields[k] {
				continue
			}
			if rec.Extra == nil {
				rec.Extra = make(map[string]any)
			}
			rec.Extra[k] = v
		}
		out = append(out, rec)
	}
	return out, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t == "true" || t == "1"
	default:
		return false
	}
}

var _ maat.UserStore = (*JSONStore)(nil)
