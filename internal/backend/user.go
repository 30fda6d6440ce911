package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"mps-dashboard/internal/session"
)

// parseUser reads the user object from a login response. Backends in the
// field answer with data.user or user, and disagree on key casing.
func parseUser(body []byte) (session.Record, error) {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return session.Record{}, fmt.Errorf("decode login response: %w", err)
	}

	user, ok := nestedObject(root, "data", "user")
	if !ok {
		user, ok = nestedObject(root, "user")
	}
	if !ok {
		return session.Record{}, errors.New("login response carried no user")
	}

	record := session.Record{
		UserID:     firstString(user, "userId", "id", "_id"),
		CustomerID: firstString(user, "customerId", "customer_id"),
		Role:       role(user),
		Username:   firstString(user, "username", "name"),
		Email:      firstString(user, "email"),
	}
	if record.UserID == "" {
		return session.Record{}, errors.New("login response user has no id")
	}

	return record, nil
}

func nestedObject(root map[string]any, path ...string) (map[string]any, bool) {
	current := root
	for _, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func role(user map[string]any) string {
	if r := firstString(user, "role"); r != "" {
		return r
	}
	if obj, ok := user["role"].(map[string]any); ok {
		return firstString(obj, "name", "code")
	}
	return ""
}
