package token

import (
	"encoding/json"
	"strings"
)

// Pair is what the backend issues on login and refresh. RefreshToken is
// empty when the backend did not rotate it.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Backend versions disagree on where tokens live, so every known shape
// is checked in order.
var (
	accessTokenPaths  = [][]string{{"data", "accessToken"}, {"accessToken"}, {"access_token"}}
	refreshTokenPaths = [][]string{{"data", "refreshToken"}, {"refreshToken"}, {"refresh_token"}}
)

// ExtractPair reads a token pair from a login or refresh response body.
// ok is false when no access token can be found.
func ExtractPair(body []byte) (Pair, bool) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Pair{}, false
	}

	pair := Pair{
		AccessToken:  firstString(doc, accessTokenPaths),
		RefreshToken: firstString(doc, refreshTokenPaths),
	}
	return pair, pair.AccessToken != ""
}

func firstString(doc map[string]any, paths [][]string) string {
	for _, path := range paths {
		if v := lookupString(doc, path); v != "" {
			return v
		}
	}
	return ""
}

func lookupString(doc map[string]any, path []string) string {
	var current any = doc
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = obj[key]
	}

	s, _ := current.(string)
	return strings.TrimSpace(s)
}
