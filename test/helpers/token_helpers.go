// Package helpers provides common test utilities for the catalog service tests.
package helpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// UnsignedToken builds a compact JWT with the given claims and a dummy
// signature. The extractor does not verify signatures on the default path,
// so this is what an upstream-verified token looks like to it.
func UnsignedToken(claims map[string]interface{}) string {
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT", "kid": "test"})
	if err != nil {
		panic(fmt.Sprintf("marshal header: %v", err))
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		panic(fmt.Sprintf("marshal claims: %v", err))
	}

	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "." + enc.EncodeToString([]byte("signature"))
}

// CognitoClaims returns claims shaped like a Cognito ID token.
func CognitoClaims(subject, username, role string) map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"sub":              subject,
		"cognito:username": username,
		"custom:role":      role,
		"custom:region":    "US",
		"token_use":        "id",
		"iat":              now.Unix(),
		"exp":              now.Add(time.Hour).Unix(),
	}
}

// BearerHeader returns an Authorization header value for token.
func BearerHeader(token string) string {
	return "Bearer " + token
}
