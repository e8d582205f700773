// Package auth turns bearer tokens into request principals.
//
// The Extractor reads the subject and a configurable set of attribute
// claims from a compact JWT. By default tokens are decoded without
// signature verification because the fronting API gateway has already
// validated them; a JWKSVerifier can be plugged in to verify in process.
//
//	extractor := auth.NewExtractor(
//	    auth.WithAttributeClaims(map[string]string{"role": "custom:role"}),
//	)
//	principal, err := extractor.ExtractFromHeader(ctx, r.Header.Get("Authorization"))
//	if auth.IsMissingPrincipal(err) {
//	    // no stable subject in the token
//	}
package auth
