// Package authz provides the authorization gate for protected routes.
//
// Every request passes through Start, ClaimsExtracted, Normalized and
// Decided before reaching Proceed or Denied. Only an exact ALLOW verdict
// proceeds. A failed claims extraction answers 401; every other denial,
// whether from configuration, an unavailable decision service or a policy
// DENY, answers the same 403 body so that clients cannot tell them apart.
//
// The gin middleware stores a Grant in the request context for handlers
// that need the principal or the determining policies.
package authz
