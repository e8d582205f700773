// Package pdp is the policy decision client.
//
// A Client turns an authorization Request (principal, action, resource,
// context) into an ALLOW, DENY or INDETERMINATE Decision. It owns the
// decision cache, a per-attempt timeout, a single bounded retry on
// transient failures and an optional circuit breaker. It never returns an
// error: anything that prevents a definitive answer is INDETERMINATE.
//
// Two backends are provided: HTTPBackend for an is-authorized JSON API and
// OpenFGABackend for relationship checks. PolicyLookup resolves determining
// policy ids to their definitions for post-decision response shaping.
package pdp
