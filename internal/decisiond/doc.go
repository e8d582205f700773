// Package decisiond is a local stand-in for the policy decision service.
//
// It serves the is-authorized and get-policy calls of the decision service
// API from a YAML policy store. Each policy is either a Rego module in
// package policy that defines a boolean rule named match over the request
// input, or a CEL condition over the same document.
// A matching forbid policy denies, otherwise a matching permit policy
// allows, otherwise the request is denied. The determining policies of a
// decision are the forbids that matched for a DENY and the permits that
// matched for an ALLOW.
//
// It is a development tool and is not on the production request path.
package decisiond
