package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/catalog-authz/internal/observability"
)

// DefaultSubjectClaim is the claim read as the subject identifier.
const DefaultSubjectClaim = "sub"

// bearerPrefix is matched case-insensitively.
const bearerPrefix = "bearer "

// Verifier verifies a compact JWT and returns its parsed form.
type Verifier interface {
	Verify(ctx context.Context, raw string) (jwt.Token, error)
}

// Extractor turns a token into a Principal. Tokens are expected to be
// signature-validated by the fronting gateway; only when a Verifier is
// configured is the signature checked again in process.
type Extractor struct {
	subjectClaim    string
	attributeClaims map[string]string
	verifier        Verifier
	logger          observability.Logger
}

// Option is a functional option for the extractor.
type Option func(*Extractor)

// WithSubjectClaim sets the claim holding the subject identifier.
func WithSubjectClaim(claim string) Option {
	return func(e *Extractor) {
		if claim != "" {
			e.subjectClaim = claim
		}
	}
}

// WithAttributeClaims sets the attribute name to claim name mapping.
func WithAttributeClaims(m map[string]string) Option {
	return func(e *Extractor) {
		e.attributeClaims = make(map[string]string, len(m))
		for k, v := range m {
			e.attributeClaims[k] = v
		}
	}
}

// WithVerifier enables in-process signature verification.
func WithVerifier(v Verifier) Option {
	return func(e *Extractor) {
		e.verifier = v
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor creates a claims extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		subjectClaim:    DefaultSubjectClaim,
		attributeClaims: map[string]string{},
		logger:          observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BearerToken strips an optional "Bearer " prefix from an Authorization
// header value. API gateways forward identity-provider tokens both with
// and without the prefix.
func BearerToken(header string) string {
	h := strings.TrimSpace(header)
	if len(h) > len(bearerPrefix) && strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(h[len(bearerPrefix):])
	}
	return h
}

// ExtractFromHeader extracts a principal from an Authorization header value.
func (e *Extractor) ExtractFromHeader(ctx context.Context, header string) (*Principal, error) {
	return e.Extract(ctx, BearerToken(header))
}

// Extract parses raw and builds a Principal from its claims.
func (e *Extractor) Extract(ctx context.Context, raw string) (*Principal, error) {
	if raw == "" {
		return nil, newError(ErrMalformedToken, "", "token is absent")
	}
	if strings.Count(raw, ".") != 2 {
		return nil, newError(ErrMalformedToken, "", "token is not a compact JWT")
	}

	tok, err := e.parse(ctx, raw)
	if err != nil {
		return nil, err
	}

	subject, err := e.subject(tok)
	if err != nil {
		return nil, err
	}

	attrs := make(map[string]string, len(e.attributeClaims))
	for attr, claim := range e.attributeClaims {
		v, ok := tok.Get(claim)
		if !ok || v == nil {
			continue
		}
		s, ok := stringifyClaim(v)
		if !ok {
			return nil, newError(ErrMalformedToken, claim, fmt.Sprintf("claim has unsupported type %T", v))
		}
		attrs[attr] = s
	}

	return NewPrincipal(subject, attrs)
}

func (e *Extractor) parse(ctx context.Context, raw string) (jwt.Token, error) {
	if e.verifier != nil {
		tok, err := e.verifier.Verify(ctx, raw)
		if err != nil {
			e.logger.Debug("token verification failed", observability.Error(err))
			return nil, newError(ErrInvalidSignature, "", err.Error())
		}
		return tok, nil
	}

	tok, err := jwt.ParseString(raw, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return nil, newError(ErrMalformedToken, "", err.Error())
	}
	return tok, nil
}

func (e *Extractor) subject(tok jwt.Token) (string, error) {
	if e.subjectClaim == DefaultSubjectClaim {
		if tok.Subject() == "" {
			return "", newError(ErrMissingPrincipal, e.subjectClaim, "subject claim is absent or empty")
		}
		return tok.Subject(), nil
	}

	v, ok := tok.Get(e.subjectClaim)
	if !ok || v == nil {
		return "", newError(ErrMissingPrincipal, e.subjectClaim, "subject claim is absent")
	}
	s, ok := v.(string)
	if !ok {
		return "", newError(ErrMalformedToken, e.subjectClaim, fmt.Sprintf("subject claim has type %T", v))
	}
	if s == "" {
		return "", newError(ErrMissingPrincipal, e.subjectClaim, "subject claim is empty")
	}
	return s, nil
}

// stringifyClaim flattens scalar claims and string lists. Objects and
// mixed lists are rejected.
func stringifyClaim(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	case time.Time:
		return strconv.FormatInt(t.Unix(), 10), true
	case []string:
		return strings.Join(t, ","), true
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), true
	default:
		return "", false
	}
}
