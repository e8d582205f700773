package authz

import (
	"context"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/catalog-authz/internal/auth"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
	"github.com/vyrodovalexey/catalog-authz/internal/pdp"
	"github.com/vyrodovalexey/catalog-authz/internal/route"
)

const tracerName = "catalog-authz/authz"

// Evaluation context keys added by the gate.
const (
	ContextKeyRegion = "region"

	// UnknownRegion is used when the principal carries no region.
	UnknownRegion = "Unknown"
)

// ClaimsExtractor turns a bearer credential into a principal.
type ClaimsExtractor interface {
	ExtractFromHeader(ctx context.Context, header string) (*auth.Principal, error)
}

// Normalizer maps a route to an action and resource.
type Normalizer interface {
	Normalize(in route.Input) (route.Result, error)
}

// Decider answers authorization requests. It never fails; failures are
// INDETERMINATE decisions.
type Decider interface {
	Evaluate(ctx context.Context, req *pdp.Request) pdp.Decision
}

// Request is the transport-independent view of an inbound request.
type Request struct {
	Authorization string
	Method        string
	RouteTemplate string
	PathParams    map[string]string
	QueryParams   url.Values
	SourceIP      string
}

// Outcome is the result of running the pipeline for one request.
type Outcome struct {
	State     State
	Principal *auth.Principal
	Action    route.Action
	Resource  route.Resource
	Decision  pdp.Decision
	Err       *DenialError
}

// Proceed reports whether the handler may run.
func (o *Outcome) Proceed() bool {
	return o.State == StateProceed
}

// Gate runs claims extraction, normalization and the policy decision in
// order for every protected request and fails closed: only an exact ALLOW
// proceeds. Gate is safe for concurrent use.
type Gate struct {
	extractor  ClaimsExtractor
	normalizer Normalizer
	decider    Decider
	logger     observability.Logger
	metrics    *Metrics
	tracer     trace.Tracer
}

// Option is a functional option for the gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(g *Gate) {
		g.metrics = metrics
	}
}

// NewGate creates a gate.
func NewGate(extractor ClaimsExtractor, normalizer Normalizer, decider Decider, opts ...Option) *Gate {
	g := &Gate{
		extractor:  extractor,
		normalizer: normalizer,
		decider:    decider,
		logger:     observability.NopLogger(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize runs the pipeline for req.
func (g *Gate) Authorize(ctx context.Context, req *Request) *Outcome {
	start := time.Now()

	ctx, span := g.tracer.Start(ctx, "authz.gate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("http.route", req.RouteTemplate),
		),
	)
	defer span.End()

	out := g.run(ctx, req)

	span.SetAttributes(attribute.String("authz.state", out.State.String()))
	if out.Action != "" {
		span.SetAttributes(attribute.String("authz.action", out.Action.String()))
	}
	if out.Decision.Verdict != "" {
		span.SetAttributes(attribute.String("authz.verdict", out.Decision.Verdict.String()))
	}
	if out.Err != nil {
		span.SetAttributes(attribute.String("authz.cause", out.Err.Cause.String()))
		span.SetStatus(codes.Error, out.Err.Cause.String())
	}

	g.record(ctx, req, out, time.Since(start))

	return out
}

func (g *Gate) run(ctx context.Context, req *Request) *Outcome {
	out := &Outcome{State: StateStart}

	principal, err := g.extractor.ExtractFromHeader(ctx, req.Authorization)
	if err != nil {
		return out.deny(CauseAuthentication, err)
	}
	out.Principal = principal
	out.State = StateClaimsExtracted

	normalized, err := g.normalizer.Normalize(route.Input{
		Method:        req.Method,
		RouteTemplate: req.RouteTemplate,
		PathParams:    req.PathParams,
		QueryParams:   req.QueryParams,
	})
	if err != nil {
		return out.deny(CauseConfiguration, err)
	}
	out.Action = normalized.Action
	out.Resource = normalized.Resource
	out.State = StateNormalized

	decision := g.decider.Evaluate(ctx, &pdp.Request{
		Principal: principal,
		Action:    normalized.Action,
		Resource:  normalized.Resource,
		Context:   evaluationContext(principal, normalized.Context),
	})
	out.Decision = decision
	out.State = StateDecided

	switch {
	case decision.Allowed():
		out.State = StateProceed
		return out
	case decision.Verdict == pdp.VerdictDeny:
		return out.deny(CausePolicyDenied, nil)
	default:
		return out.deny(CauseDecisionClient, decision.Cause)
	}
}

func (o *Outcome) deny(cause Cause, err error) *Outcome {
	o.Err = &DenialError{
		Cause:   cause,
		State:   o.State,
		Verdict: o.Decision.Verdict.String(),
		Err:     err,
	}
	o.State = StateDenied
	return o
}

// evaluationContext merges route context with the principal region. The
// gate-supplied region takes precedence. Per-connection values such as the
// client address stay out: the context is part of the decision cache key.
func evaluationContext(p *auth.Principal, routeCtx map[string]string) map[string]string {
	out := make(map[string]string, len(routeCtx)+1)
	for k, v := range routeCtx {
		out[k] = v
	}

	region, ok := p.Attribute("region")
	if !ok || region == "" {
		region = UnknownRegion
	}
	out[ContextKeyRegion] = region

	return out
}

func (g *Gate) record(ctx context.Context, req *Request, out *Outcome, duration time.Duration) {
	cause := ""
	if out.Err != nil {
		cause = out.Err.Cause.String()
	}
	g.metrics.recordOutcome(out.State, cause, duration)

	logger := g.logger.WithContext(ctx)
	if out.Proceed() {
		logger.Debug("request authorized",
			observability.String("subject", out.Principal.SubjectID()),
			observability.String("action", out.Action.String()),
			observability.String("resource", out.Resource.String()),
			observability.Bool("cached", out.Decision.Cached),
			observability.Strings("attributes", out.Principal.AttributeNames()),
		)
		return
	}

	fields := []observability.Field{
		observability.String("cause", cause),
		observability.String("state", out.Err.State.String()),
		observability.String("verdict", out.Err.Verdict),
		observability.String("method", req.Method),
		observability.String("route", req.RouteTemplate),
	}
	if req.SourceIP != "" {
		fields = append(fields, observability.String("sourceIp", req.SourceIP))
	}
	if out.Principal != nil {
		fields = append(fields, observability.String("subject", out.Principal.SubjectID()))
	}
	if out.Err.Err != nil {
		fields = append(fields, observability.Error(out.Err.Err))
	}

	switch {
	case out.Err.Cause == CauseConfiguration && req.RouteTemplate != "":
		// A matched route without a table entry is an operator error.
		logger.Error("request denied: route not mapped to an action", fields...)
	case out.Err.Cause == CauseConfiguration:
		logger.Info("request denied: no matching route", fields...)
	case out.Err.Cause == CauseDecisionClient:
		logger.Warn("request denied: no definitive decision", fields...)
	default:
		logger.Info("request denied", fields...)
	}
}
