// Package tools answers the assistant's function calls. A [Dispatcher] holds
// a registry of named [Tool] values and turns every [live.ToolCall] into
// exactly one correlated [live.ToolResult]: handler failures, timeouts, panics
// and unknown names all become error payloads rather than Go errors, so the
// agent is never left waiting.
//
// [ForStore] builds the hardware store's read-only tool set.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quilang-hardware/hardy/internal/observe"
	"github.com/quilang-hardware/hardy/internal/resilience"
	"github.com/quilang-hardware/hardy/pkg/live"
)

// ErrInvalidArgs marks a call whose arguments do not fit the tool's schema.
// The error text is returned to the agent so it can correct itself.
var ErrInvalidArgs = errors.New("invalid arguments")

// accessErrorMessage is what the agent sees for any backend failure.
const accessErrorMessage = "Database access error."

// DefaultTimeout bounds a single tool call when neither the tool nor the
// dispatcher sets a tighter limit.
const DefaultTimeout = 5 * time.Second

// Handler executes one call. args is the decoded argument object (never
// nil). Implementations must be safe for concurrent use and should respect
// ctx.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Tool is one registered function.
type Tool struct {
	// Definition is the schema presented to the agent.
	Definition live.ToolDefinition

	// Handler is invoked for calls naming this tool.
	Handler Handler

	// DeclaredMax is the worst-case latency the tool author expects. It is
	// enforced as a hard timeout. Zero uses the dispatcher's timeout.
	DeclaredMax time.Duration
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithTimeout caps every call at d, in addition to each tool's DeclaredMax.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithMetrics records call counts and latency to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(disp *Dispatcher) { disp.metrics = m }
}

// WithBreaker guards handler execution with cb. While it is open, calls
// fail fast with the access-error payload.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(disp *Dispatcher) { disp.breaker = cb }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) { disp.logger = l }
}

// Dispatcher routes tool calls to handlers. It is read-only after
// construction and safe for concurrent use.
type Dispatcher struct {
	tools   map[string]Tool
	order   []string
	timeout time.Duration
	metrics *observe.Metrics
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewDispatcher registers tools. Tools with an empty name or nil handler are
// rejected; a later tool with the same name replaces an earlier one.
func NewDispatcher(tools []Tool, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		tools:   make(map[string]Tool, len(tools)),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	if d.breaker == nil {
		d.breaker = NewStoreBreaker()
	}

	for _, t := range tools {
		name := t.Definition.Name
		if name == "" {
			return nil, errors.New("tools: tool must have a non-empty name")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tools: tool %q must have a non-nil handler", name)
		}
		if _, dup := d.tools[name]; !dup {
			d.order = append(d.order, name)
		}
		d.tools[name] = t
	}
	return d, nil
}

// NewStoreBreaker returns the circuit breaker used when none is supplied:
// five consecutive store failures open it for thirty seconds. Argument
// errors do not count.
func NewStoreBreaker() *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "store",
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, ErrInvalidArgs) && !errors.Is(err, context.Canceled)
		},
	})
}

// Definitions returns the schema of every registered tool in registration
// order.
func (d *Dispatcher) Definitions() []live.ToolDefinition {
	defs := make([]live.ToolDefinition, 0, len(d.order))
	for _, name := range d.order {
		defs = append(defs, d.tools[name].Definition)
	}
	return defs
}

// Names returns the registered tool names in registration order.
func (d *Dispatcher) Names() []string { return slices.Clone(d.order) }

// Dispatch runs call and returns its result. It never fails: every outcome is
// encoded in the payload, and the result always carries call's ID and name.
func (d *Dispatcher) Dispatch(ctx context.Context, call live.ToolCall) live.ToolResult {
	res := live.ToolResult{ID: call.ID, Name: call.Name}

	tool, ok := d.tools[call.Name]
	if !ok {
		d.logger.Warn("unsupported tool requested", "tool", call.Name, "call_id", call.ID)
		d.metrics.RecordToolCall(ctx, call.Name, "unsupported", 0)
		res.Payload = map[string]any{"error": "unsupported tool: " + call.Name}
		return res
	}

	ctx, span := observe.StartSpan(ctx, "tool "+call.Name,
		trace.WithAttributes(
			attribute.String("tool.name", call.Name),
			attribute.String("tool.call_id", call.ID),
		),
	)
	defer span.End()

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	payload, err := resilience.Do(d.breaker, func() (map[string]any, error) {
		return d.run(ctx, tool, args)
	})
	elapsed := time.Since(start)

	status := "ok"
	switch {
	case err == nil:
		if payload == nil {
			payload = map[string]any{}
		}
	case errors.Is(err, ErrInvalidArgs):
		status = "invalid_args"
		payload = map[string]any{"error": err.Error()}
	default:
		status = statusFor(err)
		observe.Logger(ctx).Error("tool call failed",
			"tool", call.Name, "call_id", call.ID, "status", status, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		payload = map[string]any{"error": accessErrorMessage}
	}

	d.metrics.RecordToolCall(ctx, call.Name, status, elapsed.Seconds())
	res.Payload = payload
	return res
}

// run executes the handler under the effective timeout. The handler runs on
// its own goroutine so a handler that ignores ctx still cannot hold the call
// past its deadline.
func (d *Dispatcher) run(ctx context.Context, tool Tool, args map[string]any) (map[string]any, error) {
	timeout := d.timeout
	if tool.DeclaredMax > 0 && (timeout <= 0 || tool.DeclaredMax < timeout) {
		timeout = tool.DeclaredMax
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		payload map[string]any
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tools: %s: panic: %v", tool.Definition.Name, r)}
			}
		}()
		p, err := tool.Handler(ctx, args)
		done <- outcome{payload: p, err: err}
	}()

	select {
	case o := <-done:
		return o.payload, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("tools: %s: %w", tool.Definition.Name, ctx.Err())
	}
}

func statusFor(err error) string {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrInvalidArgs, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string", ErrInvalidArgs, key)
	}
	return s, nil
}
