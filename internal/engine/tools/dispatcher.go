// Package tools maps completed intents to backend capability calls. Tools
// are pure name→contract mappings; the dispatcher validates declared
// parameters, bounds execution with a timeout and normalizes every outcome
// into a ToolResult. No error ever propagates past this boundary.
package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	errx "github.com/nextmove-ai/convocore/internal/core/error"
	"github.com/nextmove-ai/convocore/internal/engine/model"
	logx "github.com/nextmove-ai/convocore/pkg/logger"
)

// Param declares one parameter of a tool's schema.
type Param struct {
	Name     string
	Type     string
	Required bool
	Desc     string
}

// Handler executes the underlying capability. Implementations may return
// an *errx.Error to control the reported kind and user-safe message.
type Handler func(ctx context.Context, params map[string]string) (map[string]any, error)

// Tool couples a capability name with its parameter schema and handler.
type Tool struct {
	Name    string
	Desc    string
	Params  []Param
	Handler Handler
}

// Registry holds the configured tools. Tools are registered once at
// startup and never mutated afterwards.
type Registry struct {
	tools map[string]*Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	if _, dup := r.tools[t.Name]; dup {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Dispatcher executes registered tools with parameter validation, a
// per-call timeout and panic recovery.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
}

func NewDispatcher(registry *Registry, timeout time.Duration) *Dispatcher {
	return &Dispatcher{registry: registry, timeout: timeout}
}

// Dispatch runs the named tool. Missing required parameters short-circuit
// before the underlying capability is touched; handler errors, timeouts
// and panics all come back as a failed ToolResult.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, params map[string]string) model.ToolResult {
	tool, ok := d.registry.tools[name]
	if !ok {
		logx.Warn().Str("tool", name).Msg("unknown tool requested")
		return model.ToolResult{
			Success:   false,
			ErrorKind: errx.KindToolFailure,
			Message:   fmt.Sprintf("unknown tool %q", name),
		}
	}

	for _, p := range tool.Params {
		if p.Required && params[p.Name] == "" {
			return model.ToolResult{
				Success:   false,
				ErrorKind: errx.KindMissingParameter,
				Message:   fmt.Sprintf("missing required parameter %q", p.Name),
			}
		}
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	type outcome struct {
		data map[string]any
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logx.Error().Str("tool", name).Msgf("panic recovered: %v", rec)
				ch <- outcome{err: errx.NewKind(fmt.Errorf("tool panic: %v", rec), errx.KindToolFailure, http.StatusInternalServerError, errx.SystemErrorMessage)}
			}
		}()
		data, err := tool.Handler(ctx, params)
		ch <- outcome{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		logx.Warn().Str("tool", name).Dur("timeout", d.timeout).Msg("tool call timed out")
		return model.ToolResult{
			Success:   false,
			ErrorKind: errx.KindToolTimeout,
			Message:   fmt.Sprintf("tool %q timed out", name),
		}
	case out := <-ch:
		if out.err != nil {
			return wrapToolError(name, out.err)
		}
		return model.ToolResult{Success: true, Data: out.data, Message: "ok"}
	}
}

func wrapToolError(name string, err error) model.ToolResult {
	kind := errx.KindToolFailure
	message := fmt.Sprintf("tool %q failed", name)

	var e *errx.Error
	if errors.As(err, &e) {
		if e.Kind != "" {
			kind = e.Kind
		}
		if e.Message != "" {
			message = e.Message
		}
	}

	logx.Error().Err(err).Str("tool", name).Str("kind", string(kind)).Msg("tool call failed")
	return model.ToolResult{Success: false, ErrorKind: kind, Message: message}
}
