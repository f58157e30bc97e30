package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

const traceHeader = "trace_id"

// Hook observes message handling. A Before error rejects the message: the
// handler is not called and the message is dead-lettered without retries.
type Hook interface {
	Before(ctx context.Context, km kafka.Message) (context.Context, error)
	After(ctx context.Context, km kafka.Message, err error)
}

// HookFuncs adapts plain functions to Hook. Nil functions are skipped.
type HookFuncs struct {
	BeforeFunc func(context.Context, kafka.Message) (context.Context, error)
	AfterFunc  func(context.Context, kafka.Message, error)
}

func (h HookFuncs) Before(ctx context.Context, km kafka.Message) (context.Context, error) {
	if h.BeforeFunc == nil {
		return ctx, nil
	}
	return h.BeforeFunc(ctx, km)
}

func (h HookFuncs) After(ctx context.Context, km kafka.Message, err error) {
	if h.AfterFunc != nil {
		h.AfterFunc(ctx, km, err)
	}
}

// Hooks runs Before in order and After in reverse order. A panicking hook is
// turned into an error on Before and ignored on After.
type Hooks []Hook

func (hs Hooks) Before(ctx context.Context, km kafka.Message) (context.Context, error) {
	for _, h := range hs {
		next, err := safeBefore(h, ctx, km)
		if err != nil {
			return ctx, err
		}
		ctx = next
	}
	return ctx, nil
}

func (hs Hooks) After(ctx context.Context, km kafka.Message, err error) {
	for i := len(hs) - 1; i >= 0; i-- {
		safeAfter(hs[i], ctx, km, err)
	}
}

func safeBefore(h Hook, ctx context.Context, km kafka.Message) (out context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = ctx, fmt.Errorf("kafka: hook panic: %v", r)
		}
	}()
	return h.Before(ctx, km)
}

func safeAfter(h Hook, ctx context.Context, km kafka.Message, err error) {
	defer func() { _ = recover() }()
	h.After(ctx, km, err)
}

type traceKey struct{}

// WithTraceID stores the trace id published with a message.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceID returns the trace id stored by WithTraceID, or "".
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceKey{}).(string)
	return v
}

func header(km kafka.Message, key string) string {
	for _, h := range km.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
