// Package sharedprefs implements the shared preferences plugin on
// plugins.flutter.io/shared_preferences.
package sharedprefs

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/morezero/desktop-embedding/pkg/channel"
	"github.com/morezero/desktop-embedding/pkg/codec"
)

const logPrefix = "sharedprefs:plugin"

// ChannelName is the method channel the plugin answers on.
const ChannelName = "plugins.flutter.io/shared_preferences"

// KeyPrefix is the prefix the framework puts on every key. getAll and clear
// only touch keys with this prefix.
const KeyPrefix = "flutter."

// APIVersion is the host API version the plugin targets.
const APIVersion = "1.0.0"

// Error codes.
const (
	ErrorCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrorCodeStore           = "STORE_ERROR"
)

const defaultTimeout = 5 * time.Second

// Plugin answers shared preferences method calls from a Store.
type Plugin struct {
	store   Store
	timeout time.Duration
}

// New creates a Plugin over store. A zero timeout uses five seconds per call.
func New(store Store, timeout time.Duration) *Plugin {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Plugin{store: store, timeout: timeout}
}

// Channel returns ChannelName.
func (p *Plugin) Channel() string { return ChannelName }

// APIVersion returns the host API version the plugin was built against.
func (p *Plugin) APIVersion() string { return APIVersion }

// HandleMethodCall resolves result exactly once for every call.
func (p *Plugin) HandleMethodCall(call codec.MethodCall[any], result channel.MethodResult[any]) {
	method := call.Method()
	args := call.Arguments()

	if _, known := schemas[method]; !known && method != "getAll" && method != "commit" && method != "clear" {
		result.NotImplemented()
		return
	}
	if err := validateArgs(method, args); err != nil {
		slog.Debug(fmt.Sprintf("%s - invalid arguments for %s: %v", logPrefix, method, err))
		result.Error(ErrorCodeInvalidArgument, codec.StringPtr(err.Error()), nil)
		return
	}

	var value any
	if kind, ok := setters[method]; ok {
		v, err := normalize(kind, argValue(args, "value"))
		if err != nil {
			result.Error(ErrorCodeInvalidArgument, codec.StringPtr(err.Error()), nil)
			return
		}
		value = v
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	reply, err := p.invoke(ctx, method, argString(args, "key"), value)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - %s failed: %v", logPrefix, method, err))
		result.Error(ErrorCodeStore, codec.StringPtr(err.Error()), nil)
		return
	}
	result.Success(reply)
}

func (p *Plugin) invoke(ctx context.Context, method, key string, value any) (any, error) {
	switch method {
	case "getAll":
		return p.store.GetAll(ctx, KeyPrefix)
	case "commit":
		// Every write is already durable.
		return true, nil
	case "clear":
		return true, p.store.Clear(ctx, KeyPrefix)
	case "remove":
		return true, p.store.Remove(ctx, key)
	}
	return true, p.store.Set(ctx, key, setters[method], value)
}

func argValue(args any, name string) any {
	m, _ := args.(map[string]any)
	return m[name]
}

func argString(args any, name string) string {
	s, _ := argValue(args, name).(string)
	return s
}

// normalize converts a decoded argument to the Go type stored for kind. JSON
// decodes every number as float64 and CBOR decodes integers as int64.
func normalize(kind string, v any) (any, error) {
	switch kind {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("value %v is not a bool", v)
		}
		return b, nil
	case KindInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case uint64:
			if n > math.MaxInt64 {
				return nil, fmt.Errorf("value %d overflows int64", n)
			}
			return int64(n), nil
		case float64:
			if n != math.Trunc(n) || n >= math.MaxInt64 || n < math.MinInt64 {
				return nil, fmt.Errorf("value %v is not an int", n)
			}
			return int64(n), nil
		}
	case KindDouble:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case uint64:
			return float64(n), nil
		}
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindStringList:
		items, ok := v.([]any)
		if !ok {
			break
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("list item %v is not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("value %v (%T) does not match kind %s", v, v, kind)
}
