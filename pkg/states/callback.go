package states

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strings"
	"sync"
	"unsafe"
)

// Condition keys with special meaning. Any other key is read as a record attribute.
const (
	ConditionTo   = "to"
	ConditionFrom = "from"
)

// Action is the side effect of a callback. It runs synchronously on the
// goroutine that committed the state write.
type Action func(ctx context.Context, rec *Record) error

// errCallbackExhausted means every allowed execution slot is already taken.
var errCallbackExhausted = errors.New("states: callback exhausted")

// Callback binds an Action to transitions of one state type.
type Callback struct {
	id            string
	stateType     string
	conditions    map[string]any
	action        Action
	maxExecutions int

	mu         sync.Mutex
	executions int
	inFlight   int
}

// CallbackOption configures a callback registered with Registry.On.
type CallbackOption func(*Callback)

// WithID registers the callback under an explicit id. Registering another
// callback with the same id replaces the earlier one.
func WithID(id string) CallbackOption {
	return func(c *Callback) {
		c.id = NormalizeCallbackID(id)
	}
}

// To matches transitions into status.
func To(status string) CallbackOption {
	return Where(ConditionTo, status)
}

// From matches transitions out of status. It never matches a first insert.
func From(status string) CallbackOption {
	return Where(ConditionFrom, status)
}

// Where matches when the record attribute key equals value.
// See Record.Attribute for the recognised keys.
func Where(key string, value any) CallbackOption {
	return func(c *Callback) {
		if c.conditions == nil {
			c.conditions = make(map[string]any)
		}
		c.conditions[key] = value
	}
}

// Times caps the number of successful executions. Once reached the callback
// is removed from the registry.
func Times(n int) CallbackOption {
	return func(c *Callback) {
		c.maxExecutions = n
	}
}

// NormalizeCallbackID maps equivalent spellings of an id to one canonical
// form: surrounding whitespace and a leading ':' are dropped.
func NormalizeCallbackID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, ":")
	return strings.TrimSpace(id)
}

func newCallback(stateType string, action Action, opts ...CallbackOption) (*Callback, error) {
	cb := &Callback{
		stateType:  stateType,
		action:     action,
		conditions: make(map[string]any),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cb)
		}
	}

	switch {
	case stateType == "":
		return nil, fmt.Errorf("%w: state type is required", ErrInvalidCallback)
	case action == nil:
		return nil, fmt.Errorf("%w: action is required", ErrInvalidCallback)
	case cb.maxExecutions < 0:
		return nil, fmt.Errorf("%w: times must be positive, got %d", ErrInvalidCallback, cb.maxExecutions)
	}
	return cb, nil
}

// ID returns the id the callback is registered under.
func (c *Callback) ID() string { return c.id }

// StateType returns the state type the callback listens to.
func (c *Callback) StateType() string { return c.stateType }

// Conditions returns a copy of the match conditions.
func (c *Callback) Conditions() map[string]any {
	return maps.Clone(c.conditions)
}

// MaxExecutions returns the execution cap, zero when unlimited.
func (c *Callback) MaxExecutions() int {
	return c.maxExecutions
}

// Executions returns the number of successful executions so far.
func (c *Callback) Executions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executions
}

// Expired reports whether the execution cap has been reached.
func (c *Callback) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxExecutions > 0 && c.executions >= c.maxExecutions
}

// Matches reports whether rec is a transition this callback listens to.
// All conditions must hold; no conditions match any status of the state type.
func (c *Callback) Matches(rec *Record) bool {
	if rec == nil || rec.StateType != c.stateType {
		return false
	}

	for key, expected := range c.conditions {
		switch key {
		case ConditionTo:
			if !valuesEqual(expected, rec.Status) {
				return false
			}
		case ConditionFrom:
			if rec.PreviousStatus == "" || !valuesEqual(expected, rec.PreviousStatus) {
				return false
			}
		default:
			actual, ok := rec.Attribute(key)
			if !ok || !valuesEqual(expected, actual) {
				return false
			}
		}
	}
	return true
}

// Equal reports whether two callbacks share state type, conditions and action.
// Actions compare by func value: a named function always equals itself, while
// closures that capture variables are distinct per evaluation.
func (c *Callback) Equal(other *Callback) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil {
		return false
	}
	return c.stateType == other.stateType &&
		reflect.DeepEqual(c.conditions, other.conditions) &&
		sameAction(c.action, other.action)
}

// sameAction compares the closure pointers held by two func values.
func sameAction(a, b Action) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *(*unsafe.Pointer)(unsafe.Pointer(&a)) == *(*unsafe.Pointer)(unsafe.Pointer(&b))
}

// call runs the action once. A slot is reserved before the action starts so
// concurrent dispatches can never push executions past the cap; a failed
// action releases its slot without counting.
func (c *Callback) call(ctx context.Context, rec *Record) (err error) {
	if !c.acquire() {
		return errCallbackExhausted
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		c.release(err == nil)
	}()

	return c.action(ctx, rec)
}

func (c *Callback) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxExecutions > 0 && c.executions+c.inFlight >= c.maxExecutions {
		return false
	}
	c.inFlight++
	return true
}

func (c *Callback) release(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
	if success {
		c.executions++
	}
}
