package core

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// Outputs are the variables an action hands back to the workflow.
type Outputs map[string]any

// ActionHandler executes one action tag. params is the raw JSON
// parameter object supplied by the workflow step.
type ActionHandler interface {
	Handle(ctx context.Context, params json.RawMessage) (Outputs, error)
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, params json.RawMessage) (Outputs, error)

func (f ActionHandlerFunc) Handle(ctx context.Context, params json.RawMessage) (Outputs, error) {
	return f(ctx, params)
}

// ErrUnknownAction is returned when no handler is registered for a tag.
type ErrUnknownAction struct {
	Action string
}

func (e *ErrUnknownAction) Error() string {
	return fmt.Sprintf("unknown action %q", e.Action)
}

// ActionRegistry maps action tags to handlers.
type ActionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ActionHandler
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{handlers: make(map[string]ActionHandler)}
}

// Register associates h with tag. Registering a tag twice is an error.
func (r *ActionRegistry) Register(tag string, h ActionHandler) error {
	if tag == "" {
		return &ErrInvalidInput{Field: "action", Message: "tag is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[tag]; exists {
		return fmt.Errorf("action %q already registered", tag)
	}
	r.handlers[tag] = h
	return nil
}

// Dispatch runs the handler registered for tag.
func (r *ActionRegistry) Dispatch(ctx context.Context, tag string, params json.RawMessage) (Outputs, error) {
	r.mu.RLock()
	h, ok := r.handlers[tag]
	r.mu.RUnlock()

	if !ok {
		return nil, &ErrUnknownAction{Action: tag}
	}
	return h.Handle(ctx, params)
}

// Actions returns the registered tags in sorted order.
func (r *ActionRegistry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.handlers))
	for tag := range r.handlers {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}
