// Package registry maps node-kind identifiers to their executors. This is the
// seam that keeps the engine closed over how to order and drive nodes while
// remaining open over what a node does: new kinds are added by registering a
// new executor, never by modifying the engine.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/flowlineio/flowline/pkg/protocol"
)

// UnknownNodeKindError reports a dispatch for a kind with no registered
// executor. It is non-retriable.
type UnknownNodeKindError struct {
	Kind string
}

func (e *UnknownNodeKindError) Error() string {
	return fmt.Sprintf("node kind %q not registered", e.Kind)
}

// Registry holds the executor for each node kind. Registration happens once
// at process start; the registry is read-only during workflow execution.
type Registry struct {
	logger    *slog.Logger
	executors map[string]protocol.Executor
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		executors: make(map[string]protocol.Executor),
	}
}

// Register adds an executor under its kind, replacing any previous
// registration for the same kind.
func (r *Registry) Register(executor protocol.Executor) {
	r.executors[executor.Kind()] = executor
	r.logger.Debug("Registered node executor", "kind", executor.Kind())
}

// Dispatch returns the executor for a kind.
func (r *Registry) Dispatch(kind string) (protocol.Executor, error) {
	executor, ok := r.executors[kind]
	if !ok {
		return nil, protocol.NonRetriable(&UnknownNodeKindError{Kind: kind})
	}

	return executor, nil
}

// Kinds returns all registered node kinds.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.executors))
	for kind := range r.executors {
		kinds = append(kinds, kind)
	}

	return kinds
}
