package orchestrator

import (
	"context"

	"github.com/palentir/taskflow/internal/scheduler"
)

// Generator turns a user query into task specs. Its output is untrusted:
// ingestion normalizes dependency references and drops anything dangling.
// Implementations typically sit in front of an LLM-backed planning agent.
type Generator interface {
	GenerateTasks(ctx context.Context, query string, graphContext map[string]any) ([]scheduler.TaskSpec, error)
}

// Worker executes one task's work and returns its payload. Calls may be
// long-latency and may fail arbitrarily; the scheduler records failures per
// task and never lets them abort a batch. Implementations typically dispatch
// to an agent pool (network, social media, domain, breach intelligence).
type Worker interface {
	RunTask(ctx context.Context, spec scheduler.TaskSpec) (map[string]any, error)
}

// WorkerFunc adapts a plain function to the Worker interface.
type WorkerFunc func(ctx context.Context, spec scheduler.TaskSpec) (map[string]any, error)

// RunTask implements Worker.
func (f WorkerFunc) RunTask(ctx context.Context, spec scheduler.TaskSpec) (map[string]any, error) {
	return f(ctx, spec)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, query string, graphContext map[string]any) ([]scheduler.TaskSpec, error)

// GenerateTasks implements Generator.
func (f GeneratorFunc) GenerateTasks(ctx context.Context, query string, graphContext map[string]any) ([]scheduler.TaskSpec, error) {
	return f(ctx, query, graphContext)
}
