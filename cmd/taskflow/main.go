package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/palentir/taskflow/internal/config"
	"github.com/palentir/taskflow/internal/events"
	"github.com/palentir/taskflow/internal/history"
	"github.com/palentir/taskflow/internal/orchestrator"
	"github.com/palentir/taskflow/internal/scheduler"
)

// batchFile is the on-disk format for a task batch.
type batchFile struct {
	Query string     `yaml:"query"`
	Tasks []fileTask `yaml:"tasks"`
}

type fileTask struct {
	ID          string         `yaml:"id"`
	Type        string         `yaml:"type"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Priority    string         `yaml:"priority"`
	Agent       string         `yaml:"agent"`
	Parameters  map[string]any `yaml:"parameters"`
	Targets     []string       `yaml:"targets"`
	DependsOn   []string       `yaml:"depends_on"`
}

func main() {
	tasksPath := flag.String("tasks", "", "Path to a YAML batch file")
	modeFlag := flag.String("mode", "", "Execution mode: sequential, parallel, or fork_join (default from config)")
	flag.Parse()

	if *tasksPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: taskflow -tasks <batch.yaml> [-mode <mode>]")
		os.Exit(1)
	}

	// Signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	modeStr := cfg.DefaultMode
	if *modeFlag != "" {
		modeStr = *modeFlag
	}
	mode, err := orchestrator.ParseMode(modeStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	batch, err := loadBatchFile(*tasksPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading batch file: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewEventBus()
	defer bus.Close()

	// Stream lifecycle events to stdout while the batch runs
	eventCh := bus.SubscribeAll(0)
	go func() {
		for ev := range eventCh {
			switch e := ev.(type) {
			case events.TaskStartedEvent:
				log.Printf("[started]   %s (%s)", e.ID, e.AgentType)
			case events.TaskCompletedEvent:
				log.Printf("[completed] %s in %s", e.ID, e.ExecutionTime)
			case events.TaskFailedEvent:
				log.Printf("[failed]    %s: %s", e.ID, e.Err)
			case events.TaskCancelledEvent:
				log.Printf("[cancelled] %s", e.ID)
			case events.BatchProgressEvent:
				log.Printf("[progress]  %d/%d done (%d failed, %d queued)",
					e.Completed, e.Total, e.Failed, e.Queued)
			}
		}
	}()

	opts := []orchestrator.Option{orchestrator.WithBus(bus)}
	if cfg.HistoryPath != "" {
		store, err := history.NewSQLiteStore(ctx, cfg.HistoryPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening history store: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		opts = append(opts, orchestrator.WithHistory(store))
	}

	orc := orchestrator.New(
		batchGenerator(batch),
		orchestrator.WorkerFunc(simulateTask),
		cfg,
		opts...,
	)

	results, err := orc.SubmitQuery(ctx, batch.Query, nil, mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	summary := orc.GetSummary()
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering summary: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if len(results) < summary.Status.Total {
		log.Printf("WARNING: %d of %d tasks did not reach a terminal state", summary.Status.Total-len(results), summary.Status.Total)
	}
}

// loadBatchFile reads and decodes a YAML batch file.
func loadBatchFile(path string) (*batchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var batch batchFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(batch.Tasks) == 0 {
		return nil, fmt.Errorf("%s contains no tasks", path)
	}
	return &batch, nil
}

// batchGenerator adapts a loaded batch file to the Generator interface.
func batchGenerator(batch *batchFile) orchestrator.Generator {
	return orchestrator.GeneratorFunc(func(ctx context.Context, query string, graphContext map[string]any) ([]scheduler.TaskSpec, error) {
		specs := make([]scheduler.TaskSpec, 0, len(batch.Tasks))
		for _, t := range batch.Tasks {
			spec := scheduler.TaskSpec{
				ID:          t.ID,
				Type:        t.Type,
				Title:       t.Title,
				Description: t.Description,
				Priority:    scheduler.Priority(t.Priority),
				AgentType:   t.Agent,
				Parameters:  t.Parameters,
				Targets:     t.Targets,
			}
			for _, dep := range t.DependsOn {
				spec.Dependencies = append(spec.Dependencies, scheduler.DepID(dep))
			}
			specs = append(specs, spec)
		}
		return specs, nil
	})
}

// simulateTask is the built-in demo worker: it honors two parameters,
// "delay" (a duration string) and "fail" (an error message), so batch files
// can exercise every scheduling path without real agents.
func simulateTask(ctx context.Context, spec scheduler.TaskSpec) (map[string]any, error) {
	if raw, ok := spec.Parameters["delay"]; ok {
		if s, ok := raw.(string); ok {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("invalid delay %q: %w", s, err)
			}
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if raw, ok := spec.Parameters["fail"]; ok {
		if msg, ok := raw.(string); ok && msg != "" {
			return nil, fmt.Errorf("%s", msg)
		}
	}

	return map[string]any{
		"task_id":   spec.ID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
