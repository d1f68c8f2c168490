package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/laird/nextgen-CDD-sub002/internal/events"
	"github.com/laird/nextgen-CDD-sub002/internal/graph"
	"github.com/laird/nextgen-CDD-sub002/internal/memory"
	"github.com/laird/nextgen-CDD-sub002/internal/queue"
	"github.com/laird/nextgen-CDD-sub002/internal/reasoning"
	"github.com/laird/nextgen-CDD-sub002/internal/store"
	"github.com/laird/nextgen-CDD-sub002/internal/types"
	"github.com/laird/nextgen-CDD-sub002/internal/workflow"
)

// jobDescriptor is the YAML shape accepted by `cdd run`. The research and
// stress-test payloads carry some parameters at the top level, siblings of
// config; workflowConfig folds them together.
type jobDescriptor struct {
	JobType       string         `yaml:"jobType"`
	EngagementID  string         `yaml:"engagementId"`
	Thesis        string         `yaml:"thesis,omitempty"`
	StressTestID  string         `yaml:"stressTestId,omitempty"`
	HypothesisIDs []string       `yaml:"hypothesisIds,omitempty"`
	Config        map[string]any `yaml:"config"`
}

// workflowConfig merges the top-level descriptor fields into the workflow
// config payload. An explicit config key wins over its top-level sibling.
func (d *jobDescriptor) workflowConfig() map[string]any {
	cfg := make(map[string]any, len(d.Config)+3)
	for k, v := range d.Config {
		cfg[k] = v
	}
	if d.Thesis != "" {
		if _, ok := cfg["thesis"]; !ok {
			cfg["thesis"] = d.Thesis
		}
	}
	if d.StressTestID != "" {
		if _, ok := cfg["stressTestId"]; !ok {
			cfg["stressTestId"] = d.StressTestID
		}
	}
	if len(d.HypothesisIDs) > 0 {
		if _, ok := cfg["hypothesisIds"]; !ok {
			cfg["hypothesisIds"] = d.HypothesisIDs
		}
	}
	return cfg
}

var awaitTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run <descriptor.yaml>",
	Short: "Run a single job from a descriptor file and wait for it",
	Args:  cobra.ExactArgs(1),
	RunE:  runJob,
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	descriptor, err := readDescriptor(args[0])
	if err != nil {
		return err
	}

	jobType := queue.JobType(descriptor.JobType)
	if !jobType.IsValid() {
		return types.NewError("CLI_INVALID_DESCRIPTOR",
			fmt.Sprintf("unknown jobType %q", descriptor.JobType))
	}
	if descriptor.EngagementID == "" {
		return types.NewError("CLI_INVALID_DESCRIPTOR", "engagementId is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	db, err := store.OpenWithConfig(store.Config{
		Path:            cfg.Store.Path,
		MaxOpenConns:    cfg.Store.MaxConnections,
		MaxIdleConns:    cfg.Store.MaxConnections / 2,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     cfg.Store.Timeout,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	provider, err := reasoning.NewProvider(reasoning.ProviderConfig{
		Name:        cfg.Provider.Name,
		Model:       cfg.Provider.Model,
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		Temperature: cfg.Provider.Temperature,
		Timeout:     cfg.Provider.Timeout,
	})
	if err != nil {
		return err
	}

	bus := events.NewBus(events.WithLogger(logger))
	defer bus.Close()

	graphs := graph.NewManager()
	registry := workflow.NewDefaultRegistry(workflow.Deps{
		Graphs:   graphs,
		Provider: provider,
		Memory:   memory.NewInMemoryStore(),
		Bus:      bus,
		Logger:   logger,
		Options: workflow.Options{
			ParallelLimit:      cfg.Core.ParallelLimit,
			MinSources:         cfg.Research.MinSourcesPerHypothesis,
			MaxSources:         cfg.Research.MaxSourcesPerHypothesis,
			ProceedThreshold:   cfg.Research.ProceedThreshold,
			ReviewThreshold:    cfg.Research.ReviewThreshold,
			CriticalImportance: cfg.Research.CriticalImportance,
			MinContradictions:  cfg.StressTest.MinContradictions,
		},
	})

	q := queue.New(queue.Config{
		Workers:         cfg.Queue.Workers,
		MaxAttempts:     cfg.Queue.MaxAttempts,
		RetryDelay:      cfg.Queue.RetryDelay,
		Retention:       cfg.Queue.Retention,
		Depth:           cfg.Queue.Depth,
		JanitorInterval: cfg.Queue.JanitorInterval,
	}, registry,
		bus,
		queue.WithLogger(logger),
		queue.WithJobSink(store.NewJobDAO(db)),
	)
	q.Start(ctx)
	defer q.Stop()

	// Stream progress to stderr while the job runs.
	eventCh, unsubscribe := bus.Subscribe(ctx, events.Filter{
		EngagementID: descriptor.EngagementID,
	}, 64)
	defer unsubscribe()
	go func() {
		for event := range eventCh {
			logger.Info("progress",
				"type", event.Type,
				"job_id", event.JobID,
				"data", event.Data)
		}
	}()

	job, err := q.Enqueue("", jobType, descriptor.EngagementID, descriptor.workflowConfig())
	if err != nil {
		return err
	}
	logger.Info("job enqueued", "job_id", job.ID, "job_type", job.JobType)

	final, err := q.AwaitCompletion(ctx, job.ID, awaitTimeout)
	if err != nil {
		return err
	}

	// Persist the final graph alongside the job record.
	if snap := graphs.Snapshot(descriptor.EngagementID); snap != nil {
		if err := store.NewSnapshotDAO(db).Save(ctx, snap); err != nil {
			logger.Warn("graph snapshot not saved", "error", err)
		}
	}

	out, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if final.Status == queue.StatusFailed {
		return types.NewError("CLI_JOB_FAILED",
			fmt.Sprintf("job %s failed: %s", final.ID, final.ErrorMessage))
	}
	return nil
}

func readDescriptor(path string) (*jobDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}
	var descriptor jobDescriptor
	if err := yaml.Unmarshal(data, &descriptor); err != nil {
		return nil, fmt.Errorf("parsing descriptor: %w", err)
	}
	return &descriptor, nil
}

func init() {
	runCmd.Flags().DurationVar(&awaitTimeout, "timeout", 30*time.Minute, "How long to wait for the job to finish")
}
