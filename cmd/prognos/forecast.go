package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"prognos/internal/agent"
	"prognos/internal/config"
	"prognos/internal/decompose"
	"prognos/internal/dist"
	"prognos/internal/engine"
	"prognos/internal/forecast"
	"prognos/internal/logging"
	"prognos/internal/scheduler"
	"prognos/internal/store"
)

// questionFile is the YAML shape of a --questions file.
type questionFile struct {
	Questions []questionDef `yaml:"questions"`
}

type questionDef struct {
	ID        string   `yaml:"id"`
	Kind      string   `yaml:"kind"`
	Prompt    string   `yaml:"prompt"`
	Options   []string `yaml:"options,omitempty"`
	Lower     *float64 `yaml:"lower,omitempty"`
	Upper     *float64 `yaml:"upper,omitempty"`
	LowerOpen bool     `yaml:"lower_open,omitempty"`
	UpperOpen bool     `yaml:"upper_open,omitempty"`
	LogScale  bool     `yaml:"log_scale,omitempty"`
	Outcomes  int      `yaml:"outcomes,omitempty"`
	Decompose bool     `yaml:"decompose,omitempty"`
	MaxSubs   int      `yaml:"max_subs,omitempty"`
}

func newForecastCmd() *cobra.Command {
	var questionsPath string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast every question in a YAML question file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			questions, err := loadQuestions(questionsPath, cfg)
			if err != nil {
				return err
			}
			return runForecast(cmd.Context(), cfg, questions, dryRun)
		},
	}

	cmd.Flags().StringVarP(&questionsPath, "questions", "q", "", "path to the YAML question file (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "forecast without journaling the results")
	cmd.MarkFlagRequired("questions")
	return cmd
}

// loadQuestions parses and validates a question file into engine questions.
func loadQuestions(path string, cfg config.Config) ([]engine.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question file: %w", err)
	}

	var file questionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(file.Questions) == 0 {
		return nil, fmt.Errorf("%s contains no questions", path)
	}

	out := make([]engine.Question, 0, len(file.Questions))
	for i, def := range file.Questions {
		kind := forecast.QuestionKind(def.Kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("question %d (%s): unknown kind %q", i, def.ID, def.Kind)
		}
		if def.ID == "" {
			return nil, fmt.Errorf("question %d has no id", i)
		}

		q := engine.Question{
			ID:        def.ID,
			Kind:      kind,
			Prompt:    def.Prompt,
			Options:   def.Options,
			Decompose: def.Decompose,
			MaxSubs:   def.MaxSubs,
		}
		if kind == forecast.KindNumeric {
			outcomes := def.Outcomes
			if outcomes <= 0 {
				outcomes = cfg.Synthesis.DefaultOutcomeCount
			}
			q.Bounds = &forecast.DistributionBounds{
				Lower:        def.Lower,
				Upper:        def.Upper,
				LowerOpen:    def.LowerOpen,
				UpperOpen:    def.UpperOpen,
				LogScale:     def.LogScale,
				OutcomeCount: outcomes,
			}
		}
		out = append(out, q)
	}
	return out, nil
}

// runForecast wires the pipeline from config and processes every question in
// file order.
func runForecast(ctx context.Context, cfg config.Config, questions []engine.Question, dryRun bool) error {
	log := logging.Get(logging.CategoryBoot)

	gemini, err := agent.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		return err
	}

	exec := scheduler.New(scheduler.Config{
		MaxConcurrent: cfg.Limits.MaxConcurrent,
		MaxRetries:    cfg.Limits.MaxRetries,
	})
	defer exec.Stop()

	elicitor := agent.NewElicitor(agent.NewScheduledClient(exec, gemini))
	coord := decompose.New(decompose.Config{
		MaxFanOut:   cfg.Limits.MaxFanOut,
		UnitTimeout: cfg.Limits.UnitTimeout,
		GracePeriod: cfg.Limits.GracePeriod,
	})
	policy := dist.Policy{
		MinStepFraction: cfg.Synthesis.MinStepFraction,
		TailOvershoot:   cfg.Synthesis.TailOvershoot,
		CDFFloor:        cfg.Synthesis.CDFFloor,
	}
	eng := engine.New(elicitor, coord, policy, cfg.Limits.MaxDepth)

	var journal *store.Journal
	if !dryRun {
		journal, err = store.NewJournal(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer journal.Close()
	}

	log.Info("forecast run starting",
		zap.Int("questions", len(questions)),
		zap.String("model", cfg.LLM.Model),
		zap.Bool("dry_run", dryRun))

	failures := 0
	for _, q := range questions {
		agg, err := eng.Forecast(ctx, q)
		if err != nil {
			failures++
			fmt.Printf("✗ %s: %v\n", q.ID, err)
			continue
		}

		if journal != nil {
			if _, err := journal.Record(ctx, q.ID, agg); err != nil {
				return fmt.Errorf("failed to journal %s: %w", q.ID, err)
			}
		}
		printSummary(q, agg)
	}

	fmt.Printf("\n%s\n", exec.Snapshot())
	if failures > 0 {
		return fmt.Errorf("%d of %d questions failed", failures, len(questions))
	}
	return nil
}

// printSummary writes a one-glance summary of a forecast to stdout.
func printSummary(q engine.Question, agg forecast.AggregateForecast) {
	degraded := ""
	if agg.Degraded {
		degraded = " (degraded)"
	}

	switch agg.Kind {
	case forecast.KindBinary:
		fmt.Printf("✓ %s: P(yes) = %.3f%s\n", q.ID, *agg.Prob, degraded)

	case forecast.KindNumeric:
		fmt.Printf("✓ %s: CDF over %d outcomes, median ≈ bucket %d%s\n",
			q.ID, len(agg.CDF), medianBucket(agg.CDF), degraded)

	case forecast.KindCategorical:
		keys := make([]string, 0, len(agg.Categories))
		for k := range agg.Categories {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Printf("✓ %s:%s\n", q.ID, degraded)
		for _, k := range keys {
			fmt.Printf("    %-20s %.3f\n", k, agg.Categories[k])
		}
	}
}

// medianBucket returns the first bucket whose cumulative mass reaches 0.5.
func medianBucket(cdf forecast.ContinuousCDF) int {
	for i, v := range cdf {
		if v >= 0.5 {
			return i
		}
	}
	return len(cdf) - 1
}
