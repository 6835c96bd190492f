package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"specloom/internal/assist"
	"specloom/internal/gitops"
	"specloom/internal/journal"
	"specloom/internal/ledger"
	"specloom/internal/marker"
	"specloom/internal/policy"
	"specloom/internal/validate"
	"specloom/internal/workflow"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "specloom",
		Short: "Marker-driven structured document workflow",
	}
	configPath   string
	templatePath string
	sectionFlag  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the policy configuration")

	validateCmd.Flags().StringVarP(&templatePath, "template", "t", "", "Template document to diff required markers against")

	questionCmd.AddCommand(questionAddCmd, questionAnswerCmd, questionResolveCmd, questionListCmd)
	questionCmd.PersistentFlags().StringVarP(&sectionFlag, "section", "s", "", "Use the section's own question table instead of the document-wide one")

	rootCmd.AddCommand(validateCmd, statusCmd, stepCmd, runCmd, reviewCmd, questionCmd, historyCmd)
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSuffix(string(data), "\n")
	return strings.Split(text, "\n"), nil
}

func writeLines(path string, lines []string) error {
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}

func loadConfig() *policy.Config {
	cfg, err := policy.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func initEngine(ctx context.Context, cfg *policy.Config) *workflow.Engine {
	client, err := assist.FromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Setup failed: %v\nCheck your config and API keys.", err)
	}
	return workflow.NewEngine(client, cfg)
}

// printReport emits one line per finding, or a single affirmative line for a
// clean document. Repairs are itemized before the verdict.
func printReport(r *validate.Report, path string) {
	for _, repair := range r.Repairs {
		fmt.Printf("repaired %s: %s\n", path, repair)
	}
	if r.Valid() {
		fmt.Printf("%s: structure OK\n", path)
		return
	}
	for _, e := range r.Errors {
		fmt.Println(e.Error())
	}
}

var validateCmd = &cobra.Command{
	Use:   "validate [document]",
	Short: "Check structural invariants, repairing missing open-questions boilerplate",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		lines, err := readLines(args[0])
		if err != nil {
			log.Fatalf("Failed to read document: %v", err)
		}

		var report *validate.Report
		if templatePath != "" {
			template, err := readLines(templatePath)
			if err != nil {
				log.Fatalf("Failed to read template: %v", err)
			}
			report = validate.AgainstTemplate(lines, template)
		} else {
			report = validate.All(lines)
		}

		if len(report.Repairs) > 0 {
			if err := writeLines(args[0], report.Lines); err != nil {
				log.Fatalf("Failed to write repaired document: %v", err)
			}
			if cfg, err := policy.Load(configPath); err == nil && cfg.Journal.Path != "" {
				if store, err := journal.Open(cfg.Journal.Path); err == nil {
					defer store.Close()
					if err := store.RecordRepairs(cmd.Context(), args[0], report.Repairs); err != nil {
						log.Printf("Warning: journal write failed: %v", err)
					}
				}
			}
		}

		printReport(report, args[0])
		if !report.Valid() {
			os.Exit(1)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [document]",
	Short: "Show the derived state of every workflow target",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		lines, err := readLines(args[0])
		if err != nil {
			log.Fatalf("Failed to read document: %v", err)
		}

		order, err := marker.ParseWorkflowOrder(lines)
		if err != nil {
			log.Fatalf("Failed to read workflow order: %v", err)
		}

		for _, target := range order {
			if gate, isGate := marker.IsGateTarget(target); isGate {
				if r, ok := marker.FindGateResult(lines, gate); ok {
					verdict := "failed"
					if r.Passed {
						verdict = "passed"
					}
					fmt.Printf("  %-30s gate %s (%d issues, %d warnings)\n", target, verdict, r.Issues, r.Warnings)
				} else {
					fmt.Printf("  %-30s gate not yet run\n", target)
				}
				continue
			}
			st, err := workflow.Classify(lines, target)
			if err != nil {
				log.Fatalf("Failed to classify %s: %v", target, err)
			}
			extra := ""
			if n := len(st.Open); n > 0 {
				extra = fmt.Sprintf(" (%d open questions)", n)
			} else if n := len(st.Answered); n > 0 {
				extra = fmt.Sprintf(" (%d answers to integrate)", n)
			}
			fmt.Printf("  %-30s %s%s\n", target, st.State, extra)
		}
	},
}

var stepCmd = &cobra.Command{
	Use:   "step [document]",
	Short: "Advance the workflow by exactly one target",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		engine := initEngine(ctx, cfg)

		lines, err := readLines(args[0])
		if err != nil {
			log.Fatalf("Failed to read document: %v", err)
		}

		step, err := engine.Step(ctx, lines)
		if err != nil {
			log.Fatalf("Step failed: %v", err)
		}

		persistStep(ctx, cfg, args[0], step)
		reportStep(step)
	},
}

var runCmd = &cobra.Command{
	Use:   "run [document]",
	Short: "Repeat step until the document is complete or blocked",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		engine := initEngine(ctx, cfg)

		lines, err := readLines(args[0])
		if err != nil {
			log.Fatalf("Failed to read document: %v", err)
		}

		result, err := engine.Run(ctx, lines)
		if err != nil {
			log.Fatalf("Run failed: %v", err)
		}

		changed := false
		for _, step := range result.Steps {
			reportStep(step)
			changed = changed || step.Changed
		}
		if changed {
			if err := writeLines(args[0], result.Lines); err != nil {
				log.Fatalf("Failed to write document: %v", err)
			}
			if cfg.Git.Commit {
				if err := gitops.Commit(args[0], "specloom: run"); err != nil {
					log.Printf("Warning: git commit failed: %v", err)
				}
			}
		}
		journalSteps(ctx, cfg, args[0], result.Steps)
	},
}

func journalSteps(ctx context.Context, cfg *policy.Config, path string, steps []*workflow.StepResult) {
	if cfg.Journal.Path == "" || len(steps) == 0 {
		return
	}
	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		log.Printf("Warning: journal unavailable: %v", err)
		return
	}
	defer store.Close()
	for _, step := range steps {
		err := store.RecordStep(ctx, journal.Step{
			Document: path,
			Target:   step.Target,
			Action:   string(step.Action),
			Detail:   step.Detail,
			Changed:  step.Changed,
		})
		if err != nil {
			log.Printf("Warning: journal write failed: %v", err)
			return
		}
	}
}

var reviewCmd = &cobra.Command{
	Use:   "review [document] [gate]",
	Short: "Run one named review gate against its configured scope",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		engine := initEngine(ctx, cfg)

		lines, err := readLines(args[0])
		if err != nil {
			log.Fatalf("Failed to read document: %v", err)
		}

		step, err := engine.Gate(ctx, lines, args[1])
		if err != nil {
			log.Fatalf("Review failed: %v", err)
		}

		persistStep(ctx, cfg, args[0], step)
		reportStep(step)
	},
}

// persistStep writes the mutated document back and feeds the optional journal
// and git integrations.
func persistStep(ctx context.Context, cfg *policy.Config, path string, step *workflow.StepResult) {
	if step.Changed {
		if err := writeLines(path, step.Lines); err != nil {
			log.Fatalf("Failed to write document: %v", err)
		}
	}

	if cfg.Journal.Path != "" {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Printf("Warning: journal unavailable: %v", err)
		} else {
			defer store.Close()
			err = store.RecordStep(ctx, journal.Step{
				Document: path,
				Target:   step.Target,
				Action:   string(step.Action),
				Detail:   step.Detail,
				Changed:  step.Changed,
			})
			if err != nil {
				log.Printf("Warning: journal write failed: %v", err)
			}
			if gate, ok := strings.CutPrefix(step.Target, "review_gate:"); ok && step.Action == workflow.ActionGateRun {
				if r, found := marker.FindGateResult(step.Lines, gate); found {
					if err := store.RecordGateResult(ctx, path, gate, r.Passed, r.Issues, r.Warnings); err != nil {
						log.Printf("Warning: journal write failed: %v", err)
					}
				}
			}
		}
	}

	if cfg.Git.Commit && step.Changed {
		msg := fmt.Sprintf("specloom: %s %s", step.Action, step.Target)
		if err := gitops.Commit(path, msg); err != nil {
			log.Printf("Warning: git commit failed: %v", err)
		}
	}
}

func reportStep(step *workflow.StepResult) {
	switch {
	case step.Action == workflow.ActionAllComplete:
		fmt.Println("✅ All workflow targets complete.")
	case step.Blocked:
		fmt.Printf("⏸  %s blocked: %s\n", step.Target, step.Detail)
	default:
		fmt.Printf("▶  %s %s: %s\n", step.Target, step.Action, step.Detail)
	}
}

var questionCmd = &cobra.Command{
	Use:   "question",
	Short: "Manage the embedded question ledgers",
}

// questionTable picks the ledger a command operates on: the --section table
// when given, otherwise inferred from the question id, otherwise the
// document-wide table.
func questionTable(id string) (tableID, scope string) {
	if sectionFlag != "" {
		return ledger.PerSectionTableID(sectionFlag), sectionFlag
	}
	if sec, _, ok := strings.Cut(id, "-Q"); ok && !strings.HasPrefix(id, "Q-") {
		return ledger.PerSectionTableID(sec), sec
	}
	return ledger.LegacyTableID, ""
}

var questionAddCmd = &cobra.Command{
	Use:   "add [document] [text]",
	Short: "Record a new open question",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		lines, err := readLines(args[0])
		if err != nil {
			log.Fatalf("Failed to read document: %v", err)
		}

		tableID, scope := questionTable("")
		out, id, err := ledger.Insert(lines, tableID, scope, ledger.Question{
			Text:   args[1],
			Date:   todayUTC(),
			Target: scope,
			Status: ledger.StatusOpen,
		})
		if err != nil {
			log.Fatalf("Failed to add question: %v", err)
		}
		if err := writeLines(args[0], out); err != nil {
			log.Fatalf("Failed to write document: %v", err)
		}
		fmt.Printf("recorded %s\n", id)
	},
}

var questionAnswerCmd = &cobra.Command{
	Use:   "answer [document] [id] [answer]",
	Short: "Record an answer to an open question",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		lines, err := readLines(args[0])
		if err != nil {
			log.Fatalf("Failed to read document: %v", err)
		}

		tableID, scope := questionTable(args[1])
		out, err := ledger.Answer(lines, tableID, scope, args[1], args[2])
		if err != nil {
			log.Fatalf("Failed to answer question: %v", err)
		}
		if err := writeLines(args[0], out); err != nil {
			log.Fatalf("Failed to write document: %v", err)
		}
		fmt.Printf("answered %s\n", args[1])
	},
}

var questionResolveCmd = &cobra.Command{
	Use:   "resolve [document] [id]",
	Short: "Mark a question resolved",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		lines, err := readLines(args[0])
		if err != nil {
			log.Fatalf("Failed to read document: %v", err)
		}

		tableID, scope := questionTable(args[1])
		out, changed, err := ledger.Resolve(lines, tableID, scope, args[1])
		if err != nil {
			log.Fatalf("Failed to resolve question: %v", err)
		}
		if !changed {
			fmt.Printf("%s was already resolved\n", args[1])
			return
		}
		if err := writeLines(args[0], out); err != nil {
			log.Fatalf("Failed to write document: %v", err)
		}
		fmt.Printf("resolved %s\n", args[1])
	},
}

var questionListCmd = &cobra.Command{
	Use:   "list [document]",
	Short: "List the questions in a ledger",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		lines, err := readLines(args[0])
		if err != nil {
			log.Fatalf("Failed to read document: %v", err)
		}

		tableID, scope := questionTable("")
		t, err := ledger.ParseTable(lines, tableID, scope)
		if err != nil {
			log.Fatalf("Failed to parse question table: %v", err)
		}
		for _, q := range t.Rows {
			status := string(q.Status)
			if q.Answered() {
				status = "Answered"
			}
			fmt.Printf("  %-16s [%-8s] %s\n", q.ID, status, q.Text)
		}
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [document]",
	Short: "Show recent journaled steps for a document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.Journal.Path == "" {
			log.Fatal("No journal configured")
		}
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		defer store.Close()

		steps, err := store.StepHistory(cmd.Context(), args[0], 50)
		if err != nil {
			log.Fatalf("Failed to read history: %v", err)
		}
		for _, st := range steps {
			fmt.Printf("  %-30s %-18s %s\n", st.Target, st.Action, st.Detail)
		}
	},
}

func todayUTC() string {
	return time.Now().UTC().Format("2006-01-02")
}
