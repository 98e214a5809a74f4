// Command memoryctl inspects and drives the memory engine from the shell:
// it runs the classifier, scorer and event extractor on ad-hoc text, reports
// profile stats, purges expired documents and replays interactions.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/classify"
	"github.com/becomeliminal/nim-memory/memory/narrative"
	"github.com/becomeliminal/nim-memory/memory/scoring"
)

const (
	formatYAML = "yaml"
	formatJSON = "json"
)

type options struct {
	configPath string
	format     string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "memoryctl",
		Short:        "Inspect and drive the financial assistant memory engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: memory.yaml in ./config, ., /etc/nim-memory/)")
	root.PersistentFlags().StringVarP(&opts.format, "output", "o", formatYAML, "Output format (yaml, json)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine activity to stderr")

	root.AddCommand(
		newClassifyCmd(opts),
		newScoreCmd(opts),
		newExtractCmd(opts),
		newNarrativeCmd(opts),
		newStatsCmd(opts),
		newPurgeCmd(opts),
		newRunCmd(opts),
	)
	return root
}

func newClassifyCmd(opts *options) *cobra.Command {
	var active []string
	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Detect the memory categories of a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ctx classify.Context
			for _, a := range active {
				ctx.ActiveCategories = append(ctx.ActiveCategories, core.Category(a))
			}
			scores := classify.New().DetectCategories(strings.Join(args, " "), ctx)
			return write(cmd.OutOrStdout(), opts.format, scores)
		},
	}
	cmd.Flags().StringSliceVar(&active, "active", nil, "Categories already active in the session")
	return cmd
}

func newScoreCmd(opts *options) *cobra.Command {
	var sc scoring.Context
	cmd := &cobra.Command{
		Use:   "score [text]",
		Short: "Explain the long-term impact score of a statement",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return write(cmd.OutOrStdout(), opts.format, scoring.Explain(strings.Join(args, " "), sc))
		},
	}
	cmd.Flags().IntVar(&sc.SourceChats, "chats", 0, "Conversations the statement appeared in")
	cmd.Flags().IntVar(&sc.AccessCount, "accesses", 0, "Times the statement was retrieved")
	cmd.Flags().IntVar(&sc.MentionCount, "mentions", 1, "Mentions in the current conversation")
	return cmd
}

func newExtractCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "extract [text]",
		Short: "Extract the narrative event of a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			var hint core.Category
			if scores := classify.New().DetectCategories(text, classify.Context{}); len(scores) > 0 {
				hint = scores[0].Category
			}
			ev := narrative.Extractor{}.Extract(text, time.Now(), hint)
			return write(cmd.OutOrStdout(), opts.format, ev)
		},
	}
}

func newNarrativeCmd(opts *options) *cobra.Command {
	var maxWords int
	cmd := &cobra.Command{
		Use:   "narrative",
		Short: "Fold messages read from stdin, one per line, into a narrative",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			classifier := classify.New()
			now := time.Now()
			var events []narrative.Event

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for i := 0; scanner.Scan(); i++ {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				var hint core.Category
				if scores := classifier.DetectCategories(line, classify.Context{}); len(scores) > 0 {
					hint = scores[0].Category
				}
				// Lines are a second apart so the narrative keeps input order.
				events = append(events, narrative.Extractor{}.Extract(line, now.Add(time.Duration(i)*time.Second), hint))
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), narrative.EventsToNarrative(events, maxWords, now.Add(time.Duration(len(events))*time.Second)))
			return err
		},
	}
	cmd.Flags().IntVar(&maxWords, "max-words", 750, "Narrative word budget")
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [user]",
		Short: "Show the long-term profile stats of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			stats, err := e.UserStats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), opts.format, stats)
		},
	}
}

func newPurgeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Hard-delete documents past their retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), opts.format, res)
		},
	}
}

// runReport is printed by the run command.
type runReport struct {
	Stats   engine.Stats `json:"stats" yaml:"stats"`
	Skipped int          `json:"skipped" yaml:"skipped"`
	Errors  []string     `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process JSONL interactions from stdin through the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEngine(ctx, opts)
			if err != nil {
				return err
			}
			if err := e.Start(ctx); err != nil {
				_ = e.Close()
				return err
			}

			var report runReport
			done := make(chan struct{})
			go func() {
				defer close(done)
				for taskErr := range e.Errors() {
					report.Errors = append(report.Errors, taskErr.Error())
				}
			}()

			sessions := make(map[string]bool)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				var in core.Interaction
				if err := json.Unmarshal([]byte(line), &in); err != nil {
					report.Skipped++
					continue
				}
				if in.SessionID != "" && !sessions[in.SessionID] {
					if _, err := e.InitializeSession(ctx, in.SessionID, in.UserID, nil); err == nil {
						sessions[in.SessionID] = true
					}
				}
				if err := enqueue(ctx, e, in); err != nil {
					report.Skipped++
				}
			}
			scanErr := scanner.Err()

			closeErr := e.Close()
			<-done
			report.Stats = e.Stats()

			if scanErr != nil {
				return fmt.Errorf("read stdin: %w", scanErr)
			}
			if closeErr != nil {
				return closeErr
			}
			return write(cmd.OutOrStdout(), opts.format, report)
		},
	}
}

// enqueue waits for queue space instead of dropping the interaction.
func enqueue(ctx context.Context, e *engine.MemoryEngine, in core.Interaction) error {
	for {
		_, err := e.ProcessInteraction(ctx, in)
		if !errors.Is(err, memory.ErrQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func openEngine(ctx context.Context, opts *options) (*engine.MemoryEngine, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger := log.NewNop()
	if opts.verbose {
		logger = cfg.NewLogger()
	}
	return config.Build(ctx, cfg, logger)
}

func write(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
