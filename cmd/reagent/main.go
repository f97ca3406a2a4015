// Command reagent runs an LLM tool-calling loop from the terminal.
//
//	reagent run "what time is it in UTC?"
//	reagent resume <token | @token-file>
//	reagent cancel <token | @token-file> [reason]
//	reagent list <run-id>
//
// Configuration comes from reagent.toml (or REAGENT_CONFIG) plus env vars;
// see internal/config. The latest checkpoint token is written to
// .reagent-token so an interrupted run can be resumed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	reagent "github.com/nevindra/reagent"
	"github.com/nevindra/reagent/internal/config"
	"github.com/nevindra/reagent/observer"
	"github.com/nevindra/reagent/provider/openaicompat"
	"github.com/nevindra/reagent/store/sqlite"
)

const tokenFile = ".reagent-token"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load(os.Getenv("REAGENT_CONFIG"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close(ctx)

	var cmdErr error
	switch cmd := os.Args[1]; cmd {
	case "run":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		cmdErr = app.run(ctx, strings.Join(os.Args[2:], " "))
	case "resume":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		cmdErr = app.resume(ctx, readToken(os.Args[2]))
	case "cancel":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		reason := ""
		if len(os.Args) > 3 {
			reason = strings.Join(os.Args[3:], " ")
		}
		cmdErr = app.cancel(readToken(os.Args[2]), reason)
	case "list":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		cmdErr = app.list(ctx, os.Args[2])
	default:
		usage()
		os.Exit(2)
	}
	if cmdErr != nil {
		logger.Error("command failed", "error", cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  reagent run <query>
  reagent resume <token | @file>
  reagent cancel <token | @file> [reason]
  reagent list <run-id>`)
}

// readToken resolves a token argument: "@path" reads the token from a file.
func readToken(arg string) string {
	if !strings.HasPrefix(arg, "@") {
		return arg
	}
	data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "read token file: %v\n", err)
		os.Exit(1)
	}
	return strings.TrimSpace(string(data))
}

// app holds the wired engine pieces for one CLI invocation.
type app struct {
	cfg      *reagent.Config
	store    *sqlite.Store
	logger   *slog.Logger
	tracer   reagent.Tracer
	sink     reagent.EventSink
	shutdown func(context.Context) error
}

func newApp(ctx context.Context, fileCfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	var provider reagent.Provider = openaicompat.New(fileCfg.LLM.APIKey, fileCfg.LLM.BaseURL,
		openaicompat.WithLogger(logger))

	if fileCfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			return nil, fmt.Errorf("observer init: %w", err)
		}
		a.shutdown = shutdown
		a.tracer = observer.NewTracer()
		a.sink = observer.NewEventMetrics(inst)
		provider = observer.WrapProvider(provider, inst)
	}
	provider = reagent.WithRetry(provider, reagent.RetryLogger(logger))

	cfg, err := reagent.BuildConfig(reagent.ConfigInput{
		Model:         fileCfg.LLM.Model,
		SystemPrompt:  fileCfg.Run.SystemPrompt,
		Provider:      provider,
		Tools:         builtinTools(fileCfg.Tools.Workspace),
		MaxIterations: fileCfg.Run.MaxIterations,
		MaxTokens:     fileCfg.Run.MaxTokens,
		LLMTimeout:    time.Duration(fileCfg.LLM.TimeoutSeconds) * time.Second,
		Streaming:     fileCfg.LLM.Streaming,
		ToolPolicy: reagent.ToolPolicy{
			Timeout:      time.Duration(fileCfg.Tools.TimeoutSeconds) * time.Second,
			MaxRetries:   fileCfg.Tools.MaxRetries,
			RetryBackoff: time.Duration(fileCfg.Tools.BackoffMS) * time.Millisecond,
			Concurrency:  fileCfg.Tools.Concurrency,
		},
		TokenPolicy: reagent.TokenPolicy{
			SigningSecret: fileCfg.Token.SigningSecret,
			TTL:           time.Duration(fileCfg.Token.TTLSeconds) * time.Second,
			Compress:      fileCfg.Token.Compress,
		},
	})
	if err != nil {
		return nil, err
	}
	a.cfg = cfg

	if fileCfg.Database.Path != "" {
		a.store = sqlite.New(fileCfg.Database.Path, sqlite.WithLogger(logger))
		if err := a.store.Init(ctx); err != nil {
			return nil, fmt.Errorf("checkpoint store init: %w", err)
		}
	}
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.store != nil {
		a.store.Close()
	}
	if a.shutdown != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.shutdown(sctx); err != nil {
			a.logger.Warn("observer shutdown", "error", err)
		}
	}
}

func (a *app) runOptions() []reagent.RunOption {
	opts := []reagent.RunOption{reagent.WithLogger(a.logger)}
	if a.store != nil {
		opts = append(opts, reagent.WithCheckpointStore(a.store))
	}
	if a.tracer != nil {
		opts = append(opts, reagent.WithTracer(a.tracer))
	}
	if a.sink != nil {
		opts = append(opts, reagent.WithEventSink(a.sink))
	}
	return opts
}

func (a *app) run(ctx context.Context, query string) error {
	h, err := reagent.Start(ctx, query, a.cfg, a.runOptions()...)
	if err != nil {
		return err
	}
	return a.consume(ctx, h)
}

func (a *app) resume(ctx context.Context, token string) error {
	h, err := reagent.Continue(ctx, token, a.cfg, a.runOptions()...)
	if err != nil {
		return err
	}
	return a.consume(ctx, h)
}

func (a *app) cancel(token, reason string) error {
	cancelled, err := reagent.Cancel(token, a.cfg, reason)
	if err != nil {
		return err
	}
	saveToken(cancelled)
	fmt.Println(cancelled)
	return nil
}

func (a *app) list(ctx context.Context, runID string) error {
	if a.store == nil {
		return fmt.Errorf("no checkpoint database configured")
	}
	recs, err := a.store.ListCheckpoints(ctx, runID, 50)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		fmt.Printf("%s  %-14s %-12s %s\n",
			time.UnixMilli(rec.IssuedAt).Format(time.RFC3339),
			rec.Status, rec.Reason, rec.Token[:min(40, len(rec.Token))]+"...")
	}
	return nil
}

// consume drains the run's event stream to the terminal, keeping the latest
// checkpoint token on disk for resume.
func (a *app) consume(ctx context.Context, h *reagent.RunHandle) error {
	// A second interrupt kills the process; the first asks the run to stop.
	go func() {
		<-ctx.Done()
		h.Cancel("interrupted")
	}()

	for ev := range h.Events() {
		switch ev.Kind {
		case reagent.EventLLMDelta:
			fmt.Print(ev.Delta)
		case reagent.EventLLMCompleted:
			if ev.TurnType == "tool_calls" {
				for _, tc := range ev.ToolCalls {
					fmt.Fprintf(os.Stderr, "→ %s(%s)\n", tc.Name, compact(tc.Args))
				}
			}
		case reagent.EventToolCompleted:
			if ev.ToolResult != nil && ev.ToolResult.Error != "" {
				fmt.Fprintf(os.Stderr, "✗ %s: %s\n", ev.ToolName, ev.ToolResult.Error)
			} else if ev.ToolResult != nil {
				fmt.Fprintf(os.Stderr, "✓ %s: %s\n", ev.ToolName, truncate(ev.ToolResult.Content, 120))
			}
		case reagent.EventCheckpoint:
			saveToken(ev.Token)
		case reagent.EventRequestCompleted:
			fmt.Printf("\n%s\n", ev.Result)
		case reagent.EventRequestFailed:
			fmt.Fprintf(os.Stderr, "\nrun failed: %s\n", ev.Error)
		case reagent.EventRequestCancelled:
			fmt.Fprintf(os.Stderr, "\nrun cancelled: %s (resume with reagent resume @%s)\n", ev.Reason, tokenFile)
		}
	}

	if st, ok := h.FinalState(); ok {
		a.logger.Info("run finished",
			"run", h.RunID(),
			"status", string(st.Status),
			"iterations", st.Iteration,
			"tokens", st.Usage.TotalTokens)
	}
	return nil
}

func saveToken(token string) {
	_ = os.WriteFile(tokenFile, []byte(token), 0o600)
}

func compact(raw json.RawMessage) string {
	return truncate(string(raw), 80)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
