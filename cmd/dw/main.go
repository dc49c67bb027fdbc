package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/codespacesh/domainwire/internal/bridge"
	"github.com/codespacesh/domainwire/internal/client"
	"github.com/codespacesh/domainwire/internal/config"
	"github.com/codespacesh/domainwire/internal/journal"
	"github.com/codespacesh/domainwire/internal/server"
)

var (
	dataDirFlag string
	urlFlag     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dw",
		Short: "Command/event bridge worker for editor tooling",
	}
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (default ~/.domainwire)")
	rootCmd.PersistentFlags().StringVar(&urlFlag, "url", "", "Connect to a remote worker (ws://host:port)")

	rootCmd.AddCommand(
		serveCmd(),
		stopCmd(),
		callCmd(),
		domainsCmd(),
		eventsCmd(),
		journalCmd(),
		replCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func dataDir() string {
	if dataDirFlag != "" {
		return dataDirFlag
	}
	return config.DefaultDataDir()
}

func target() *client.Target {
	return &client.Target{DataDir: dataDir(), URL: urlFlag}
}

// setupLogging picks a text handler on a terminal, JSON when piped.
func setupLogging() {
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	slog.SetDefault(slog.New(handler))
}

// ---------------------------------------------------------------------------
// serveCmd (aliases: start)
// ---------------------------------------------------------------------------

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the domainwire worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			dir := dataDir()
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating data dir: %w", err)
			}

			s, err := server.New(dir)
			if err != nil {
				return fmt.Errorf("initializing worker: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
			go func() {
				<-sigCh
				fmt.Fprintln(os.Stderr, "[dw] shutting down...")
				cancel()
			}()

			if err := s.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// stopCmd
// ---------------------------------------------------------------------------

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(server.PIDPath(dataDir()))
			if err != nil {
				return fmt.Errorf("no running worker found: %w", err)
			}
			var pid int
			if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
				return fmt.Errorf("parsing pid file: %w", err)
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signaling worker (pid %d): %w", pid, err)
			}
			fmt.Printf("sent SIGTERM to worker (pid %d)\n", pid)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// callCmd
// ---------------------------------------------------------------------------

func callCmd() *cobra.Command {
	var timeoutFlag time.Duration
	cmd := &cobra.Command{
		Use:   "call <domain> <command> [args...]",
		Short: "Invoke a command and print its result",
		Long:  "Invoke a command. Arguments are parsed as JSON; bare words are passed as strings. Binary results are written raw to stdout.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
			defer cancel()

			conn, err := target().Open(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			res, err := conn.Invoke(ctx, args[0], args[1], parseArgs(args[2:])...)
			if err != nil {
				return formatFailure(err)
			}
			return printResult(res)
		},
	}
	cmd.Flags().DurationVar(&timeoutFlag, "timeout", 30*time.Second, "Abandon the call after this long")
	return cmd
}

// parseArgs converts CLI arguments to command parameters: valid JSON is
// passed through as its value, anything else as a plain string.
func parseArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, a := range raw {
		var v any
		if err := json.Unmarshal([]byte(a), &v); err == nil {
			out[i] = v
		} else {
			out[i] = a
		}
	}
	return out
}

func printResult(res bridge.Result) error {
	if res.IsBinary {
		_, err := os.Stdout.Write(res.Binary)
		return err
	}
	var pretty any
	if err := json.Unmarshal(res.JSON, &pretty); err != nil {
		fmt.Println(string(res.JSON))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// formatFailure surfaces a remote stack trace when the worker sent one.
func formatFailure(err error) error {
	if failure, ok := err.(*bridge.CommandFailure); ok && failure.Stack != "" {
		return fmt.Errorf("%s\n%s", failure.Message, failure.Stack)
	}
	return err
}

// ---------------------------------------------------------------------------
// domainsCmd
// ---------------------------------------------------------------------------

func domainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "domains",
		Short: "List registered domains, commands, and events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			conn, err := target().Open(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			res, err := conn.Invoke(ctx, "base", "getDomainDescriptions")
			if err != nil {
				return formatFailure(err)
			}
			return printResult(res)
		},
	}
}

// ---------------------------------------------------------------------------
// eventsCmd
// ---------------------------------------------------------------------------

func eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events <domain> <event>",
		Short: "Subscribe to an event and print each delivery",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
			go func() {
				<-sigCh
				cancel()
			}()

			conn, err := target().Open(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			sub := conn.Subscribe(args[0], args[1])
			defer conn.Unsubscribe(sub)

			for ev := range sub.C {
				line := map[string]any{
					"id":         ev.ID,
					"domain":     ev.Domain,
					"event":      ev.Event,
					"parameters": ev.Parameters,
				}
				out, err := json.Marshal(line)
				if err != nil {
					continue
				}
				fmt.Println(string(out))
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// journalCmd
// ---------------------------------------------------------------------------

func journalCmd() *cobra.Command {
	var limitFlag int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print recent journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			jnl, err := journal.Open(dataDir(), 0)
			if err != nil {
				return err
			}
			defer jnl.Close()

			entries, err := jnl.Recent(limitFlag)
			if err != nil {
				return err
			}
			for _, e := range entries {
				detail := ""
				if e.Detail != "" {
					detail = " " + e.Detail
				}
				fmt.Printf("%s  %-10s  #%-6d  %s.%s%s\n",
					e.At.Format(time.RFC3339), e.Kind, e.RequestID, e.Domain, e.Name, detail)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limitFlag, "limit", 50, "Maximum entries to print")
	return cmd
}
