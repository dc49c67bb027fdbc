package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// replCmd opens an interactive prompt that invokes one command per line:
//
//	fs.stat /tmp/a.txt
//	base.ping
func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive command prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			interactive := term.IsTerminal(int(os.Stdin.Fd()))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			conn, err := target().Open(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			scanner := bufio.NewScanner(os.Stdin)
			for {
				if interactive {
					fmt.Print("dw> ")
				}
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}

				fields := strings.Fields(line)
				domainName, command, ok := strings.Cut(fields[0], ".")
				if !ok {
					fmt.Fprintln(os.Stderr, "usage: <domain>.<command> [args...]")
					continue
				}

				callCtx, callCancel := context.WithTimeout(ctx, 30*time.Second)
				res, err := conn.Invoke(callCtx, domainName, command, parseArgs(fields[1:])...)
				callCancel()
				if err != nil {
					fmt.Fprintln(os.Stderr, "error:", formatFailure(err))
					continue
				}
				if err := printResult(res); err != nil {
					return err
				}
			}
		},
	}
}
