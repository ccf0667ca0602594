package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/genc-murat/weatherstation/internal/client"
)

var (
	queryAddr    string
	queryTimeout time.Duration
)

var views = map[string]string{
	"current": "/",
	"hour":    "/LastHour",
	"day":     "/LastDay",
	"month":   "/LastMonth",
}

func init() {
	queryCmd.Flags().StringVar(&queryAddr, "addr", "127.0.0.1:50001", "station address")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 5*time.Second, "request timeout")
	rootCmd.AddCommand(queryCmd)
}

// knownView accepts view names in any case.
func knownView(cmd *cobra.Command, args []string) error {
	for _, arg := range args {
		if _, ok := views[strings.ToLower(arg)]; !ok {
			return fmt.Errorf("invalid view %q, want one of current|hour|day|month", arg)
		}
	}
	return nil
}

var queryCmd = &cobra.Command{
	Use:       "query [current|hour|day|month]",
	Short:     "print one view of a running station",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), knownView),
	ValidArgs: []string{"current", "hour", "day", "month"},
	RunE: func(cmd *cobra.Command, args []string) error {
		view := "current"
		if len(args) == 1 {
			view = strings.ToLower(args[0])
		}

		body, err := client.New(queryAddr, queryTimeout).Get(cmd.Context(), views[view])
		if err != nil {
			return err
		}

		var out bytes.Buffer
		if err := json.Indent(&out, body, "", "  "); err != nil {
			return fmt.Errorf("station returned invalid JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.String())
		return nil
	},
}
