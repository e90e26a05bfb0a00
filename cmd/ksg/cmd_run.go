package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"knowshowgo/internal/agent"
	"knowshowgo/internal/types"
)

var runJSON bool

// runCmd executes one request through the full loop
var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Run one request through the plan-execute-adapt loop",
	Long: `Runs a single request end to end: intent classification, memory
recall, planning (or procedure reuse), execution, and learning.

Examples:
  ksg run "remind me to water the plants"
  ksg run "log in to https://portal.example.com"
  ksg run "what is the wifi password"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRequest,
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full response as JSON")
}

func runRequest(cmd *cobra.Command, args []string) error {
	request := strings.Join(args, " ")
	logger.Info("Handling request", zap.String("request", request))

	ctx, cancel := commandContext(cmd)
	defer cancel()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	resp := rt.agent.HandleRequest(ctx, request)

	if runJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render response: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Print(renderResponse(resp))
	return nil
}

// renderResponse formats one agent response for the terminal.
func renderResponse(resp *agent.Response) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Intent:  %s\n", resp.Intent)
	fmt.Fprintf(&b, "Status:  %s\n", resp.Results.Status)
	if resp.Plan != nil && resp.Plan.Reuse {
		fmt.Fprintf(&b, "Reused:  procedure %s\n", resp.Plan.ProcedureUUID)
	}
	if resp.AdaptationAttempts > 0 {
		fmt.Fprintf(&b, "Adapted: %d attempt(s)\n", resp.AdaptationAttempts)
	}
	if resp.Results.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", resp.Results.Message)
	}

	if len(resp.Results.Results) > 0 {
		fmt.Fprintf(&b, "\nSteps:\n")
		for i, step := range resp.Results.Results {
			line := fmt.Sprintf("  %d. %s [%s]", i+1, step.Tool, step.Status)
			if step.Error != "" {
				line += " " + step.Error
			}
			b.WriteString(line + "\n")
		}
	}

	if resp.Results.Status == types.StatusError && resp.Results.Error != "" {
		fmt.Fprintf(&b, "\nError: %s\n", resp.Results.Error)
	}
	fmt.Fprintf(&b, "\nTrace: %s\n", resp.TraceID)
	return b.String()
}
