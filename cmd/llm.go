package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/mathquiz/internal/llm"
	"github.com/abhisek/mathquiz/internal/store"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect recorded LLM calls",
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent LLM calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		purpose, _ := cmd.Flags().GetString("purpose")
		since, _ := cmd.Flags().GetDuration("since")

		opts := store.QueryOpts{Limit: limit, Purpose: purpose}
		if since > 0 {
			opts.From = time.Now().Add(-since)
		}

		return withEvents(cmd, func(repo store.EventRepo) error {
			events, err := repo.QueryLLMEvents(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("query events: %w", err)
			}
			if flagBool(cmd, "failed") {
				events = failedOnly(events)
			}
			if len(events) == 0 {
				fmt.Println("No LLM calls recorded.")
				return nil
			}

			fmt.Printf("%-5s  %-19s  %-14s  %-10s  %-28s  %6s  %6s  %7s  %s\n",
				"ID", "Time", "Purpose", "Provider", "Model", "In", "Out", "Ms", "OK")
			fmt.Println(strings.Repeat("─", 112))
			for _, e := range events {
				fmt.Printf("%-5d  %-19s  %-14s  %-10s  %-28s  %6d  %6d  %7d  %s\n",
					e.ID,
					e.Timestamp.Local().Format("2006-01-02 15:04:05"),
					truncate(e.Purpose, 14),
					truncate(e.Provider, 10),
					truncate(e.Model, 28),
					e.InputTokens,
					e.OutputTokens,
					e.LatencyMs,
					okMark(e.Success),
				)
			}
			return nil
		})
	},
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show the request and response of one LLM call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid ID %q: %w", args[0], err)
		}

		return withEvents(cmd, func(repo store.EventRepo) error {
			e, err := repo.GetLLMEvent(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("get event: %w", err)
			}
			if e == nil {
				return fmt.Errorf("event %d not found", id)
			}

			fmt.Printf("ID:        %d\n", e.ID)
			fmt.Printf("Time:      %s\n", e.Timestamp.Local().Format(time.RFC3339))
			fmt.Printf("Provider:  %s (%s)\n", e.Provider, e.Model)
			fmt.Printf("Purpose:   %s\n", e.Purpose)
			fmt.Printf("Tokens:    %d in / %d out\n", e.InputTokens, e.OutputTokens)
			fmt.Printf("Latency:   %dms\n", e.LatencyMs)
			if cost := llm.LookupCost(e.Model); cost != nil {
				fmt.Printf("Cost:      %s\n", formatCost(cost.Cost(e.InputTokens, e.OutputTokens)))
			}
			fmt.Printf("Result:    %s", okMark(e.Success))
			if e.ErrorMessage != "" {
				fmt.Printf("  %s", e.ErrorMessage)
			}
			fmt.Println()

			printBody("REQUEST", e.RequestBody)
			printBody("RESPONSE", e.ResponseBody)
			return nil
		})
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show token usage per purpose and estimated cost per model",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEvents(cmd, func(repo store.EventRepo) error {
			ctx := cmd.Context()
			byPurpose, err := repo.LLMUsageByPurpose(ctx)
			if err != nil {
				return fmt.Errorf("query usage: %w", err)
			}
			if len(byPurpose) == 0 {
				fmt.Println("No LLM usage recorded yet.")
				return nil
			}

			rule := strings.Repeat("─", 72)
			fmt.Println("Usage by purpose")
			fmt.Println(rule)
			fmt.Printf("%-16s  %6s  %10s  %10s  %10s  %8s\n",
				"Purpose", "Calls", "Input", "Output", "Total", "Avg ms")
			fmt.Println(rule)
			var calls, in, out int
			for _, u := range byPurpose {
				fmt.Printf("%-16s  %6d  %10d  %10d  %10d  %8d\n",
					u.Purpose, u.Calls, u.InputTokens, u.OutputTokens, u.InputTokens+u.OutputTokens, u.AvgLatencyMs)
				calls += u.Calls
				in += u.InputTokens
				out += u.OutputTokens
			}
			fmt.Println(rule)
			fmt.Printf("%-16s  %6d  %10d  %10d  %10d\n", "TOTAL", calls, in, out, in+out)

			byModel, err := repo.LLMUsageByModel(ctx)
			if err != nil {
				return fmt.Errorf("query model usage: %w", err)
			}
			if len(byModel) == 0 {
				return nil
			}

			fmt.Println()
			fmt.Println("Estimated cost (USD)")
			fmt.Println(rule)
			fmt.Printf("%-32s  %6s  %10s  %10s  %9s\n", "Model", "Calls", "Input", "Output", "Cost")
			fmt.Println(rule)
			var total float64
			var unpriced []string
			for _, u := range byModel {
				price := "?"
				if cost := llm.LookupCost(u.Model); cost != nil {
					c := cost.Cost(u.InputTokens, u.OutputTokens)
					total += c
					price = formatCost(c)
				} else {
					unpriced = append(unpriced, u.Model)
				}
				fmt.Printf("%-32s  %6d  %10d  %10d  %9s\n",
					truncate(u.Model, 32), u.Calls, u.InputTokens, u.OutputTokens, price)
			}
			fmt.Println(rule)
			label := "TOTAL"
			if len(unpriced) > 0 {
				label = "TOTAL (partial)"
			}
			fmt.Printf("%-32s  %6s  %10s  %10s  %9s\n", label, "", "", "", formatCost(total))
			if len(unpriced) > 0 {
				fmt.Printf("\nPricing unavailable for: %s\n", strings.Join(unpriced, ", "))
			}
			return nil
		})
	},
}

// withEvents opens the event store for the duration of fn.
func withEvents(cmd *cobra.Command, fn func(store.EventRepo) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st.EventRepo())
}

func failedOnly(events []store.LLMEvent) []store.LLMEvent {
	out := events[:0]
	for _, e := range events {
		if !e.Success {
			out = append(out, e)
		}
	}
	return out
}

func printBody(title, body string) {
	sep := strings.Repeat("─", 60)
	fmt.Println()
	fmt.Println(sep)
	fmt.Println(title)
	fmt.Println(sep)
	if body == "" {
		fmt.Println("(not captured)")
		return
	}
	if json.Valid([]byte(body)) {
		body = indentJSON(json.RawMessage(body))
	}
	fmt.Println(body)
}

func okMark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of calls to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Filter by purpose (feedback, quick-feedback, proxy)")
	llmListCmd.Flags().Duration("since", 0, "Only calls newer than this (e.g. 24h)")
	llmListCmd.Flags().Bool("failed", false, "Only failed calls")

	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmViewCmd)
	llmCmd.AddCommand(llmStatsCmd)
}
