package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/mathquiz/internal/store"
	"github.com/abhisek/mathquiz/internal/submission"
)

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "Inspect saved quiz submissions",
}

// withSubmissions opens the configured backend and hands a service to fn.
func withSubmissions(cmd *cobra.Command, fn func(*submission.Service) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	repo, closeRepo, err := submissionRepo(cfg, st)
	if err != nil {
		return err
	}
	defer closeRepo()

	return fn(submission.NewService(repo, nil))
}

var submissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		course, _ := cmd.Flags().GetString("course")
		user, _ := cmd.Flags().GetString("user")

		return withSubmissions(cmd, func(svc *submission.Service) error {
			subs, err := svc.List(cmd.Context(), store.SubmissionFilter{Limit: limit, Course: course, UserID: user})
			if err != nil {
				return fmt.Errorf("query submissions: %w", err)
			}
			if len(subs) == 0 {
				fmt.Println("No submissions found.")
				return nil
			}

			fmt.Printf("%-36s  %-19s  %-14s  %-20s  %-18s  %8s\n",
				"ID", "Submitted", "Course", "Question", "Correctness", "Secs")
			fmt.Println(strings.Repeat("─", 124))
			for _, s := range subs {
				secs := "-"
				if s.DurationMs != nil {
					secs = fmt.Sprintf("%.1f", float64(*s.DurationMs)/1000)
				}
				fmt.Printf("%-36s  %-19s  %-14s  %-20s  %-18s  %8s\n",
					s.ID,
					s.TimeSubmitted.Local().Format("2006-01-02 15:04:05"),
					truncate(s.Course, 14),
					truncate(s.QuestionID, 20),
					truncate(s.Correctness, 18),
					secs,
				)
			}
			return nil
		})
	},
}

var submissionsViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "View one submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSubmissions(cmd, func(svc *submission.Service) error {
			s, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			sep := strings.Repeat("─", 60)
			fmt.Printf("ID:          %s\n", s.ID)
			fmt.Printf("Submitted:   %s\n", s.TimeSubmitted.Local().Format("2006-01-02 15:04:05"))
			if s.DurationMs != nil {
				fmt.Printf("Duration:    %dms\n", *s.DurationMs)
			}
			fmt.Printf("Course:      %s\n", s.Course)
			fmt.Printf("Question ID: %s\n", s.QuestionID)
			fmt.Printf("Correctness: %s\n", s.Correctness)
			if s.Username != "" || s.Email != "" || s.UserID != "" {
				fmt.Printf("User:        %s <%s> %s\n", s.Username, s.Email, s.UserID)
			}

			fmt.Println()
			fmt.Println(sep)
			fmt.Println("QUESTION")
			fmt.Println(sep)
			fmt.Println(s.Question)
			fmt.Println(sep)
			fmt.Println("ANSWER")
			fmt.Println(sep)
			fmt.Println(string(s.UserAnswer))
			fmt.Println(sep)
			fmt.Println("REASONING")
			fmt.Println(sep)
			fmt.Println(s.ReasoningSteps)
			fmt.Println(sep)
			fmt.Println("AI FEEDBACK")
			fmt.Println(sep)
			fmt.Println(indentJSON(s.AIFeedback))
			return nil
		})
	},
}

func indentJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(b)
}

func init() {
	submissionsListCmd.Flags().IntP("limit", "n", 20, "Number of submissions to show")
	submissionsListCmd.Flags().String("course", "", "Filter by course")
	submissionsListCmd.Flags().String("user", "", "Filter by user ID")

	submissionsCmd.AddCommand(submissionsListCmd)
	submissionsCmd.AddCommand(submissionsViewCmd)
}
