package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/mathquiz/internal/quiz"
)

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Browse and answer practice questions",
}

var quizTopicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List question topics",
	Run: func(cmd *cobra.Command, args []string) {
		for _, t := range quiz.Topics() {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
	},
}

var quizNextCmd = &cobra.Command{
	Use:   "next <topic>",
	Short: "Print a question for a topic",
	Long: `Print a question for a topic. With --answer the question is asked
interactively and each part is graded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, err := quiz.NewGenerator(nil)
		if err != nil {
			return err
		}
		q, err := gen.Next(args[0])
		if err != nil {
			return fmt.Errorf("%w (try: %s)", err, strings.Join(quiz.Topics(), ", "))
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s  [%s]\n", q.ID, q.Topic)
		fmt.Fprintln(out, q.Text)
		if q.Latex != "" && q.Latex != q.Text {
			fmt.Fprintln(out, q.Latex)
		}
		for _, p := range q.Parts {
			line := "  - " + p.Prompt
			if len(p.Choices) > 0 {
				line += " (" + strings.Join(p.Choices, " | ") + ")"
			}
			fmt.Fprintln(out, line)
		}

		if !flagBool(cmd, "answer") {
			if flagBool(cmd, "solution") {
				printSolution(cmd, q)
			}
			return nil
		}

		scanner := bufio.NewScanner(cmd.InOrStdin())
		answers := make(map[string]string, len(q.Parts))
		for _, p := range q.Parts {
			fmt.Fprintf(out, "%s > ", p.Prompt)
			if !scanner.Scan() {
				break
			}
			answers[p.Key] = scanner.Text()
		}

		res := quiz.Check(q, answers)
		fmt.Fprintln(out)
		for _, p := range q.Parts {
			fmt.Fprintf(out, "%s %s\n", okMark(res.Parts[p.Key]), p.Prompt)
		}
		if !res.Correct && q.Hint != "" {
			fmt.Fprintln(out, "\nHint:", q.Hint)
		}
		printSolution(cmd, q)
		return nil
	},
}

func printSolution(cmd *cobra.Command, q *quiz.Question) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nSolution")
	fmt.Fprintln(out, strings.Repeat("─", 40))
	for i, s := range q.Steps {
		fmt.Fprintf(out, "%d. %s\n", i+1, s)
	}
	for _, p := range q.Parts {
		fmt.Fprintf(out, "%s: %s\n", p.Prompt, p.Answer)
	}
}

func init() {
	quizNextCmd.Flags().Bool("answer", false, "Answer the question interactively")
	quizNextCmd.Flags().Bool("solution", false, "Print the worked solution")

	quizCmd.AddCommand(quizTopicsCmd)
	quizCmd.AddCommand(quizNextCmd)
}
