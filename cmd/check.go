package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/mathquiz/internal/config"
	"github.com/abhisek/mathquiz/internal/feedback"
	"github.com/abhisek/mathquiz/internal/latex"
	"github.com/abhisek/mathquiz/internal/llm"
	"github.com/abhisek/mathquiz/internal/render"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Assess reasoning and print a feedback card",
	Long: `Assess written reasoning, combine it with answer correctness and print
the resulting feedback card.

Reasoning is read from --reasoning, --file, or stdin. When an LLM provider is
configured it is asked for richer feedback; --local skips it.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringP("reasoning", "r", "", "Reasoning text")
	checkCmd.Flags().StringP("file", "f", "", "Read reasoning from a file")
	checkCmd.Flags().StringP("question", "q", "", "Question text given to the LLM")
	checkCmd.Flags().String("topic", "", "Question topic")
	checkCmd.Flags().String("answer", "", "Learner's final answer")
	checkCmd.Flags().String("correct-answer", "", "Expected answer")
	checkCmd.Flags().Bool("answer-correct", false, "The final answer was right")
	checkCmd.Flags().Bool("local", false, "Do not call the LLM")
	checkCmd.Flags().Bool("html", false, "Print the HTML card")
	checkCmd.Flags().Bool("json", false, "Print the feedback record as JSON")
	checkCmd.Flags().Int("width", 72, "Terminal card width")
	checkCmd.MarkFlagsMutuallyExclusive("reasoning", "file")
	checkCmd.MarkFlagsMutuallyExclusive("html", "json")
}

func runCheck(cmd *cobra.Command, args []string) error {
	text, err := readReasoning(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg.Log, cmd.ErrOrStderr())

	var synth *feedback.Synthesizer
	if local, _ := cmd.Flags().GetBool("local"); local || !cfg.LLM.Enabled() {
		synth = newSynthesizer(nil, cfg, log)
	} else {
		var recorder llm.EventRecorder
		if st, err := openStore(cfg); err == nil {
			defer st.Close()
			recorder = st.EventRepo()
		}
		provider := newProvider(cmd.Context(), cfg, recorder, log)
		synth = newSynthesizer(provider, cfg, log)
	}

	question, _ := cmd.Flags().GetString("question")
	topic, _ := cmd.Flags().GetString("topic")
	answer, _ := cmd.Flags().GetString("answer")
	correctAnswer, _ := cmd.Flags().GetString("correct-answer")
	answerCorrect, _ := cmd.Flags().GetBool("answer-correct")

	in := feedback.Input{
		Question:      feedback.Question{Text: question, Topic: topic},
		Reasoning:     text,
		AnswerCorrect: answerCorrect,
	}
	if correctAnswer != "" {
		in.Question.CorrectAnswer = correctAnswer
	}
	if answer != "" {
		in.UserAnswer = answer
	}

	res := synth.Synthesize(cmd.Context(), in)
	if res.Remote.Attempted && !res.Remote.OK {
		fmt.Fprintln(cmd.ErrOrStderr(), "LLM feedback unavailable:", res.Remote.ErrorText())
	}

	out := cmd.OutOrStdout()
	switch {
	case flagBool(cmd, "json"):
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Record)
	case flagBool(cmd, "html"):
		html, err := render.HTML(render.Build(res.Record))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, html)
	default:
		width, _ := cmd.Flags().GetInt("width")
		fmt.Fprintln(out, render.Terminal(render.Build(res.Record), width))
		fmt.Fprintf(out, "\nReasoning score: %.2f (%s), %d words\n",
			res.Assessment.Score, res.Assessment.Tier, res.Assessment.Details.WordCount)
	}
	return nil
}

var latexCmd = &cobra.Command{
	Use:   "latex [text...]",
	Short: "Check LaTeX for common syntax mistakes",
	Long:  "Check LaTeX from the arguments or stdin. Exits with status 1 when errors are found.",
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if len(args) == 0 {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			text = string(b)
		}

		res := latex.Validate(text)
		if res.Valid {
			fmt.Fprintln(cmd.OutOrStdout(), "✓ No LaTeX errors found.")
			return nil
		}
		for _, e := range res.Errors {
			fmt.Fprintln(cmd.OutOrStdout(), "✗", e)
		}
		return fmt.Errorf("%d LaTeX error(s) found", len(res.Errors))
	},
}

func readReasoning(cmd *cobra.Command) (string, error) {
	if s, _ := cmd.Flags().GetString("reasoning"); s != "" {
		return s, nil
	}
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read reasoning: %w", err)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

func flagBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}
