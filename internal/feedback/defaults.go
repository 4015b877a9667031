package feedback

import (
	"github.com/abhisek/mathquiz/internal/reasoning"
	"github.com/abhisek/mathquiz/internal/verdict"
)

const (
	issueWrongAnswer = "The final answer is incorrect."
	issueGeneric     = "Answer and/or reasoning are incorrect."
	strengthResult   = "Correct final result."
	stepRework       = "Rework the solution and write a clear justification."
	stepFixLatex     = "Fix the LaTeX syntax errors so your notation renders."
	conceptReasoning = "Reasoning quality"
)

// localRecord builds the record used when the collaborator supplies nothing.
// Every list is non-nil so encoded records always carry arrays.
func localRecord(v verdict.Verdict, a reasoning.Assessment, answerCorrect bool) Record {
	switch v {
	case verdict.Correct:
		return Record{
			Summary:     "Answer and reasoning are solid.",
			Correctness: v,
			Strengths:   []string{"Correct result with clear reasoning."},
			Issues:      []string{},
			NextSteps:   []string{},
			KeyConcepts: []string{"Complete justification"},
		}
	case verdict.PartiallyCorrect:
		return Record{
			Summary:     "Answer is right, but reasoning needs improvement.",
			Correctness: v,
			Strengths:   []string{strengthResult},
			Issues:      []string{"Reasoning is present but not fully correct or complete."},
			NextSteps:   []string{"Clarify each step and cite the exact rule (e.g., chain rule)."},
			KeyConcepts: []string{conceptReasoning},
		}
	}

	issues := []string{}
	if !answerCorrect {
		issues = append(issues, issueWrongAnswer)
	}
	gaps := a.Gaps()
	for _, g := range gaps {
		issues = append(issues, g.Message())
	}
	if len(issues) == 0 {
		issues = append(issues, issueGeneric)
	}

	strengths := []string{}
	if answerCorrect {
		strengths = append(strengths, strengthResult)
	}
	strengths = append(strengths, a.Strengths()...)

	steps := []string{stepRework}
	for _, g := range gaps {
		if g == reasoning.GapInvalidLatex {
			steps = append(steps, stepFixLatex)
		}
	}

	return Record{
		Summary:     "This needs correction.",
		Correctness: verdict.Incorrect,
		Strengths:   strengths,
		Issues:      issues,
		NextSteps:   steps,
		KeyConcepts: []string{conceptReasoning},
	}
}
