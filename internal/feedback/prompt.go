package feedback

import (
	"bytes"
	"encoding/json"
	"text/template"

	"github.com/abhisek/mathquiz/internal/reasoning"
)

const narrativeSystemPrompt = `You are an intelligent math tutoring assistant.

Write ONE short paragraph (3-5 sentences) giving feedback to the student about
their answer and reasoning. Be friendly and concise. Use LaTeX between \( \)
for math. Do not return JSON.

When the student's final answer is correct but the explanation is weak or flawed,
praise the result briefly but point out issues and give a concrete tip to improve their reasoning.`

const structuredSystemPrompt = `You are an intelligent math tutoring assistant.

Give feedback to the student about their answer and reasoning as a JSON object with
these fields:
- summary: one short, friendly paragraph (3-5 sentences)
- strengths: what the student did well
- issues: concrete mistakes or gaps in the reasoning
- next_steps: specific actions to improve
- key_concepts: the mathematical ideas involved
- math_highlight: the key expression in LaTeX, a list of expressions, or an object
  mapping a short label to an expression

Use LaTeX between \( \) for math inside text fields. Do not grade the answer;
correctness is decided separately.

When the student's final answer is correct but the explanation is weak or flawed,
praise the result briefly but point out issues and give a concrete tip to improve their reasoning.`

func systemPrompt(mode Mode) string {
	if mode == ModeStructured {
		return structuredSystemPrompt
	}
	return narrativeSystemPrompt
}

var userTemplate = template.Must(template.New("feedback").Funcs(template.FuncMap{
	"json": toJSON,
}).Parse(`QUESTION: {{json .Question.Text}}
{{- if .Question.Topic}}
TOPIC: {{.Question.Topic}}
{{- end}}
PARAMETERS: {{json .Parameters}}

STUDENT_ANSWER(S): {{json .UserAnswer}}
STUDENT_REASONING: {{json .Reasoning}}

ANSWERS_CORRECT: {{.AnswerCorrect}}
REASONING_EVAL: {{json .Assessment}}

CORRECT_ANSWER: {{json .Question.CorrectAnswer}}

{{if .Structured}}Write the feedback object now.{{else}}Write the feedback paragraph now.{{end}}
`))

type promptData struct {
	Input
	Parameters any
	Assessment reasoning.Assessment
	Structured bool
}

func buildUserPrompt(in Input, a reasoning.Assessment, mode Mode) (string, error) {
	data := promptData{
		Input:      in,
		Parameters: map[string]any{},
		Assessment: a,
		Structured: mode == ModeStructured,
	}
	if in.Question.Parameters != nil {
		data.Parameters = in.Question.Parameters
	}
	if data.UserAnswer == nil {
		data.UserAnswer = ""
	}
	if data.Question.CorrectAnswer == nil {
		data.Question.CorrectAnswer = ""
	}

	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
