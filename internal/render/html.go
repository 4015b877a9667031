package render

import (
	"bytes"
	"fmt"
	"html/template"
)

var cardTemplate = template.Must(template.New("card").Parse(`<div class="aifx-box">
  <div class="aifx-head">
    <div class="aifx-title">{{.Title}}</div>
    <span class="{{.Pill.Class}}" data-state="{{.Pill.State}}">{{.Pill.Label}}</span>
  </div>
  <div class="aifx-body">
    {{- if .Summary}}
    <p>{{.Summary}}</p>
    {{- end}}
    {{- if .Math}}
    <div class="aifx-math-wrap">
      {{- range .Math}}
      {{- if .Label}}
      <div class="aifx-math"><div class="aifx-math-label">{{.Label}}</div> \({{.Math}}\)</div>
      {{- else}}
      <div class="aifx-math">\({{.Math}}\)</div>
      {{- end}}
      {{- end}}
    </div>
    {{- end}}
    <div class="aifx-split">
      <div class="aifx-col">
        {{template "section" .Strengths}}
      </div>
      <div class="aifx-col">
        {{template "section" .Issues}}
      </div>
    </div>
    <div class="aifx-col aifx-next">
      {{template "section" .NextSteps}}
    </div>
    {{- if .Badges}}
    <div class="aifx-badges">
      {{- range .Badges}}<span class="aifx-badge">{{.}}</span>{{end -}}
    </div>
    {{- end}}
  </div>
</div>
{{define "section"}}<h5>{{.Heading}}</h5>
        {{if .Items}}<ol>{{range .Items}}<li>{{.}}</li>{{end}}</ol>{{else}}<p>{{.Placeholder}}</p>{{end}}{{end}}`))

// HTML renders the card as escaped markup using the aifx-* classes.
func HTML(c Card) (string, error) {
	var buf bytes.Buffer
	if err := cardTemplate.Execute(&buf, c); err != nil {
		return "", fmt.Errorf("render card: %w", err)
	}
	return buf.String(), nil
}
