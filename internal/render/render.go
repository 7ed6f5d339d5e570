// Package render turns an assembled briefing into its markdown document.
package render

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/linnemanlabs/hermes/internal/briefing"
)

const briefingTmpl = `# Daily Cyber Impact Briefing — {{ .RunDate }}

{{ if not .Entries }}No stories met the impact threshold today.
{{ else }}{{ range .Entries }}## {{ .Rank }}. {{ .Story.Representative.Title }}{{ if .Degraded }} ⚠{{ end }}

**Impact {{ .Assessment.Score }}** · {{ .Assessment.Category }} · {{ .Story.SourceCount }} source{{ if gt .Story.SourceCount 1 }}s{{ end }} · first seen {{ .Story.FirstSeenAt.Format "2006-01-02 15:04 MST" }}

{{ .Summary }}
{{ if .Commentary }}
> {{ .Commentary }}
{{ end }}
[{{ .Story.Representative.SourceID }}]({{ .Story.Representative.URL }})

{{ end }}{{ end }}---
_Generated {{ .RenderedAt.Format "2006-01-02 15:04 MST" }}{{ if .DegradedCount }} · {{ .DegradedCount }} entr{{ if eq .DegradedCount 1 }}y{{ else }}ies{{ end }} degraded (⚠){{ end }}_
`

// Markdown renders briefings as a markdown document. The zero value is
// usable.
type Markdown struct{}

// NewMarkdown returns a markdown renderer.
func NewMarkdown() *Markdown {
	return &Markdown{}
}

var tmpl = template.Must(template.New("briefing").Parse(briefingTmpl))

type tmplData struct {
	RunDate       string
	Entries       []briefing.Entry
	RenderedAt    time.Time
	DegradedCount int
}

// Render implements briefing.Renderer. Rendering the same briefing twice
// yields the same document.
func (m *Markdown) Render(b *briefing.Briefing) (string, error) {
	data := tmplData{
		RunDate:    b.RunDate,
		Entries:    b.Entries,
		RenderedAt: b.RenderedAt,
	}
	for _, e := range b.Entries {
		if e.Degraded {
			data.DegradedCount++
		}
	}
	if data.RenderedAt.IsZero() {
		return "", fmt.Errorf("briefing has no rendered_at timestamp")
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("execute briefing template: %w", err)
	}
	return sb.String(), nil
}
