package notify

import (
	"bytes"
	"errors"
	"text/template"
)

// DefaultTemplate is used when no custom template is configured.
const DefaultTemplate = `[Refund Alarm] {{.Vars.alarm_type}} ({{.Vars.severity}})
Case: {{.Vars.case_id}}
Track: {{.Vars.track}}
Status: {{.Vars.status}}
Elapsed: {{.Vars.actual_days}} days (threshold {{.Vars.threshold_days}} days)
{{.Vars.message}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	UserID      string
	TemplateKey string
	Vars        map[string]string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alarm-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to one notification.
func (t *Template) Render(userID, templateKey string, variables map[string]string) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alarm template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, TemplateData{UserID: userID, TemplateKey: templateKey, Vars: variables}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
