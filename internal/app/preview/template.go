package preview

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/docker/go-units"
	"jaytaylor.com/html2text"
)

const noTextBody = "TEXT MESSAGE CAN NOT BE REPRESENTED"

const defaultTemplateContent = `
{{- define "addresses" -}}
	{{- range $idx, $address := . -}}
		{{- if ne $idx 0 -}}
			{{- printf ", " -}}
		{{- end -}}

		{{- $address.String -}}
	{{- end -}}
{{- end -}}

{{- if .From }}From: {{ template "addresses" .From }}
{{ end -}}
{{- if .To }}To: {{ template "addresses" .To }}
{{ end -}}
{{- if .CC }}CC: {{ template "addresses" .CC }}
{{ end -}}
{{- if .BCC }}BCC: {{ template "addresses" .BCC }}
{{ end -}}
{{- if .ReplyTo }}Reply-To: {{ template "addresses" .ReplyTo }}
{{ end -}}
{{- if .Subject }}Subject: {{ .Subject }}
{{ end -}}
{{- if not .Date.IsZero }}Date: {{ .Date.Format "Jan 02 2006 15:04:05" }}
{{ end }}
{{ preferredBody .BodyParts }}
{{- if .Attachments }}

Attachments:
{{- range .Attachments }}
  - {{ .Filename }} ({{ .MIMEType }}, {{ humanSize .Size }})
{{- end }}
{{- end }}`

var (
	defaultTemplateFuncs = template.FuncMap{
		"preferredBody": preferredBody,
		"humanSize":     humanSize,
	}
	defaultTemplate = template.Must(
		template.
			New("default").
			Funcs(defaultTemplateFuncs).
			Parse(defaultTemplateContent),
	)
)

func renderTemplate(message *Message) (string, error) {
	var buf bytes.Buffer

	if err := defaultTemplate.Execute(&buf, message); err != nil {
		return "", fmt.Errorf("default template rendering: %w", err)
	}

	return strings.TrimSpace(buf.String()), nil
}

var defaultHTMLToTextOpts = html2text.Options{TextOnly: true}

func htmlToText(s string) string {
	output, err := html2text.FromString(s, defaultHTMLToTextOpts)
	if err != nil {
		return s
	}
	return output
}

// preferredBody picks the part a mail reader would show: HTML (as text)
// when present, plain text otherwise.
func preferredBody(parts []BodySegment) string {
	for _, part := range parts {
		if part.MIMEType == "text/html" {
			return strings.TrimSpace(htmlToText(string(part.Body)))
		}
	}
	for _, part := range parts {
		if part.MIMEType == "text/plain" {
			return strings.TrimSpace(string(part.Body))
		}
	}

	return noTextBody
}

func humanSize(size int64) string {
	return units.HumanSize(float64(size))
}
