package app

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"ombudsman_deadline_notifier/internal/domain/deadline"
)

// Content is a rendered message, before addressing.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

var bucketHeadlines = map[deadline.Bucket]string{
	deadline.BucketDueIn15:   "vencem em 15 dias",
	deadline.BucketDueToday:  "vencem hoje",
	deadline.BucketOverdue60: "estão vencidas há 60 dias ou mais",
}

func headline(b deadline.Bucket) string {
	if h, ok := bucketHeadlines[b]; ok {
		return h
	}
	return string(b)
}

func formatDate(d deadline.Date) string {
	if d.IsZero() {
		return "-"
	}
	return d.Time().Format("02/01/2006")
}

func departmentLabel(name string) string {
	if name == "" {
		return "Secretaria não informada"
	}
	return name
}

var templateFuncs = map[string]any{
	"date":       formatDate,
	"department": departmentLabel,
}

const departmentText = `Prezados(as) da {{department .Department}},

As manifestações abaixo {{.Headline}}:
{{range .Items}}
- Protocolo {{.Protocol}} ({{.Type}}): prazo {{date .DueDate}}, {{.DaysRemaining}} dia(s)
{{- end}}

Total: {{len .Items}}
{{- if .DashboardURL}}
Painel: {{.DashboardURL}}
{{- end}}

Ouvidoria Municipal
`

const departmentHTML = `<p>Prezados(as) da <strong>{{department .Department}}</strong>,</p>
<p>As manifestações abaixo {{.Headline}}:</p>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Protocolo</th><th>Tipo</th><th>Criação</th><th>Prazo</th><th>Dias</th></tr>
{{- range .Items}}
<tr><td>{{.Protocol}}</td><td>{{.Type}}</td><td>{{date .CreatedOn}}</td><td>{{date .DueDate}}</td><td>{{.DaysRemaining}}</td></tr>
{{- end}}
</table>
<p>Total: {{len .Items}}</p>
{{- if .DashboardURL}}
<p><a href="{{.DashboardURL}}">Abrir painel da Ouvidoria</a></p>
{{- end}}
<p>Ouvidoria Municipal</p>
`

const digestText = `Resumo de manifestações que vencem hoje ({{date .Today}})
{{range .Departments}}
{{department .Name}}: {{len .Items}}
{{- range .Items}}
  - {{.Protocol}} ({{.Type}})
{{- end}}
{{end}}
Total geral: {{.Total}} manifestação(ões) em {{len .Departments}} secretaria(s)
`

const digestHTML = `<p>Resumo de manifestações que vencem hoje ({{date .Today}})</p>
{{- range .Departments}}
<h4>{{department .Name}} ({{len .Items}})</h4>
<ul>
{{- range .Items}}
<li>{{.Protocol}} ({{.Type}})</li>
{{- end}}
</ul>
{{- end}}
<p><strong>Total geral: {{.Total}}</strong> manifestação(ões) em {{len .Departments}} secretaria(s)</p>
{{- if .DashboardURL}}
<p><a href="{{.DashboardURL}}">Abrir painel da Ouvidoria</a></p>
{{- end}}
`

// Composer renders department and digest messages.
type Composer struct {
	dashboardURL string

	deptHTML   *htmltemplate.Template
	deptText   *texttemplate.Template
	digestHTML *htmltemplate.Template
	digestText *texttemplate.Template
}

func NewComposer(dashboardURL string) *Composer {
	return &Composer{
		dashboardURL: dashboardURL,
		deptHTML:     htmltemplate.Must(htmltemplate.New("department.html").Funcs(templateFuncs).Parse(departmentHTML)),
		deptText:     texttemplate.Must(texttemplate.New("department.txt").Funcs(templateFuncs).Parse(departmentText)),
		digestHTML:   htmltemplate.Must(htmltemplate.New("digest.html").Funcs(templateFuncs).Parse(digestHTML)),
		digestText:   texttemplate.Must(texttemplate.New("digest.txt").Funcs(templateFuncs).Parse(digestText)),
	}
}

func render(html *htmltemplate.Template, text *texttemplate.Template, data any) (string, string, error) {
	var hb, tb bytes.Buffer
	if err := html.Execute(&hb, data); err != nil {
		return "", "", fmt.Errorf("failed to render html body: %w", err)
	}
	if err := text.Execute(&tb, data); err != nil {
		return "", "", fmt.Errorf("failed to render text body: %w", err)
	}
	return hb.String(), tb.String(), nil
}

// Department renders the message for one department batch.
func (c *Composer) Department(b *Batch) (Content, error) {
	data := struct {
		Department   string
		Headline     string
		Items        []Item
		DashboardURL string
	}{b.Department, headline(b.Bucket), b.Items, c.dashboardURL}

	html, text, err := render(c.deptHTML, c.deptText, data)
	if err != nil {
		return Content{}, err
	}
	subject := fmt.Sprintf("Ouvidoria: %d manifestação(ões) %s - %s", len(b.Items), headline(b.Bucket), departmentLabel(b.Department))
	return Content{Subject: subject, HTML: html, Text: text}, nil
}

type digestDepartment struct {
	Name  string
	Items []Item
}

// Digest renders the cross-department summary of due-today batches.
func (c *Composer) Digest(today deadline.Date, batches map[string]*Batch) (Content, int, error) {
	var (
		depts []digestDepartment
		total int
	)
	for _, name := range departmentNames(batches) {
		b := batches[name]
		if len(b.Items) == 0 {
			continue
		}
		depts = append(depts, digestDepartment{Name: name, Items: b.Items})
		total += len(b.Items)
	}

	data := struct {
		Today        deadline.Date
		Departments  []digestDepartment
		Total        int
		DashboardURL string
	}{today, depts, total, c.dashboardURL}

	html, text, err := render(c.digestHTML, c.digestText, data)
	if err != nil {
		return Content{}, 0, err
	}
	subject := fmt.Sprintf("Ouvidoria: %d manifestação(ões) vencem hoje em %d secretaria(s)", total, len(depts))
	return Content{Subject: subject, HTML: html, Text: text}, total, nil
}
