package sop

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var exportMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

var exportTemplate = template.Must(template.New("sop").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Georgia, serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; color: #1a1a1a; }
h1 { border-bottom: 2px solid #1a1a1a; padding-bottom: .5rem; }
table.meta { border-collapse: collapse; margin: 1rem 0; }
table.meta td { border: 1px solid #ccc; padding: .25rem .75rem; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// ExportHTML renders the SOP as a standalone printable HTML document.
func ExportHTML(s SOP) ([]byte, error) {
	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", s.Title)

	md.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&md, "| Status | %s |\n", s.Status)
	if s.DepartmentName != "" {
		fmt.Fprintf(&md, "| Department | %s |\n", s.DepartmentName)
	}
	if s.OwnerName != "" {
		fmt.Fprintf(&md, "| Owner | %s |\n", s.OwnerName)
	}
	if s.ApprovedByName != "" && s.ApprovedAt != nil {
		fmt.Fprintf(&md, "| Approved | %s by %s |\n", s.ApprovedAt.Format(time.DateOnly), s.ApprovedByName)
	}
	if s.EffectiveDate != "" {
		fmt.Fprintf(&md, "| Effective | %s |\n", s.EffectiveDate)
	}
	if s.ReviewDate != "" {
		fmt.Fprintf(&md, "| Review by | %s |\n", s.ReviewDate)
	}
	md.WriteString("\n")

	sections := []struct {
		heading string
		body    string
	}{
		{"Purpose", s.Purpose},
		{"Scope", s.Scope},
		{"Responsible Party", s.ResponsibleParty},
		{"Trigger Event", s.TriggerEvent},
		{"Procedure", s.Steps},
		{"Exceptions", s.Exceptions},
		{"Related Policies", s.RelatedPolicies},
	}
	for _, section := range sections {
		if section.body == "" {
			continue
		}
		fmt.Fprintf(&md, "## %s\n\n%s\n\n", section.heading, section.body)
	}

	var body bytes.Buffer
	if err := exportMarkdown.Convert([]byte(md.String()), &body); err != nil {
		return nil, fmt.Errorf("rendering SOP markdown: %w", err)
	}

	var page bytes.Buffer
	err := exportTemplate.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: s.Title,
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering SOP page: %w", err)
	}
	return page.Bytes(), nil
}
