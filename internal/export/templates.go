package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(reportHTML))

// RenderReportHTML renders the audit report template with provided data.
func RenderReportHTML(report Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.TemplateName}} — {{.ChecklistPublicID}}</title>
<style>
  body { font-family: Helvetica, Arial, sans-serif; color: #1a1a1a; font-size: 12px; }
  h1 { font-size: 20px; margin-bottom: 0; }
  .meta { color: #666; margin-bottom: 24px; }
  h2 { font-size: 14px; border-bottom: 1px solid #ddd; padding-bottom: 4px; margin-top: 20px; }
  table { width: 100%; border-collapse: collapse; }
  td, th { text-align: left; padding: 4px 8px; vertical-align: top; border-bottom: 1px solid #eee; }
  .status { text-transform: lowercase; }
  .status-APPROVED { color: #1a7f37; }
  .status-REJECTED { color: #b42318; }
  .status-PENDING_VERIFICATION { color: #9a6700; }
  .internal { color: #666; font-style: italic; }
  .reason { color: #b42318; }
</style>
</head>
<body>
  <h1>{{.TemplateName}}</h1>
  <div class="meta">
    Checklist {{.ChecklistPublicID}} · {{.ProducerName}} · {{.Status}}<br>
    Generated {{formatDate .GeneratedAt "2006-01-02 15:04"}}
  </div>
  {{range .Sections}}
  <h2>{{.Name}}</h2>
  <table>
    <tr><th>Item</th><th>Answer</th><th>Status</th></tr>
    {{range .Rows}}
    <tr>
      <td>{{.ItemName}}{{if .IsInternal}} <span class="internal">(internal)</span>{{end}}</td>
      <td>
        {{.Answer}}
        {{if .Quantity}}<br>Qty: {{.Quantity}}{{end}}
        {{if .Observation}}<br>{{.Observation}}{{end}}
        {{if .FileURL}}<br><a href="{{.FileURL}}">attachment</a>{{end}}
      </td>
      <td class="status status-{{.Status}}">
        {{lower .Status}}
        {{if .RejectionReason}}<br><span class="reason">{{.RejectionReason}}</span>{{end}}
      </td>
    </tr>
    {{end}}
  </table>
  {{end}}
</body>
</html>`
