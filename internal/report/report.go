package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sort"
	texttemplate "text/template"
	"time"

	"github.com/FranksOps/v6scout/internal/storage"
)

// Summary contains aggregated figures about one or more lookup runs.
type Summary struct {
	TotalDomains   int
	Found          int
	Empty          int
	Unresolved     int
	Failed         int
	TotalAddresses int
	Retried        int // lookups that needed more than one attempt
	ByNode         map[string]int
	AvgQuery       time.Duration
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FailedDomains  []string
}

// GenerateSummary aggregates lookup records.
func GenerateSummary(records []*storage.QueryRecord) Summary {
	s := Summary{
		ByNode:        make(map[string]int),
		FailedDomains: []string{},
	}

	if len(records) == 0 {
		return s
	}

	s.StartTime = records[0].CreatedAt
	s.EndTime = records[0].CreatedAt

	var total time.Duration
	for _, r := range records {
		s.TotalDomains++
		switch r.Outcome {
		case "found":
			s.Found++
		case "empty":
			s.Empty++
		case "unresolved":
			s.Unresolved++
		case "failed":
			s.Failed++
			s.FailedDomains = append(s.FailedDomains, r.Domain)
		}
		s.TotalAddresses += len(r.Addresses)
		if r.Attempts > 1 {
			s.Retried++
		}
		if r.Node != "" {
			s.ByNode[r.Node]++
		}
		total += r.Duration

		if r.CreatedAt.Before(s.StartTime) {
			s.StartTime = r.CreatedAt
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}
	}

	sort.Strings(s.FailedDomains)
	s.AvgQuery = (total / time.Duration(s.TotalDomains)).Round(time.Millisecond)
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `v6scout Lookup Summary
----------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Domains:       {{.TotalDomains}}
Found:         {{.Found}} ({{.TotalAddresses}} addresses)
Empty:         {{.Empty}}
Unresolved:    {{.Unresolved}}
Failed:        {{.Failed}}
Retried:       {{.Retried}}
Avg Lookup:    {{.AvgQuery}}

Egress Nodes:
{{- range $node, $count := .ByNode}}
  {{$node}}: {{$count}}
{{- else}}
  None
{{- end}}

Failed Domains:
{{- range .FailedDomains}}
  {{.}}
{{- else}}
  None
{{- end}}
`

	t, err := texttemplate.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: parse text template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render text: %w", err)
	}
	return nil
}

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>v6scout Lookup Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>v6scout Lookup Report</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Domains</div>
    <div class="stat-val">{{.TotalDomains}}</div>
  </div>
  <div class="stat-card">
    <div>Found</div>
    <div class="stat-val">{{.Found}}</div>
  </div>
  <div class="stat-card">
    <div>Empty</div>
    <div class="stat-val">{{.Empty}}</div>
  </div>
  <div class="stat-card">
    <div>Unresolved</div>
    <div class="stat-val">{{.Unresolved}}</div>
  </div>
  <div class="stat-card">
    <div>Failed</div>
    <div class="stat-val" style="color: {{if gt .Failed 0}}red{{else}}green{{end}};">{{.Failed}}</div>
  </div>

  <h3>Egress Nodes</h3>
  <table>
    <tr><th>Node</th><th>Lookups</th></tr>
    {{- range $node, $count := .ByNode}}
    <tr><td>{{$node}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Failed Domains</h3>
  <ul>
    {{- range .FailedDomains}}
    <li>{{.}}</li>
    {{- else}}
    <li>None</li>
    {{- end}}
  </ul>
</body>
</html>
`
	t, err := template.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: parse html template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}
