// ABOUTME: Text table and HTML page renderers for log entries
// ABOUTME: Detail pages render the message as markdown via goldmark with raw HTML suppressed

package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/auditlog-gateway/internal/logstore"
)

const maxSummaryRunes = 60

// summarize returns the first line of msg, cut to maxSummaryRunes.
func summarize(msg string) string {
	line, _, more := strings.Cut(msg, "\n")
	r := []rune(line)
	if len(r) > maxSummaryRunes {
		r = r[:maxSummaryRunes]
		more = true
	}
	s := string(r)
	if more {
		s += "..."
	}
	return s
}

// RenderTable writes entries as an aligned plain text table, in the order given.
func RenderTable(w io.Writer, entries []logstore.Entry, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tLEVEL\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, FormatTimestamp(e.Timestamp, loc), e.Level, summarize(e.Message))
	}
	return tw.Flush()
}

// Markdown converts an entry message to HTML. Raw HTML in the message is
// omitted from the output.
func Markdown(msg string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(msg), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Detail is the input of the entry detail page.
type Detail struct {
	Entry    logstore.Entry
	Link     string // deep link to this page
	QRPath   string // optional QR code image path
	Location *time.Location
}

type detailData struct {
	Entry   logstore.Entry
	Style   template.CSS
	Icon    string
	Date    string
	Time    string
	Link    string
	QRPath  string
	Message template.HTML
}

var detailTemplate = template.Must(template.New("detail").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Log entry {{.Entry.ID}}</title>
</head>
<body>
<article class="entry" style="{{.Style}}">
<h1><span class="material-icons">{{.Icon}}</span> Entry #{{.Entry.ID}}</h1>
<dl>
<dt>Level</dt><dd>{{.Entry.Level}}</dd>
<dt>Date</dt><dd>{{.Date}}</dd>
<dt>Time</dt><dd>{{.Time}}</dd>
</dl>
<section class="message">
{{.Message}}</section>
<p class="link"><a href="{{.Link}}">{{.Link}}</a></p>
{{- if .QRPath}}
<img class="qr" src="{{.QRPath}}" width="200" height="200" alt="QR code for entry {{.Entry.ID}}">
{{- end}}
</article>
</body>
</html>
`))

// RenderDetail writes the HTML detail page of one entry.
func RenderDetail(w io.Writer, d Detail) error {
	msg, err := Markdown(d.Entry.Message)
	if err != nil {
		return err
	}
	data := detailData{
		Entry:   d.Entry,
		Style:   template.CSS("border-left: 4px solid " + LevelColor(d.Entry.Level)),
		Icon:    LevelIcon(d.Entry.Level),
		Date:    FormatDate(d.Entry.Timestamp, d.Location),
		Time:    FormatTime(d.Entry.Timestamp, d.Location),
		Link:    d.Link,
		QRPath:  d.QRPath,
		Message: msg,
	}
	if err := detailTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("rendering entry %d: %w", d.Entry.ID, err)
	}
	return nil
}

// IndexRow is one line of the index page.
type IndexRow struct {
	ID      string
	Level   string
	Color   template.CSS
	When    string
	Summary string
	Link    string
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Audit log</title>
</head>
<body>
<h1>Audit log</h1>
<p>{{len .}} entries</p>
<table>
<tr><th>ID</th><th>Time</th><th>Level</th><th>Message</th></tr>
{{- range .}}
<tr><td><a href="{{.Link}}">{{.ID}}</a></td><td>{{.When}}</td><td style="{{.Color}}">{{.Level}}</td><td>{{.Summary}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

// RenderIndex writes an HTML listing of entries, in the order given, each
// linking to its detail page under base.
func RenderIndex(w io.Writer, entries []logstore.Entry, link func(id uint64) string, loc *time.Location) error {
	rows := make([]IndexRow, len(entries))
	for i, e := range entries {
		rows[i] = IndexRow{
			ID:      strconv.FormatUint(e.ID, 10),
			Level:   e.Level,
			Color:   template.CSS("color: " + LevelColor(e.Level)),
			When:    FormatTimestamp(e.Timestamp, loc),
			Summary: summarize(e.Message),
			Link:    link(e.ID),
		}
	}
	if err := indexTemplate.Execute(w, rows); err != nil {
		return fmt.Errorf("rendering index: %w", err)
	}
	return nil
}
