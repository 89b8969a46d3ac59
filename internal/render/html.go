package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"kvitto/internal/core"
	appweb "kvitto/web"
)

// IndexView feeds the month listing page.
type IndexView struct {
	Sender     string
	Groups     []core.Group
	GrandTotal core.Money
	Count      int
}

// NewIndexView summarizes groups for the index page.
func NewIndexView(sender string, groups []core.Group) IndexView {
	count := 0
	for _, g := range groups {
		count += g.Count()
	}
	return IndexView{Sender: sender, Groups: groups, GrandTotal: core.GrandTotal(groups), Count: count}
}

// DetailView feeds the single receipt page.
type DetailView struct {
	Detail core.ReceiptDetail
	Total  core.Money
}

// NewDetailView sums the line item costs of d.
func NewDetailView(d core.ReceiptDetail) DetailView {
	costs := make([]core.Money, len(d.Items))
	for i, it := range d.Items {
		costs[i] = it.Cost
	}
	return DetailView{Detail: d, Total: core.Sum(costs...)}
}

type errorView struct {
	Status     int
	StatusText string
	Message    string
}

type chartView struct {
	ChartOptions
	Data ChartData
}

// Pages renders the embedded HTML templates.
type Pages struct {
	tmpl *template.Template
}

// NewPages parses the embedded templates.
func NewPages() (*Pages, error) {
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Pages{tmpl: t}, nil
}

// Index writes the month listing.
func (p *Pages) Index(w io.Writer, v IndexView) error {
	return p.execute(w, "index.html", v)
}

// Detail writes one receipt with its line items.
func (p *Pages) Detail(w io.Writer, v DetailView) error {
	return p.execute(w, "detail.html", v)
}

// Error writes a readable error page. The caller sets the status code.
func (p *Pages) Error(w io.Writer, status int, msg string) error {
	return p.execute(w, "error.html", errorView{
		Status:     status,
		StatusText: http.StatusText(status),
		Message:    msg,
	})
}

// ChartPage writes a self-contained bar chart page.
func (p *Pages) ChartPage(w io.Writer, opts ChartOptions, data ChartData) error {
	return p.execute(w, "chart.html", chartView{ChartOptions: opts, Data: data})
}

// execute renders into a buffer first so a failing template never leaves a
// half-written page behind.
func (p *Pages) execute(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
