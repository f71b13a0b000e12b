package invoice

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/stitchlab/stitchlab/web"
)

// PDFClient exposes the subset of the report client used by the renderer.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// RenderResult carries the rendered invoice artefacts.
type RenderResult struct {
	HTML   string
	PDF    []byte
	Length int64
}

// Renderer turns InvoiceData into PDF bytes via html/template + PDF conversion.
type Renderer struct {
	tpl    *template.Template
	client PDFClient
}

// NewRenderer parses the invoice template and wires the PDF client. The
// currency symbol prefixes every money value; amounts render grouped with
// two decimals throughout.
func NewRenderer(client PDFClient, currencySymbol string) (*Renderer, error) {
	if client == nil {
		return nil, fmt.Errorf("invoice renderer: pdf client required")
	}
	if currencySymbol == "" {
		currencySymbol = "$"
	}
	printer := message.NewPrinter(language.English)
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006")
		},
		"money": func(v float64) string {
			return currencySymbol + printer.Sprintf("%.2f", v)
		},
	}
	tpl, err := template.New("invoice.html").Funcs(funcMap).ParseFS(web.Templates, "templates/invoice.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tpl: tpl, client: client}, nil
}

// Render executes the template and converts the HTML to PDF bytes.
func (r *Renderer) Render(ctx context.Context, data InvoiceData) (RenderResult, error) {
	if r == nil || r.tpl == nil || r.client == nil {
		return RenderResult{}, fmt.Errorf("invoice renderer not initialised")
	}
	buf := &bytes.Buffer{}
	if err := r.tpl.Execute(buf, data); err != nil {
		return RenderResult{}, err
	}
	pdf, err := r.client.RenderHTML(ctx, buf.String())
	if err != nil {
		return RenderResult{}, err
	}
	return RenderResult{HTML: buf.String(), PDF: pdf, Length: int64(len(pdf))}, nil
}
