package web

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/ipampa/internal/core"
)

// pageYears is the number of most recent years shown on the overview.
const pageYears = 10

// PageData is the view model of the overview page.
type PageData struct {
	Years       []int
	Rows        []PageRow
	Total       int
	Query       string
	LastRefresh *core.RefreshResult
}

// PageRow is one series as displayed: missing years are "-".
type PageRow struct {
	Label      string
	IDBank     string
	LastUpdate string
	Period     string
	Cells      []string
}

func newPageData(ds core.Dataset, total int, query string) PageData {
	years := core.YearsOf(ds)
	if len(years) > pageYears {
		years = years[len(years)-pageYears:]
	}

	rows := make([]PageRow, len(ds))
	for i, s := range ds {
		cells := make([]string, len(years))
		for j, y := range years {
			if v, ok := s.ValueFor(y); ok {
				cells[j] = core.FormatValue(v)
			} else {
				cells[j] = core.MissingValueSentinel
			}
		}
		rows[i] = PageRow{
			Label:      s.Label,
			IDBank:     s.IDBank,
			LastUpdate: s.LastUpdate,
			Period:     s.Period,
			Cells:      cells,
		}
	}

	return PageData{Years: years, Rows: rows, Total: total, Query: query}
}

// ExportURL is the CSV download link for the current filter.
func (d PageData) ExportURL() string {
	if d.Query == "" {
		return "/api/indices/export"
	}
	return "/api/indices/export?q=" + url.QueryEscape(d.Query)
}

// IndexPage renders the overview: the refresh form, the filter, the export
// link and the table of the last ten years.
func IndexPage(d PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}

		p.raw(`<!DOCTYPE html><html lang="fr"><head><meta charset="utf-8"><title>Indices IPAMPA</title>`)
		p.raw(`<style>body{font-family:sans-serif;margin:2rem}table{border-collapse:collapse}` +
			`th,td{border:1px solid #ccc;padding:.25rem .5rem}td.num{text-align:right}</style></head><body>`)
		p.raw(`<h1>Indices IPAMPA</h1>`)

		p.raw(`<p class="count">`)
		if len(d.Rows) == d.Total {
			p.text(fmt.Sprintf("%d indices", d.Total))
		} else {
			p.text(fmt.Sprintf("%d / %d indices", len(d.Rows), d.Total))
		}
		p.raw(`</p>`)

		if r := d.LastRefresh; r != nil {
			p.raw(`<p class="refresh">`)
			if r.Error != "" {
				p.text("Dernière actualisation en échec : " + r.Error)
			} else {
				p.text(fmt.Sprintf("Dernière actualisation : %s (%d indices)",
					r.StartedAt.Format("2006-01-02 15:04:05"), r.Admitted))
			}
			p.raw(`</p>`)
		}

		p.raw(`<form method="post" action="/api/indices/refresh"><button type="submit">Actualiser</button></form>`)
		p.raw(`<form method="get" action="/"><input type="search" name="q" value="`)
		p.text(d.Query)
		p.raw(`" placeholder="Filtrer"><button type="submit">Filtrer</button></form>`)
		p.raw(`<p><a href="`)
		p.text(d.ExportURL())
		p.raw(`">Exporter en CSV</a></p>`)

		if len(d.Rows) == 0 {
			p.raw(`<p class="empty">Aucun indice. Lancez une actualisation.</p></body></html>`)
			return p.err
		}

		p.raw(`<table><thead><tr>`)
		for _, h := range core.ExportHeader {
			p.raw(`<th>`)
			p.text(h)
			p.raw(`</th>`)
		}
		for _, y := range d.Years {
			p.raw(`<th>` + strconv.Itoa(y) + `</th>`)
		}
		p.raw(`</tr></thead><tbody>`)

		for _, row := range d.Rows {
			p.raw(`<tr>`)
			for _, v := range []string{row.Label, row.IDBank, row.LastUpdate, row.Period} {
				p.raw(`<td>`)
				p.text(v)
				p.raw(`</td>`)
			}
			for _, c := range row.Cells {
				p.raw(`<td class="num">`)
				p.text(c)
				p.raw(`</td>`)
			}
			p.raw(`</tr>`)
		}
		p.raw(`</tbody></table></body></html>`)

		return p.err
	})
}

// htmlWriter keeps the first write error so rendering reads linearly.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (p *htmlWriter) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

// text writes s HTML-escaped.
func (p *htmlWriter) text(s string) {
	p.raw(templ.EscapeString(s))
}
