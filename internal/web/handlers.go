package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/ipampa/internal/core"
	"github.com/JonMunkholm/ipampa/internal/logging"
)

// ListResponse is the body of GET /api/indices.
type ListResponse struct {
	Success bool         `json:"success"`
	Data    core.Dataset `json:"data"`
}

// RefreshResponse is the body of a successful POST /api/indices/refresh.
type RefreshResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Count   int                   `json:"count"`
	Values  int                   `json:"values"`
	Dropped map[core.DropKind]int `json:"dropped,omitempty"`
}

// StatusResponse is the body of GET /api/indices/status.
type StatusResponse struct {
	Success bool                     `json:"success"`
	Refresh *core.RefreshResult      `json:"refresh"`
	Export  core.ExportLimiterStatus `json:"export"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// handleListIndices returns every stored series with its values.
func (s *Server) handleListIndices(w http.ResponseWriter, r *http.Request) {
	ds, err := s.service.ListIndices(r.Context())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	if ds == nil {
		ds = core.Dataset{}
	}
	writeJSON(w, r, http.StatusOK, ListResponse{Success: true, Data: ds})
}

// handleRefresh replaces the dataset from the source.
// Form posts from the page are redirected back to it.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Refresh(r.Context())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	logging.FromContext(r.Context()).Info("refresh requested",
		"admitted", res.Admitted,
		"values", res.Values,
		"duration_ms", res.Duration.Milliseconds(),
	)

	if wantsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	writeJSON(w, r, http.StatusOK, RefreshResponse{
		Success: true,
		Message: fmt.Sprintf("Successfully refreshed %d IPAMPA indices", res.Admitted),
		Count:   res.Admitted,
		Values:  res.Values,
		Dropped: res.Dropped,
	})
}

// handleExport streams the pivoted export as an attachment.
//
// Query parameters:
//   - q: case-insensitive filter on label, idBank and period
//   - format: csv (default) or xlsx
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := core.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	body, err := s.service.Export(r.Context(), format, r.URL.Query().Get("q"))
	if err != nil {
		if statusFor(err) == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "5")
		}
		respondError(w, r, err, statusFor(err))
		return
	}

	filename := core.ExportFileName(s.now(), string(format))
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logging.FromContext(r.Context()).Warn("export write", "error", err)
	}
}

// handleStatus reports the last refresh outcome and export slot usage.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Success: true,
		Export:  s.service.ExportLimiter().Status(),
	}
	if last, ok := s.service.LastRefresh(); ok {
		resp.Refresh = &last
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleIndexPage renders the overview table.
func (s *Server) handleIndexPage(w http.ResponseWriter, r *http.Request) {
	ds, err := s.service.ListIndices(r.Context())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	data := newPageData(core.FilterDataset(ds, query), len(ds), query)
	if last, ok := s.service.LastRefresh(); ok {
		data.LastRefresh = &last
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := IndexPage(data).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render page", "error", err)
	}
}

// wantsHTML reports whether the client is a browser form rather than an API caller.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
