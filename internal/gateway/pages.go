// ABOUTME: HTML pages for browsing the log: the index and deep-linked entry details
// ABOUTME: GET /?entry=<id> renders one entry, GET / lists entries newest first

package gateway

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/auditlog-gateway/internal/links"
	"github.com/2389/auditlog-gateway/internal/view"
)

// handleIndex handles GET /. With ?entry=<id> it renders the entry's detail
// page, otherwise a sortable listing.
func (g *Gateway) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has(links.EntryParam) {
		g.handleEntryPage(w, r, q.Get(links.EntryParam))
		return
	}

	key, dir, err := view.ParseSort(q.Get("sort"), q.Get("dir"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries := view.Sort(g.logs.List(), key, dir)

	var buf bytes.Buffer
	link := func(id uint64) string { return links.EntryURL("", id) }
	if err := view.RenderIndex(&buf, entries, link, time.UTC); err != nil {
		g.logger.Error("rendering index", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, http.StatusOK, buf.Bytes())
}

func (g *Gateway) handleEntryPage(w http.ResponseWriter, r *http.Request, ref string) {
	id, err := links.ParseEntryRef(ref)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	e, ok := g.logs.Get(id)
	if !ok {
		http.Error(w, "entry "+strconv.FormatUint(id, 10)+" not found", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	err = view.RenderDetail(&buf, view.Detail{
		Entry:    e,
		Link:     links.EntryURL(g.LinkBase(), id),
		QRPath:   "/api/logs/" + strconv.FormatUint(id, 10) + "/qr.png",
		Location: time.UTC,
	})
	if err != nil {
		g.logger.Error("rendering entry page", "id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, http.StatusOK, buf.Bytes())
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
