package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/api/respond"
	"github.com/RaiderRus/moodTrack/internal/journal"
	"github.com/RaiderRus/moodTrack/internal/model"
	"github.com/RaiderRus/moodTrack/internal/moodstore"
	"github.com/RaiderRus/moodTrack/internal/stats"
	"github.com/RaiderRus/moodTrack/internal/tags"
)

const monthLayout = "2006-01"

// streamHeartbeat keeps idle event streams open through proxies.
var streamHeartbeat = 25 * time.Second

// EntryHandler serves the journal projections and statistics.
type EntryHandler struct {
	moods   *moodstore.Provider
	stats   *stats.Service
	catalog *tags.Catalog
	loc     *time.Location
	log     zerolog.Logger
}

// ListTags GET /api/tags
func (h *EntryHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	list := h.catalog.Palette()
	if r.URL.Query().Get("all") == "true" {
		list = h.catalog.All()
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"tags": list, "count": len(list)})
}

func (h *EntryHandler) store(w http.ResponseWriter, r *http.Request) (*moodstore.Store, bool) {
	s, err := h.moods.For(r.Context(), currentUserID(r))
	if err != nil {
		h.log.Error().Stack().Err(err).Str("user_id", currentUserID(r)).Msg("load mood store")
		respond.WriteError(w, http.StatusBadGateway, "could not load entries")
		return nil, false
	}
	return s, true
}

func (h *EntryHandler) filtered(w http.ResponseWriter, r *http.Request, s *moodstore.Store) ([]model.MoodEntry, bool) {
	q := r.URL.Query()
	f, err := journal.ParseFilter(q.Get("date"), q.Get("category"), q["tag"])
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return nil, false
	}
	return journal.Apply(s.Snapshot(), f, h.catalog, h.loc), true
}

// ListEntries GET /api/entries?date=YYYY-MM-DD&category=..&tag=..
func (h *EntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	entries, ok := h.filtered(w, r, s)
	if !ok {
		return
	}
	highlight, _ := s.Highlighted()
	views := journal.Render(entries, h.catalog, h.loc, highlight)
	respond.WriteJSON(w, http.StatusOK, map[string]any{"entries": views, "count": len(views)})
}

// Calendar GET /api/entries/calendar?month=YYYY-MM
func (h *EntryHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	ref := time.Now().In(h.loc)
	if m := r.URL.Query().Get("month"); m != "" {
		t, err := time.ParseInLocation(monthLayout, m, h.loc)
		if err != nil {
			respond.WriteBadRequest(w, fmt.Sprintf("invalid month %q, want YYYY-MM", m))
			return
		}
		ref = t
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	entries, ok := h.filtered(w, r, s)
	if !ok {
		return
	}
	respond.WriteJSON(w, http.StatusOK, journal.Calendar(entries, ref.Year(), ref.Month(), h.catalog, h.loc))
}

// Highlight GET /api/entries/highlight
func (h *EntryHandler) Highlight(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	id, active := s.Highlighted()
	respond.WriteJSON(w, http.StatusOK, map[string]any{"entryId": id, "active": active})
}

// Stats GET /api/stats
func (h *EntryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	sum, err := h.stats.For(r.Context(), currentUserID(r))
	if err != nil {
		h.log.Error().Stack().Err(err).Str("user_id", currentUserID(r)).Msg("compute stats")
		respond.WriteError(w, http.StatusBadGateway, "could not load statistics")
		return
	}
	respond.WriteJSON(w, http.StatusOK, sum)
}

// Stream GET /api/entries/stream emits every entry appended to the caller's
// Mood Store as a server-sent "entry" event.
func (h *EntryHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.WriteInternalError(w, "streaming unsupported")
		return
	}
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	appended := s.Subscribe(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-appended:
			if !ok {
				return
			}
			view := journal.Render([]model.MoodEntry{e}, h.catalog, h.loc, e.ID)[0]
			data, err := json.Marshal(view)
			if err != nil {
				h.log.Error().Err(err).Str("entry_id", e.ID).Msg("encode stream event")
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: entry\ndata: %s\n\n", e.ID, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
