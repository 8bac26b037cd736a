package cli

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/denkmit/denkmit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxValueSize = 1 << 20

type api struct {
	db  *denkmit.DB[[]byte]
	log *zap.Logger
}

type headResponse struct {
	ID        string `json:"id"`
	Root      string `json:"root"`
	Manifest  string `json:"manifest"`
	Address   string `json:"address"`
	Layers    int    `json:"layers"`
	Size      int    `json:"size"`
	Timestamp int64  `json:"timestamp"`
	Creator   string `json:"creator"`
}

type itemResponse struct {
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
	Entry     string `json:"entry"`
	Creator   string `json:"creator"`
}

// newAPI serves the dataset over HTTP. gossip, when non-nil, is mounted at
// /gossip.
func newAPI(db *denkmit.DB[[]byte], log *zap.Logger, gossip http.Handler) http.Handler {
	a := &api{db: db, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /kv", a.list)
	mux.HandleFunc("GET /kv/{key}", a.get)
	mux.HandleFunc("PUT /kv/{key}", a.put)
	mux.HandleFunc("GET /head", a.head)
	mux.HandleFunc("POST /sync/{head}", a.sync)
	mux.Handle("GET /metrics", promhttp.Handler())
	if gossip != nil {
		mux.Handle("/gossip", gossip)
	}
	return mux
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, denkmit.ErrNotFound), errors.Is(err, denkmit.ErrEmptyTree):
		code = http.StatusNotFound
	case errors.Is(err, denkmit.ErrConsensusRejected):
		code = http.StatusForbidden
	case errors.Is(err, denkmit.ErrInvalidStructure),
		errors.Is(err, denkmit.ErrIncompatibleStructure),
		errors.Is(err, denkmit.ErrConfiguration):
		code = http.StatusBadRequest
	case errors.Is(err, denkmit.ErrClosed):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		a.log.Warn("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	http.Error(w, err.Error(), code)
}

func (a *api) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Debug("write response", zap.Error(err))
	}
}

func (a *api) get(w http.ResponseWriter, r *http.Request) {
	v, err := a.db.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(v)
}

func (a *api) put(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxValueSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if err := a.db.Set(r.Context(), r.PathValue("key"), body); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	items := a.db.Items()
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, itemResponse{
			Key:       it.Key,
			Timestamp: it.SortKey,
			Entry:     it.CID.String(),
			Creator:   it.Creator.String(),
		})
	}
	a.writeJSON(w, out)
}

func (a *api) head(w http.ResponseWriter, r *http.Request) {
	h, err := a.db.CreateHead(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, headResponse{
		ID:        h.ID.String(),
		Root:      h.Root.String(),
		Manifest:  h.Manifest.String(),
		Address:   a.db.Address(),
		Layers:    h.LayersCount,
		Size:      h.Size,
		Timestamp: h.Timestamp,
		Creator:   h.Creator.String(),
	})
}

func (a *api) sync(w http.ResponseWriter, r *http.Request) {
	id, err := denkmit.ParseID(r.PathValue("head"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.db.Sync(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
