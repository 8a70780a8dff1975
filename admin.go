package modguard

import (
	"cmp"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

const defaultSearchLimit = 20

// Reloader re-reads the settings file. *ConfigStore implements it.
type Reloader interface {
	Reload() error
}

// AdminOption wires the admin router. Gate is required.
type AdminOption struct {
	Gate *Gate

	// Bridge is served at /bridge and reported by /healthz.
	Bridge *Bridge

	// Reloader backs POST /api/reload. The route is absent without it.
	Reloader Reloader

	// Metrics is served at /metrics when set.
	Metrics http.Handler

	Logger *slog.Logger
}

type admin struct {
	gate     *Gate
	bridge   *Bridge
	reloader Reloader
	logger   *slog.Logger
}

// NewAdminRouter builds the HTTP surface of a modguard process.
func NewAdminRouter(opt *AdminOption) *mux.Router {
	a := &admin{
		gate:     opt.Gate,
		bridge:   opt.Bridge,
		reloader: opt.Reloader,
		logger:   loggerOrDiscard(opt.Logger),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/verdicts", a.listVerdicts).Methods(http.MethodGet)
	api.HandleFunc("/pending", a.listPending).Methods(http.MethodGet)
	api.HandleFunc("/mods/{id:[0-9]+}", a.getMod).Methods(http.MethodGet)
	api.HandleFunc("/mods", a.searchMods).Methods(http.MethodGet)
	if a.reloader != nil {
		api.HandleFunc("/reload", a.reload).Methods(http.MethodPost)
	}

	if a.bridge != nil {
		r.Handle("/bridge", a.bridge)
	}
	if opt.Metrics != nil {
		r.Handle("/metrics", opt.Metrics).Methods(http.MethodGet)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "Internal Server Error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type healthResponse struct {
	Status       string `json:"status"`
	HostAttached bool   `json:"host_attached"`
	IsServer     bool   `json:"is_server"`
	Flagged      int    `json:"flagged"`
	Pending      int    `json:"pending"`
	CachedMods   int    `json:"cached_mods"`
}

func (a *admin) healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Flagged:    a.gate.Verdicts().Len(),
		Pending:    a.gate.Pending().Len(),
		CachedMods: a.gate.Cache().Len(),
	}
	if a.bridge != nil {
		resp.HostAttached = a.bridge.Attached()
		resp.IsServer = a.bridge.IsServer()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *admin) listVerdicts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.gate.Verdicts().List())
}

type pendingView struct {
	ClientID ClientID  `json:"client_id"`
	Username string    `json:"username"`
	ModIDs   []ModID   `json:"mod_ids"`
	Awaiting []ModID   `json:"awaiting"`
	Deadline time.Time `json:"deadline"`
}

func (a *admin) listPending(w http.ResponseWriter, r *http.Request) {
	checks := a.gate.Pending().List()
	out := make([]pendingView, 0, len(checks))
	for _, c := range checks {
		awaiting := make([]ModID, 0, len(c.Awaiting))
		for id := range c.Awaiting {
			awaiting = append(awaiting, id)
		}
		slices.Sort(awaiting)
		out = append(out, pendingView{
			ClientID: c.ClientID,
			Username: c.Username,
			ModIDs:   c.ModIDs,
			Awaiting: awaiting,
			Deadline: c.Deadline,
		})
	}
	slices.SortFunc(out, func(x, y pendingView) int {
		return cmp.Compare(x.ClientID, y.ClientID)
	})
	writeJSON(w, http.StatusOK, out)
}

func (a *admin) getMod(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid mod id")
		return
	}
	d, ok := a.gate.Cache().Get(ModID(n))
	if !ok {
		writeError(w, http.StatusNotFound, "mod not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *admin) searchMods(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	limit := defaultSearchLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	ds, err := a.gate.Cache().Search(r.Context(), q, limit)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "mod search failed", "query", q, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if ds == nil {
		ds = []ModDescriptor{}
	}
	writeJSON(w, http.StatusOK, ds)
}

func (a *admin) reload(w http.ResponseWriter, r *http.Request) {
	if err := a.reloader.Reload(); err != nil {
		a.logger.ErrorContext(r.Context(), "config reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
