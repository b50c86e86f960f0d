package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"argusgo/pkg/model"
	"argusgo/pkg/store"
)

const (
	defaultArticleLimit = 100
	maxArticleLimit     = 500
)

// ArticlesHandler serves enriched and raw articles.
type ArticlesHandler struct {
	store store.ArticleStore
}

func NewArticlesHandler(st store.ArticleStore) *ArticlesHandler {
	return &ArticlesHandler{store: st}
}

type ArticleListResponse struct {
	Count    int              `json:"count"`
	Articles []*model.Article `json:"articles"`
}

// HandleList handles GET /api/articles with the standard filter set:
// language, country, risk_level, state, since, until, limit.
func (h *ArticlesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := store.ArticleFilter{
		Language: q.Get("language"),
		Country:  q.Get("country"),
		Limit:    defaultArticleLimit,
	}

	if v := q.Get("risk_level"); v != "" {
		lvl, err := parseRiskLevel(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.RiskLevel = lvl
	}

	if v := q.Get("state"); v != "" {
		st, err := parseState(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.State = st
	}

	var err error
	if f.Since, err = parseTimeParam(q.Get("since")); err != nil {
		http.Error(w, "invalid since: "+err.Error(), http.StatusBadRequest)
		return
	}
	if f.Until, err = parseTimeParam(q.Get("until")); err != nil {
		http.Error(w, "invalid until: "+err.Error(), http.StatusBadRequest)
		return
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = min(n, maxArticleLimit)
	}

	articles, err := h.store.QueryArticles(r.Context(), f)
	if err != nil {
		slog.Error("article query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ArticleListResponse{Count: len(articles), Articles: articles}); err != nil {
		slog.Error("Failed to encode article list", "error", err)
	}
}

// HandleGet handles GET /api/articles/{id}.
func (h *ArticlesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid article id", http.StatusBadRequest)
		return
	}

	a, err := h.store.GetArticle(r.Context(), id)
	if err != nil {
		slog.Error("article lookup failed", "id", id, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if a == nil {
		http.Error(w, "article not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a); err != nil {
		slog.Error("Failed to encode article", "id", id, "error", err)
	}
}

func parseRiskLevel(v string) (model.RiskLevel, error) {
	switch lvl := model.RiskLevel(v); lvl {
	case model.RiskLow, model.RiskMedium, model.RiskHigh, model.RiskCritical:
		return lvl, nil
	default:
		return "", fmt.Errorf("invalid risk_level %q", v)
	}
}

func parseState(v string) (model.ProcessingState, error) {
	switch st := model.ProcessingState(v); st {
	case model.StateRaw, model.StateEnriching, model.StateEnriched, model.StateFailed:
		return st, nil
	default:
		return "", fmt.Errorf("invalid state %q", v)
	}
}

// parseTimeParam accepts RFC3339 timestamps and plain UTC dates.
func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
