package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"mps-dashboard/internal/authcall"
	"mps-dashboard/internal/backend"
	"mps-dashboard/internal/cookie"
	"mps-dashboard/internal/guard"
	"mps-dashboard/internal/model"
	"mps-dashboard/internal/session"
)

//go:embed templates/*.html
var templateFiles embed.FS

const summaryPath = "/dashboard/summary"

type summaryItem struct {
	Label string
	Value string
}

type loginPage struct {
	Title    string
	Error    string
	Next     string
	Username string
}

type dashboardPage struct {
	Title   string
	User    session.Record
	Summary []summaryItem
	Error   string
}

// PageHandler renders the server-side pages. Guarded pages run behind
// guard.RequirePage and only read cookies; all writes happen before the
// template executes.
type PageHandler struct {
	auth      *AuthHandler
	client    *backend.Client
	caller    *authcall.Caller
	codec     *session.Codec
	templates map[string]*template.Template
	logger    *slog.Logger
}

func NewPageHandler(auth *AuthHandler, client *backend.Client, caller *authcall.Caller, codec *session.Codec, logger *slog.Logger) (*PageHandler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	templates := map[string]*template.Template{}
	for _, name := range []string{"login.html", "dashboard.html"} {
		tmpl, err := template.ParseFS(templateFiles, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		templates[name] = tmpl
	}

	return &PageHandler{
		auth:      auth,
		client:    client,
		caller:    caller,
		codec:     codec,
		templates: templates,
		logger:    logger,
	}, nil
}

func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	if h.codec.Get(cookie.FromRequest(r)) != nil {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}

	h.render(w, http.StatusOK, "login.html", loginPage{Title: "Sign in", Next: next})
}

func (h *PageHandler) SubmitLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "login.html", loginPage{Title: "Sign in", Error: "Invalid form submission"})
		return
	}

	next := safeNext(r.PostForm.Get("next"))
	payload := model.LoginRequest{
		Username: strings.TrimSpace(r.PostForm.Get("username")),
		Password: r.PostForm.Get("password"),
	}
	page := loginPage{Title: "Sign in", Next: next, Username: payload.Username}

	if err := payload.Validate(); err != nil {
		page.Error = "Username and password are required"
		h.render(w, http.StatusBadRequest, "login.html", page)
		return
	}

	if _, err := h.auth.establish(w, r, payload); err != nil {
		page.Error = authcall.Message(err, "Sign in failed, please try again")
		status := http.StatusUnauthorized
		if classified := classify(err); classified != nil && classified.HTTPStatus >= 500 {
			status = http.StatusBadGateway
		}
		h.render(w, status, "login.html", page)
		return
	}

	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (h *PageHandler) SubmitLogout(w http.ResponseWriter, r *http.Request) {
	h.auth.end(w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Dashboard loads the fleet summary through the call wrapper using the
// jar the guard already prepared.
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	record, ok := guard.RecordFromContext(r.Context())
	jar, hasJar := guard.JarFromContext(r.Context())
	if !ok || !hasJar {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	page := dashboardPage{Title: "Dashboard", User: *record}

	call := h.client.Request(http.MethodGet, summaryPath, nil, nil, r.Header)
	resp, err := h.caller.Do(r.Context(), jar, call)
	switch {
	case authcall.IsAuthExpired(err):
		http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
		return
	case err != nil:
		h.logger.Warn("dashboard summary unavailable", "user_id", record.UserID, "error", err)
		page.Error = authcall.Message(err, "Unable to load dashboard data")
	default:
		page.Summary = parseSummary(resp)
	}

	h.render(w, http.StatusOK, "dashboard.html", page)
}

func (h *PageHandler) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := h.templates[name].ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("render page failed", "template", name, "error", err)
		http.Error(w, "Unexpected server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// parseSummary accepts {"data":{...}} or a bare object of counters.
func parseSummary(resp *authcall.Response) []summaryItem {
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	var values map[string]any
	if err := resp.Decode(&envelope); err == nil && envelope.Data != nil {
		values = envelope.Data
	} else if err := resp.Decode(&values); err != nil {
		return nil
	}

	items := make([]summaryItem, 0, len(values))
	for key, value := range values {
		switch v := value.(type) {
		case string, float64, bool:
			items = append(items, summaryItem{Label: key, Value: fmt.Sprint(v)})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}

// safeNext keeps redirects on this host.
func safeNext(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	return raw
}
