package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/soaringjerry/Previsit/internal/config"
	"github.com/soaringjerry/Previsit/internal/metrics"
	"github.com/soaringjerry/Previsit/internal/middleware"
	"github.com/soaringjerry/Previsit/internal/models"
	"github.com/soaringjerry/Previsit/internal/services"
	"github.com/soaringjerry/Previsit/internal/utils"
)

const maxUpload = 10 << 20

type Options struct {
	Store       *Store
	Survey      *services.SurveyService
	Auth        *services.AuthService
	Export      *services.ExportService
	Analytics   *services.AnalyticsService
	Authn       *middleware.Authenticator
	Metrics     *metrics.Collector
	ChatLimiter *middleware.RateLimiter
	Log         *zap.Logger
	Build       config.BuildInfo
	// Ping reports index health on /health; nil skips the check.
	Ping func(ctx context.Context) error

	StaticDir      string
	DevFrontendURL string
	CORSOrigins    []string
}

type Router struct {
	sessions    *Store
	survey      *services.SurveyService
	auth        *services.AuthService
	export      *services.ExportService
	analytics   *services.AnalyticsService
	authn       *middleware.Authenticator
	metrics     *metrics.Collector
	chatLimiter *middleware.RateLimiter
	log         *zap.Logger
	build       config.BuildInfo
	ping        func(ctx context.Context) error
	opts        Options
}

func NewRouter(opts Options) *Router {
	if opts.Store == nil {
		opts.Store = NewStore(0)
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Authn == nil {
		opts.Authn = middleware.NewAuthenticator("")
	}
	rt := &Router{
		sessions:    opts.Store,
		survey:      opts.Survey,
		auth:        opts.Auth,
		export:      opts.Export,
		analytics:   opts.Analytics,
		authn:       opts.Authn,
		metrics:     opts.Metrics,
		chatLimiter: opts.ChatLimiter,
		log:         opts.Log,
		build:       opts.Build,
		ping:        opts.Ping,
		opts:        opts,
	}
	if rt.chatLimiter != nil && rt.metrics != nil {
		rt.chatLimiter.OnLimit = rt.metrics.ChatRateLimited.Inc
	}
	return rt
}

// Handler returns the full HTTP handler with the middleware chain applied.
func (rt *Router) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(
		middleware.RequestLogger(rt.log, rt.metrics),
		middleware.Recovery(rt.log),
		middleware.SecureHeaders,
		middleware.CORS(rt.opts.CORSOrigins),
		middleware.LocaleMiddleware,
		middleware.NoStore,
	)
	rt.Register(mux)
	return mux
}

func (rt *Router) Register(mux chi.Router) {
	mux.Get("/health", rt.handleHealth)
	mux.Get("/version", rt.handleVersion)
	if rt.metrics != nil {
		mux.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	mux.Route("/api", func(r chi.Router) {
		r.Get("/pack", rt.handlePack)
		r.Post("/sessions", rt.handleStartSession)
		r.Route("/sessions/{sid}", func(r chi.Router) {
			r.Get("/", rt.handleGetSession)
			r.Put("/subject", rt.handleUpdateSubject)
			r.Put("/age-group", rt.handleSelectAgeGroup)
			r.Put("/answers/{qid}", rt.handleAnswer)
			r.Post("/submit", rt.handleSubmit)
			r.Get("/report.pdf", rt.handleSessionReport)
			r.Group(func(r chi.Router) {
				if rt.chatLimiter != nil {
					r.Use(rt.chatLimiter.Middleware)
				}
				r.Post("/chat", rt.handleChat)
			})
		})

		r.Post("/auth/login", rt.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(rt.authn.Require)
			r.Get("/submissions", rt.handleListSubmissions)
			r.Get("/submissions/stats", rt.handleSubmissionStats)
			r.Get("/submissions/{id}", rt.handleGetSubmission)
			r.Get("/submissions/{id}/report.pdf", rt.handleSubmissionReport)
			r.Get("/audit", rt.handleAudit)
		})
	})

	// Frontend: static files when configured, otherwise an optional dev proxy.
	if rt.opts.StaticDir != "" {
		mux.Handle("/*", http.FileServer(http.Dir(rt.opts.StaticDir)))
	} else if rt.opts.DevFrontendURL != "" {
		if u, err := url.Parse(rt.opts.DevFrontendURL); err == nil {
			rp := httputil.NewSingleHostReverseProxy(u)
			rp.ModifyResponse = func(res *http.Response) error {
				res.Header.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
				return nil
			}
			mux.Handle("/*", rp)
		} else {
			rt.log.Warn("invalid dev frontend url", zap.String("url", rt.opts.DevFrontendURL), zap.Error(err))
		}
	}
}

func (rt *Router) observeSessions() {
	if rt.metrics != nil {
		rt.metrics.ActiveSessions.Set(float64(rt.sessions.Len()))
	}
}

// GET /health
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	body := map[string]any{
		"ok":         true,
		"name":       "Previsit API",
		"locale":     locale,
		"msg":        utils.T(locale, "health.ok"),
		"commit":     rt.build.Commit,
		"build_time": rt.build.BuildTime,
	}
	status := http.StatusOK
	if rt.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.ping(ctx); err != nil {
			body["ok"] = false
			body["index"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, body)
}

// GET /version
func (rt *Router) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"commit":     rt.build.Commit,
		"build_time": rt.build.BuildTime,
	})
}

// GET /api/pack
func (rt *Router) handlePack(w http.ResponseWriter, r *http.Request) {
	pack := rt.survey.Pack()
	writeJSON(w, http.StatusOK, map[string]any{
		"meta":           pack.Meta,
		"age_groups":     rt.survey.AgeGroups(),
		"question_count": len(pack.Questions),
	})
}

type startSessionRequest struct {
	services.SubjectInput
	AgeGroup string `json:"age_group"`
}

// POST /api/sessions {name, gender, dob, age_group?}
func (rt *Router) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	view, err := rt.survey.StartSession(req.SubjectInput, req.AgeGroup)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.observeSessions()
	writeJSON(w, http.StatusCreated, view)
}

// GET /api/sessions/{sid}
func (rt *Router) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := rt.survey.View(chi.URLParam(r, "sid"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// PUT /api/sessions/{sid}/subject
func (rt *Router) handleUpdateSubject(w http.ResponseWriter, r *http.Request) {
	var in services.SubjectInput
	if err := decodeJSON(w, r, &in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	view, err := rt.survey.UpdateSubject(chi.URLParam(r, "sid"), in)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// PUT /api/sessions/{sid}/age-group {age_group}
func (rt *Router) handleSelectAgeGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgeGroup string `json:"age_group"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	view, err := rt.survey.SelectAgeGroup(chi.URLParam(r, "sid"), req.AgeGroup)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type answerResponse struct {
	*services.AnswerResult
	Stats string `json:"stats,omitempty"`
}

// PUT /api/sessions/{sid}/answers/{qid} {answer}
func (rt *Router) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answer json.RawMessage `json:"answer"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.survey.Answer(r.Context(), chi.URLParam(r, "sid"), chi.URLParam(r, "qid"), req.Answer)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.AnswersTotal.Inc()
	}
	out := answerResponse{AnswerResult: res}
	if res.Answered {
		locale := middleware.LocaleFromContext(r.Context())
		if res.Others > 0 {
			out.Stats = utils.Tf(locale, "stats.others", res.Others)
		} else {
			out.Stats = utils.T(locale, "stats.first")
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type chatResponse struct {
	*services.ChatReply
	History []models.ChatMessage `json:"history"`
}

// POST /api/sessions/{sid}/chat {message}
func (rt *Router) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	sid := chi.URLParam(r, "sid")
	reply, err := rt.survey.Chat(r.Context(), sid, req.Message)
	rt.observeChat(err)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	out := chatResponse{ChatReply: reply}
	if view, err := rt.survey.View(sid); err == nil {
		out.History = view.Chat
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) observeChat(err error) {
	if rt.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if se, ok := services.AsServiceError(err); ok {
			outcome = string(se.Code)
		}
	}
	rt.metrics.ChatRequestsTotal.WithLabelValues(outcome).Inc()
}

// attachmentName reads the optional attachment from a multipart upload or a
// JSON body. Only the filename is kept.
func attachmentName(w http.ResponseWriter, r *http.Request) (string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			return "", services.NewInvalidError("invalid upload")
		}
		if r.MultipartForm != nil {
			defer func() { _ = r.MultipartForm.RemoveAll() }()
		}
		if _, fh, err := r.FormFile("attachment"); err == nil {
			return fh.Filename, nil
		}
		return r.FormValue("attachment"), nil
	case "", "application/json":
		var req struct {
			Attachment string `json:"attachment"`
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return "", services.NewInvalidError("invalid JSON body")
		}
		return req.Attachment, nil
	default:
		return "", services.NewInvalidError("unsupported content type")
	}
}

// POST /api/sessions/{sid}/submit
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	attachment, err := attachmentName(w, r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.survey.Submit(r.Context(), chi.URLParam(r, "sid"), attachment)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         res.Submission.ID,
		"path":       res.Path,
		"ai_summary": res.Submission.AISummary,
		"message":    utils.T(locale, "submit.done"),
		"submission": res.Submission,
	})
}

func writeExport(w http.ResponseWriter, res *services.ExportResult) {
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// GET /api/sessions/{sid}/report.pdf
func (rt *Router) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	sub, err := rt.survey.LastSubmission(chi.URLParam(r, "sid"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.export.ReportPDF(sub)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeExport(w, res)
}

// POST /api/auth/login {email, password}
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		if se, ok := services.AsServiceError(err); ok && se.Code == services.ErrorUnauthorized {
			rt.log.Warn("clinician login rejected", zap.String("email", strings.ToLower(strings.TrimSpace(req.Email))))
		}
		rt.writeError(w, r, err)
		return
	}
	rt.sessions.AddAudit(AuditEntry{Time: time.Now().UTC(), Actor: strings.ToLower(strings.TrimSpace(req.Email)), Action: "login"})
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) audit(r *http.Request, action, target, note string) {
	actor, _ := middleware.ClinicianFromContext(r.Context())
	rt.sessions.AddAudit(AuditEntry{Time: time.Now().UTC(), Actor: actor, Action: action, Target: target, Note: note})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// GET /api/submissions?limit=&offset=
func (rt *Router) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryInt(r, "limit", 50), queryInt(r, "offset", 0)
	page, err := rt.export.ListSubmissions(r.Context(), limit, offset)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.audit(r, "list_submissions", "", "offset="+strconv.Itoa(page.Offset))
	writeJSON(w, http.StatusOK, page)
}

// GET /api/submissions/stats
func (rt *Router) handleSubmissionStats(w http.ResponseWriter, r *http.Request) {
	sum, err := rt.analytics.Summary(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GET /api/submissions/{id}
func (rt *Router) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := rt.export.Submission(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.audit(r, "view_submission", id, "")
	writeJSON(w, http.StatusOK, sub)
}

// GET /api/submissions/{id}/report.pdf
func (rt *Router) handleSubmissionReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := rt.export.ReportByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.audit(r, "export_report", id, "")
	writeExport(w, res)
}

// GET /api/audit
func (rt *Router) handleAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": rt.sessions.Audit()})
}
