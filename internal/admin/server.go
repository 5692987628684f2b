package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vyud-ai/vyud/internal/models"
	"github.com/vyud-ai/vyud/internal/service"
)

const notifyTimeout = 30 * time.Second

// Options configures the HTTP surface.
type Options struct {
	Addr           string
	Username       string
	Password       string
	ProdamusSecret string
	// Health is reported verbatim under "config" by GET /health.
	Health HealthFlags
}

type HealthFlags struct {
	ProdamusConfigured bool `json:"prodamus_configured"`
	StoreConfigured    bool `json:"store_configured"`
	TelegramConfigured bool `json:"telegram_configured"`
	AdminNotifications bool `json:"admin_notifications"`
}

type Server struct {
	opts     Options
	log      *slog.Logger
	credits  *service.CreditService
	quizzes  *service.QuizService
	payments *service.PaymentService
	stats    *service.StatsService
	router   *chi.Mux
	now      func() time.Time

	// notifications in flight; Run waits for them on shutdown.
	pending sync.WaitGroup
}

func NewServer(opts Options, log *slog.Logger, credits *service.CreditService, quizzes *service.QuizService, payments *service.PaymentService, stats *service.StatsService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		opts:     opts,
		log:      log,
		credits:  credits,
		quizzes:  quizzes,
		payments: payments,
		stats:    stats,
		router:   r,
		now:      time.Now,
	}
	r.Get("/health", s.handleHealth)
	r.Get("/public/quizzes/{id}", s.handlePublicQuiz)
	r.Post("/webhook/prodamus", s.handleProdamusWebhook)

	if opts.Password == "" {
		log.Warn("admin api disabled: ADMIN_PASSWORD is empty")
		return s
	}
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Get("/products", s.handleProducts)
		protected.Get("/stats", s.handleStats)
		protected.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleEnsureAccount)
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Get("/{key}", s.handleGetAccount)
			r.Post("/{key}/credit", s.handleCredit)
			r.Post("/{key}/debit", s.handleDebit)
			r.Post("/{key}/charge", s.handleCharge)
			r.Get("/{key}/quizzes", s.handleAccountQuizzes)
		})
		protected.Route("/quizzes", func(r chi.Router) {
			r.Get("/{id}", s.handleGetQuiz)
			r.Put("/{id}/visibility", s.handleSetVisibility)
		})
	})
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("admin listen: %w", err)
	}
	s.log.Info("admin server listening", "addr", ln.Addr().String())
	return s.serve(ctx, ln)
}

// serve blocks until ctx is done, then drains in-flight requests and the
// notifications they started.
func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	err := srv.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin serve: %w", err)
	}
	// Shutdown returns once handlers are done, so no pending.Add follows.
	<-stopped
	s.pending.Wait()
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "vyud-webhook",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"config":    s.opts.Health,
	})
}

func (s *Server) handlePublicQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := s.quizzes.PublicQuiz(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if quiz == nil {
		http.Error(w, "quiz not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, quiz)
}

// handleProdamusWebhook is the public endpoint Prodamus posts payment
// results to. Responses follow what Prodamus expects: any 2xx stops
// redelivery.
func (s *Server) handleProdamusWebhook(w http.ResponseWriter, r *http.Request) {
	fields, err := webhookFields(r)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if !service.VerifyProdamus(s.opts.ProdamusSecret, fields, fields[service.ProdamusSignatureField]) {
		s.log.Warn("prodamus webhook: invalid signature", "order_id", fields["order_id"])
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	if status := fields["payment_status"]; status != "success" {
		s.log.Info("prodamus webhook: skipping", "status", status, "order_id", fields["order_id"])
		s.writeText(w, http.StatusOK, "OK, not success")
		return
	}

	email := models.NormalizeAccountKey(fields["customer_email"])
	if email == "" {
		http.Error(w, "No email", http.StatusBadRequest)
		return
	}

	receipt, err := s.payments.Process(r.Context(), email, fields["product_name"], fields["order_id"])
	if err != nil {
		s.log.Error("prodamus webhook: process payment", "order_id", fields["order_id"], "account", email, "err", err)
		http.Error(w, "Error: payment not processed", http.StatusInternalServerError)
		return
	}
	s.log.Info("payment processed",
		"order_id", receipt.OrderID,
		"account", receipt.AccountKey,
		"product", receipt.Product.Key,
		"credits_added", receipt.CreditsAdded,
		"redelivered", receipt.Redelivered,
	)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), notifyTimeout)
		defer cancel()
		s.payments.Notify(ctx, receipt)
	}()

	s.writeText(w, http.StatusOK, "OK")
}

// webhookFields flattens a form or JSON body into string fields.
func webhookFields(r *http.Request) (map[string]string, error) {
	fields := map[string]string{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			fields[k] = stringify(v)
		}
		return fields, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	for k := range r.PostForm {
		fields[k] = r.PostForm.Get(k)
	}
	return fields, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func (s *Server) handleProducts(w http.ResponseWriter, _ *http.Request) {
	type productView struct {
		Key      string `json:"key"`
		Name     string `json:"name"`
		PriceRUB int    `json:"price_rub"`
		Credits  int    `json:"credits"`
		Days     int    `json:"days,omitempty"`
	}
	var out []productView
	for _, p := range service.Products() {
		out = append(out, productView{
			Key:      p.Key,
			Name:     p.Name,
			PriceRUB: p.PriceRUB,
			Credits:  p.Credits,
			Days:     int(p.Duration / (24 * time.Hour)),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	summary, err := s.stats.Summary(r.Context())
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.credits.ListAccounts(r.Context())
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	s.writeJSON(w, http.StatusOK, accounts)
}

type ensureAccountRequest struct {
	Email       string `json:"email"`
	TelegramID  *int64 `json:"telegram_id"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleEnsureAccount(w http.ResponseWriter, r *http.Request) {
	var req ensureAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	acc, created, err := s.credits.EnsureAccount(r.Context(), req.Email, models.Profile{
		TelegramID:  req.TelegramID,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, acc)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	acc, err := s.credits.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	acc, err := s.credits.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.credits.Account(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if acc == nil {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, acc)
}

type amountRequest struct {
	Amount int `json:"amount"`
}

type balanceResponse struct {
	Email   string `json:"email"`
	OK      bool   `json:"ok"`
	Credits int    `json:"credits"`
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	s.adjust(w, r, s.credits.Credit)
}

func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	s.adjust(w, r, s.credits.Debit)
}

func (s *Server) adjust(w http.ResponseWriter, r *http.Request, op func(context.Context, string, int) (bool, error)) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	key := models.NormalizeAccountKey(chi.URLParam(r, "key"))
	ok, err := op(r.Context(), key, req.Amount)
	s.writeBalance(w, r, key, ok, err)
}

type chargeRequest struct {
	Kind       string `json:"kind"`
	TelegramID *int64 `json:"telegram_id"`
}

// handleCharge spends one credit on a generation of the given kind.
func (s *Server) handleCharge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	kind := strings.TrimSpace(req.Kind)
	if kind == "" {
		http.Error(w, "kind required", http.StatusBadRequest)
		return
	}
	key := models.NormalizeAccountKey(chi.URLParam(r, "key"))
	ok, err := s.credits.Charge(r.Context(), key, kind, req.TelegramID)
	s.writeBalance(w, r, key, ok, err)
}

// writeBalance reports the balance after an adjustment; a refused one is
// answered with 402.
func (s *Server) writeBalance(w http.ResponseWriter, r *http.Request, key string, ok bool, err error) {
	if err != nil {
		s.serviceError(w, err)
		return
	}
	balance, err := s.credits.GetBalance(r.Context(), key)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusPaymentRequired
	}
	s.writeJSON(w, status, balanceResponse{Email: key, OK: ok, Credits: balance})
}

func (s *Server) handleAccountQuizzes(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	quizzes, err := s.quizzes.QuizzesForOwner(r.Context(), chi.URLParam(r, "key"), limit)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if quizzes == nil {
		quizzes = []models.Quiz{}
	}
	s.writeJSON(w, http.StatusOK, quizzes)
}

func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := s.quizzes.QuizByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if quiz == nil {
		http.Error(w, "quiz not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, quiz)
}

type visibilityRequest struct {
	Public *bool `json:"public"`
}

func (s *Server) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Public == nil {
		http.Error(w, "public required", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	found, err := s.quizzes.SetVisibility(r.Context(), id, *req.Public)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if !found {
		http.Error(w, "quiz not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_public": *req.Public})
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.opts.Username || pass != s.opts.Password {
				w.Header().Set("WWW-Authenticate", `Basic realm="vyud"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

// serviceError maps the service error taxonomy onto status codes.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAccount),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidQuiz),
		errors.Is(err, service.ErrInvalidPassword):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrAccountExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrInvalidCredentials):
		// 401 is taken by the basic auth guarding this route.
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrUnavailable):
		s.log.Error("admin handler: store unavailable", "err", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
	default:
		s.log.Error("admin handler error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
