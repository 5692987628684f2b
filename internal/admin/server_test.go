package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vyud-ai/vyud/internal/database"
	"github.com/vyud-ai/vyud/internal/models"
	"github.com/vyud-ai/vyud/internal/repository"
	"github.com/vyud-ai/vyud/internal/retry"
	"github.com/vyud-ai/vyud/internal/service"
)

const testSecret = "prodamus-secret"

type recordingNotifier struct {
	mu       sync.Mutex
	receipts []service.Receipt

	// entered and release, when set, hold each notification open.
	entered chan struct{}
	release chan struct{}
}

func (n *recordingNotifier) NotifyPayment(_ context.Context, r service.Receipt) error {
	if n.entered != nil {
		n.entered <- struct{}{}
	}
	if n.release != nil {
		<-n.release
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts = append(n.receipts, r)
	return nil
}

type fixture struct {
	server   *Server
	credits  *service.CreditService
	quizzes  *service.QuizService
	notifier *recordingNotifier
}

func newFixture(t *testing.T, password string) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(ctx, database.SQLite, filepath.Join(t.TempDir(), "admin.db"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(ctx, db, database.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := retry.Policy{MaxAttempts: 1}
	generations := repository.NewGenerationRepository(db)
	credits := service.NewCreditService(repository.NewAccountRepository(db), generations, policy, 3, log)
	quizzes := service.NewQuizService(repository.NewQuizRepository(db), policy, log)
	notifier := &recordingNotifier{}
	payments := service.NewPaymentService(credits, repository.NewPaymentRepository(db), policy, notifier, log)
	stats := service.NewStatsService(credits, generations, policy)

	srv := NewServer(Options{
		Username:       "admin",
		Password:       password,
		ProdamusSecret: testSecret,
		Health:         HealthFlags{ProdamusConfigured: true, StoreConfigured: true},
	}, log, credits, quizzes, payments, stats)
	return &fixture{server: srv, credits: credits, quizzes: quizzes, notifier: notifier}
}

func (f *fixture) do(t *testing.T, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.SetBasicAuth("admin", "pw")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func signedForm(fields map[string]string) url.Values {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	form.Set(service.ProdamusSignatureField, service.SignProdamus(testSecret, fields))
	return form
}

func (f *fixture) postForm(t *testing.T, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/prodamus", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	f.server.pending.Wait()
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "pw")
	rec := f.do(t, http.MethodGet, "/health", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status string      `json:"status"`
		Config HealthFlags `json:"config"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || !body.Config.ProdamusConfigured || body.Config.TelegramConfigured {
		t.Fatalf("body = %+v", body)
	}
}

func TestWebhookCreditsAccount(t *testing.T) {
	f := newFixture(t, "pw")
	fields := map[string]string{
		"order_id":       "42",
		"customer_email": " Buyer@Test.io ",
		"payment_status": "success",
		"product_name":   "VYUD Pro",
	}

	rec := f.postForm(t, signedForm(fields))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
	balance, err := f.credits.GetBalance(context.Background(), "buyer@test.io")
	if err != nil || balance != service.ProductPro.Credits {
		t.Fatalf("balance = %d, %v", balance, err)
	}
	if len(f.notifier.receipts) != 1 || f.notifier.receipts[0].OrderID != "42" {
		t.Fatalf("receipts = %+v", f.notifier.receipts)
	}

	// Prodamus retries until it gets a 2xx; a repeat must not credit twice.
	rec = f.postForm(t, signedForm(fields))
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d", rec.Code)
	}
	balance, _ = f.credits.GetBalance(context.Background(), "buyer@test.io")
	if balance != service.ProductPro.Credits {
		t.Fatalf("balance after redelivery = %d", balance)
	}
}

func TestWebhookConcurrentDeliveriesCreditOnce(t *testing.T) {
	f := newFixture(t, "pw")
	body := signedForm(map[string]string{
		"order_id":       "dup-1",
		"customer_email": "race@test.io",
		"payment_status": "success",
		"product_name":   "VYUD Pro",
	}).Encode()

	var wg sync.WaitGroup
	codes := make(chan int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/webhook/prodamus", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(rec, req)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	f.server.pending.Wait()
	close(codes)

	for code := range codes {
		if code != http.StatusOK {
			t.Fatalf("status = %d, want 200 for every delivery", code)
		}
	}
	balance, err := f.credits.GetBalance(context.Background(), "race@test.io")
	if err != nil || balance != service.ProductPro.Credits {
		t.Fatalf("balance = %d, %v; want %d", balance, err, service.ProductPro.Credits)
	}
	if len(f.notifier.receipts) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.notifier.receipts))
	}
}

func TestServeDrainsNotificationsOnShutdown(t *testing.T) {
	f := newFixture(t, "pw")
	f.notifier.entered = make(chan struct{}, 1)
	f.notifier.release = make(chan struct{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- f.server.serve(ctx, ln) }()

	form := signedForm(map[string]string{
		"order_id":       "drain-1",
		"customer_email": "drain@test.io",
		"payment_status": "success",
		"product_name":   "Starter",
	})
	resp, err := http.PostForm("http://"+ln.Addr().String()+"/webhook/prodamus", form)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	<-f.notifier.entered
	cancel()
	select {
	case err := <-served:
		t.Fatalf("serve returned (%v) while a notification was in flight", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(f.notifier.release)
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after the notification finished")
	}
	if len(f.notifier.receipts) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.notifier.receipts))
	}
}

func TestWebhookJSONBody(t *testing.T) {
	f := newFixture(t, "pw")
	fields := map[string]string{
		"order_id":       "1001",
		"customer_email": "json@test.io",
		"payment_status": "success",
		"product_name":   "Starter",
	}
	payload := map[string]any{
		"order_id":       1001,
		"customer_email": "json@test.io",
		"payment_status": "success",
		"product_name":   "Starter",
		"signature":      service.SignProdamus(testSecret, fields),
	}
	body, _ := json.Marshal(payload)

	rec := f.do(t, http.MethodPost, "/webhook/prodamus", string(body), false)
	f.server.pending.Wait()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
	balance, _ := f.credits.GetBalance(context.Background(), "json@test.io")
	if balance != service.ProductStarter.Credits {
		t.Fatalf("balance = %d", balance)
	}
}

func TestWebhookRejections(t *testing.T) {
	f := newFixture(t, "pw")

	bad := signedForm(map[string]string{"customer_email": "a@test.io", "payment_status": "success"})
	bad.Set(service.ProdamusSignatureField, strings.Repeat("0", 64))
	if rec := f.postForm(t, bad); rec.Code != http.StatusForbidden {
		t.Fatalf("bad signature status = %d", rec.Code)
	}

	pending := signedForm(map[string]string{"customer_email": "a@test.io", "payment_status": "order_canceled"})
	rec := f.postForm(t, pending)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK, not success" {
		t.Fatalf("non-success status = %d body = %q", rec.Code, rec.Body.String())
	}

	noEmail := signedForm(map[string]string{"payment_status": "success", "product_name": "pro"})
	if rec := f.postForm(t, noEmail); rec.Code != http.StatusBadRequest {
		t.Fatalf("no email status = %d", rec.Code)
	}

	if len(f.notifier.receipts) != 0 {
		t.Fatalf("unexpected notifications: %+v", f.notifier.receipts)
	}
}

func TestAdminRequiresAuth(t *testing.T) {
	f := newFixture(t, "pw")
	if rec := f.do(t, http.MethodGet, "/accounts", "", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/accounts", "", true); rec.Code != http.StatusOK {
		t.Fatalf("authorized status = %d", rec.Code)
	}
}

func TestAdminDisabledWithoutPassword(t *testing.T) {
	f := newFixture(t, "")
	if rec := f.do(t, http.MethodGet, "/accounts", "", true); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/health", "", false); rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}

func TestAdminAccountFlow(t *testing.T) {
	f := newFixture(t, "pw")

	rec := f.do(t, http.MethodPost, "/accounts", `{"email":"Kate@Test.io","display_name":"Kate"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/accounts", `{"email":"kate@test.io"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("ensure existing status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/accounts/kate@test.io/credit", `{"amount":7}`, true)
	var bal balanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &bal); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("credit status = %d err = %v", rec.Code, err)
	}
	if !bal.OK || bal.Credits != 10 {
		t.Fatalf("credit response = %+v", bal)
	}

	rec = f.do(t, http.MethodPost, "/accounts/kate@test.io/debit", `{"amount":11}`, true)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("overdraft status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/accounts/kate@test.io/debit", `{"amount":0}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero amount status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/accounts/kate@test.io", "", true)
	var acc models.Account
	if err := json.Unmarshal(rec.Body.Bytes(), &acc); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if acc.Credits != 10 || acc.DisplayName != "Kate" {
		t.Fatalf("account = %+v", acc)
	}
	if rec := f.do(t, http.MethodGet, "/accounts/ghost@test.io", "", true); rec.Code != http.StatusNotFound {
		t.Fatalf("missing account status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/stats", "", true)
	var summary service.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if summary.Accounts != 1 || summary.TotalCredits != 10 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestQuizVisibility(t *testing.T) {
	f := newFixture(t, "pw")
	ctx := context.Background()
	id, err := f.quizzes.SaveQuiz(ctx, "mentor@test.io", "Go basics", []models.Question{
		{Question: "What does defer do?", Options: []string{"runs later", "runs now"}, CorrectOptionID: 0},
	}, nil)
	if err != nil {
		t.Fatalf("SaveQuiz: %v", err)
	}

	if rec := f.do(t, http.MethodGet, "/public/quizzes/"+id, "", false); rec.Code != http.StatusNotFound {
		t.Fatalf("private quiz visible publicly: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/quizzes/"+id, "", true); rec.Code != http.StatusOK {
		t.Fatalf("admin get status = %d", rec.Code)
	}

	rec := f.do(t, http.MethodPut, "/quizzes/"+id+"/visibility", `{"public":true}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/public/quizzes/"+id, "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("public get status = %d", rec.Code)
	}
	var quiz models.Quiz
	if err := json.Unmarshal(rec.Body.Bytes(), &quiz); err != nil {
		t.Fatalf("decode quiz: %v", err)
	}
	if quiz.Title != "Go basics" || len(quiz.Questions) != 1 {
		t.Fatalf("quiz = %+v", quiz)
	}

	if rec := f.do(t, http.MethodPut, "/quizzes/nope/visibility", `{"public":true}`, true); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown quiz status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPut, "/quizzes/"+id+"/visibility", `{}`, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing flag status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/accounts/mentor@test.io/quizzes?limit=5", "", true)
	var list []models.Quiz
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("list = %+v, %v", list, err)
	}
}

func TestAdminChargeSpendsOneCredit(t *testing.T) {
	f := newFixture(t, "pw")
	if rec := f.do(t, http.MethodPost, "/accounts", `{"email":"gen@test.io"}`, true); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	for want := 2; want >= 0; want-- {
		rec := f.do(t, http.MethodPost, "/accounts/gen@test.io/charge", `{"kind":"quiz","telegram_id":77}`, true)
		var bal balanceResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &bal); err != nil || rec.Code != http.StatusOK {
			t.Fatalf("charge status = %d err = %v", rec.Code, err)
		}
		if !bal.OK || bal.Credits != want {
			t.Fatalf("charge response = %+v, want %d credits", bal, want)
		}
	}

	rec := f.do(t, http.MethodPost, "/accounts/gen@test.io/charge", `{"kind":"quiz"}`, true)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("empty balance status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/accounts/gen@test.io/charge", `{"kind":" "}`, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing kind status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/stats", "", true)
	var summary service.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if summary.ByType["quiz"] != 3 {
		t.Fatalf("generations by type = %v", summary.ByType)
	}
}

func TestAdminRegisterAndLogin(t *testing.T) {
	f := newFixture(t, "pw")

	rec := f.do(t, http.MethodPost, "/accounts/register", `{"email":"Reg@Test.io","password":"s3cret"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body = %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("register response leaks the hash: %s", rec.Body.String())
	}
	var acc models.Account
	if err := json.Unmarshal(rec.Body.Bytes(), &acc); err != nil || acc.Key != "reg@test.io" || acc.Credits != 3 {
		t.Fatalf("registered = %+v, %v", acc, err)
	}

	tests := []struct {
		name, path, body string
		want             int
	}{
		{"duplicate", "/accounts/register", `{"email":"reg@test.io","password":"x"}`, http.StatusConflict},
		{"empty password", "/accounts/register", `{"email":"new@test.io","password":""}`, http.StatusBadRequest},
		{"login", "/accounts/login", `{"email":"reg@test.io","password":"s3cret"}`, http.StatusOK},
		{"wrong password", "/accounts/login", `{"email":"reg@test.io","password":"nope"}`, http.StatusForbidden},
		{"unknown account", "/accounts/login", `{"email":"ghost@test.io","password":"s3cret"}`, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := f.do(t, http.MethodPost, tt.path, tt.body, true); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
