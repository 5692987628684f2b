package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vyud-ai/vyud/internal/config"
	"github.com/vyud-ai/vyud/internal/models"
	"github.com/vyud-ai/vyud/internal/storeerr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.Config{
		SupabaseURL:    server.URL + "/",
		SupabaseKey:    "service-key",
		RequestTimeout: 5 * time.Second,
	}, nil)
}

func TestGetAccountSendsKeyAndFilters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/users_credits" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("apikey"); got != "service-key" {
			t.Errorf("apikey = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer service-key" {
			t.Errorf("authorization = %q", got)
		}
		switch r.URL.Query().Get("email") {
		case "eq.a@test.io":
			fmt.Fprint(w, `[{"email":"a@test.io","credits":4,"telegram_id":42,"is_premium":true,"generations":2,"tariff":"pro","created_at":"2026-03-01T12:00:00+00:00","updated_at":"2026-03-01T12:00:00+00:00"}]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	})
	repo := NewAccountRepository(client)

	acc, err := repo.Get(context.Background(), "a@test.io")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if acc == nil || acc.Credits != 4 || !acc.IsPremium || acc.TelegramID == nil || *acc.TelegramID != 42 {
		t.Fatalf("Get = %+v", acc)
	}

	missing, err := repo.Get(context.Background(), "b@test.io")
	if err != nil || missing != nil {
		t.Fatalf("Get missing = %+v, %v", missing, err)
	}
}

func TestDebitCallsRPC(t *testing.T) {
	var gotArgs map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/rpc/vyud_debit_credits" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotArgs); err != nil {
			t.Errorf("decode args: %v", err)
		}
		if gotArgs["p_amount"].(float64) > 4 {
			fmt.Fprint(w, `false`)
			return
		}
		fmt.Fprint(w, `true`)
	})
	repo := NewAccountRepository(client)

	ok, err := repo.Debit(context.Background(), "a@test.io", 1, time.Now())
	if err != nil || !ok {
		t.Fatalf("Debit(1) = %v, %v", ok, err)
	}
	if gotArgs["p_email"] != "a@test.io" {
		t.Fatalf("p_email = %v", gotArgs["p_email"])
	}
	ok, err = repo.Debit(context.Background(), "a@test.io", 10, time.Now())
	if err != nil || ok {
		t.Fatalf("Debit(10) = %v, %v; want false", ok, err)
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		retryAfter string
		check      func(error) bool
		wantAfter  time.Duration
	}{
		{"unavailable", http.StatusServiceUnavailable, `{"message":"down"}`, "3", storeerr.IsTransient, 3 * time.Second},
		{"rate limited", http.StatusTooManyRequests, ``, "", storeerr.IsTransient, 0},
		{"unauthorized", http.StatusUnauthorized, `{"code":"PGRST301","message":"JWT invalid"}`, "", storeerr.IsConfiguration, 0},
		{"missing function", http.StatusNotFound, `{"code":"PGRST202","message":"no function"}`, "", storeerr.IsConfiguration, 0},
		{"duplicate", http.StatusConflict, `{"code":"23505","message":"duplicate key"}`, "", storeerr.IsDuplicate, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			err := NewAccountRepository(client).Create(context.Background(), &models.Account{Key: "a@test.io"})
			if err == nil || !tt.check(err) {
				t.Fatalf("err = %v, misclassified", err)
			}
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("err %v is not a StatusError", err)
			}
			if statusErr.Status != tt.status || statusErr.RetryAfter() != tt.wantAfter {
				t.Fatalf("status error = %+v, retry after %s", statusErr, statusErr.RetryAfter())
			}
		})
	}
}

func TestBadRequestIsPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":"22P02","message":"invalid input"}`)
	})
	_, err := NewAccountRepository(client).Get(context.Background(), "a@test.io")
	if err == nil || storeerr.IsTransient(err) || storeerr.IsConfiguration(err) {
		t.Fatalf("err = %v, want plain permanent error", err)
	}
}

func TestConnectionFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(config.Config{SupabaseURL: url, SupabaseKey: "k", RequestTimeout: time.Second}, nil)
	_, err := NewAccountRepository(client).Get(context.Background(), "a@test.io")
	if !storeerr.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestQuizDecodesLegacyRows(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"abcd1234","owner_email":"a@test.io","title":"Intro",
			"questions":"[{\"scenario\":\"Q1?\",\"options\":[\"X\",\"Y\"],\"correct_option_id\":1,\"explanation\":\"because\"}]",
			"hints":"look closer","is_public":false,"created_at":"2026-03-01T12:00:00.123456+00:00"}]`)
	})
	quiz, err := NewQuizRepository(client).Get(context.Background(), "abcd1234")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if quiz == nil || len(quiz.Questions) != 1 {
		t.Fatalf("Get = %+v", quiz)
	}
	if q := quiz.Questions[0]; q.Question != "Q1?" || q.CorrectOptionID != 1 {
		t.Fatalf("question = %+v", q)
	}
	if len(quiz.Hints) != 1 || quiz.Hints[0] != "look closer" {
		t.Fatalf("hints = %v", quiz.Hints)
	}
}

func TestQuizInsertSendsJSONQuestions(t *testing.T) {
	var body map[string]json.RawMessage
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Prefer") != "return=minimal" {
			t.Errorf("prefer = %q", r.Header.Get("Prefer"))
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})
	quiz := &models.Quiz{
		ID:        "abcd1234",
		OwnerKey:  "a@test.io",
		Title:     "Intro",
		Questions: []models.Question{{Question: "Q1?", Options: []string{"X", "Y"}, CorrectOptionID: 1}},
		CreatedAt: time.Now().UTC(),
	}
	if err := NewQuizRepository(client).Insert(context.Background(), quiz); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !strings.HasPrefix(string(body["questions"]), "[") {
		t.Fatalf("questions sent as %s, want a JSON array", body["questions"])
	}
	if string(body["hints"]) != `"[]"` {
		t.Fatalf("hints sent as %s", body["hints"])
	}
}

func TestExpireSubscriptionsCountsReturnedRows(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.URL.Query().Get("is_premium"); got != "is.true" {
			t.Errorf("is_premium filter = %q", got)
		}
		if got := r.URL.Query().Get("subscription_expires"); !strings.HasPrefix(got, "lt.2026-03-01T12:00:00") {
			t.Errorf("expiry filter = %q", got)
		}
		fmt.Fprint(w, `[{"email":"a@test.io"},{"email":"b@test.io"}]`)
	})
	n, err := NewAccountRepository(client).ExpireSubscriptions(context.Background(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil || n != 2 {
		t.Fatalf("ExpireSubscriptions = %d, %v", n, err)
	}
}

func TestCountByTypePages(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		rows := make([]map[string]string, 0, pageSize)
		switch r.URL.Query().Get("offset") {
		case "0":
			for i := 0; i < pageSize; i++ {
				rows = append(rows, map[string]string{"generation_type": "quiz"})
			}
		case fmt.Sprint(pageSize):
			rows = append(rows, map[string]string{"generation_type": "video"})
		}
		json.NewEncoder(w).Encode(rows)
	})
	counts, err := NewGenerationRepository(client).CountByType(context.Background())
	if err != nil {
		t.Fatalf("CountByType: %v", err)
	}
	if calls != 2 || counts["quiz"] != pageSize || counts["video"] != 1 {
		t.Fatalf("calls = %d counts = %v", calls, counts)
	}
}

func TestPaymentLogReturnsID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var row map[string]any
			json.NewDecoder(r.Body).Decode(&row)
			if _, ok := row["id"]; ok {
				t.Errorf("insert body carries id: %v", row)
			}
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `[{"id":17}]`)
		case http.MethodGet:
			fmt.Fprint(w, `[{"id":17,"email":"a@test.io","order_id":"o-1","product":"pro","credits_added":100,"amount_rub":1490,"created_at":"2026-03-01T12:00:00Z"}]`)
		}
	})
	repo := NewPaymentRepository(client)
	rec := &models.PaymentRecord{AccountKey: "a@test.io", OrderID: "o-1", Product: "pro", CreditsAdded: 100, AmountRUB: 1490, CreatedAt: time.Now().UTC()}
	if err := repo.Log(context.Background(), rec); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if rec.ID != 17 {
		t.Fatalf("id = %d, want 17", rec.ID)
	}
	found, err := repo.FindByOrderID(context.Background(), "o-1")
	if err != nil || found == nil || found.AccountKey != "a@test.io" || found.CreditsAdded != 100 {
		t.Fatalf("FindByOrderID = %+v, %v", found, err)
	}
}

func TestPaymentReleaseDeletesByOrder(t *testing.T) {
	var method, filter string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		filter = r.URL.Query().Get("order_id")
		w.WriteHeader(http.StatusNoContent)
	})
	if err := NewPaymentRepository(client).Release(context.Background(), "o-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if method != http.MethodDelete || filter != "eq.o-1" {
		t.Fatalf("request = %s order_id=%s", method, filter)
	}
}

func TestPaymentLogConflictIsDuplicate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"code":"23505","message":"duplicate key value violates unique constraint \"uq_payments_log_order\""}`)
	})
	rec := &models.PaymentRecord{AccountKey: "a@test.io", OrderID: "o-1", Product: "pro", CreatedAt: time.Now().UTC()}
	if err := NewPaymentRepository(client).Log(context.Background(), rec); !storeerr.IsDuplicate(err) {
		t.Fatalf("err = %v, want duplicate", err)
	}
}

func TestAccountPasswordHashTravelsOnTheWire(t *testing.T) {
	var sent map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			json.NewDecoder(r.Body).Decode(&sent)
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			fmt.Fprint(w, `[{"email":"a@test.io","credits":5,"password_hash":"$2a$04$hash","created_at":"2026-03-01T12:00:00Z","updated_at":"2026-03-01T12:00:00Z"}]`)
		}
	})
	repo := NewAccountRepository(client)

	if err := repo.Create(context.Background(), &models.Account{Key: "a@test.io", Credits: 5, PasswordHash: "$2a$04$hash"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sent["password_hash"] != "$2a$04$hash" || sent["email"] != "a@test.io" {
		t.Fatalf("insert body = %v", sent)
	}

	acc, err := repo.Get(context.Background(), "a@test.io")
	if err != nil || acc == nil || acc.PasswordHash != "$2a$04$hash" || acc.Credits != 5 {
		t.Fatalf("Get = %+v, %v", acc, err)
	}
}
