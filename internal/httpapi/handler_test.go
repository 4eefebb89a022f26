package httpapi

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"github.com/soldeed/soldeed/internal/job"
	"github.com/soldeed/soldeed/internal/logostore"
	"github.com/soldeed/soldeed/internal/search"
	"github.com/soldeed/soldeed/internal/session"
	"github.com/soldeed/soldeed/internal/walletauth"
	"github.com/soldeed/soldeed/internal/walletuser"
)

type testEnv struct {
	handler    http.Handler
	jobs       *job.MemoryStore
	users      *walletuser.MemoryStore
	sessions   *session.MemoryStore
	challenger *walletauth.Challenger
	index      *search.Index
}

func newTestEnv(t *testing.T, seed []job.Job) *testEnv {
	t.Helper()

	jobs := job.NewMemoryStore()
	users := walletuser.NewMemoryStore()
	sessions := session.NewMemoryStore()
	challenger := walletauth.NewChallenger(walletauth.Config{})

	index, err := search.NewIndex(search.IndexConfig{Seed: seed, Live: jobs})
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(index.Close)

	logos, err := logostore.New(logostore.Config{Driver: logostore.DriverMemory})
	if err != nil {
		t.Fatalf("logostore.New: %v", err)
	}

	handler, err := NewHandler(Config{
		Jobs:       jobs,
		Users:      users,
		Sessions:   sessions,
		Challenger: challenger,
		Index:      index,
		Logos:      logos,
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	return &testEnv{
		handler:    handler,
		jobs:       jobs,
		users:      users,
		sessions:   sessions,
		challenger: challenger,
		index:      index,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// login registers a wallet and returns a bearer token plus the user row,
// bypassing the signature flow.
func (e *testEnv) login(t *testing.T, address string) (string, walletuser.User) {
	t.Helper()
	user, _, err := e.users.Register(context.Background(), address)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	sess, err := e.sessions.Create(context.Background(), user.ID, user.WalletAddress, time.Hour)
	if err != nil {
		t.Fatalf("session Create: %v", err)
	}
	return sess.Token, user
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func testWalletAddress(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return base58.Encode(pub), priv
}

func seedPostings(n int) []job.Job {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]job.Job, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, job.Job{
			ID:          fmt.Sprintf("%d", 100+i),
			Position:    fmt.Sprintf("Engineer %d", i),
			CompanyName: "Acme",
			Locations:   []string{"Remote"},
			ApplyURL:    "https://acme.example/apply",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			Source:      job.SourceSeed,
		})
	}
	return out
}

func multipartBody(t *testing.T, fields map[string]string, logoName string, logo []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if logoName != "" {
		fw, err := w.CreateFormFile("logo", logoName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(logo); err != nil {
			t.Fatalf("write logo: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func jobFields(walletAddress string) map[string]string {
	return map[string]string{
		"wallet_address":  walletAddress,
		"company_name":    "Acme",
		"position":        "Backend Engineer",
		"job_description": "Build the backend.",
		"apply_url":       "https://acme.example/apply",
		"location":        "Remote",
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	address, priv := testWalletAddress(t)

	body, _ := json.Marshal(map[string]string{"wallet_address": address})
	rec := env.do(t, httptest.NewRequest("POST", "/api/auth/challenge", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("challenge: %d %s", rec.Code, rec.Body.String())
	}
	challenge := decodeBody(t, rec)
	nonce, _ := challenge["nonce"].(string)
	message, _ := challenge["message"].(string)
	if nonce == "" || message == "" {
		t.Fatalf("challenge payload: %v", challenge)
	}

	sig := ed25519.Sign(priv, []byte(message))
	body, _ = json.Marshal(map[string]string{
		"wallet_address": address,
		"nonce":          nonce,
		"signature":      base58.Encode(sig),
	})
	rec = env.do(t, httptest.NewRequest("POST", "/api/auth/verify", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: %d %s", rec.Code, rec.Body.String())
	}
	verified := decodeBody(t, rec)
	token, _ := verified["token"].(string)
	if token == "" {
		t.Fatalf("verify payload: %v", verified)
	}

	// The wallet user was auto-registered.
	if _, err := env.users.GetByAddress(context.Background(), address); err != nil {
		t.Fatalf("user not registered: %v", err)
	}

	// The token resolves to a session.
	sess, err := env.sessions.Get(context.Background(), token)
	if err != nil || sess.WalletAddress != address {
		t.Fatalf("session: %v %+v", err, sess)
	}
}

func TestAuthVerifyRejectsBadSignature(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	address, _ := testWalletAddress(t)
	_, otherPriv := testWalletAddress(t)

	ch, err := env.challenger.Issue(address)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	sig := ed25519.Sign(otherPriv, []byte(ch.Message))
	body, _ := json.Marshal(map[string]string{
		"wallet_address": address,
		"nonce":          ch.Nonce,
		"signature":      base58.Encode(sig),
	})
	rec := env.do(t, httptest.NewRequest("POST", "/api/auth/verify", bytes.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad signature: %d %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["error"]; got != "invalid_signature" {
		t.Fatalf("error code: %v", got)
	}
}

func TestListJobsDisconnectedPreview(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, seedPostings(35)) // 4 pages

	rec := env.do(t, httptest.NewRequest("GET", "/api/jobs?page=3", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)

	if got := body["page"].(float64); got != 1 {
		t.Fatalf("disconnected page: got %v, want 1", got)
	}
	if got := body["total_pages"].(float64); got != 3 {
		t.Fatalf("visible total pages: got %v, want 3", got)
	}
	if got := body["preview"].(bool); !got {
		t.Fatalf("preview flag not set")
	}
	numbers := body["page_numbers"].([]any)
	want := []any{"1", "2", "...", "4"}
	if fmt.Sprint(numbers) != fmt.Sprint(want) {
		t.Fatalf("preview page numbers: got %v, want %v", numbers, want)
	}
	if got := len(body["jobs"].([]any)); got != search.PageSize {
		t.Fatalf("page size: got %d", got)
	}
}

func TestListJobsConnectedNavigation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, seedPostings(35))
	address, _ := testWalletAddress(t)
	token, _ := env.login(t, address)

	req := httptest.NewRequest("GET", "/api/jobs?page=4", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := env.do(t, req)
	body := decodeBody(t, rec)

	if got := body["page"].(float64); got != 4 {
		t.Fatalf("connected page: got %v, want 4", got)
	}
	if got := body["total_pages"].(float64); got != 4 {
		t.Fatalf("total pages: got %v, want 4", got)
	}
	if got := body["preview"].(bool); got {
		t.Fatalf("preview flag set for connected caller")
	}
	if got := len(body["jobs"].([]any)); got != 5 {
		t.Fatalf("last page size: got %d, want 5", got)
	}
}

func TestListJobsFilters(t *testing.T) {
	t.Parallel()

	seed := seedPostings(3)
	seed[1].Position = "Product Designer"
	env := newTestEnv(t, seed)

	rec := env.do(t, httptest.NewRequest("GET", "/api/jobs?title=designer", nil))
	body := decodeBody(t, rec)
	if got := body["total"].(float64); got != 1 {
		t.Fatalf("filtered total: got %v, want 1", got)
	}
}

func TestGetJobSeedAndLive(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, seedPostings(1))

	rec := env.do(t, httptest.NewRequest("GET", "/api/jobs/100", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("seed job: %d %s", rec.Code, rec.Body.String())
	}
	if _, ok := decodeBody(t, rec)["job"]; !ok {
		t.Fatalf("seed job payload missing job field")
	}

	rec = env.do(t, httptest.NewRequest("GET", "/api/jobs/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing job: %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Job not found" {
		t.Fatalf("404 message: %v", got)
	}
}

func TestCreateJobMissingWalletAddress(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	fields := jobFields("")
	delete(fields, "wallet_address")
	body, contentType := multipartBody(t, fields, "", nil)

	req := httptest.NewRequest("POST", "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rec := env.do(t, req)

	// The field check runs before authentication: no session needed to see
	// the message.
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing wallet: %d %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["error"]; got != "Missing wallet address." {
		t.Fatalf("error message: %v", got)
	}
}

func TestCreateJobRequiresSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	address, _ := testWalletAddress(t)
	body, contentType := multipartBody(t, jobFields(address), "", nil)

	req := httptest.NewRequest("POST", "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rec := env.do(t, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no session: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateJobWalletMismatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	address, _ := testWalletAddress(t)
	other, _ := testWalletAddress(t)
	token, _ := env.login(t, address)

	body, contentType := multipartBody(t, jobFields(other), "", nil)
	req := httptest.NewRequest("POST", "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := env.do(t, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wallet mismatch: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateJobSuccessWithLogo(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	address, _ := testWalletAddress(t)
	token, user := env.login(t, address)

	logo := append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{0}, 64)...)
	body, contentType := multipartBody(t, jobFields(address), "logo.jpg", logo)
	req := httptest.NewRequest("POST", "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := env.do(t, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}

	resp := decodeBody(t, rec)
	if resp["success"] != true {
		t.Fatalf("success flag: %v", resp["success"])
	}
	created := resp["job"].(map[string]any)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("created job id missing: %v", created)
	}
	if logoURL, _ := created["logo"].(string); !strings.HasSuffix(logoURL, ".jpg") {
		t.Fatalf("logo url: %v", created["logo"])
	}

	stored, err := env.jobs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if stored.UserID != user.ID {
		t.Fatalf("owner: got %s, want %s", stored.UserID, user.ID)
	}
}

func TestCreateJobRejectsNonJPEGLogo(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	address, _ := testWalletAddress(t)
	token, _ := env.login(t, address)

	logo := []byte{0x89, 0x50, 0x4e, 0x47}
	body, contentType := multipartBody(t, jobFields(address), "logo.png", logo)
	req := httptest.NewRequest("POST", "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("png logo: %d %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteJobOwnership(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	ownerAddr, _ := testWalletAddress(t)
	intruderAddr, _ := testWalletAddress(t)
	ownerToken, owner := env.login(t, ownerAddr)
	intruderToken, _ := env.login(t, intruderAddr)

	created, err := env.jobs.Create(context.Background(), job.Job{
		Position:    "Backend Engineer",
		CompanyName: "Acme",
		ApplyURL:    "https://acme.example/apply",
		UserID:      owner.ID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// No session.
	rec := env.do(t, httptest.NewRequest("DELETE", "/api/jobs/"+created.ID, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no session delete: %d", rec.Code)
	}

	// Wrong owner.
	req := httptest.NewRequest("DELETE", "/api/jobs/"+created.ID, nil)
	req.Header.Set("Authorization", "Bearer "+intruderToken)
	rec = env.do(t, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign delete: %d %s", rec.Code, rec.Body.String())
	}

	// Owner.
	req = httptest.NewRequest("DELETE", "/api/jobs/"+created.ID, nil)
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	rec = env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner delete: %d %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["success"]; got != true {
		t.Fatalf("delete payload: %v", got)
	}

	// Gone.
	req = httptest.NewRequest("DELETE", "/api/jobs/"+created.ID, nil)
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	rec = env.do(t, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double delete: %d", rec.Code)
	}
}

func TestSuggestionEndpoints(t *testing.T) {
	t.Parallel()

	seed := seedPostings(3)
	seed[0].Position = "Senior Solana Engineer"
	seed[1].CompanyName = "Solflare"
	seed[2].Locations = []string{"Lisbon, Portugal"}
	env := newTestEnv(t, seed)

	rec := env.do(t, httptest.NewRequest("GET", "/api/suggest/titles?q=sol", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("titles: %d", rec.Code)
	}
	titles := decodeBody(t, rec)["suggestions"].([]any)
	if len(titles) != 2 {
		t.Fatalf("title suggestions: %v", titles)
	}

	rec = env.do(t, httptest.NewRequest("GET", "/api/suggest/locations?q=lisbon", nil))
	locations := decodeBody(t, rec)["suggestions"].([]any)
	if len(locations) != 1 || locations[0] != "Lisbon, Portugal" {
		t.Fatalf("location suggestions: %v", locations)
	}

	// Sub-minimum queries yield an empty list, not an error.
	rec = env.do(t, httptest.NewRequest("GET", "/api/suggest/titles?q=s", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("short query: %d", rec.Code)
	}
}

func TestRateLimiterThrottles(t *testing.T) {
	t.Parallel()

	jobs := job.NewMemoryStore()
	index, err := search.NewIndex(search.IndexConfig{Live: jobs})
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(index.Close)
	logos, _ := logostore.New(logostore.Config{Driver: logostore.DriverMemory})

	handler, err := NewHandler(Config{
		Jobs:                    jobs,
		Users:                   walletuser.NewMemoryStore(),
		Sessions:                session.NewMemoryStore(),
		Challenger:              walletauth.NewChallenger(walletauth.Config{}),
		Index:                   index,
		Logos:                   logos,
		RateLimitPerIPPerSecond: 1,
		RateLimitBurst:          2,
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	var limited bool
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/jobs", nil))
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			if rec.Header().Get("Retry-After") == "" {
				t.Fatalf("throttled response missing Retry-After")
			}
		}
	}
	if !limited {
		t.Fatalf("burst of requests was never throttled")
	}

	// Health checks bypass the limiter.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz throttled: %d", rec.Code)
	}
}

func TestNewHandlerValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewHandler(Config{}); err == nil {
		t.Fatalf("empty config accepted")
	}
}
