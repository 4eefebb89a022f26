// Package httpapi serves the SolDeed public HTTP API: wallet sign-in,
// listing search, job CRUD and search suggestions.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"github.com/soldeed/soldeed/internal/events"
	"github.com/soldeed/soldeed/internal/job"
	"github.com/soldeed/soldeed/internal/logostore"
	"github.com/soldeed/soldeed/internal/search"
	"github.com/soldeed/soldeed/internal/session"
	"github.com/soldeed/soldeed/internal/walletauth"
	"github.com/soldeed/soldeed/internal/walletuser"
)

var ErrInvalidConfig = errors.New("httpapi: invalid config")

// ListingInvalidator drops a cached live listing after a posting changes.
// The Redis listing cache satisfies it; a nil invalidator is a no-op.
type ListingInvalidator interface {
	Invalidate(ctx context.Context)
}

type Config struct {
	Jobs       job.Store
	Users      walletuser.Store
	Sessions   session.Store
	Challenger *walletauth.Challenger
	Index      *search.Index
	Logos      logostore.Store

	// Publisher may be nil; lifecycle events are then dropped.
	Publisher *events.Publisher
	// Listing may be nil when no Redis cache is configured.
	Listing ListingInvalidator

	SessionTTL time.Duration

	RateLimitPerIPPerSecond float64
	RateLimitBurst          int
	RateLimitMaxTrackedIPs  int

	Logger *slog.Logger
	Now    func() time.Time
}

func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.Jobs == nil {
		return nil, fmt.Errorf("%w: nil job store", ErrInvalidConfig)
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("%w: nil user store", ErrInvalidConfig)
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("%w: nil session store", ErrInvalidConfig)
	}
	if cfg.Challenger == nil {
		return nil, fmt.Errorf("%w: nil challenger", ErrInvalidConfig)
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("%w: nil search index", ErrInvalidConfig)
	}
	if cfg.Logos == nil {
		return nil, fmt.Errorf("%w: nil logo store", ErrInvalidConfig)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultTTL
	}
	if cfg.RateLimitPerIPPerSecond <= 0 {
		cfg.RateLimitPerIPPerSecond = 20
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	if cfg.RateLimitMaxTrackedIPs <= 0 {
		cfg.RateLimitMaxTrackedIPs = 10_000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	h := &handler{
		cfg: cfg,
		limiter: newIPRateLimiter(
			cfg.RateLimitPerIPPerSecond,
			float64(cfg.RateLimitBurst),
			cfg.RateLimitMaxTrackedIPs,
		),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("POST /api/auth/challenge", h.handleAuthChallenge)
	mux.HandleFunc("POST /api/auth/verify", h.handleAuthVerify)
	mux.HandleFunc("GET /api/jobs", h.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.handleGetJob)
	mux.HandleFunc("POST /api/jobs", h.handleCreateJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.handleDeleteJob)
	mux.HandleFunc("GET /api/suggest/titles", h.handleTitleSuggestions)
	mux.HandleFunc("GET /api/suggest/locations", h.handleLocationSuggestions)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health checks must never be throttled.
		if r.URL.Path == "/healthz" {
			mux.ServeHTTP(w, r)
			return
		}

		now := h.cfg.Now().UTC()
		ip := clientIP(r)
		allowed := h.limiter.Allow(ip, now)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.cfg.RateLimitBurst))
		if !allowed {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": "rate_limited",
			})
			return
		}

		mux.ServeHTTP(w, r)
	}), nil
}

type handler struct {
	cfg     Config
	limiter *ipRateLimiter
}

func (h *handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type authChallengeRequestBody struct {
	WalletAddress string `json:"wallet_address"`
}

func (h *handler) handleAuthChallenge(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeJSONBody[authChallengeRequestBody](w, r)
	if !ok {
		return
	}

	ch, err := h.cfg.Challenger.Issue(body.WalletAddress)
	if err != nil {
		if errors.Is(err, walletuser.ErrInvalidAddress) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": "invalid_wallet_address",
			})
			return
		}
		h.cfg.Logger.Error("issue auth challenge failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "internal_error",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wallet_address": ch.WalletAddress,
		"nonce":          ch.Nonce,
		"message":        ch.Message,
		"expires_at":     ch.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type authVerifyRequestBody struct {
	WalletAddress string `json:"wallet_address"`
	Nonce         string `json:"nonce"`
	// Signature is the base58-encoded ed25519 signature over the challenge
	// message, the encoding Solana wallets produce.
	Signature string `json:"signature"`
}

func (h *handler) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeJSONBody[authVerifyRequestBody](w, r)
	if !ok {
		return
	}

	sig, err := base58.Decode(strings.TrimSpace(body.Signature))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "invalid_signature_encoding",
		})
		return
	}

	if err := h.cfg.Challenger.Verify(body.WalletAddress, body.Nonce, sig); err != nil {
		switch {
		case errors.Is(err, walletuser.ErrInvalidAddress):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": "invalid_wallet_address",
			})
		case errors.Is(err, walletauth.ErrUnknownChallenge):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": "unknown_challenge",
			})
		case errors.Is(err, walletauth.ErrBadSignature):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": "invalid_signature",
			})
		default:
			h.cfg.Logger.Error("verify auth challenge failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": "internal_error",
			})
		}
		return
	}

	user, created, err := h.cfg.Users.Register(r.Context(), body.WalletAddress)
	if err != nil {
		h.cfg.Logger.Error("register wallet user failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "internal_error",
		})
		return
	}
	if created {
		ev := events.WalletRegisteredV1{
			UserID:        user.ID,
			WalletAddress: user.WalletAddress,
			RegisteredAt:  user.CreatedAt,
		}
		if err := h.cfg.Publisher.WalletRegistered(r.Context(), ev); err != nil {
			h.cfg.Logger.Error("publish wallet registered failed", "err", err, "user_id", user.ID)
		}
	}

	sess, err := h.cfg.Sessions.Create(r.Context(), user.ID, user.WalletAddress, h.cfg.SessionTTL)
	if err != nil {
		h.cfg.Logger.Error("create session failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "internal_error",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":          sess.Token,
		"user_id":        sess.UserID,
		"wallet_address": sess.WalletAddress,
		"expires_at":     sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// sessionFromRequest resolves the bearer token, if any. A missing header
// returns a zero session and false without an error.
func (h *handler) sessionFromRequest(r *http.Request) (session.Session, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return session.Session{}, false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, prefix))
	if token == "" {
		return session.Session{}, false
	}
	sess, err := h.cfg.Sessions.Get(r.Context(), token)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			h.cfg.Logger.Error("resolve session failed", "err", err)
		}
		return session.Session{}, false
	}
	return sess, true
}

func (h *handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	_, connected := h.sessionFromRequest(r)

	q := r.URL.Query()
	title := q.Get("title")
	location := q.Get("location")

	filtered := search.Filter(h.cfg.Index.Snapshot(), title, location)

	p := search.NewPaginator(len(filtered), connected)
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil {
			p.GoTo(page)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":         p.Slice(filtered),
		"total":        len(filtered),
		"page":         p.Current(),
		"total_pages":  p.VisibleTotalPages(),
		"page_numbers": p.PageNumbers(),
		"preview":      !connected,
	})
}

func (h *handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Seed postings are not in the store; serve them from the index.
	for _, j := range h.cfg.Index.Snapshot() {
		if j.ID == id {
			writeJSON(w, http.StatusOK, map[string]any{"job": j})
			return
		}
	}

	j, err := h.cfg.Jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": "Job not found",
			})
			return
		}
		h.cfg.Logger.Error("get job failed", "err", err, "job_id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "internal_error",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": j})
}

// requiredJobFields maps multipart form fields to the message returned when
// the field is missing. Order matters: wallet_address is checked first.
var requiredJobFields = []struct {
	name    string
	message string
}{
	{"wallet_address", "Missing wallet address."},
	{"company_name", "Missing company name."},
	{"position", "Missing position."},
	{"job_description", "Missing job description."},
	{"apply_url", "Missing apply URL."},
}

func (h *handler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, logostore.MaxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(logostore.MaxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "invalid_multipart_form",
		})
		return
	}

	// Field validation runs before session resolution so an unauthenticated
	// caller with an incomplete form still sees which field is missing.
	for _, f := range requiredJobFields {
		if strings.TrimSpace(r.FormValue(f.name)) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": f.message,
			})
			return
		}
	}

	sess, connected := h.sessionFromRequest(r)
	if !connected {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": "authentication_required",
		})
		return
	}
	walletAddress := strings.TrimSpace(r.FormValue("wallet_address"))
	if walletAddress != sess.WalletAddress {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error": "wallet_mismatch",
		})
		return
	}

	logoURL := strings.TrimSpace(r.FormValue("logo_url"))
	if file, header, err := r.FormFile("logo"); err == nil {
		defer file.Close()
		url, uploadErr := h.uploadLogo(r.Context(), file, header)
		if uploadErr != nil {
			if errors.Is(uploadErr, logostore.ErrInvalidImage) {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error": "Logo must be a .jpg image.",
				})
				return
			}
			h.cfg.Logger.Error("logo upload failed", "err", uploadErr)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": "Failed to upload logo.",
			})
			return
		}
		logoURL = url
	}

	j := job.Job{
		Position:    strings.TrimSpace(r.FormValue("position")),
		CompanyName: strings.TrimSpace(r.FormValue("company_name")),
		Logo:        logoURL,
		Description: strings.TrimSpace(r.FormValue("job_description")),
		Type:        strings.TrimSpace(r.FormValue("type")),
		PrimaryTag:  strings.TrimSpace(r.FormValue("primary_tag")),
		WorkMode:    strings.TrimSpace(r.FormValue("work_mode")),
		Seniority:   strings.TrimSpace(r.FormValue("seniority")),
		ApplyURL:    strings.TrimSpace(r.FormValue("apply_url")),
		UserID:      sess.UserID,
		Source:      job.SourceLive,
	}
	if loc := strings.TrimSpace(r.FormValue("location")); loc != "" {
		j.Locations = []string{loc}
	}

	created, err := h.cfg.Jobs.Create(r.Context(), j)
	if err != nil {
		h.cfg.Logger.Error("insert job failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Failed to insert job.",
		})
		return
	}

	h.invalidateListing(r.Context())
	ev := events.JobCreatedV1{
		JobID:         created.ID,
		Position:      created.Position,
		CompanyName:   created.CompanyName,
		UserID:        created.UserID,
		WalletAddress: sess.WalletAddress,
		CreatedAt:     created.CreatedAt,
	}
	if err := h.cfg.Publisher.JobCreated(r.Context(), ev); err != nil {
		h.cfg.Logger.Error("publish job created failed", "err", err, "job_id", created.ID)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"job":     created,
	})
}

func (h *handler) uploadLogo(ctx context.Context, file multipart.File, header *multipart.FileHeader) (string, error) {
	if header.Size > logostore.MaxUploadSize {
		return "", fmt.Errorf("%w: file too large", logostore.ErrInvalidImage)
	}
	data, err := io.ReadAll(io.LimitReader(file, logostore.MaxUploadSize+1))
	if err != nil {
		return "", fmt.Errorf("httpapi: read logo upload: %w", err)
	}
	if err := logostore.ValidateJPEG(header.Filename, data); err != nil {
		return "", err
	}
	return h.cfg.Logos.Put(ctx, logostore.ObjectKey(h.cfg.Now().UTC()), data)
}

func (h *handler) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	sess, connected := h.sessionFromRequest(r)
	if !connected {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": "authentication_required",
		})
		return
	}

	id := r.PathValue("id")
	if err := h.cfg.Jobs.Delete(r.Context(), id, sess.UserID); err != nil {
		switch {
		case errors.Is(err, job.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": "Job not found",
			})
		case errors.Is(err, job.ErrNotOwner):
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error": "not_job_owner",
			})
		default:
			h.cfg.Logger.Error("delete job failed", "err", err, "job_id", id)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": "internal_error",
			})
		}
		return
	}

	h.invalidateListing(r.Context())
	ev := events.JobDeletedV1{
		JobID:     id,
		UserID:    sess.UserID,
		DeletedAt: h.cfg.Now().UTC(),
	}
	if err := h.cfg.Publisher.JobDeleted(r.Context(), ev); err != nil {
		h.cfg.Logger.Error("publish job deleted failed", "err", err, "job_id", id)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *handler) handleTitleSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions := search.TitleSuggestions(h.cfg.Index.Snapshot(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (h *handler) handleLocationSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions := search.LocationSuggestions(h.cfg.Index.Snapshot(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (h *handler) invalidateListing(ctx context.Context) {
	if h.cfg.Listing != nil {
		h.cfg.Listing.Invalidate(ctx)
	}
	h.cfg.Index.Invalidate()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSONBody[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var out T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "invalid_json",
		})
		return out, false
	}
	return out, true
}

func clientIP(r *http.Request) string {
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" {
		parts := strings.Split(xff, ",")
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}
	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
		return xrip
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(remote); err == nil {
		return addr.Addr().String()
	}
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr.String()
	}
	host := remote
	if i := strings.LastIndex(remote, ":"); i > 0 {
		host = remote[:i]
	}
	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return addr.String()
	}
	return remote
}

type limiterState struct {
	tokens   float64
	lastAt   time.Time
	lastSeen time.Time
}

type ipRateLimiter struct {
	mu sync.Mutex

	refillPerSecond float64
	burst           float64
	maxTrackedIPs   int
	states          map[string]limiterState
}

func newIPRateLimiter(refillPerSecond float64, burst float64, maxTrackedIPs int) *ipRateLimiter {
	return &ipRateLimiter{
		refillPerSecond: refillPerSecond,
		burst:           burst,
		maxTrackedIPs:   maxTrackedIPs,
		states:          make(map[string]limiterState),
	}
}

func (l *ipRateLimiter) Allow(ip string, now time.Time) bool {
	if l == nil {
		return true
	}
	if ip == "" {
		ip = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[ip]
	if !ok {
		if len(l.states) >= l.maxTrackedIPs {
			l.evictOne()
		}
		l.states[ip] = limiterState{
			tokens:   l.burst - 1,
			lastAt:   now,
			lastSeen: now,
		}
		return true
	}

	elapsed := now.Sub(st.lastAt).Seconds()
	if elapsed > 0 {
		st.tokens += elapsed * l.refillPerSecond
		if st.tokens > l.burst {
			st.tokens = l.burst
		}
	}
	st.lastAt = now
	st.lastSeen = now

	if st.tokens < 1 {
		l.states[ip] = st
		return false
	}
	st.tokens -= 1
	l.states[ip] = st
	return true
}

func (l *ipRateLimiter) evictOne() {
	var oldestIP string
	var oldestAt time.Time
	first := true
	for ip, st := range l.states {
		if first || st.lastSeen.Before(oldestAt) {
			oldestIP = ip
			oldestAt = st.lastSeen
			first = false
		}
	}
	if oldestIP != "" {
		delete(l.states, oldestIP)
	}
}
