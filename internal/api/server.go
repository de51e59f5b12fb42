// Package api exposes the ledger over HTTP: mutating requests are submitted
// to the machine and answered with their trace id, getters read committed
// state, and a WebSocket feed streams transactions as they are processed.
//
// The API is a control plane for a trusted operator: request bodies name the
// acting holder (owner, admin or sender) and the server acts on its behalf.
// WithAuthToken restricts mutating routes to callers presenting the bearer
// token; getters stay open.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/idhash"
	"jetton-ledger/internal/jetton"
	"jetton-ledger/internal/metadata"
	"jetton-ledger/internal/observability"
	"jetton-ledger/internal/registry"
	"jetton-ledger/internal/reporting"
	"jetton-ledger/internal/storage"
	"jetton-ledger/internal/vm"
)

// Defaults.
const (
	DefaultWaitTimeout = 10 * time.Second
	DefaultTraceLimit  = 100
	maxBodyBytes       = 1 << 20
)

// Ledger is the message substrate the server drives.
type Ledger interface {
	Submit(ctx context.Context, req vm.ExternalRequest) (string, error)
	CreateHolder(ctx context.Context, seed string, amount domain.Coins) (domain.Address, string, error)
	Fund(ctx context.Context, addr domain.Address, amount domain.Coins) (string, error)
	Account(ctx context.Context, addr domain.Address) (*domain.Account, error)
	Drain(ctx context.Context) error
	Pending() int
	Deriver() *idhash.Deriver
}

// ExitCodeCounter reports how many messages ended with each exit code.
type ExitCodeCounter interface {
	ExitCodeCounts(ctx context.Context) (map[domain.ExitCode]uint64, error)
}

// Server serves the ledger API.
type Server struct {
	ledger   Ledger
	accounts jetton.AccountLister
	txs      storage.TransactionStore
	tokens   *jetton.Client
	reports  *reporting.Generator
	orgs     *registry.Client
	requests registry.Requests

	hub         *Hub
	stats       ExitCodeCounter
	metrics     *observability.Metrics
	logger      *zap.Logger
	waitTimeout time.Duration
	token       string

	mux *http.ServeMux
}

// Option configures Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request metrics and supply checks.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHub serves the transaction feed on /ws/traces.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithExitCodeStats serves aggregated exit codes on /v1/stats/exit-codes.
func WithExitCodeStats(c ExitCodeCounter) Option {
	return func(s *Server) { s.stats = c }
}

// WithRegistryOpcodes sets the opcodes used to build registry requests.
func WithRegistryOpcodes(ops registry.Opcodes) Option {
	return func(s *Server) { s.requests = registry.Requests{Ops: ops} }
}

// WithWaitTimeout bounds how long ?wait=true requests wait for the ledger to settle.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.waitTimeout = d
		}
	}
}

// WithAuthToken requires "Authorization: Bearer <token>" on every POST route.
// An empty token leaves the routes open.
func WithAuthToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// NewServer creates a server over ledger. accounts lists accounts for the
// supply check and txs answers trace queries.
func NewServer(ledger Ledger, accounts jetton.AccountLister, txs storage.TransactionStore, opts ...Option) *Server {
	s := &Server{
		ledger:      ledger,
		accounts:    accounts,
		txs:         txs,
		tokens:      jetton.NewClient(ledger, ledger.Deriver()),
		orgs:        registry.NewClient(ledger),
		requests:    registry.Requests{Ops: registry.DefaultOpcodes()},
		logger:      zap.NewNop(),
		waitTimeout: DefaultWaitTimeout,
		mux:         http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reports = reporting.NewGenerator(s.tokens, accounts, ledger.Deriver())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("GET /health", s.health)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", observability.Handler())
	}
	if s.hub != nil {
		s.mux.HandleFunc("GET /ws/traces", s.hub.ServeWS)
	}

	s.handle("POST /v1/holders", s.createHolder)
	s.handle("POST /v1/fund", s.fund)
	s.handle("POST /v1/messages", s.message)

	s.handle("POST /v1/jettons", s.deploy)
	s.handle("GET /v1/jettons/{master}", s.tokenData)
	s.handle("POST /v1/jettons/{master}/mint", s.mint)
	s.handle("POST /v1/jettons/{master}/burn", s.adminBurn)
	s.handle("POST /v1/jettons/{master}/admin", s.changeAdmin)
	s.handle("POST /v1/jettons/{master}/metadata", s.changeMetadata)
	s.handle("GET /v1/jettons/{master}/wallets/{owner}", s.walletAddress)
	s.handle("GET /v1/jettons/{master}/invariant", s.invariant)
	s.handle("GET /v1/jettons/{master}/report", s.report)

	s.handle("GET /v1/wallets/{wallet}", s.walletData)
	s.handle("POST /v1/wallets/{wallet}/transfer", s.transfer)
	s.handle("POST /v1/wallets/{wallet}/burn", s.burn)
	s.handle("POST /v1/wallets/{wallet}/withdraw", s.withdraw)

	s.handle("GET /v1/accounts/{addr}", s.account)
	s.handle("GET /v1/accounts/{addr}/transactions", s.accountTransactions)
	s.handle("GET /v1/traces/{id}", s.trace)
	s.handle("GET /v1/stats/exit-codes", s.exitCodes)

	s.handle("POST /v1/organizations", s.deployOrganizations)
	s.handle("GET /v1/organizations/{registry}", s.organizations)
	s.handle("POST /v1/organizations/{registry}/{action}", s.organizationAction)
	s.handle("POST /v1/memberships", s.deployMembership)
	s.handle("GET /v1/memberships/{registry}/{org}", s.members)
	s.handle("POST /v1/memberships/{registry}/{action}", s.membershipAction)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handlerFunc is a handler that reports failures as errors.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *Server) handle(pattern string, h handlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		err := s.authorize(r)
		if err == nil {
			err = h(rec, r)
		}
		if err != nil {
			status := statusOf(err)
			if status >= http.StatusInternalServerError {
				s.logger.Error("request failed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(err))
			}
			writeJSON(rec, status, ErrorResponse{Error: err.Error()})
		}
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(pattern, rec.status, time.Since(start))
		}
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) authorize(r *http.Request) error {
	if s.token == "" || r.Method == http.MethodGet {
		return nil
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
		return errUnauthorized
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

var (
	// errBadRequest marks client input errors.
	errBadRequest   = errors.New("bad request")
	errUnauthorized = errors.New("missing or invalid bearer token")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, vm.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidCoins),
		errors.Is(err, domain.ErrCoinsOverflow),
		errors.Is(err, metadata.ErrUnsupportedKey),
		errors.Is(err, metadata.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, jetton.ErrNotInstantiated),
		errors.Is(err, registry.ErrNotInstantiated),
		errors.Is(err, registry.ErrNoOrganization):
		return http.StatusNotFound
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // empty body, zero request
		}
		return badRequest("decode body: %v", err)
	}
	return nil
}

func pathAddress(r *http.Request, name string) (domain.Address, error) {
	addr, err := domain.ParseAddress(r.PathValue(name))
	if err != nil {
		return domain.NoneAddress, badRequest("%s: %v", name, err)
	}
	if addr.IsNone() {
		return domain.NoneAddress, badRequest("%s is required", name)
	}
	return addr, nil
}

// accepted answers a submitted request, waiting for the ledger to settle
// when the caller asked for it.
func (s *Server) accepted(w http.ResponseWriter, r *http.Request, traceID string, addr domain.Address) error {
	resp := Accepted{TraceID: traceID, Address: addr}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), s.waitTimeout)
		defer cancel()
		if err := s.ledger.Drain(ctx); err != nil {
			return fmt.Errorf("wait for trace %s: %w", traceID, err)
		}
		resp.Settled = true
	}
	writeJSON(w, http.StatusAccepted, resp)
	return nil
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, req vm.ExternalRequest, addr domain.Address) error {
	traceID, err := s.ledger.Submit(r.Context(), req)
	if err != nil {
		return err
	}
	return s.accepted(w, r, traceID, addr)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pending": s.ledger.Pending(),
	})
	return nil
}

func (s *Server) createHolder(w http.ResponseWriter, r *http.Request) error {
	var req HolderRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	addr, traceID, err := s.ledger.CreateHolder(r.Context(), req.Seed, req.Amount)
	if err != nil {
		return err
	}
	return s.accepted(w, r, traceID, addr)
}

func (s *Server) fund(w http.ResponseWriter, r *http.Request) error {
	var req FundRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	traceID, err := s.ledger.Fund(r.Context(), req.Address, req.Amount)
	if err != nil {
		return err
	}
	return s.accepted(w, r, traceID, req.Address)
}

func (s *Server) message(w http.ResponseWriter, r *http.Request) error {
	var req vm.ExternalRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	return s.submit(w, r, req, req.To)
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	acct, err := s.ledger.Account(r.Context(), addr)
	if err != nil {
		return fmt.Errorf("account %s: %w", addr, err)
	}
	writeJSON(w, http.StatusOK, accountView(acct))
	return nil
}

func (s *Server) accountTransactions(w http.ResponseWriter, r *http.Request) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	limit := DefaultTraceLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest("limit %q", v)
		}
		limit = n
	}
	txs, err := s.txs.GetByAccount(r.Context(), addr, limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, transactionViews(txs))
	return nil
}

func (s *Server) trace(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	if id == "" {
		return badRequest("trace id is required")
	}
	txs, err := s.txs.GetByTrace(r.Context(), id)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return fmt.Errorf("trace %s: %w", id, storage.ErrNotFound)
	}
	writeJSON(w, http.StatusOK, transactionViews(txs))
	return nil
}

func (s *Server) exitCodes(w http.ResponseWriter, r *http.Request) error {
	if s.stats == nil {
		return fmt.Errorf("exit code statistics: %w", storage.ErrNotFound)
	}
	counts, err := s.stats.ExitCodeCounts(r.Context())
	if err != nil {
		return err
	}
	out := make([]ExitCodeCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, ExitCodeCount{ExitCode: code, Messages: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExitCode < out[j].ExitCode })
	writeJSON(w, http.StatusOK, out)
	return nil
}
