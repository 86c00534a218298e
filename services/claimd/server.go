package claimd

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"payvault/crypto"
	"payvault/native/payroll"
)

const maxBodyBytes = 16 << 10

// ServerConfig captures the dependencies of the HTTP API.
type ServerConfig struct {
	Service *Service
	Auth    *Authenticator
	// Limiter throttles redeem requests; nil disables throttling.
	Limiter *RateLimiter
	// Vaults enables the operator vault routes when set.
	Vaults VaultAdmin
	Logger *slog.Logger
}

// Server exposes the claim service over HTTP.
type Server struct {
	service *Service
	auth    *Authenticator
	limiter *RateLimiter
	vaults  VaultAdmin
	logger  *slog.Logger
	router  http.Handler
}

// NewServer wires the routes. Issuing and vault administration require the
// bearer token; redeeming is rate limited per client.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		service: cfg.Service,
		auth:    cfg.Auth,
		limiter: cfg.Limiter,
		vaults:  cfg.Vaults,
		logger:  cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// TracedHandler wraps the router in a server span so the claim spans of a
// request share its trace.
func (s *Server) TracedHandler() http.Handler {
	return otelhttp.NewHandler(s.router, "claimd")
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/claims", func(api chi.Router) {
		api.With(s.auth.Middleware).Post("/", s.createClaim)
		api.Get("/{code}", s.validateClaim)
		if s.limiter != nil {
			api.With(s.limiter.Middleware).Post("/{code}/redeem", s.redeemClaim)
		} else {
			api.Post("/{code}/redeem", s.redeemClaim)
		}
	})
	if s.vaults != nil {
		r.Route("/v1/vaults", func(api chi.Router) {
			api.Use(s.auth.Middleware)
			api.Post("/", s.createVault)
			api.Get("/{vault}", s.getVault)
			api.Post("/{vault}/deposits", s.deposit)
		})
	}
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", routePattern(r)),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", chimw.GetReqID(r.Context())))
	})
}

// routePattern keeps claim codes embedded in paths out of the logs.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unmatched"
}

type createClaimRequest struct {
	Vault     string `json:"vault"`
	Amount    uint64 `json:"amount"`
	Asset     string `json:"asset"`
	ExpiresIn string `json:"expiresIn,omitempty"`
	NoExpiry  bool   `json:"noExpiry,omitempty"`
}

type claimView struct {
	ID        string     `json:"id"`
	Vault     string     `json:"vault"`
	Amount    uint64     `json:"amount"`
	Asset     string     `json:"asset"`
	Used      bool       `json:"used"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	ClaimedBy string     `json:"claimedBy,omitempty"`
	ClaimedAt *time.Time `json:"claimedAt,omitempty"`
}

func newClaimView(c *ClaimCode) *claimView {
	if c == nil {
		return nil
	}
	return &claimView{
		ID:        c.ID.String(),
		Vault:     c.VaultAddress,
		Amount:    c.Amount,
		Asset:     c.Asset,
		Used:      c.IsUsed,
		CreatedAt: c.CreatedAt,
		ExpiresAt: c.ExpiresAt,
		ClaimedBy: c.ClaimedBy,
		ClaimedAt: c.ClaimedAt,
	}
}

type createClaimResponse struct {
	Code  string     `json:"code"`
	Claim *claimView `json:"claim"`
}

func (s *Server) createClaim(w http.ResponseWriter, r *http.Request) {
	var body createClaimRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	vault, err := parseVault(body.Vault)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset := payroll.NativeAsset()
	if strings.TrimSpace(body.Asset) != "" {
		if asset, err = payroll.ParseAsset(body.Asset); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	req := IssueRequest{Vault: vault, Amount: body.Amount, Asset: asset}
	switch {
	case body.NoExpiry:
		req.Expiry = -1
	case strings.TrimSpace(body.ExpiresIn) != "":
		d, err := time.ParseDuration(strings.TrimSpace(body.ExpiresIn))
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "expiresIn must be a positive duration")
			return
		}
		req.Expiry = d
	}
	issued, err := s.service.CreateClaimCode(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createClaimResponse{Code: issued.Code, Claim: newClaimView(issued.Claim)})
}

type validationResponse struct {
	Valid  bool       `json:"valid"`
	Reason string     `json:"reason,omitempty"`
	Claim  *claimView `json:"claim,omitempty"`
}

func (s *Server) validateClaim(w http.ResponseWriter, r *http.Request) {
	result := s.service.ValidateClaimCode(r.Context(), chi.URLParam(r, "code"))
	status := http.StatusOK
	if result.Reason == ReasonUnavailable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, validationResponse{
		Valid:  result.Valid,
		Reason: string(result.Reason),
		Claim:  newClaimView(result.Claim),
	})
}

type redeemRequest struct {
	Wallet string `json:"wallet"`
}

type redeemResponse struct {
	Claim     *claimView `json:"claim"`
	BatchID   uint64     `json:"batchId"`
	Gross     uint64     `json:"gross"`
	Fee       uint64     `json:"fee"`
	Net       uint64     `json:"net"`
	Treasury  string     `json:"treasury,omitempty"`
	Recovered bool       `json:"recovered"`
}

func (s *Server) redeemClaim(w http.ResponseWriter, r *http.Request) {
	var body redeemRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wallet, err := crypto.ParseWallet(body.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, "wallet: "+err.Error())
		return
	}
	out, err := s.service.Redeem(r.Context(), chi.URLParam(r, "code"), wallet)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := redeemResponse{Claim: newClaimView(out.Claim), Recovered: out.Recovered}
	if out.Receipt != nil {
		resp.BatchID = out.Receipt.BatchID
		resp.Gross = out.Receipt.Gross
		resp.Fee = out.Receipt.Fee
		resp.Net = out.Receipt.Net
		resp.Treasury = crypto.FormatWallet(out.Receipt.Treasury)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "claim request failed",
			slog.String("path", routePattern(r)),
			slog.Any("error", err))
		writeErrorCode(w, status, code, http.StatusText(status))
		return
	}
	writeErrorCode(w, status, code, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrClaimNotFound):
		return http.StatusNotFound, string(ReasonNotFound)
	case errors.Is(err, ErrVaultNotFound):
		return http.StatusNotFound, string(ReasonVaultNotFound)
	case errors.Is(err, ErrClaimUsed):
		return http.StatusConflict, string(ReasonUsed)
	case errors.Is(err, ErrClaimExpired):
		return http.StatusGone, string(ReasonExpired)
	case errors.Is(err, ErrBatchClosed), errors.Is(err, ErrPrepareMismatch):
		return http.StatusConflict, "ClaimConflict"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidAsset):
		return http.StatusBadRequest, "InvalidRequest"
	case errors.Is(err, ErrIssuerNotOwner):
		return http.StatusForbidden, "IssuerNotOwner"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, string(ReasonUnavailable)
	}
	code := payroll.CodeOf(err)
	switch payroll.KindOf(err) {
	case payroll.KindValidation:
		return http.StatusBadRequest, code
	case payroll.KindAuthorization:
		return http.StatusForbidden, code
	case payroll.KindStateConflict:
		return http.StatusConflict, code
	case payroll.KindResource:
		if errors.Is(err, payroll.ErrAccountNotFound) {
			return http.StatusNotFound, code
		}
		return http.StatusUnprocessableEntity, code
	default:
		return http.StatusInternalServerError, code
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("write response failed", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeErrorCode(w, status, "", message)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
