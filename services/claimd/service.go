package claimd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payvault/crypto"
	"payvault/native/payroll"
	"payvault/observability"
	"payvault/observability/logging"
)

// claimRole tags the ephemeral members manufactured for claim payouts.
const claimRole = "claim"

// claimMarker is the metadata URI stamped on the ephemeral member of one
// claim. Members without it are never removed by the claim flow.
func claimMarker(id uuid.UUID) string {
	return "payvault:claim:" + id.String()
}

func isClaimMember(m *payroll.Member, id uuid.UUID) bool {
	return m.Role == claimRole && m.AllocationBps == nil &&
		m.MetadataURI != nil && *m.MetadataURI == claimMarker(id)
}

var ErrBatchClosed = errors.New("claimd: claim batch finalized without a payout")

// Ledger is the subset of the payroll engine the claim flow drives.
type Ledger interface {
	Vault(addr [32]byte) (*payroll.Vault, error)
	Member(vault [32]byte, wallet [20]byte) (*payroll.Member, error)
	AddMember(caller [20]byte, vault [32]byte, params payroll.MemberParams) (*payroll.Member, error)
	RemoveMember(caller [20]byte, vault [32]byte, wallet [20]byte) error
	PayrollBatch(vault [32]byte, batchID uint64) (*payroll.PayrollBatch, error)
	CreatePayrollBatch(caller [20]byte, vault [32]byte, batchID, totalAmount uint64) (*payroll.PayrollBatch, error)
	FinalizePayrollBatch(caller [20]byte, vault [32]byte, batchID uint64) error
	ProcessSolPayout(caller [20]byte, vault [32]byte, batchID uint64, wallet [20]byte, amount uint64) (*payroll.PayoutReceipt, error)
	ProcessSplPayout(caller [20]byte, vault [32]byte, batchID uint64, wallet, mint [20]byte, amount uint64) (*payroll.PayoutReceipt, error)
}

// IssueRequest describes a claim code to mint.
type IssueRequest struct {
	Vault  [32]byte
	Amount uint64
	Asset  payroll.AssetType
	// Expiry overrides the default lifetime. Zero applies the default and a
	// negative value issues a code that never expires.
	Expiry time.Duration
}

// IssuedClaim carries the plaintext code. It is only ever returned once.
type IssuedClaim struct {
	Code  string
	Claim *ClaimCode
}

// Validation is the outcome of ValidateClaimCode.
type Validation struct {
	Valid  bool
	Reason ValidationReason
	Claim  *ClaimCode
}

// Preparation references the member and batch staged for a claim.
type Preparation struct {
	ClaimID       uuid.UUID
	Vault         [32]byte
	Wallet        [20]byte
	BatchID       uint64
	CreatedMember bool
}

// Redemption reports a settled claim. Recovered is set when the payout had
// already been applied by an earlier attempt and only the registry was
// brought up to date.
type Redemption struct {
	Claim     *ClaimCode
	Receipt   *payroll.PayoutReceipt
	Recovered bool
}

// Service issues and redeems claim codes against a payroll ledger.
type Service struct {
	store         *Store
	ledger        Ledger
	issuer        [20]byte
	logger        *slog.Logger
	metrics       *observability.ClaimdMetrics
	tracer        trace.Tracer
	now           func() time.Time
	defaultExpiry time.Duration
}

// Option customises the service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics overrides the metrics registry. A nil registry disables metrics.
func WithMetrics(m *observability.ClaimdMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithDefaultExpiry sets the lifetime applied when a request carries none.
func WithDefaultExpiry(d time.Duration) Option {
	return func(s *Service) { s.defaultExpiry = d }
}

// NewService constructs a claim service acting as issuer. The issuer must own
// every vault it issues codes for.
func NewService(store *Store, ledger Ledger, issuer [20]byte, opts ...Option) *Service {
	s := &Service{
		store:   store,
		ledger:  ledger,
		issuer:  issuer,
		logger:  slog.Default(),
		metrics: observability.Claimd(),
		tracer:  otel.Tracer("claimd"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issuer returns the identity the service signs ledger calls with.
func (s *Service) Issuer() [20]byte { return s.issuer }

// CreateClaimCode stores a fresh unused code bound to the vault, amount and
// asset.
func (s *Service) CreateClaimCode(ctx context.Context, req IssueRequest) (*IssuedClaim, error) {
	if req.Amount == 0 || req.Amount > math.MaxInt64 {
		return nil, ErrInvalidAmount
	}
	if !req.Asset.Valid() {
		return nil, ErrInvalidAsset
	}
	vault, err := s.ledger.Vault(req.Vault)
	if err != nil {
		if errors.Is(err, payroll.ErrAccountNotFound) {
			return nil, ErrVaultNotFound
		}
		return nil, err
	}
	if vault.Owner != s.issuer {
		return nil, ErrIssuerNotOwner
	}
	if !vault.IsWhitelisted(req.Asset) {
		return nil, payroll.ErrAssetNotWhitelisted
	}
	now := s.now().UTC()
	code := newCode()
	claim := &ClaimCode{
		CodeHash:     codeHash(code),
		VaultAddress: vaultHex(req.Vault),
		Amount:       req.Amount,
		Asset:        req.Asset.String(),
		CreatedAt:    now,
	}
	expiry := req.Expiry
	if expiry == 0 {
		expiry = s.defaultExpiry
	}
	if expiry > 0 {
		expiresAt := now.Add(expiry)
		claim.ExpiresAt = &expiresAt
	}
	if err := s.store.Create(ctx, claim); err != nil {
		return nil, err
	}
	s.metrics.RecordIssued()
	s.logger.InfoContext(ctx, "claim code issued",
		slog.String("vault", claim.VaultAddress),
		slog.Uint64("amount", claim.Amount),
		slog.String("asset", claim.Asset),
		slog.String("code", logging.MaskToken(code)))
	return &IssuedClaim{Code: code, Claim: claim}, nil
}

// ValidateClaimCode reports whether code can currently be redeemed. Failures,
// including registry outages, are reported through the result.
func (s *Service) ValidateClaimCode(ctx context.Context, code string) Validation {
	claim, reason := s.check(ctx, code)
	result := "valid"
	if reason != ReasonNone {
		result = string(reason)
	}
	s.metrics.RecordValidation(result)
	return Validation{Valid: reason == ReasonNone, Reason: reason, Claim: claim}
}

func (s *Service) check(ctx context.Context, code string) (*ClaimCode, ValidationReason) {
	if normaliseCode(code) == "" {
		return nil, ReasonNotFound
	}
	claim, err := s.store.FindByHash(ctx, codeHash(code))
	if errors.Is(err, ErrClaimNotFound) {
		return nil, ReasonNotFound
	}
	if err != nil {
		s.logger.WarnContext(ctx, "claim lookup failed", slog.Any("error", err))
		return nil, ReasonUnavailable
	}
	if claim.IsUsed {
		return claim, ReasonUsed
	}
	if claim.Expired(s.now()) {
		return claim, ReasonExpired
	}
	vault, err := parseVault(claim.VaultAddress)
	if err != nil {
		return claim, ReasonVaultNotFound
	}
	if _, err := s.ledger.Vault(vault); err != nil {
		if errors.Is(err, payroll.ErrAccountNotFound) {
			return claim, ReasonVaultNotFound
		}
		return claim, ReasonUnavailable
	}
	return claim, ReasonNone
}

// PrepareClaim stages the ephemeral member and single-use batch that carry
// the payout to claimer. Preparing the same code twice reuses both.
func (s *Service) PrepareClaim(ctx context.Context, code string, claimer [20]byte) (prep *Preparation, err error) {
	ctx, span := s.tracer.Start(ctx, "claimd.prepare")
	defer func() { endSpan(span, err) }()

	claim, reason := s.check(ctx, code)
	if reason != ReasonNone {
		return nil, reason.Err()
	}
	span.SetAttributes(attribute.String("claim.id", claim.ID.String()))
	vault, err := parseVault(claim.VaultAddress)
	if err != nil {
		return nil, err
	}
	asset, err := payroll.ParseAsset(claim.Asset)
	if err != nil {
		return nil, err
	}
	prep = &Preparation{ClaimID: claim.ID, Vault: vault, Wallet: claimer, BatchID: batchIDFor(claim.CodeHash)}

	batch, err := s.ledger.PayrollBatch(vault, prep.BatchID)
	switch {
	case err == nil:
		if batch.TotalAmount != claim.Amount {
			return nil, ErrPrepareMismatch
		}
		if batch.PayoutCount > 0 && batch.Finalized {
			// Paid by an attempt whose registry update never landed.
			if err := s.store.Consume(ctx, claim.ID, crypto.FormatWallet(batch.LastPayee), s.now().UTC(), nil); err != nil && !errors.Is(err, ErrClaimUsed) {
				return nil, err
			}
			s.logger.WarnContext(ctx, "claim already settled on ledger; registry repaired",
				slog.String("vault", claim.VaultAddress))
			return nil, ErrClaimUsed
		}
		if batch.Finalized {
			return nil, ErrBatchClosed
		}
	case errors.Is(err, payroll.ErrAccountNotFound):
		batch = nil
	default:
		return nil, err
	}

	created, err := s.ensureMember(vault, claimer, claim, asset)
	if err != nil {
		return nil, err
	}
	prep.CreatedMember = created
	if batch == nil {
		_, err := s.ledger.CreatePayrollBatch(s.issuer, vault, prep.BatchID, claim.Amount)
		// A concurrent prepare of the same code may have created it first.
		if err != nil && !errors.Is(err, payroll.ErrBatchAlreadyExists) {
			if created {
				s.removeMember(ctx, vault, claimer)
			}
			return nil, err
		}
	}
	return prep, nil
}

// ensureMember returns true when the member is ephemeral and must be removed
// after settlement.
func (s *Service) ensureMember(vault [32]byte, wallet [20]byte, claim *ClaimCode, asset payroll.AssetType) (bool, error) {
	existing, err := s.ledger.Member(vault, wallet)
	if err == nil {
		return isClaimMember(existing, claim.ID), nil
	}
	if !errors.Is(err, payroll.ErrAccountNotFound) {
		return false, err
	}
	marker := claimMarker(claim.ID)
	params := payroll.MemberParams{Wallet: wallet, Role: claimRole, MetadataURI: &marker}
	fixed := claim.Amount
	if asset.Kind == payroll.AssetNative {
		params.SolPaymentAllocation = &fixed
	} else {
		params.SplTokenAllocation = &fixed
	}
	if _, err := s.ledger.AddMember(s.issuer, vault, params); err != nil {
		return false, err
	}
	return true, nil
}

// ExecuteClaim settles a prepared claim: the payout and the registry update
// commit together or not at all, then the ephemeral member is removed.
func (s *Service) ExecuteClaim(ctx context.Context, code string, prep *Preparation) (out *Redemption, err error) {
	ctx, span := s.tracer.Start(ctx, "claimd.execute")
	defer func() { endSpan(span, err) }()

	if prep == nil {
		return nil, ErrPrepareMismatch
	}
	claim, reason := s.check(ctx, code)
	if reason != ReasonNone {
		return nil, reason.Err()
	}
	if claim.ID != prep.ClaimID || claim.VaultAddress != vaultHex(prep.Vault) {
		return nil, ErrPrepareMismatch
	}
	span.SetAttributes(
		attribute.String("claim.id", claim.ID.String()),
		attribute.Int64("batch.id", int64(prep.BatchID)),
	)
	asset, err := payroll.ParseAsset(claim.Asset)
	if err != nil {
		return nil, err
	}
	out = &Redemption{Claim: claim}
	claimedBy := crypto.FormatWallet(prep.Wallet)
	claimedAt := s.now().UTC()
	err = s.store.Consume(ctx, claim.ID, claimedBy, claimedAt, func() (string, error) {
		batch, err := s.ledger.PayrollBatch(prep.Vault, prep.BatchID)
		if err != nil {
			return "", err
		}
		if batch.PayoutCount == 0 {
			receipt, err := s.payout(prep, asset, claim.Amount)
			if err != nil {
				return "", err
			}
			out.Receipt = receipt
		} else {
			// The earlier attempt may have paid another wallet.
			out.Recovered = true
			claimedBy = crypto.FormatWallet(batch.LastPayee)
		}
		if !batch.Finalized {
			if err := s.ledger.FinalizePayrollBatch(s.issuer, prep.Vault, prep.BatchID); err != nil {
				return "", err
			}
		}
		return claimedBy, nil
	})
	if err != nil {
		return nil, err
	}
	claim.IsUsed = true
	claim.ClaimedBy = claimedBy
	claim.ClaimedAt = &claimedAt
	if prep.CreatedMember {
		s.removeMember(ctx, prep.Vault, prep.Wallet)
	}
	s.logger.InfoContext(ctx, "claim redeemed",
		slog.String("vault", claim.VaultAddress),
		slog.Uint64("amount", claim.Amount),
		slog.String("asset", claim.Asset),
		slog.Bool("recovered", out.Recovered))
	return out, nil
}

func (s *Service) payout(prep *Preparation, asset payroll.AssetType, amount uint64) (*payroll.PayoutReceipt, error) {
	if asset.Kind == payroll.AssetNative {
		return s.ledger.ProcessSolPayout(s.issuer, prep.Vault, prep.BatchID, prep.Wallet, amount)
	}
	return s.ledger.ProcessSplPayout(s.issuer, prep.Vault, prep.BatchID, prep.Wallet, asset.Mint, amount)
}

// Redeem runs prepare and execute for claimer. Any failure leaves the code
// unused and removes a member the attempt created.
func (s *Service) Redeem(ctx context.Context, code string, claimer [20]byte) (*Redemption, error) {
	start := s.now()
	prep, err := s.PrepareClaim(ctx, code, claimer)
	if err != nil {
		s.metrics.ObserveRedemption(outcomeFor(err), s.now().Sub(start))
		return nil, err
	}
	out, err := s.ExecuteClaim(ctx, code, prep)
	if err != nil {
		if prep.CreatedMember {
			s.removeMember(ctx, prep.Vault, prep.Wallet)
		}
		s.metrics.ObserveRedemption(outcomeFor(err), s.now().Sub(start))
		return nil, err
	}
	outcome := "redeemed"
	if out.Recovered {
		outcome = "recovered"
	}
	s.metrics.ObserveRedemption(outcome, s.now().Sub(start))
	return out, nil
}

func (s *Service) removeMember(ctx context.Context, vault [32]byte, wallet [20]byte) {
	err := s.ledger.RemoveMember(s.issuer, vault, wallet)
	if err != nil && !errors.Is(err, payroll.ErrAccountNotFound) {
		s.logger.WarnContext(ctx, "remove claim member failed",
			slog.String("vault", vaultHex(vault)),
			slog.Any("error", err))
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrClaimNotFound):
		return "not_found"
	case errors.Is(err, ErrClaimUsed):
		return "used"
	case errors.Is(err, ErrClaimExpired):
		return "expired"
	case errors.Is(err, ErrVaultNotFound):
		return "vault_not_found"
	}
	if payroll.KindOf(err) != payroll.KindInternal {
		return strings.ToLower(payroll.CodeOf(err))
	}
	return "error"
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func parseVault(raw string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil || len(decoded) != len(out) {
		return out, fmt.Errorf("claimd: invalid vault address %q", raw)
	}
	copy(out[:], decoded)
	return out, nil
}

// vaultHex renders a vault address the way claim records store it.
func vaultHex(addr [32]byte) string {
	return hex.EncodeToString(addr[:])
}
