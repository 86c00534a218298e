package claimd

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"payvault/crypto"
	"payvault/native/payroll"
)

// VaultAdmin is the part of the engine behind the operator vault routes.
// Every call is made as the issuer.
type VaultAdmin interface {
	CreateVault(owner [20]byte, params payroll.CreateVaultParams) (*payroll.Vault, error)
	Vault(addr [32]byte) (*payroll.Vault, error)
	DepositSol(depositor [20]byte, vault [32]byte, amount uint64) error
	DepositSplToken(depositor [20]byte, vault [32]byte, mint [20]byte, amount uint64) error
}

type createVaultRequest struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Assets      []string `json:"assets"`
	MetadataURI *string  `json:"metadataUri,omitempty"`
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
	Asset  string `json:"asset"`
}

type vaultView struct {
	Address      string   `json:"address"`
	ID           uint64   `json:"id"`
	Owner        string   `json:"owner"`
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Assets       []string `json:"assets"`
	TotalBalance uint64   `json:"totalBalance"`
	LastDeposit  int64    `json:"lastDepositTimestamp"`
}

func newVaultView(v *payroll.Vault) vaultView {
	assets := make([]string, 0, len(v.WhitelistedAssets))
	for _, asset := range v.WhitelistedAssets {
		assets = append(assets, asset.String())
	}
	return vaultView{
		Address:      vaultHex(v.Address),
		ID:           v.ID,
		Owner:        crypto.FormatWallet(v.Owner),
		Name:         v.Name,
		Kind:         v.Kind.String(),
		Assets:       assets,
		TotalBalance: v.TotalBalance,
		LastDeposit:  v.LastDepositTimestamp,
	}
}

func parseVaultKind(raw string) (payroll.VaultKind, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return payroll.VaultCompany, true
	}
	for _, kind := range []payroll.VaultKind{payroll.VaultIndividual, payroll.VaultCompany, payroll.VaultOrganization, payroll.VaultDivision} {
		if kind.String() == raw {
			return kind, true
		}
	}
	return 0, false
}

func (s *Server) createVault(w http.ResponseWriter, r *http.Request) {
	var body createVaultRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, ok := parseVaultKind(body.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown vault kind")
		return
	}
	params := payroll.CreateVaultParams{
		Name:           body.Name,
		Kind:           kind,
		AllocationMode: payroll.AllocationPerBps,
		MetadataURI:    body.MetadataURI,
	}
	if len(body.Assets) == 0 {
		params.WhitelistedAssets = []payroll.AssetType{payroll.NativeAsset()}
	}
	for _, raw := range body.Assets {
		asset, err := payroll.ParseAsset(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		params.WhitelistedAssets = append(params.WhitelistedAssets, asset)
	}
	vault, err := s.vaults.CreateVault(s.service.Issuer(), params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newVaultView(vault))
}

func (s *Server) getVault(w http.ResponseWriter, r *http.Request) {
	addr, err := parseVault(chi.URLParam(r, "vault"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	vault, err := s.vaults.Vault(addr)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newVaultView(vault))
}

// deposit moves funds from the issuer's own balance into vault custody.
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	addr, err := parseVault(chi.URLParam(r, "vault"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body depositRequest
	if err := decodeBody(w, r, &body); err != nil {
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
	if asset.Kind == payroll.AssetNative {
		err = s.vaults.DepositSol(s.service.Issuer(), addr, body.Amount)
	} else {
		err = s.vaults.DepositSplToken(s.service.Issuer(), addr, asset.Mint, body.Amount)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	vault, err := s.vaults.Vault(addr)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newVaultView(vault))
}
