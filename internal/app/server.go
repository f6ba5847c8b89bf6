package app

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"lsd-vault-node/internal/assets"
	"lsd-vault-node/internal/registry"
	"lsd-vault-node/internal/strategy"
	"lsd-vault-node/internal/swap"
	"lsd-vault-node/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Handler exposes the node API. Callers identify themselves by address in
// the request body; transport authentication sits in front of the node.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/deposit", a.handleDeposit)
	mux.HandleFunc("POST /v1/withdraw", a.handleWithdraw)
	mux.HandleFunc("POST /v1/swap", a.handleSwap)
	mux.HandleFunc("POST /v1/migrate", a.handleMigrate)
	mux.HandleFunc("POST /v1/backstop/deposit", a.handleBackstopDeposit)
	mux.HandleFunc("POST /v1/backstop/swap", a.handleBackstopSwap)
	mux.HandleFunc("POST /v1/backstop/withdraw", a.handleBackstopWithdraw)
	mux.HandleFunc("GET /v1/total-assets", a.handleTotalAssets)
	mux.HandleFunc("GET /v1/reserves", a.handleReserves)
	mux.HandleFunc("GET /v1/position/{holder}", a.handlePosition)
	mux.Handle("GET /metrics", a.prometheus.Handler())
	return mux
}

type depositRequest struct {
	ClientOpID        string `json:"client_op_id"`
	Holder            string `json:"holder"`
	Asset             string `json:"asset"`
	Amount            string `json:"amount"`
	SellForSettlement bool   `json:"sell_for_settlement"`
}

func (a *App) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	holder, ok := a.parseAddress(w, "holder", req.Holder)
	if !ok {
		return
	}
	asset, ok := a.parseAddress(w, "asset", req.Asset)
	if !ok {
		return
	}
	amount, ok := a.parsePositiveAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	result, err := a.Deposit(r.Context(), req.ClientOpID, holder, asset, amount, req.SellForSettlement)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

type withdrawRequest struct {
	ClientOpID string `json:"client_op_id"`
	Holder     string `json:"holder"`
	Shares     string `json:"shares"`
	Recipient  string `json:"recipient"`
}

func (a *App) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	holder, ok := a.parseAddress(w, "holder", req.Holder)
	if !ok {
		return
	}
	recipient := holder
	if req.Recipient != "" {
		if recipient, ok = a.parseAddress(w, "recipient", req.Recipient); !ok {
			return
		}
	}
	shares, ok := a.parsePositiveAmount(w, "shares", req.Shares)
	if !ok {
		return
	}
	result, err := a.Withdraw(r.Context(), req.ClientOpID, holder, shares, recipient)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

type swapRequest struct {
	ClientOpID string `json:"client_op_id"`
	Caller     string `json:"caller"`
	Swapper    string `json:"swapper"`
	TokenIn    string `json:"token_in"`
	AmountIn   string `json:"amount_in"`
	TokenOut   string `json:"token_out"`
	MinOut     string `json:"min_out"`
}

func (a *App) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	caller, ok := a.parseAddress(w, "caller", req.Caller)
	if !ok {
		return
	}
	tokenIn, ok := a.parseAddress(w, "token_in", req.TokenIn)
	if !ok {
		return
	}
	tokenOut, ok := a.parseAddress(w, "token_out", req.TokenOut)
	if !ok {
		return
	}
	amountIn, ok := a.parsePositiveAmount(w, "amount_in", req.AmountIn)
	if !ok {
		return
	}
	minOut := big.NewInt(0)
	if req.MinOut != "" {
		if minOut, ok = a.parsePositiveAmount(w, "min_out", req.MinOut); !ok {
			return
		}
	}
	result, err := a.InvokeSwap(r.Context(), req.ClientOpID, caller, req.Swapper, tokenIn, amountIn, tokenOut, minOut)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

type migrateRequest struct {
	ClientOpID  string `json:"client_op_id"`
	Caller      string `json:"caller"`
	NextAddress string `json:"next_address"`
}

func (a *App) handleMigrate(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	caller, ok := a.parseAddress(w, "caller", req.Caller)
	if !ok {
		return
	}
	next, ok := a.parseAddress(w, "next_address", req.NextAddress)
	if !ok {
		return
	}
	if err := a.SwitchStrategy(r.Context(), req.ClientOpID, caller, next); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "migrated"})
}

type backstopRequest struct {
	ClientOpID string `json:"client_op_id"`
	Holder     string `json:"holder"`
	Recipient  string `json:"recipient"`
	Amount     string `json:"amount"`
}

func (a *App) handleBackstopDeposit(w http.ResponseWriter, r *http.Request) {
	var req backstopRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	holder, ok := a.parseAddress(w, "holder", req.Holder)
	if !ok {
		return
	}
	amount, ok := a.parsePositiveAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	if err := a.BackstopDeposit(r.Context(), req.ClientOpID, holder, amount); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (a *App) handleBackstopSwap(w http.ResponseWriter, r *http.Request) {
	var req backstopRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	recipient, ok := a.parseAddress(w, "recipient", req.Recipient)
	if !ok {
		return
	}
	amount, ok := a.parsePositiveAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	if err := a.BackstopSwap(r.Context(), req.ClientOpID, recipient, amount); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "swapped"})
}

func (a *App) handleBackstopWithdraw(w http.ResponseWriter, r *http.Request) {
	var req backstopRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	holder, ok := a.parseAddress(w, "holder", req.Holder)
	if !ok {
		return
	}
	recipient := holder
	if req.Recipient != "" {
		if recipient, ok = a.parseAddress(w, "recipient", req.Recipient); !ok {
			return
		}
	}
	amount, ok := a.parsePositiveAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	if err := a.BackstopWithdraw(r.Context(), req.ClientOpID, holder, amount, recipient); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

func (a *App) handleTotalAssets(w http.ResponseWriter, r *http.Request) {
	raw, err := a.submitter.Submit(r.Context(), "", func(ctx context.Context) ([]byte, error) {
		total, err := a.strategy.TotalAssets()
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{
			"total_assets": total.String(),
			"share_supply": a.vault.TotalSupply().String(),
		})
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeRaw(w, http.StatusOK, raw)
}

type reserveEntry struct {
	Asset   string `json:"asset"`
	Reserve string `json:"reserve"`
}

func (a *App) handleReserves(w http.ResponseWriter, r *http.Request) {
	raw, err := a.submitter.Submit(r.Context(), "", func(ctx context.Context) ([]byte, error) {
		var entries []reserveEntry
		for _, asset := range a.strategy.HoldingAssets() {
			entries = append(entries, reserveEntry{
				Asset:   asset.Hex(),
				Reserve: a.strategy.Reserves(asset).String(),
			})
		}
		return json.Marshal(map[string]any{"reserves": entries})
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeRaw(w, http.StatusOK, raw)
}

func (a *App) handlePosition(w http.ResponseWriter, r *http.Request) {
	holder, ok := a.parseAddress(w, "holder", r.PathValue("holder"))
	if !ok {
		return
	}
	raw, err := a.submitter.Submit(r.Context(), "", func(ctx context.Context) ([]byte, error) {
		lock := a.vault.LockedUntil(holder)
		lockedUntil := int64(0)
		if !lock.IsZero() {
			lockedUntil = lock.Unix()
		}
		return json.Marshal(map[string]any{
			"holder":       holder.Hex(),
			"shares":       a.vault.BalanceOf(holder).String(),
			"locked_until": lockedUntil,
		})
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeRaw(w, http.StatusOK, raw)
}

func (a *App) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (a *App) parseAddress(w http.ResponseWriter, field, raw string) (common.Address, bool) {
	addr, err := assets.Parse(raw)
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + field})
		return common.Address{}, false
	}
	return addr, true
}

func (a *App) parsePositiveAmount(w http.ResponseWriter, field, raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + field})
		return nil, false
	}
	return amount, true
}

func (a *App) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Warn("response encode failed", zap.Error(err))
	}
}

func (a *App) writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		a.log.Warn("response write failed", zap.Error(err))
	}
}

func (a *App) writeError(w http.ResponseWriter, err error) {
	a.writeJSON(w, errorStatus(err), map[string]string{"error": err.Error()})
}

// errorStatus maps the engine error taxonomy onto HTTP codes. Every failure
// reaches the caller synchronously as the outcome of their request.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, strategy.ErrUnauthorized) || errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrComeBackLater):
		return http.StatusLocked
	case errors.Is(err, strategy.ErrZeroAddress) || errors.Is(err, vault.ErrZeroAddress),
		errors.Is(err, strategy.ErrTooSmall) || errors.Is(err, vault.ErrTooSmall),
		errors.Is(err, strategy.ErrExceedsDepositCeiling),
		errors.Is(err, strategy.ErrInvalidAmount) || errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, strategy.ErrInvalidShares) || errors.Is(err, vault.ErrInvalidShares),
		errors.Is(err, strategy.ErrInvalidSwapper),
		errors.Is(err, strategy.ErrNotSupportedSwapper),
		errors.Is(err, strategy.ErrSetDefaultSwapperBefore),
		errors.Is(err, swap.ErrOutputBelowMinimum):
		return http.StatusBadRequest
	case errors.Is(err, strategy.ErrUnknownAsset) || errors.Is(err, vault.ErrUnknownHolder):
		return http.StatusNotFound
	case errors.Is(err, strategy.ErrFailedToSendNative),
		errors.Is(err, vault.ErrInsufficientAsset),
		errors.Is(err, registry.ErrNotEligible):
		return http.StatusConflict
	case errors.Is(err, strategy.ErrReentrantCall) || errors.Is(err, vault.ErrReentrantCall):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
