package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"lsd-vault-node/internal/alerts"
	"lsd-vault-node/internal/history"
	"lsd-vault-node/internal/strategy"
	"lsd-vault-node/internal/vault"

	"github.com/ethereum/go-ethereum/common"
)

// Operation results are JSON so the submitter's dedupe record and the API
// response are the same bytes.

type DepositResult struct {
	Minted string `json:"minted"`
}

type WithdrawResult struct {
	SettlementOut string `json:"settlement_out"`
	NativeOut     string `json:"native_out"`
}

type SwapResult struct {
	AmountOut string `json:"amount_out"`
}

// Deposit runs a holder deposit through the submitter.
func (a *App) Deposit(ctx context.Context, clientOpID string, holder, asset common.Address, amount *big.Int, sellForSettlement bool) (DepositResult, error) {
	raw, err := a.submitter.Submit(ctx, clientOpID, func(ctx context.Context) ([]byte, error) {
		minted, err := a.vault.Deposit(ctx, holder, asset, amount, sellForSettlement)
		if err != nil {
			a.metrics.DepositsRejected.Inc()
			a.recordEvent(history.Event{
				Kind: "deposit", Holder: holder.Hex(), Asset: asset.Hex(),
				Amount: amountString(amount), Outcome: "rejected", Detail: err.Error(), ClientOID: clientOpID,
			})
			return nil, err
		}
		a.metrics.DepositsAccepted.Inc()
		a.recordEvent(history.Event{
			Kind: "deposit", Holder: holder.Hex(), Asset: asset.Hex(),
			Amount: amountString(amount), Shares: minted.String(), Outcome: "ok", ClientOID: clientOpID,
		})
		return json.Marshal(DepositResult{Minted: minted.String()})
	})
	if err != nil {
		return DepositResult{}, err
	}
	return decode[DepositResult](raw)
}

// Withdraw runs a holder withdrawal through the submitter.
func (a *App) Withdraw(ctx context.Context, clientOpID string, holder common.Address, shares *big.Int, recipient common.Address) (WithdrawResult, error) {
	raw, err := a.submitter.Submit(ctx, clientOpID, func(ctx context.Context) ([]byte, error) {
		settlementOut, nativeOut, err := a.vault.Withdraw(ctx, holder, shares, recipient)
		if err != nil {
			a.metrics.WithdrawalsRejected.Inc()
			if errors.Is(err, strategy.ErrFailedToSendNative) {
				a.metrics.NativeSendFailures.Inc()
				alerts.NotifyNativeSendFailure(ctx, a.alerts, a.log, recipient.Hex(), amountString(shares))
			}
			a.recordEvent(history.Event{
				Kind: "withdraw", Holder: holder.Hex(),
				Shares: amountString(shares), Outcome: "rejected", Detail: err.Error(), ClientOID: clientOpID,
			})
			return nil, err
		}
		a.metrics.WithdrawalsCompleted.Inc()
		a.recordEvent(history.Event{
			Kind: "withdraw", Holder: holder.Hex(),
			Amount: settlementOut.String(), Shares: amountString(shares), Outcome: "ok", ClientOID: clientOpID,
			Detail: fmt.Sprintf("native_out=%s", nativeOut),
		})
		return json.Marshal(WithdrawResult{
			SettlementOut: settlementOut.String(),
			NativeOut:     nativeOut.String(),
		})
	})
	if err != nil {
		return WithdrawResult{}, err
	}
	return decode[WithdrawResult](raw)
}

// InvokeSwap runs a manager-directed swap through the submitter.
func (a *App) InvokeSwap(ctx context.Context, clientOpID string, caller common.Address, swapperID string, tokenIn common.Address, amountIn *big.Int, tokenOut common.Address, minOut *big.Int) (SwapResult, error) {
	raw, err := a.submitter.Submit(ctx, clientOpID, func(ctx context.Context) ([]byte, error) {
		out, err := a.strategy.InvokeSwap(ctx, caller, swapperID, tokenIn, amountIn, tokenOut, minOut)
		if err != nil {
			a.metrics.SwapsFailed.Inc()
			a.recordEvent(history.Event{
				Kind: "swap", Holder: caller.Hex(), Asset: tokenIn.Hex(),
				Amount: amountString(amountIn), Outcome: "rejected", Detail: err.Error(), ClientOID: clientOpID,
			})
			return nil, err
		}
		a.metrics.SwapsExecuted.Inc()
		a.recordEvent(history.Event{
			Kind: "swap", Holder: caller.Hex(), Asset: tokenIn.Hex(),
			Amount: amountString(amountIn), Outcome: "ok", ClientOID: clientOpID,
			Detail: fmt.Sprintf("out=%s %s", out, tokenOut.Hex()),
		})
		return json.Marshal(SwapResult{AmountOut: out.String()})
	})
	if err != nil {
		return SwapResult{}, err
	}
	return decode[SwapResult](raw)
}

// SwitchStrategy builds a successor engine at the given address with the
// current configuration and migrates every reserve into it.
func (a *App) SwitchStrategy(ctx context.Context, clientOpID string, caller, nextAddr common.Address) error {
	_, err := a.submitter.Submit(ctx, clientOpID, func(ctx context.Context) ([]byte, error) {
		cfg := *a.cfg
		cfg.Strategy.Address = nextAddr.Hex()
		next, err := buildStrategy(&cfg, a.oracle, a.registry, a.bank, a.log, a.settlement, a.receipt)
		if err != nil {
			return nil, err
		}
		prev := a.strategy.Address()
		if err := a.vault.SwitchStrategy(ctx, caller, next); err != nil {
			a.recordEvent(history.Event{
				Kind: "migrate", Holder: caller.Hex(), Outcome: "rejected", Detail: err.Error(), ClientOID: clientOpID,
			})
			return nil, err
		}
		// Receipt ownership moved inside MigrateFunds, so the successor is
		// complete the moment the vault call returns.
		a.strategy = next
		a.metrics.MigrationsCompleted.Inc()
		a.recordEvent(history.Event{
			Kind: "migrate", Holder: caller.Hex(), Outcome: "ok", ClientOID: clientOpID,
			Detail: fmt.Sprintf("%s -> %s", prev.Hex(), next.Address().Hex()),
		})
		alerts.NotifyMigration(ctx, a.alerts, a.log, prev.Hex(), next.Address().Hex())
		return []byte(`{}`), nil
	})
	return err
}

// BackstopDeposit credits the sibling vault.
func (a *App) BackstopDeposit(ctx context.Context, clientOpID string, holder common.Address, amount *big.Int) error {
	backstop, err := a.requireBackstop()
	if err != nil {
		return err
	}
	_, err = a.submitter.Submit(ctx, clientOpID, func(ctx context.Context) ([]byte, error) {
		if err := backstop.Deposit(ctx, holder, amount); err != nil {
			return nil, err
		}
		a.recordEvent(history.Event{
			Kind: "backstop_deposit", Holder: holder.Hex(), Asset: backstop.Asset().Hex(),
			Amount: amountString(amount), Outcome: "ok", ClientOID: clientOpID,
		})
		return []byte(`{}`), nil
	})
	return err
}

// BackstopSwap trades native coin for the sibling vault's asset at par.
func (a *App) BackstopSwap(ctx context.Context, clientOpID string, recipient common.Address, amount *big.Int) error {
	backstop, err := a.requireBackstop()
	if err != nil {
		return err
	}
	_, err = a.submitter.Submit(ctx, clientOpID, func(ctx context.Context) ([]byte, error) {
		if err := backstop.SwapNativeForAsset(ctx, amount, recipient); err != nil {
			a.metrics.SwapsFailed.Inc()
			return nil, err
		}
		a.metrics.SwapsExecuted.Inc()
		a.recordEvent(history.Event{
			Kind: "backstop_swap", Holder: recipient.Hex(), Asset: backstop.Asset().Hex(),
			Amount: amountString(amount), Outcome: "ok", ClientOID: clientOpID,
		})
		return []byte(`{}`), nil
	})
	return err
}

// BackstopWithdraw pays out a sibling-vault claim after its lock expires.
func (a *App) BackstopWithdraw(ctx context.Context, clientOpID string, holder common.Address, amount *big.Int, recipient common.Address) error {
	backstop, err := a.requireBackstop()
	if err != nil {
		return err
	}
	_, err = a.submitter.Submit(ctx, clientOpID, func(ctx context.Context) ([]byte, error) {
		if err := backstop.Withdraw(ctx, holder, amount, recipient); err != nil {
			return nil, err
		}
		a.recordEvent(history.Event{
			Kind: "backstop_withdraw", Holder: holder.Hex(), Asset: backstop.Asset().Hex(),
			Amount: amountString(amount), Outcome: "ok", ClientOID: clientOpID,
		})
		return []byte(`{}`), nil
	})
	return err
}

func (a *App) requireBackstop() (*vault.Backstop, error) {
	if a.backstop == nil {
		return nil, errors.New("backstop vault not configured")
	}
	return a.backstop, nil
}

func (a *App) recordEvent(event history.Event) {
	a.history.EnqueueEvent(event)
}

func decode[T any](raw []byte) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func amountString(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
