package httpadapter

import (
	"context"
	"log/slog"
	"time"

	policyadapter "vaultd/contexts/custody-core/vault-ledger/adapters/policy"
	"vaultd/contexts/custody-core/vault-ledger/application"
	"vaultd/contexts/custody-core/vault-ledger/domain/entities"
	"vaultd/contexts/custody-core/vault-ledger/ports"
	httptransport "vaultd/contexts/custody-core/vault-ledger/transport/http"
)

type Handler struct {
	Service application.Service
	Logger  *slog.Logger
}

func (h Handler) DepositHandler(
	ctx context.Context,
	userID string,
	idempotencyKey string,
	req httptransport.DepositRequest,
) (httptransport.OperationResponse, error) {
	entry, replayed, err := h.Service.Deposit(ctx, idempotencyKey, ports.DepositInput{
		UserID:        userID,
		Asset:         entities.NormalizeAsset(req.Asset),
		Amount:        req.Amount,
		AttachedValue: req.AttachedValue,
	})
	if err != nil {
		return httptransport.OperationResponse{}, err
	}
	return httptransport.OperationResponse{
		Status:   "success",
		Replayed: replayed,
		Data:     toDTO(entry),
	}, nil
}

func (h Handler) WithdrawHandler(
	ctx context.Context,
	userID string,
	idempotencyKey string,
	req httptransport.WithdrawRequest,
) (httptransport.OperationResponse, error) {
	entry, replayed, err := h.Service.Withdraw(ctx, idempotencyKey, ports.WithdrawInput{
		UserID: userID,
		Asset:  entities.NormalizeAsset(req.Asset),
		Amount: req.Amount,
	})
	if err != nil {
		return httptransport.OperationResponse{}, err
	}
	return httptransport.OperationResponse{
		Status:   "success",
		Replayed: replayed,
		Data:     toDTO(entry),
	}, nil
}

func (h Handler) SetPolicyHandler(
	ctx context.Context,
	adminID string,
	req httptransport.SetPolicyRequest,
) (httptransport.StatusResponse, error) {
	next, err := policyadapter.FromSpec(req.Policy, req.Start, req.End, h.Service.Clock)
	if err != nil {
		return httptransport.StatusResponse{}, err
	}
	if err := h.Service.SetPolicy(ctx, adminID, next); err != nil {
		return httptransport.StatusResponse{}, err
	}
	return httptransport.StatusResponse{Status: "success"}, nil
}

func (h Handler) ProposeAdministratorHandler(
	ctx context.Context,
	adminID string,
	req httptransport.ProposeAdministratorRequest,
) (httptransport.StatusResponse, error) {
	if err := h.Service.ProposeAdministrator(ctx, adminID, req.Administrator); err != nil {
		return httptransport.StatusResponse{}, err
	}
	return httptransport.StatusResponse{Status: "success"}, nil
}

func (h Handler) AcceptAdministratorHandler(
	ctx context.Context,
	userID string,
) (httptransport.StatusResponse, error) {
	if err := h.Service.AcceptAdministrator(ctx, userID); err != nil {
		return httptransport.StatusResponse{}, err
	}
	return httptransport.StatusResponse{Status: "success"}, nil
}

func (h Handler) BalanceHandler(
	ctx context.Context,
	userID string,
	asset string,
) (httptransport.BalanceResponse, error) {
	normalized := entities.NormalizeAsset(asset)
	amount, err := h.Service.BalanceOf(ctx, userID, normalized)
	if err != nil {
		return httptransport.BalanceResponse{}, err
	}
	resp := httptransport.BalanceResponse{Status: "success"}
	resp.Data.UserID = userID
	resp.Data.Asset = string(normalized)
	resp.Data.Amount = amount
	return resp, nil
}

func (h Handler) BatchBalancesHandler(
	ctx context.Context,
	userID string,
	req httptransport.BatchBalancesRequest,
) (httptransport.BatchBalancesResponse, error) {
	assets := make([]entities.Asset, 0, len(req.Assets))
	for _, raw := range req.Assets {
		assets = append(assets, entities.NormalizeAsset(raw))
	}
	amounts, err := h.Service.BalancesOfAssets(ctx, userID, assets)
	if err != nil {
		return httptransport.BatchBalancesResponse{}, err
	}
	resp := httptransport.BatchBalancesResponse{
		Status: "success",
		Data:   make([]httptransport.AssetAmountDTO, 0, len(assets)),
	}
	for i, asset := range assets {
		resp.Data = append(resp.Data, httptransport.AssetAmountDTO{
			Asset:  string(asset),
			Amount: amounts[i],
		})
	}
	return resp, nil
}

func (h Handler) ListEntriesHandler(
	ctx context.Context,
	userID string,
	limit int,
	offset int,
) (httptransport.EntriesResponse, error) {
	items, err := h.Service.ListEntries(ctx, userID, limit, offset)
	if err != nil {
		return httptransport.EntriesResponse{}, err
	}
	resp := httptransport.EntriesResponse{
		Status: "success",
		Data:   make([]httptransport.LedgerEntryDTO, 0, len(items)),
	}
	for _, item := range items {
		resp.Data = append(resp.Data, toDTO(item))
	}
	return resp, nil
}

func toDTO(entry entities.LedgerEntry) httptransport.LedgerEntryDTO {
	return httptransport.LedgerEntryDTO{
		EntryID:   entry.EntryID,
		UserID:    entry.UserID,
		Asset:     string(entry.Asset),
		Amount:    entry.Amount,
		Direction: string(entry.Direction),
		At:        entry.At.UTC().Format(time.RFC3339),
	}
}
