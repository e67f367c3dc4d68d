package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type DepositRequest struct {
	Asset         string `json:"asset"`
	Amount        uint64 `json:"amount"`
	AttachedValue uint64 `json:"attached_value,omitempty"`
}

type WithdrawRequest struct {
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

type LedgerEntryDTO struct {
	EntryID   string `json:"entry_id"`
	UserID    string `json:"user_id"`
	Asset     string `json:"asset"`
	Amount    uint64 `json:"amount"`
	Direction string `json:"direction"`
	At        string `json:"at"`
}

type OperationResponse struct {
	Status   string         `json:"status"`
	Replayed bool           `json:"replayed,omitempty"`
	Data     LedgerEntryDTO `json:"data"`
}

type SetPolicyRequest struct {
	Policy string `json:"policy"`
	Start  uint64 `json:"start,omitempty"`
	End    uint64 `json:"end,omitempty"`
}

type ProposeAdministratorRequest struct {
	Administrator string `json:"administrator"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type BalanceResponse struct {
	Status string `json:"status"`
	Data   struct {
		UserID string `json:"user_id"`
		Asset  string `json:"asset"`
		Amount uint64 `json:"amount"`
	} `json:"data"`
}

type BatchBalancesRequest struct {
	Assets []string `json:"assets"`
}

type AssetAmountDTO struct {
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

type BatchBalancesResponse struct {
	Status string           `json:"status"`
	Data   []AssetAmountDTO `json:"data"`
}

type EntriesResponse struct {
	Status string           `json:"status"`
	Data   []LedgerEntryDTO `json:"data"`
}
