// internal/model/transaction.go
package model

import "time"

// TransactionType represents the kind of request sent to a device
type TransactionType string

const (
	TransactionSale              TransactionType = "SALE"
	TransactionRefund            TransactionType = "REFUND"
	TransactionVoid              TransactionType = "VOID"
	TransactionPreAuth           TransactionType = "PRE_AUTH"
	TransactionPreAuthCompletion TransactionType = "PRE_AUTH_COMPLETION"
	TransactionFiscalReceipt     TransactionType = "FISCAL_RECEIPT"
	TransactionFiscalZClose      TransactionType = "FISCAL_Z_CLOSE"
	TransactionFiscalXReport     TransactionType = "FISCAL_X_REPORT"
)

// IsFiscal reports whether the type is handled by fiscal registers
func (t TransactionType) IsFiscal() bool {
	switch t {
	case TransactionFiscalReceipt, TransactionFiscalZClose, TransactionFiscalXReport:
		return true
	}
	return false
}

// TransactionStatus represents the outcome of a transaction
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusApproved   TransactionStatus = "APPROVED"
	TransactionStatusDeclined   TransactionStatus = "DECLINED"
	TransactionStatusError      TransactionStatus = "ERROR"
	TransactionStatusTimeout    TransactionStatus = "TIMEOUT"
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"
)

// IsTerminal reports whether no further device activity is expected
func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusPending && s != TransactionStatusProcessing
}

// TransactionRequest is the boundary type handed to protocol adapters.
// Amounts are integer minor units.
type TransactionRequest struct {
	TransactionID       string             `json:"transaction_id"`
	Type                TransactionType    `json:"transaction_type" binding:"required"`
	Amount              int64              `json:"amount"`
	Currency            string             `json:"currency"`
	OrderID             *string            `json:"order_id,omitempty"`
	TipAmount           *int64             `json:"tip_amount,omitempty"`
	OriginalTransaction *string            `json:"original_transaction_ref,omitempty"`
	FiscalData          *FiscalReceiptData `json:"fiscal_data,omitempty"`
}

// CardInfo is the card metadata a terminal reports. PAN is masked by the terminal.
type CardInfo struct {
	MaskedPAN string `json:"masked_pan,omitempty"`
	CardType  string `json:"card_type,omitempty"`
	CardName  string `json:"card_name,omitempty"`
	AID       string `json:"aid,omitempty"`
	EntryMode string `json:"entry_mode,omitempty"`
	Expiry    string `json:"expiry,omitempty"`
}

// TransactionResponse is produced for every completed process_transaction call
type TransactionResponse struct {
	TransactionID   string            `json:"transaction_id"`
	Status          TransactionStatus `json:"status"`
	AuthCode        *string           `json:"auth_code,omitempty"`
	TerminalRef     *string           `json:"terminal_ref,omitempty"`
	FiscalRef       *string           `json:"fiscal_ref,omitempty"`
	Card            *CardInfo         `json:"card,omitempty"`
	MerchantReceipt []string          `json:"merchant_receipt,omitempty"`
	CustomerReceipt []string          `json:"customer_receipt,omitempty"`
	ErrorCode       *string           `json:"error_code,omitempty"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
	RawResponse     []byte            `json:"raw_response,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// NewTransactionResponse starts a response for the given request
func NewTransactionResponse(req *TransactionRequest) *TransactionResponse {
	return &TransactionResponse{
		TransactionID: req.TransactionID,
		Status:        TransactionStatusProcessing,
		StartedAt:     time.Now(),
	}
}

// Complete sets a terminal status and stamps the completion time
func (r *TransactionResponse) Complete(status TransactionStatus) *TransactionResponse {
	now := time.Now()
	r.Status = status
	r.CompletedAt = &now
	return r
}

// Fail completes the response with an error code and message
func (r *TransactionResponse) Fail(status TransactionStatus, code, message string) *TransactionResponse {
	r.ErrorCode = &code
	r.ErrorMessage = &message
	return r.Complete(status)
}

// SettlementResult reports an end-of-day close as counted by the device
type SettlementResult struct {
	Success          bool    `json:"success"`
	TransactionCount int64   `json:"transaction_count"`
	TotalAmount      int64   `json:"total_amount"`
	ZNumber          *int64  `json:"z_number,omitempty"`
	Error            *string `json:"error,omitempty"`
	RawResponse      []byte  `json:"raw_response,omitempty"`
}
