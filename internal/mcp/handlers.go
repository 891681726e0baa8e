package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
	"github.com/hpungsan/heritage/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	svc *ops.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *ops.Service) *Handlers {
	return &Handlers{svc: svc}
}

// caller is the identity configured for this server process.
func (h *Handlers) caller() (identity.Identity, error) {
	return ops.ParseCaller(h.svc.Config.Caller)
}

// Request types for each tool

// CreateRequest represents the arguments for create and the capsule part of purchase.
type CreateRequest struct {
	Contents     json.RawMessage `json:"contents"`
	UnlockTimeMs json.RawMessage `json:"unlock_time_ms"`
	Recipients   []string        `json:"recipients,omitempty"`
	IsPublic     bool            `json:"is_public,omitempty"`
}

func (r CreateRequest) input(caller identity.Identity) ops.CreateInput {
	return ops.CreateInput{
		Caller:       caller,
		Contents:     rawText(r.Contents),
		UnlockTimeMs: rawText(r.UnlockTimeMs),
		Recipients:   r.Recipients,
		IsPublic:     r.IsPublic,
	}
}

// PurchaseRequest represents the arguments for purchase.
type PurchaseRequest struct {
	CreateRequest
	PaymentTarget string `json:"payment_target,omitempty"`
	LedgerRef     string `json:"ledger_ref,omitempty"`
}

// GetRequest represents the arguments for get.
type GetRequest struct {
	ID uint64 `json:"id"`
}

// TokenRequest represents the arguments for token.
type TokenRequest struct {
	TokenID uint64 `json:"token_id"`
}

// TransferTokenRequest represents the arguments for transfer_token.
type TransferTokenRequest struct {
	TokenID  uint64 `json:"token_id"`
	NewOwner string `json:"new_owner"`
}

// AccountRequest represents the arguments for purchases and balance.
type AccountRequest struct {
	Buyer   string `json:"buyer,omitempty"`
	Account string `json:"account,omitempty"`
}

// PathRequest represents the arguments for snapshot and restore.
type PathRequest struct {
	Path string `json:"path,omitempty"`
}

// Handler implementations

// HandleWhoAmI handles the whoami tool call.
func (h *Handlers) HandleWhoAmI(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caller, err := h.caller()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]string{"principal": ops.WhoAmI(caller)})
}

// HandleCreate handles the create tool call.
func (h *Handlers) HandleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	caller, err := h.caller()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.CreateCapsule(ctx, h.svc, input.input(caller))
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePurchase handles the purchase tool call.
func (h *Handlers) HandlePurchase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurchaseRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	caller, err := h.caller()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.PurchaseCapsule(ctx, h.svc, ops.PurchaseInput{
		CreateInput:   input.input(caller),
		PaymentTarget: input.PaymentTarget,
		LedgerRef:     input.LedgerRef,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleGet handles the get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	caller, err := h.caller()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.GetCapsule(ctx, h.svc, caller, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePublic handles the public tool call.
func (h *Handlers) HandlePublic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := ops.GetPublicCapsules(ctx, h.svc)
	if err != nil {
		return errorResult(err), nil
	}
	if items == nil {
		items = []capsule.Capsule{}
	}
	return successResult(map[string]any{"items": items})
}

// HandleToken handles the token tool call.
func (h *Handlers) HandleToken(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TokenRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	tok, err := ops.GetHeritageToken(ctx, h.svc, input.TokenID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"token": tok})
}

// HandleTransferToken handles the transfer_token tool call.
func (h *Handlers) HandleTransferToken(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TransferTokenRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	caller, err := h.caller()
	if err != nil {
		return errorResult(err), nil
	}

	ok, err := ops.TransferHeritageToken(ctx, h.svc, caller, input.TokenID, input.NewOwner)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]bool{"transferred": ok})
}

// HandleMyTokens handles the my_tokens tool call.
func (h *Handlers) HandleMyTokens(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caller, err := h.caller()
	if err != nil {
		return errorResult(err), nil
	}

	items, err := ops.GetMyTokens(ctx, h.svc, caller)
	if err != nil {
		return errorResult(err), nil
	}
	if items == nil {
		items = []capsule.Token{}
	}
	return successResult(map[string]any{"items": items})
}

// HandlePurchases handles the purchases tool call.
func (h *Handlers) HandlePurchases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AccountRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	buyer, err := h.accountOrCaller(input.Buyer)
	if err != nil {
		return errorResult(err), nil
	}

	items, err := ops.GetUserPurchases(ctx, h.svc, buyer)
	if err != nil {
		return errorResult(err), nil
	}
	if items == nil {
		items = []capsule.Purchase{}
	}
	return successResult(map[string]any{"items": items})
}

// HandlePrice handles the price tool call.
func (h *Handlers) HandlePrice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(map[string]uint64{"price": ops.GetCapsulePrice(h.svc)})
}

// HandleLedgerInfo handles the ledger_info tool call.
func (h *Handlers) HandleLedgerInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.LedgerInfo(ctx, h.svc)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleBalance handles the balance tool call.
func (h *Handlers) HandleBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AccountRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	account, err := h.accountOrCaller(input.Account)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Balance(ctx, h.svc, account)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSnapshot handles the snapshot tool call.
func (h *Handlers) HandleSnapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Snapshot(ctx, h.svc, ops.SnapshotInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRestore handles the restore tool call.
func (h *Handlers) HandleRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Restore(ctx, h.svc, ops.RestoreInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// accountOrCaller parses text, falling back to the configured caller when it is empty.
func (h *Handlers) accountOrCaller(text string) (identity.Identity, error) {
	if text == "" {
		return h.caller()
	}
	id, err := identity.Parse(text)
	if err != nil {
		return "", errors.NewInvalidRequest("invalid principal: " + err.Error())
	}
	return id, nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var hErr *errors.HeritageError
	if stderrors.As(err, &hErr) {
		msg := hErr.Message
		if err != error(hErr) {
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    hErr.Code,
			"message": msg,
			"status":  hErr.Status,
		}
		if hErr.Code != errors.ErrInternal && hErr.Details != nil {
			errorObj["details"] = hErr.Details
		}
		if hErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
