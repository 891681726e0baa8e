package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/samber/lo"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
	"github.com/hpungsan/heritage/internal/ops"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Handlers contains HTTP route handlers for the API and the public archive.
type Handlers struct {
	svc      *ops.Service
	renderer *Renderer
}

// capsuleRequest is the body of POST /api/capsules and POST /api/capsules/purchase.
// contents may be the array itself or a JSON string holding it; unlock_time_ms may be
// a string or a number.
type capsuleRequest struct {
	Contents      json.RawMessage `json:"contents"`
	UnlockTimeMs  json.RawMessage `json:"unlock_time_ms"`
	Recipients    []string        `json:"recipients"`
	IsPublic      bool            `json:"is_public"`
	PaymentTarget string          `json:"payment_target"`
	LedgerRef     string          `json:"ledger_ref"`
}

func (req capsuleRequest) input(caller identity.Identity) ops.CreateInput {
	return ops.CreateInput{
		Caller:       caller,
		Contents:     jsonText(req.Contents),
		UnlockTimeMs: jsonText(req.UnlockTimeMs),
		Recipients:   req.Recipients,
		IsPublic:     req.IsPublic,
	}
}

type transferRequest struct {
	NewOwner string `json:"new_owner"`
}

// HandleWhoAmI handles GET /api/whoami.
func (h *Handlers) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"principal": ops.WhoAmI(callerFrom(r.Context()))})
}

// HandleCreate handles POST /api/capsules.
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body capsuleRequest
	if err := decodeBody(w, r, &body); err != nil {
		renderAPIError(w, err)
		return
	}

	result, err := ops.CreateCapsule(r.Context(), h.svc, body.input(callerFrom(r.Context())))
	if err != nil {
		renderAPIError(w, err)
		return
	}
	renderJSON(w, http.StatusCreated, result)
}

// HandlePurchase handles POST /api/capsules/purchase.
func (h *Handlers) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	var body capsuleRequest
	if err := decodeBody(w, r, &body); err != nil {
		renderAPIError(w, err)
		return
	}

	result, err := ops.PurchaseCapsule(r.Context(), h.svc, ops.PurchaseInput{
		CreateInput:   body.input(callerFrom(r.Context())),
		PaymentTarget: body.PaymentTarget,
		LedgerRef:     body.LedgerRef,
	})
	if err != nil {
		renderAPIError(w, err)
		return
	}
	renderJSON(w, http.StatusCreated, result)
}

// HandleGet handles GET /api/capsules/{id}.
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderAPIError(w, err)
		return
	}

	result, err := ops.GetCapsule(r.Context(), h.svc, callerFrom(r.Context()), id)
	if err != nil {
		renderAPIError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandlePublic handles GET /api/capsules/public.
func (h *Handlers) HandlePublic(w http.ResponseWriter, r *http.Request) {
	items, err := ops.GetPublicCapsules(r.Context(), h.svc)
	if err != nil {
		renderAPIError(w, err)
		return
	}
	if items == nil {
		items = []capsule.Capsule{}
	}
	renderJSON(w, http.StatusOK, map[string]any{"items": items})
}

// HandleToken handles GET /api/tokens/{id}. A missing token is returned as null.
func (h *Handlers) HandleToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderAPIError(w, err)
		return
	}

	tok, err := ops.GetHeritageToken(r.Context(), h.svc, id)
	if err != nil {
		renderAPIError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"token": tok})
}

// HandleTransferToken handles POST /api/tokens/{id}/transfer.
func (h *Handlers) HandleTransferToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderAPIError(w, err)
		return
	}
	var body transferRequest
	if err := decodeBody(w, r, &body); err != nil {
		renderAPIError(w, err)
		return
	}

	ok, err := ops.TransferHeritageToken(r.Context(), h.svc, callerFrom(r.Context()), id, body.NewOwner)
	if err != nil {
		renderAPIError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]bool{"transferred": ok})
}

// HandleMyTokens handles GET /api/tokens/mine.
func (h *Handlers) HandleMyTokens(w http.ResponseWriter, r *http.Request) {
	items, err := ops.GetMyTokens(r.Context(), h.svc, callerFrom(r.Context()))
	if err != nil {
		renderAPIError(w, err)
		return
	}
	if items == nil {
		items = []capsule.Token{}
	}
	renderJSON(w, http.StatusOK, map[string]any{"items": items})
}

// HandlePurchases handles GET /api/purchases?buyer=. The buyer defaults to the caller.
func (h *Handlers) HandlePurchases(w http.ResponseWriter, r *http.Request) {
	buyer, err := principalParam(r, "buyer")
	if err != nil {
		renderAPIError(w, err)
		return
	}

	items, err := ops.GetUserPurchases(r.Context(), h.svc, buyer)
	if err != nil {
		renderAPIError(w, err)
		return
	}
	if items == nil {
		items = []capsule.Purchase{}
	}
	renderJSON(w, http.StatusOK, map[string]any{"items": items})
}

// HandlePrice handles GET /api/price.
func (h *Handlers) HandlePrice(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]uint64{"price": ops.GetCapsulePrice(h.svc)})
}

// HandleLedgerInfo handles GET /api/ledger.
func (h *Handlers) HandleLedgerInfo(w http.ResponseWriter, r *http.Request) {
	result, err := ops.LedgerInfo(r.Context(), h.svc)
	if err != nil {
		renderAPIError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleBalance handles GET /api/balance?account=. The account defaults to the caller.
func (h *Handlers) HandleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := principalParam(r, "account")
	if err != nil {
		renderAPIError(w, err)
		return
	}

	result, err := ops.Balance(r.Context(), h.svc, account)
	if err != nil {
		renderAPIError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleArchive handles GET /archive, the HTML listing of unlocked public capsules.
func (h *Handlers) HandleArchive(w http.ResponseWriter, r *http.Request) {
	capsules, err := ops.GetPublicCapsules(r.Context(), h.svc)
	if err != nil {
		h.renderer.renderError(w, err)
		return
	}

	items := lo.Map(capsules, func(c capsule.Capsule, _ int) ArchiveItem {
		return ArchiveItem{
			ID:         c.ID,
			Owner:      c.Owner.String(),
			UnlockTime: c.UnlockTime,
			Keys:       lo.Map(c.Contents, func(e capsule.Entry, _ int) string { return e.Key }),
		}
	})
	// Newest unlocks first
	lo.Reverse(items)

	h.renderer.renderPage(w, http.StatusOK, "archive", ArchivePageData{
		PageData: PageData{Title: "Public archive", Version: h.renderer.version},
		Items:    items,
	})
}

// HandleArchiveCapsule handles GET /archive/{id}. Only publicly listed capsules are shown;
// anything else is a 404, whether or not it exists.
func (h *Handlers) HandleArchiveCapsule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderer.renderError(w, err)
		return
	}

	capsules, err := ops.GetPublicCapsules(r.Context(), h.svc)
	if err != nil {
		h.renderer.renderError(w, err)
		return
	}
	c, ok := lo.Find(capsules, func(c capsule.Capsule) bool { return c.ID == id })
	if !ok {
		h.renderer.renderError(w, errors.NewNotFound("capsule", id))
		return
	}

	h.renderer.renderPage(w, http.StatusOK, "capsule", CapsulePageData{
		PageData: PageData{Title: fmt.Sprintf("Capsule #%d", c.ID), Version: h.renderer.version},
		Capsule:  c,
		Entries: lo.Map(c.Contents, func(e capsule.Entry, _ int) RenderedEntry {
			return RenderedEntry{Key: e.Key, HTML: renderMarkdown(e.Value)}
		}),
	})
}

// decodeBody reads a bounded JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.NewInvalidRequest("request body too large or unreadable")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.NewInvalidRequest("request body is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// jsonText returns a JSON string as its value and any other JSON value as its literal text.
func jsonText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func pathID(r *http.Request, name string) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return id, nil
}

// principalParam parses a principal query parameter, defaulting to the caller.
func principalParam(r *http.Request, name string) (identity.Identity, error) {
	text := r.URL.Query().Get(name)
	if text == "" {
		return callerFrom(r.Context()), nil
	}
	id, err := identity.Parse(text)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid %s: %v", name, err))
	}
	return id, nil
}

func notFoundRoute(r *http.Request) error {
	return &errors.HeritageError{
		Code:    errors.ErrNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path),
	}
}
