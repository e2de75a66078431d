// Package httpapi exposes the credential digest registry over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/trufnetwork/creddigest/extensions/tn_creddigest"
)

const maxRequestBytes = 64 << 10

// Registry is the subset of *tn_creddigest.Registry served by the API.
type Registry interface {
	VerifyVC(ctx context.Context, sub tn_creddigest.Submission, caller common.Address) (*tn_creddigest.Notification, error)
	Lookup(ctx context.Context, key tn_creddigest.RegistryKey) (tn_creddigest.Entry, error)
	AttesterOf(ctx context.Context, key tn_creddigest.RegistryKey) (common.Address, error)
	HolderOf(ctx context.Context, key tn_creddigest.RegistryKey) (common.Address, error)
}

// VerifyRequest is the body of POST /v1/credentials/verify. Caller becomes the
// holder of record on success.
type VerifyRequest struct {
	tn_creddigest.SubmissionInput
	Caller string `json:"caller"`
}

// CredentialResponse describes one registry key.
type CredentialResponse struct {
	Key      tn_creddigest.RegistryKey `json:"key"`
	State    tn_creddigest.KeyState    `json:"state"`
	Attester common.Address            `json:"attester"`
	Holder   common.Address            `json:"holder"`
}

// AddressResponse is returned by the attester and holder lookups.
type AddressResponse struct {
	Key     tn_creddigest.RegistryKey `json:"key"`
	Address common.Address            `json:"address"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Handler struct {
	registry Registry
	logger   *zap.Logger
}

func NewHandler(registry Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/credentials/verify", h.HandleVerify)
	r.Get("/v1/credentials/{key}", h.HandleLookup)
	r.Get("/v1/credentials/{key}/attester", h.HandleAttester)
	r.Get("/v1/credentials/{key}/holder", h.HandleHolder)
	r.Get("/healthz", h.HandleHealth)
}

// HandleVerify submits a credential digest. A signature mismatch still answers
// 200 with a vcVerifyFail notification.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VerifyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, errors.Wrapf(tn_creddigest.ErrInvalidInput, "decode body: %v", err))
		return
	}

	sub, err := req.Parse()
	if err != nil {
		writeError(w, err)
		return
	}
	caller, err := tn_creddigest.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, errors.Wrap(err, "caller"))
		return
	}

	n, err := h.registry.VerifyVC(ctx, sub, caller)
	if err != nil {
		h.log(r, err, "verify credential failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	key, ok := parseKey(w, r)
	if !ok {
		return
	}

	entry, err := h.registry.Lookup(r.Context(), key)
	if err != nil {
		h.log(r, err, "lookup credential failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CredentialResponse{
		Key:      key,
		State:    entry.State,
		Attester: entry.Record.Attester,
		Holder:   entry.Record.Holder,
	})
}

func (h *Handler) HandleAttester(w http.ResponseWriter, r *http.Request) {
	h.handleAddress(w, r, h.registry.AttesterOf)
}

func (h *Handler) HandleHolder(w http.ResponseWriter, r *http.Request) {
	h.handleAddress(w, r, h.registry.HolderOf)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleAddress(w http.ResponseWriter, r *http.Request, lookup func(context.Context, tn_creddigest.RegistryKey) (common.Address, error)) {
	key, ok := parseKey(w, r)
	if !ok {
		return
	}

	addr, err := lookup(r.Context(), key)
	if err != nil {
		h.log(r, err, "address lookup failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AddressResponse{Key: key, Address: addr})
}

func (h *Handler) log(r *http.Request, err error, msg string) {
	status, _ := classify(err)
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, fields...)
		return
	}
	h.logger.Debug(msg, fields...)
}

func parseKey(w http.ResponseWriter, r *http.Request) (tn_creddigest.RegistryKey, bool) {
	key, err := tn_creddigest.ParseRegistryKey(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return key, false
	}
	return key, true
}

// classify maps registry errors to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, tn_creddigest.ErrAlreadySubmitted):
		return http.StatusConflict, "already_submitted"
	case errors.Is(err, tn_creddigest.ErrInvalidVersion):
		return http.StatusBadRequest, "invalid_version"
	case errors.Is(err, tn_creddigest.ErrInvalidSignatureLength):
		return http.StatusBadRequest, "invalid_signature_length"
	case errors.Is(err, tn_creddigest.ErrTimestampOverflow), errors.Is(err, tn_creddigest.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
