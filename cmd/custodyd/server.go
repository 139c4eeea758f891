package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custody/core/state"
	"custody/core/types"
	"custody/crypto"
	"custody/native/account"
	"custody/native/common"
	"custody/native/multisig"
	"custody/observability"
)

// server exposes the account and multisig surfaces over HTTP. It is operator
// tooling, not a consensus boundary: callers are expected to be the account
// holder's own infrastructure.
type server struct {
	manager *state.Manager
	logger  *slog.Logger
	metrics *observability.AccountMetrics
}

func newServer(manager *state.Manager, logger *slog.Logger) *server {
	return &server{manager: manager, logger: logger, metrics: observability.Metrics()}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/v1/accounts/{address}", func(r chi.Router) {
		r.Get("/", s.handleGetAccount)
		r.Get("/nonces/{nonce}", s.handleNonceStatus)
		r.Post("/init", s.handleInitAccount)
		r.Post("/execute", s.handleExecute)
		r.Post("/execute-hash", s.handleExecuteHash)
		r.Post("/outside", s.handleExecuteOutside)
		r.Post("/outside-hash", s.handleOutsideHash)
	})
	r.Route("/v1/multisig/{address}", func(r chi.Router) {
		r.Get("/", s.handleGetMultisig)
		r.Post("/init", s.handleInitMultisig)
		r.Post("/add-signers", s.handleAddSigners)
		r.Post("/remove-signers", s.handleRemoveSigners)
		r.Post("/change-threshold", s.handleChangeThreshold)
	})
	return r
}

func statusForError(err error) int {
	switch {
	case common.IsKind(err, common.KindPrecondition), common.IsKind(err, common.KindEncoding):
		return http.StatusBadRequest
	case common.IsKind(err, common.KindAuthorization):
		return http.StatusForbidden
	case common.IsKind(err, common.KindReplay), common.IsKind(err, common.KindStateConflict):
		return http.StatusConflict
	case common.IsKind(err, common.KindRateLimit):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForError(err))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *server) observe(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = err.Error()
	}
	s.metrics.Observe(operation, outcome, start)
}

func parseAddress(r *http.Request) ([20]byte, error) {
	var addr [20]byte
	decoded, err := crypto.DecodeAddress(chi.URLParam(r, "address"))
	if err != nil {
		return addr, err
	}
	copy(addr[:], decoded.Bytes())
	return addr, nil
}

func (s *server) accountEngine(addr [20]byte) *account.Engine {
	engine := account.NewEngine(addr)
	engine.SetState(s.manager)
	return engine
}

func (s *server) multisigEngine(addr [20]byte) *multisig.Engine {
	engine := multisig.NewEngine(addr)
	engine.SetState(s.manager)
	return engine
}

func decodeHex(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	return hex.DecodeString(value)
}

func decodeScalars(values []string) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(values))
	for _, v := range values {
		raw, err := hex.DecodeString(v)
		if err != nil {
			return nil, err
		}
		out = append(out, new(big.Int).SetBytes(raw))
	}
	return out, nil
}

type callBody struct {
	To       string   `json:"to"`
	Selector string   `json:"selector"`
	Calldata []string `json:"calldata"`
}

func decodeCalls(bodies []callBody) ([]types.Call, error) {
	calls := make([]types.Call, 0, len(bodies))
	for _, body := range bodies {
		var call types.Call
		addr, err := crypto.DecodeAddress(body.To)
		if err != nil {
			return nil, err
		}
		copy(call.To[:], addr.Bytes())
		sel, err := hex.DecodeString(body.Selector)
		if err != nil || len(sel) != 32 {
			return nil, errors.New("invalid selector encoding")
		}
		copy(call.Selector[:], sel)
		for _, field := range body.Calldata {
			raw, err := decodeHex(field)
			if err != nil {
				return nil, err
			}
			call.Calldata = append(call.Calldata, raw)
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// --- Account handlers ---

func (s *server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	engine := s.accountEngine(addr)
	owner, err := engine.GetOwner()
	if err != nil {
		s.writeError(w, err)
		return
	}
	guardian, _ := engine.GetGuardian()
	backup, _ := engine.GetGuardianBackup()
	escape, status, err := engine.GetEscapeAndStatus()
	if err != nil {
		s.writeError(w, err)
		return
	}
	ownerAttempts, _ := engine.GetOwnerEscapeAttempts()
	guardianAttempts, _ := engine.GetGuardianEscapeAttempts()
	s.writeJSON(w, map[string]any{
		"name":                   engine.Name(),
		"version":                engine.Version(),
		"owner":                  hex.EncodeToString(owner),
		"guardian":               hex.EncodeToString(guardian),
		"guardianBackup":         hex.EncodeToString(backup),
		"escapeType":             escape.Type.String(),
		"escapeReadyAt":          escape.ReadyAt,
		"escapeNewSigner":        hex.EncodeToString(escape.NewSigner),
		"escapeStatus":           status.String(),
		"ownerEscapeAttempts":    ownerAttempts,
		"guardianEscapeAttempts": guardianAttempts,
	})
}

func (s *server) handleInitAccount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	addr, err := parseAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Owner    string `json:"owner"`
		Guardian string `json:"guardian"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, err)
		return
	}
	owner, err := decodeHex(req.Owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	guardian, err := decodeHex(req.Guardian)
	if err != nil {
		s.writeError(w, err)
		return
	}
	err = s.accountEngine(addr).Initialize(owner, guardian)
	s.observe("account.init", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "initialised"})
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	addr, err := parseAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Signature []string   `json:"signature"`
		MaxFee    string     `json:"maxFee"`
		Calls     []callBody `json:"calls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, err)
		return
	}
	scalars, err := decodeScalars(req.Signature)
	if err != nil {
		s.writeError(w, err)
		return
	}
	calls, err := decodeCalls(req.Calls)
	if err != nil {
		s.writeError(w, err)
		return
	}
	maxFee := new(big.Int)
	if req.MaxFee != "" {
		if _, ok := maxFee.SetString(req.MaxFee, 10); !ok {
			s.writeError(w, errors.New("invalid maxFee"))
			return
		}
	}
	engine := s.accountEngine(addr)
	engine.SetExecutor(account.NewSelfExecutor(engine, maxFee))
	// The digest is derived from the submitted batch, never taken from the
	// client, so a signature only ever authorises the batch it was made for.
	hash, err := engine.ExecuteMessageHash(calls)
	if err != nil {
		s.writeError(w, err)
		return
	}
	_, err = engine.Execute(hash[:], scalars, calls)
	s.observe("account.execute", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "executed"})
}

// handleExecuteHash previews the digest a direct execution batch must be
// signed over.
func (s *server) handleExecuteHash(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Calls []callBody `json:"calls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, err)
		return
	}
	calls, err := decodeCalls(req.Calls)
	if err != nil {
		s.writeError(w, err)
		return
	}
	hash, err := s.accountEngine(addr).ExecuteMessageHash(calls)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"hash": hex.EncodeToString(hash[:])})
}

func (s *server) handleNonceStatus(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	raw, err := hex.DecodeString(chi.URLParam(r, "nonce"))
	if err != nil || len(raw) != 32 {
		s.writeError(w, errors.New("invalid nonce encoding"))
		return
	}
	var nonce [32]byte
	copy(nonce[:], raw)
	consumed, err := s.accountEngine(addr).IsOutsideNonceConsumed(nonce)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{
		"nonce":    chi.URLParam(r, "nonce"),
		"consumed": consumed,
	})
}

type outsideBody struct {
	Caller        string     `json:"caller"`
	Nonce         string     `json:"nonce"`
	ExecuteAfter  uint64     `json:"executeAfter"`
	ExecuteBefore uint64     `json:"executeBefore"`
	Calls         []callBody `json:"calls"`
}

func decodeOutside(body outsideBody) (*types.OutsideExecution, error) {
	payload := &types.OutsideExecution{
		ExecuteAfter:  body.ExecuteAfter,
		ExecuteBefore: body.ExecuteBefore,
	}
	if body.Caller == "any" {
		payload.Caller = account.AnyCaller
	} else {
		addr, err := crypto.DecodeAddress(body.Caller)
		if err != nil {
			return nil, err
		}
		copy(payload.Caller[:], addr.Bytes())
	}
	nonce, err := hex.DecodeString(body.Nonce)
	if err != nil || len(nonce) != 32 {
		return nil, errors.New("invalid nonce encoding")
	}
	copy(payload.Nonce[:], nonce)
	if payload.Calls, err = decodeCalls(body.Calls); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *server) handleOutsideHash(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body outsideBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, err)
		return
	}
	payload, err := decodeOutside(body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	hash, err := s.accountEngine(addr).OutsideExecutionMessageHash(payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"hash": hex.EncodeToString(hash[:])})
}

func (s *server) handleExecuteOutside(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	addr, err := parseAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Submitter string      `json:"submitter"`
		Payload   outsideBody `json:"payload"`
		Signature []string    `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, err)
		return
	}
	var submitter [20]byte
	submitterAddr, err := crypto.DecodeAddress(req.Submitter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	copy(submitter[:], submitterAddr.Bytes())
	payload, err := decodeOutside(req.Payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	scalars, err := decodeScalars(req.Signature)
	if err != nil {
		s.writeError(w, err)
		return
	}
	engine := s.accountEngine(addr)
	engine.SetExecutor(account.NewOutsideSelfExecutor(engine))
	_, err = engine.ExecuteFromOutside(submitter, payload, scalars)
	s.observe("account.execute_outside", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "executed"})
}

// --- Multisig handlers ---

func (s *server) handleGetMultisig(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	engine := s.multisigEngine(addr)
	signers, err := engine.GetSigners()
	if err != nil {
		s.writeError(w, err)
		return
	}
	threshold, err := engine.GetThreshold()
	if err != nil {
		s.writeError(w, err)
		return
	}
	encoded := make([]string, 0, len(signers))
	for _, signer := range signers {
		encoded = append(encoded, hex.EncodeToString(signer))
	}
	s.writeJSON(w, map[string]any{
		"name":      engine.Name(),
		"version":   engine.Version(),
		"signers":   encoded,
		"threshold": threshold,
	})
}

func decodeSigners(values []string) ([][]byte, error) {
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		raw, err := hex.DecodeString(v)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (s *server) handleInitMultisig(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	addr, err := parseAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Threshold uint32   `json:"threshold"`
		Signers   []string `json:"signers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, err)
		return
	}
	signers, err := decodeSigners(req.Signers)
	if err != nil {
		s.writeError(w, err)
		return
	}
	err = s.multisigEngine(addr).Initialize(req.Threshold, signers)
	s.observe("multisig.init", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "initialised"})
}

func (s *server) handleAddSigners(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	addr, err := parseAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Threshold uint32   `json:"threshold"`
		Signers   []string `json:"signers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, err)
		return
	}
	signers, err := decodeSigners(req.Signers)
	if err != nil {
		s.writeError(w, err)
		return
	}
	err = s.multisigEngine(addr).AddSigners(addr, req.Threshold, signers)
	s.observe("multisig.add_signers", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "updated"})
}

func (s *server) handleRemoveSigners(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	addr, err := parseAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Threshold uint32   `json:"threshold"`
		Signers   []string `json:"signers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, err)
		return
	}
	signers, err := decodeSigners(req.Signers)
	if err != nil {
		s.writeError(w, err)
		return
	}
	err = s.multisigEngine(addr).RemoveSigners(addr, req.Threshold, signers)
	s.observe("multisig.remove_signers", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "updated"})
}

func (s *server) handleChangeThreshold(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	addr, err := parseAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Threshold uint32 `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, err)
		return
	}
	err = s.multisigEngine(addr).ChangeThreshold(addr, req.Threshold)
	s.observe("multisig.change_threshold", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "updated"})
}
