package rpc

import (
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"flasharb/core/types"
	"flasharb/native/registry"
)

type roleParams struct {
	Caller  string `json:"caller"`
	Role    string `json:"role"`
	Address string `json:"address"`
}

func (s *Server) handleGrantRole(w http.ResponseWriter, req *RPCRequest) {
	var params roleParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, "caller", err)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		s.invalidParams(w, req, "address", err)
		return
	}
	if err := s.registry.GrantRole(caller, params.Role, addr); err != nil {
		s.metrics.ObserveRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, map[string]bool{"granted": true})
}

func (s *Server) handleRevokeRole(w http.ResponseWriter, req *RPCRequest) {
	var params roleParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, "caller", err)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		s.invalidParams(w, req, "address", err)
		return
	}
	if err := s.registry.RevokeRole(caller, params.Role, addr); err != nil {
		s.metrics.ObserveRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, map[string]bool{"revoked": true})
}

type roleMembersParams struct {
	Role string `json:"role"`
}

func (s *Server) handleRoleMembers(w http.ResponseWriter, req *RPCRequest) {
	var params roleMembersParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	members, err := s.registry.RoleMembers(params.Role)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	hexed := make([]string, 0, len(members))
	for _, member := range members {
		hexed = append(hexed, member.Hex())
	}
	writeResult(w, req.ID, hexed)
}

type approvedAssetParams struct {
	Caller   string `json:"caller"`
	Asset    string `json:"asset"`
	Approved bool   `json:"approved"`
}

func (s *Server) handleSetApprovedAsset(w http.ResponseWriter, req *RPCRequest) {
	var params approvedAssetParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, "caller", err)
		return
	}
	if err := s.registry.SetApprovedAsset(caller, params.Asset, params.Approved); err != nil {
		s.metrics.ObserveRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, map[string]bool{"approved": params.Approved})
}

type approvedTargetParams struct {
	Caller   string `json:"caller"`
	Target   string `json:"target"`
	Approved bool   `json:"approved"`
}

func (s *Server) handleSetApprovedTarget(w http.ResponseWriter, req *RPCRequest) {
	var params approvedTargetParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, "caller", err)
		return
	}
	target, err := parseAddress(params.Target)
	if err != nil {
		s.invalidParams(w, req, "target", err)
		return
	}
	if err := s.registry.SetApprovedTarget(caller, target, params.Approved); err != nil {
		s.metrics.ObserveRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, map[string]bool{"approved": params.Approved})
}

type allowedSelectorParams struct {
	Caller    string `json:"caller"`
	Selector  string `json:"selector"`
	Signature string `json:"signature"`
	Allowed   bool   `json:"allowed"`
}

func (s *Server) handleSetAllowedSelector(w http.ResponseWriter, req *RPCRequest) {
	var params allowedSelectorParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, "caller", err)
		return
	}
	sel, err := parseSelector(params.Selector, params.Signature)
	if err != nil {
		s.invalidParams(w, req, "selector", err)
		return
	}
	if err := s.registry.SetAllowedSelector(caller, sel, params.Allowed); err != nil {
		s.metrics.ObserveRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, map[string]string{"selector": sel.Hex()})
}

type maxBorrowParams struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	Cap    string `json:"cap"`
}

func (s *Server) handleSetMaxBorrow(w http.ResponseWriter, req *RPCRequest) {
	var params maxBorrowParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, "caller", err)
		return
	}
	cap, err := parseOptionalAmount(params.Cap)
	if err != nil {
		s.invalidParams(w, req, "cap", err)
		return
	}
	if err := s.registry.SetMaxBorrow(caller, params.Asset, cap); err != nil {
		s.metrics.ObserveRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, map[string]string{"cap": cap.String()})
}

type treasuryParams struct {
	Caller   string `json:"caller"`
	Treasury string `json:"treasury"`
}

func (s *Server) handleSetTreasury(w http.ResponseWriter, req *RPCRequest) {
	var params treasuryParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, "caller", err)
		return
	}
	treasury, err := parseAddress(params.Treasury)
	if err != nil {
		s.invalidParams(w, req, "treasury", err)
		return
	}
	if err := s.registry.SetTreasury(caller, treasury); err != nil {
		s.metrics.ObserveRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, map[string]string{"treasury": treasury.Hex()})
}

type allowancesParams struct {
	Asset string `json:"asset"`
}

type allowancesResult struct {
	AssetApproved bool     `json:"assetApproved"`
	BorrowCap     string   `json:"borrowCap,omitempty"`
	Treasury      string   `json:"treasury"`
	Executors     []string `json:"executors"`
}

// handleAllowances aggregates the per-asset policy surface an operator needs
// before pointing an executor at the engine.
func (s *Server) handleAllowances(w http.ResponseWriter, req *RPCRequest) {
	var params allowancesParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	result := allowancesResult{
		AssetApproved: s.registry.IsAssetApproved(params.Asset),
		Treasury:      s.registry.Treasury().Hex(),
	}
	if cap := s.registry.BorrowCap(params.Asset); cap != nil {
		result.BorrowCap = cap.String()
	}
	executors, err := s.registry.RoleMembers(registry.RoleExecutor)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	result.Executors = make([]string, 0, len(executors))
	for _, executor := range executors {
		result.Executors = append(result.Executors, executor.Hex())
	}
	writeResult(w, req.ID, result)
}

func parseSelector(selectorHex, signature string) (types.Selector, error) {
	if signature != "" {
		return types.SelectorOf(signature), nil
	}
	raw, err := hexutil.Decode(selectorHex)
	if err != nil {
		return types.Selector{}, err
	}
	if len(raw) != 4 {
		return types.Selector{}, fmt.Errorf("selector must be 4 bytes, got %d", len(raw))
	}
	var sel types.Selector
	copy(sel[:], raw)
	return sel, nil
}
