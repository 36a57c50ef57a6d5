package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"flasharb/core/types"
)

type tradeParam struct {
	Target string `json:"target"`
	Data   string `json:"data"`
}

type requestSettlementParams struct {
	Caller         string       `json:"caller"`
	Asset          string       `json:"asset"`
	Amount         string       `json:"amount"`
	MinProfit      string       `json:"minProfit"`
	BaseFeeCeiling string       `json:"baseFeeCeiling"`
	Deadline       int64        `json:"deadline"`
	Payout         string       `json:"payout"`
	Trades         []tradeParam `json:"trades"`
}

type requestSettlementResult struct {
	Settled bool `json:"settled"`
}

func (s *Server) handleRequestSettlement(w http.ResponseWriter, req *RPCRequest) {
	var params requestSettlementParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, "caller", err)
		return
	}
	payout, err := parseAddress(params.Payout)
	if err != nil {
		s.invalidParams(w, req, "payout", err)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		s.invalidParams(w, req, "amount", err)
		return
	}
	minProfit, err := parseOptionalAmount(params.MinProfit)
	if err != nil {
		s.invalidParams(w, req, "minProfit", err)
		return
	}
	baseFeeCeiling, err := parseOptionalAmount(params.BaseFeeCeiling)
	if err != nil {
		s.invalidParams(w, req, "baseFeeCeiling", err)
		return
	}
	trades := make([]types.TradeInstruction, 0, len(params.Trades))
	for i, trade := range params.Trades {
		target, err := parseAddress(trade.Target)
		if err != nil {
			s.invalidParams(w, req, fmt.Sprintf("trades[%d].target", i), err)
			return
		}
		data, err := hexutil.Decode(trade.Data)
		if err != nil {
			s.invalidParams(w, req, fmt.Sprintf("trades[%d].data", i), err)
			return
		}
		trades = append(trades, types.TradeInstruction{Target: target, Data: data})
	}

	if err := s.engine.RequestArbitrage(caller, params.Asset, amount, trades, minProfit, baseFeeCeiling, params.Deadline, payout); err != nil {
		s.metrics.ObserveRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, requestSettlementResult{Settled: true})
}

type runtimeResult struct {
	Active     bool   `json:"active"`
	Asset      string `json:"asset,omitempty"`
	PreBalance string `json:"preBalance,omitempty"`
	Paused     bool   `json:"paused"`
}

func (s *Server) handleRuntime(w http.ResponseWriter, req *RPCRequest) {
	view := s.engine.Runtime()
	result := runtimeResult{Active: view.Active, Asset: view.Asset, Paused: s.engine.Paused()}
	if view.PreBalance != nil {
		result.PreBalance = view.PreBalance.String()
	}
	writeResult(w, req.ID, result)
}

type eventResult struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) handleEvents(w http.ResponseWriter, req *RPCRequest) {
	if s.recorder == nil {
		writeResult(w, req.ID, []eventResult{})
		return
	}
	recorded := s.recorder.Events()
	results := make([]eventResult, 0, len(recorded))
	for _, evt := range recorded {
		typed, ok := evt.(*types.Event)
		if !ok {
			continue
		}
		results = append(results, eventResult{Type: typed.Type, Attributes: typed.Attributes})
	}
	writeResult(w, req.ID, results)
}

type callerParams struct {
	Caller string `json:"caller"`
}

func (s *Server) handlePause(w http.ResponseWriter, req *RPCRequest) {
	var params callerParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, "caller", err)
		return
	}
	if err := s.engine.Pause(caller); err != nil {
		s.metrics.ObserveRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, map[string]bool{"paused": true})
}

func (s *Server) handleUnpause(w http.ResponseWriter, req *RPCRequest) {
	var params callerParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, "caller", err)
		return
	}
	if err := s.engine.Unpause(caller); err != nil {
		s.metrics.ObserveRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, map[string]bool{"paused": false})
}

type rescueParams struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	To     string `json:"to"`
}

func (s *Server) handleRescueTokens(w http.ResponseWriter, req *RPCRequest) {
	var params rescueParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, "caller", err)
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		s.invalidParams(w, req, "to", err)
		return
	}
	swept, err := s.engine.RescueTokens(caller, params.Asset, to)
	if err != nil {
		s.metrics.ObserveRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, map[string]string{"swept": swept.String()})
}

type approveSpenderParams struct {
	Caller  string `json:"caller"`
	Spender string `json:"spender"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

func (s *Server) handleApproveSpender(w http.ResponseWriter, req *RPCRequest) {
	var params approveSpenderParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, "caller", err)
		return
	}
	spender, err := parseAddress(params.Spender)
	if err != nil {
		s.invalidParams(w, req, "spender", err)
		return
	}
	amount, err := parseOptionalAmount(params.Amount)
	if err != nil {
		s.invalidParams(w, req, "amount", err)
		return
	}
	if err := s.engine.ApproveSpender(caller, spender, params.Asset, amount); err != nil {
		s.metrics.ObserveRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, map[string]bool{"approved": true})
}

func (s *Server) decodeParams(w http.ResponseWriter, req *RPCRequest, target interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected a single parameter object", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], target); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func (s *Server) invalidParams(w http.ResponseWriter, req *RPCRequest, field string, err error) {
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("invalid %s", field), err.Error())
}

func parseAddress(value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("not a hex address: %q", value)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(value string) (*big.Int, error) {
	amount, err := parseOptionalAmount(value)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive: %q", value)
	}
	return amount, nil
}

func parseOptionalAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("not a decimal amount: %q", value)
	}
	return amount, nil
}
