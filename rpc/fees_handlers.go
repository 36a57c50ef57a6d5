package rpc

import (
	"net/http"

	"flasharb/native/fees"
)

type feesConfigureParams struct {
	Caller    string `json:"caller"`
	Enabled   bool   `json:"enabled"`
	FeeBps    uint32 `json:"feeBps"`
	Recipient string `json:"recipient"`
}

func (s *Server) handleFeesConfigure(w http.ResponseWriter, req *RPCRequest) {
	var params feesConfigureParams
	if !s.decodeParams(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		s.invalidParams(w, req, "caller", err)
		return
	}
	policy := fees.Policy{Enabled: params.Enabled, FeeBps: params.FeeBps}
	if params.Recipient != "" {
		recipient, err := parseAddress(params.Recipient)
		if err != nil {
			s.invalidParams(w, req, "recipient", err)
			return
		}
		policy.Recipient = recipient
	}
	if err := s.engine.SetFeePolicy(caller, policy); err != nil {
		s.metrics.ObserveRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, feesPolicyResult{Enabled: policy.Enabled, FeeBps: policy.FeeBps, Recipient: policy.Recipient.Hex()})
}

type feesPolicyResult struct {
	Enabled   bool   `json:"enabled"`
	FeeBps    uint32 `json:"feeBps"`
	Recipient string `json:"recipient"`
}

func (s *Server) handleFeesPolicy(w http.ResponseWriter, req *RPCRequest) {
	policy := s.feePolicy.Policy()
	writeResult(w, req.ID, feesPolicyResult{Enabled: policy.Enabled, FeeBps: policy.FeeBps, Recipient: policy.Recipient.Hex()})
}
