package rpc

import (
	"net/http"

	"deedescrow/indexer"
)

func (s *Server) handleEscrowGetListing(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	var params assetParams
	if fail := decodeParams(req, &params); fail != nil {
		return nil, fail
	}
	listing, err := s.node.Listing(params.AssetID)
	if err != nil {
		return nil, errorFailure(err)
	}
	held, err := s.node.HeldBalance(params.AssetID)
	if err != nil {
		return nil, errorFailure(err)
	}
	loan, err := s.node.LoanBalance(params.AssetID)
	if err != nil {
		return nil, errorFailure(err)
	}
	approvers, err := s.node.Approvers(params.AssetID)
	if err != nil {
		return nil, errorFailure(err)
	}
	return listingResult(listing, held, loan, approvers), nil
}

func (s *Server) handleEscrowGetApproval(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	var params approvalParams
	if fail := decodeParams(req, &params); fail != nil {
		return nil, fail
	}
	addr, fail := decodeAddress(params.Address)
	if fail != nil {
		return nil, fail
	}
	approved, err := s.node.Approval(params.AssetID, addr)
	if err != nil {
		return nil, errorFailure(err)
	}
	return ApprovalResult{AssetID: params.AssetID, Address: formatAddress(addr), Approved: approved}, nil
}

func (s *Server) handleEscrowGetRefund(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	var params approvalParams
	if fail := decodeParams(req, &params); fail != nil {
		return nil, fail
	}
	addr, fail := decodeAddress(params.Address)
	if fail != nil {
		return nil, fail
	}
	owed, err := s.node.PendingRefund(params.AssetID, addr)
	if err != nil {
		return nil, errorFailure(err)
	}
	return RefundResult{AssetID: params.AssetID, Address: formatAddress(addr), Amount: formatAmount(owed)}, nil
}

// handleEscrowGetBalance reports the escrow account total, and the ledger of
// one asset when assetId is given.
func (s *Server) handleEscrowGetBalance(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	var params balanceParams
	if len(req.Params) > 0 {
		if fail := decodeParams(req, &params); fail != nil {
			return nil, fail
		}
	}
	total, err := s.node.EscrowBalance()
	if err != nil {
		return nil, errorFailure(err)
	}
	result := BalanceResult{Address: formatAddress(s.node.EscrowAddress()), Balance: formatAmount(total)}
	if params.AssetID != nil {
		held, err := s.node.HeldBalance(*params.AssetID)
		if err != nil {
			return nil, errorFailure(err)
		}
		id := *params.AssetID
		result.AssetID = &id
		result.Held = formatAmount(held)
	}
	return result, nil
}

func (s *Server) handleEscrowGetRoles(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	roles := s.node.Roles()
	return RolesResult{
		Seller:    formatAddress(roles.Seller),
		Inspector: formatAddress(roles.Inspector),
		Lender:    formatAddress(roles.Lender),
		Escrow:    formatAddress(s.node.EscrowAddress()),
	}, nil
}

func (s *Server) handleEscrowListEvents(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	if s.events == nil {
		return nil, &failure{status: http.StatusServiceUnavailable, err: &RPCError{Code: codeServerError, Message: "event index not configured"}}
	}
	var params listEventsParams
	if len(req.Params) > 0 {
		if fail := decodeParams(req, &params); fail != nil {
			return nil, fail
		}
	}
	if params.Limit < 0 || params.After < 0 {
		return nil, invalidParams("limit and after must not be negative", nil)
	}
	evts, err := s.events.List(r.Context(), indexer.Filter{
		AssetID: params.AssetID,
		Type:    params.Type,
		Limit:   params.Limit,
		After:   params.After,
	})
	if err != nil {
		return nil, errorFailure(err)
	}
	if evts == nil {
		evts = []indexer.StoredEvent{}
	}
	return evts, nil
}
