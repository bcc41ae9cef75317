package rpc

import (
	"encoding/json"
	"net/http"

	"deedescrow/core/types"
)

type ownerResult struct {
	AssetID uint64 `json:"assetId"`
	Owner   string `json:"owner"`
}

type approvedResult struct {
	AssetID uint64 `json:"assetId"`
	Spender string `json:"spender,omitempty"`
}

type uriResult struct {
	AssetID uint64 `json:"assetId"`
	URI     string `json:"uri"`
}

type supplyResult struct {
	Supply uint64 `json:"supply"`
}

func (s *Server) handleRegistryOwnerOf(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	var params assetParams
	if fail := decodeParams(req, &params); fail != nil {
		return nil, fail
	}
	owner, err := s.node.OwnerOf(params.AssetID)
	if err != nil {
		return nil, errorFailure(err)
	}
	return ownerResult{AssetID: params.AssetID, Owner: formatAddress(owner)}, nil
}

func (s *Server) handleRegistryGetApproved(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	var params assetParams
	if fail := decodeParams(req, &params); fail != nil {
		return nil, fail
	}
	spender, err := s.node.GetApproved(params.AssetID)
	if err != nil {
		return nil, errorFailure(err)
	}
	result := approvedResult{AssetID: params.AssetID}
	if spender != ([20]byte{}) {
		result.Spender = formatAddress(spender)
	}
	return result, nil
}

func (s *Server) handleRegistryTokenURI(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	var params assetParams
	if fail := decodeParams(req, &params); fail != nil {
		return nil, fail
	}
	uri, err := s.node.TokenURI(params.AssetID)
	if err != nil {
		return nil, errorFailure(err)
	}
	return uriResult{AssetID: params.AssetID, URI: uri}, nil
}

func (s *Server) handleRegistryTotalSupply(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	supply, err := s.node.TotalSupply()
	if err != nil {
		return nil, errorFailure(err)
	}
	return supplyResult{Supply: supply}, nil
}

func (s *Server) handleBankGetAccount(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	var params addressParams
	if fail := decodeParams(req, &params); fail != nil {
		return nil, fail
	}
	addr, fail := decodeAddress(params.Address)
	if fail != nil {
		return nil, fail
	}
	acc, err := s.node.Account(addr)
	if err != nil {
		return nil, errorFailure(err)
	}
	assets, err := s.node.BalanceOf(addr)
	if err != nil {
		return nil, errorFailure(err)
	}
	return accountResult(addr, acc, assets), nil
}

func (s *Server) handleChainInfo(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	seq, err := s.node.Sequence()
	if err != nil {
		return nil, errorFailure(err)
	}
	return ChainInfoResult{ChainID: s.node.ChainID(), Sequence: seq}, nil
}

// handleSendTransaction applies a signed transaction and returns its receipt.
func (s *Server) handleSendTransaction(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	if len(req.Params) != 1 {
		return nil, invalidParams("transaction parameter required", nil)
	}
	var tx types.Transaction
	if err := json.Unmarshal(req.Params[0], &tx); err != nil {
		return nil, invalidParams("invalid transaction format", err.Error())
	}
	receipt, err := s.node.SubmitTransaction(r.Context(), &tx)
	if err != nil {
		return nil, errorFailure(err)
	}
	return receipt, nil
}
