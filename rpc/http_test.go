package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deedescrow/core"
	"deedescrow/core/types"
	"deedescrow/crypto"
	"deedescrow/indexer"
	"deedescrow/native/escrow"
	"deedescrow/storage"
)

const testChainID = 31337

type testKey struct {
	key   *crypto.PrivateKey
	addr  [20]byte
	nonce uint64
}

func newTestKey(t *testing.T) *testKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return &testKey{key: key, addr: key.PubKey().Address().Array()}
}

func (k *testKey) String() string { return crypto.FromArray(k.addr).String() }

type rpcFixture struct {
	t       *testing.T
	server  *Server
	handler http.Handler
	node    *core.Node

	seller, buyer, inspector, lender *testKey
}

func newRPCFixture(t *testing.T, cfg ServerConfig) *rpcFixture {
	t.Helper()
	f := &rpcFixture{
		t:         t,
		seller:    newTestKey(t),
		buyer:     newTestKey(t),
		inspector: newTestKey(t),
		lender:    newTestKey(t),
	}
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	store, err := indexer.NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	node, err := core.NewNode(db, core.ProcessorConfig{
		ChainID: testChainID,
		Roles:   escrow.Roles{Seller: f.seller.addr, Inspector: f.inspector.addr, Lender: f.lender.addr},
	}, core.WithReceiptHandler(store))
	require.NoError(t, err)
	require.NoError(t, node.ApplyGenesis(context.Background(), core.Genesis{
		Accounts: []core.GenesisAccount{{Address: f.buyer.addr, Balance: big.NewInt(1_000)}},
		Assets:   []core.GenesisAsset{{Owner: f.seller.addr, URI: "ipfs://deed/1", ApproveEscrow: true}},
	}))
	f.node = node
	f.server = NewServer(node, store, cfg)
	f.handler = f.server.Handler()
	return f
}

func (f *rpcFixture) call(method string, params interface{}, header http.Header) (*httptest.ResponseRecorder, RPCResponse) {
	f.t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(f.t, err)
	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	httpReq.RemoteAddr = "192.0.2.1:4000"
	for k, v := range header {
		httpReq.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httpReq)
	var resp RPCResponse
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func (f *rpcFixture) signed(from *testKey, txType types.TxType, payload interface{}, value int64) *types.Transaction {
	f.t.Helper()
	data, err := types.EncodePayload(payload)
	require.NoError(f.t, err)
	tx := &types.Transaction{ChainID: testChainID, Type: txType, Nonce: from.nonce, Data: data}
	if value > 0 {
		tx.Value = big.NewInt(value)
	}
	require.NoError(f.t, tx.Sign(from.key.PrivateKey))
	return tx
}

func (f *rpcFixture) send(from *testKey, txType types.TxType, payload interface{}, value int64) RPCResponse {
	f.t.Helper()
	rec, resp := f.call("tx_send", f.signed(from, txType, payload, value), nil)
	if resp.Error == nil {
		require.Equal(f.t, http.StatusOK, rec.Code)
		from.nonce++
	}
	return resp
}

func decodeResult(t *testing.T, resp RPCResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestSaleThroughRPC(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{})
	asset := map[string]uint64{"assetId": 1}

	resp := f.send(f.seller, types.TxTypeEscrowList, types.EscrowListPayload{
		AssetID: 1, Buyer: f.buyer.String(), PurchasePrice: "1000", EscrowAmount: "200",
	}, 0)
	var receipt types.Receipt
	decodeResult(t, resp, &receipt)
	require.Equal(t, uint64(1), receipt.Sequence)

	require.Nil(t, f.send(f.buyer, types.TxTypeEscrowDeposit, asset, 1000).Error)
	require.Nil(t, f.send(f.inspector, types.TxTypeEscrowInspect, types.EscrowInspectPayload{AssetID: 1, Passed: true}, 0).Error)
	for _, k := range []*testKey{f.buyer, f.seller, f.lender} {
		require.Nil(t, f.send(k, types.TxTypeEscrowApprove, asset, 0).Error)
	}

	_, resp = f.call("escrow_getListing", asset, nil)
	var listing ListingResult
	decodeResult(t, resp, &listing)
	require.Equal(t, "listed", listing.Status)
	require.Equal(t, "1000", listing.Held)
	require.Len(t, listing.Approvals, 3)

	_, resp = f.call("escrow_getBalance", asset, nil)
	var bal BalanceResult
	decodeResult(t, resp, &bal)
	require.Equal(t, "1000", bal.Balance)
	require.Equal(t, "1000", bal.Held)

	require.Nil(t, f.send(f.seller, types.TxTypeEscrowFinalize, asset, 0).Error)

	_, resp = f.call("registry_ownerOf", asset, nil)
	var owner ownerResult
	decodeResult(t, resp, &owner)
	require.Equal(t, f.buyer.String(), owner.Owner)

	_, resp = f.call("bank_getAccount", map[string]string{"address": f.seller.String()}, nil)
	var acc AccountResult
	decodeResult(t, resp, &acc)
	require.Equal(t, "1000", acc.Balance)
	require.Equal(t, uint64(3), acc.Nonce)

	_, resp = f.call("escrow_listEvents", map[string]interface{}{"assetId": 1, "type": "escrow.sale_finalized"}, nil)
	var evts []indexer.StoredEvent
	decodeResult(t, resp, &evts)
	require.Len(t, evts, 1)
	require.Equal(t, f.seller.String(), evts[0].Attributes["seller"])
}

func TestParkedRefundThroughRPC(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{})
	asset := map[string]uint64{"assetId": 1}
	refundQuery := map[string]interface{}{"assetId": 1, "address": f.buyer.String()}

	require.Nil(t, f.send(f.seller, types.TxTypeEscrowList, types.EscrowListPayload{
		AssetID: 1, Buyer: f.buyer.String(), PurchasePrice: "1000", EscrowAmount: "200",
	}, 0).Error)
	require.Nil(t, f.send(f.buyer, types.TxTypeEscrowDeposit, asset, 200).Error)
	require.Nil(t, f.send(f.buyer, types.TxTypeSetPaymentPolicy, types.PaymentPolicyPayload{Reject: true}, 0).Error)

	_, resp := f.call("escrow_getListing", asset, nil)
	var listing ListingResult
	decodeResult(t, resp, &listing)
	require.Equal(t, "200", listing.Held)
	require.Equal(t, "0", listing.Loan)

	require.Nil(t, f.send(f.seller, types.TxTypeEscrowCancel, asset, 0).Error)

	_, resp = f.call("escrow_getRefund", refundQuery, nil)
	var refund RefundResult
	decodeResult(t, resp, &refund)
	require.Equal(t, "200", refund.Amount)
	require.Equal(t, f.buyer.String(), refund.Address)

	resp = f.send(f.buyer, types.TxTypeEscrowClaimRefund, asset, 0)
	require.NotNil(t, resp.Error)
	require.Equal(t, "PaymentFailed", resp.Error.Message)

	require.Nil(t, f.send(f.buyer, types.TxTypeSetPaymentPolicy, types.PaymentPolicyPayload{Reject: false}, 0).Error)
	require.Nil(t, f.send(f.buyer, types.TxTypeEscrowClaimRefund, asset, 0).Error)

	_, resp = f.call("escrow_getRefund", refundQuery, nil)
	decodeResult(t, resp, &refund)
	require.Equal(t, "0", refund.Amount)

	resp = f.send(f.buyer, types.TxTypeEscrowClaimRefund, asset, 0)
	require.NotNil(t, resp.Error)
	require.Equal(t, -32115, resp.Error.Code)
	require.Equal(t, "NoRefund", resp.Error.Message)
}

func TestDomainErrorsCarryStableCodes(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{})

	rec, resp := f.call("tx_send", f.signed(f.buyer, types.TxTypeEscrowList, types.EscrowListPayload{
		AssetID: 1, Buyer: f.buyer.String(), PurchasePrice: "10",
	}, 0), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, -32100, resp.Error.Code)
	require.Equal(t, "Unauthorized", resp.Error.Message)

	rec, resp = f.call("escrow_getListing", map[string]uint64{"assetId": 9}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NotListed", resp.Error.Message)

	rec, resp = f.call("registry_ownerOf", map[string]uint64{"assetId": 9}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "TokenNotFound", resp.Error.Message)

	rec, resp = f.call("bank_getAccount", map[string]string{"address": "bogus"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	rec, resp = f.call("escrow_nope", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestSendRequiresBearerToken(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{AuthToken: "s3cret"})
	tx := f.signed(f.buyer, types.TxTypeEscrowApprove, map[string]uint64{"assetId": 1}, 0)

	rec, resp := f.call("tx_send", tx, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	rec, _ = f.call("tx_send", tx, http.Header{"Authorization": {"Bearer wrong"}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// reads stay open
	_, resp = f.call("escrow_getRoles", nil, nil)
	var roles RolesResult
	decodeResult(t, resp, &roles)
	require.Equal(t, f.seller.String(), roles.Seller)

	// authorised, but no listing yet
	rec, resp = f.call("tx_send", tx, http.Header{"Authorization": {"Bearer s3cret"}})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NotListed", resp.Error.Message)
}

func TestRateLimitPerClient(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{RateLimitPerSec: 1, RateLimitBurst: 2})
	now := time.Unix(1_700_000_000, 0)
	f.server.clockNow = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		rec, _ := f.call("registry_totalSupply", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, resp := f.call("registry_totalSupply", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, codeRateLimited, resp.Error.Code)

	now = now.Add(time.Second)
	rec, _ = f.call("registry_totalSupply", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEnvelopeValidation(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{MaxBodyBytes: 64})

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"x","params":[{"pad":"`+strings.Repeat("a", 128)+`"}]}`)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"1.0","id":1,"method":"x"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzAndRequestID(t *testing.T) {
	f := newRPCFixture(t, ServerConfig{})
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestClientSourceIgnoresForwardedForWhenNotTrusted(t *testing.T) {
	server := NewServer(nil, nil, ServerConfig{})
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	require.Equal(t, "10.0.0.5", server.clientSource(req))

	trusted := NewServer(nil, nil, ServerConfig{TrustProxyHeaders: true})
	require.Equal(t, "203.0.113.9", trusted.clientSource(req))
}
