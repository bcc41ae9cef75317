package main

import (
	"errors"
	"flag"
	"fmt"
	"math/big"

	"deedescrow/core/types"
	"deedescrow/crypto"
)

// txFlags are shared by every command that submits a transaction.
type txFlags struct {
	signer  signerFlags
	nonce   int64
	chainID uint64
}

func (t *txFlags) register(fs *flag.FlagSet) {
	t.signer.register(fs)
	fs.Int64Var(&t.nonce, "nonce", -1, "override the account nonce (default: query the node)")
	fs.Uint64Var(&t.chainID, "chain-id", 0, "override the chain id (default: query the node)")
}

// submit signs a transaction of the given type and payload and sends it.
func (c *cli) submit(opts *txFlags, txType types.TxType, payload interface{}, value *big.Int) error {
	key, err := opts.signer.load(c)
	if err != nil {
		return err
	}
	from := key.PubKey().Address()

	chainID := opts.chainID
	if chainID == 0 {
		var info struct {
			ChainID uint64 `json:"chainId"`
		}
		if err := c.query("chain_info", nil, &info); err != nil {
			return fmt.Errorf("chain_info: %w", err)
		}
		chainID = info.ChainID
	}

	var nonce uint64
	if opts.nonce >= 0 {
		nonce = uint64(opts.nonce)
	} else {
		var account struct {
			Nonce uint64 `json:"nonce"`
		}
		if err := c.query("bank_getAccount", map[string]string{"address": from.String()}, &account); err != nil {
			return fmt.Errorf("bank_getAccount: %w", err)
		}
		nonce = account.Nonce
	}

	data, err := types.EncodePayload(payload)
	if err != nil {
		return err
	}
	tx := &types.Transaction{ChainID: chainID, Type: txType, Nonce: nonce, Value: value, Data: data}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	raw, err := c.call(c.endpoint, c.token, "tx_send", tx)
	if err != nil {
		return err
	}
	return c.print(raw)
}

func parseAssetFlag(fs *flag.FlagSet) *uint64 {
	return fs.Uint64("asset", 0, "asset id")
}

func requireAsset(id uint64) error {
	if id == 0 {
		return errors.New("--asset is required")
	}
	return nil
}

func runMint(c *cli, args []string) error {
	fs := c.flags("mint")
	var opts txFlags
	opts.register(fs)
	uri := fs.String("uri", "", "metadata URI of the deed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.submit(&opts, types.TxTypeRegistryMint, types.RegistryMintPayload{URI: *uri}, nil)
}

func runApproveAsset(c *cli, args []string) error {
	fs := c.flags("approve-asset")
	var opts txFlags
	opts.register(fs)
	asset := parseAssetFlag(fs)
	spender := fs.String("spender", "", "approved spender (default: the escrow account)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireAsset(*asset); err != nil {
		return err
	}
	target := *spender
	if target == "" {
		var roles struct {
			Escrow string `json:"escrow"`
		}
		if err := c.query("escrow_getRoles", nil, &roles); err != nil {
			return fmt.Errorf("escrow_getRoles: %w", err)
		}
		target = roles.Escrow
	}
	if _, err := crypto.ParseAddress(target); err != nil {
		return fmt.Errorf("invalid spender: %w", err)
	}
	return c.submit(&opts, types.TxTypeRegistryApprove, types.RegistryApprovePayload{AssetID: *asset, Spender: target}, nil)
}

func runList(c *cli, args []string) error {
	fs := c.flags("list")
	var opts txFlags
	opts.register(fs)
	asset := parseAssetFlag(fs)
	buyer := fs.String("buyer", "", "designated buyer address")
	price := fs.String("price", "", "purchase price")
	earnest := fs.String("escrow", "", "earnest amount the buyer must deposit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireAsset(*asset); err != nil {
		return err
	}
	if _, err := crypto.ParseAddress(*buyer); err != nil {
		return fmt.Errorf("invalid buyer: %w", err)
	}
	if _, err := types.ParseAmount(*price); err != nil {
		return fmt.Errorf("--price: %w", err)
	}
	if _, err := types.ParseAmount(*earnest); err != nil {
		return fmt.Errorf("--escrow: %w", err)
	}
	payload := types.EscrowListPayload{AssetID: *asset, Buyer: *buyer, PurchasePrice: *price, EscrowAmount: *earnest}
	return c.submit(&opts, types.TxTypeEscrowList, payload, nil)
}

func runDeposit(c *cli, args []string) error {
	return runPayable(c, "deposit", types.TxTypeEscrowDeposit, args)
}

func runFund(c *cli, args []string) error {
	return runPayable(c, "fund", types.TxTypeEscrowFundLoan, args)
}

func runPayable(c *cli, name string, txType types.TxType, args []string) error {
	fs := c.flags(name)
	var opts txFlags
	opts.register(fs)
	asset := parseAssetFlag(fs)
	amount := fs.String("amount", "", "value to attach")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireAsset(*asset); err != nil {
		return err
	}
	value, err := types.ParseAmount(*amount)
	if err != nil {
		return fmt.Errorf("--amount: %w", err)
	}
	return c.submit(&opts, txType, types.EscrowAssetPayload{AssetID: *asset}, value)
}

func runInspect(c *cli, args []string) error {
	fs := c.flags("inspect")
	var opts txFlags
	opts.register(fs)
	asset := parseAssetFlag(fs)
	passed := fs.Bool("passed", false, "whether the inspection passed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireAsset(*asset); err != nil {
		return err
	}
	return c.submit(&opts, types.TxTypeEscrowInspect, types.EscrowInspectPayload{AssetID: *asset, Passed: *passed}, nil)
}

func runApprove(c *cli, args []string) error {
	return runAssetTx(c, "approve", types.TxTypeEscrowApprove, args)
}

func runFinalize(c *cli, args []string) error {
	return runAssetTx(c, "finalize", types.TxTypeEscrowFinalize, args)
}

func runCancel(c *cli, args []string) error {
	return runAssetTx(c, "cancel", types.TxTypeEscrowCancel, args)
}

func runClaim(c *cli, args []string) error {
	return runAssetTx(c, "claim", types.TxTypeEscrowClaimRefund, args)
}

func runAssetTx(c *cli, name string, txType types.TxType, args []string) error {
	fs := c.flags(name)
	var opts txFlags
	opts.register(fs)
	asset := parseAssetFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireAsset(*asset); err != nil {
		return err
	}
	return c.submit(&opts, txType, types.EscrowAssetPayload{AssetID: *asset}, nil)
}

