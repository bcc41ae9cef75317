package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	rpcURLEnv     = "DEED_RPC_URL"
	rpcTokenEnv   = "DEED_RPC_TOKEN"
	keystorePass  = "DEED_KEYSTORE_PASS"
	privateKeyEnv = "DEED_PRIVATE_KEY"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type command struct {
	name    string
	summary string
	run     func(c *cli, args []string) error
}

var commands = []command{
	{"keygen", "generate a key and write it to a keystore", runKeygen},
	{"address", "print the address of a key", runAddress},
	{"mint", "mint a new asset to the signer", runMint},
	{"approve-asset", "approve a spender (default: the escrow account) for an asset", runApproveAsset},
	{"list", "list an asset for sale (seller)", runList},
	{"deposit", "deposit earnest money (buyer)", runDeposit},
	{"fund", "fund the loan for a listing (lender)", runFund},
	{"inspect", "record the inspection outcome (inspector)", runInspect},
	{"approve", "approve the sale", runApprove},
	{"finalize", "finalize the sale", runFinalize},
	{"cancel", "cancel the sale (seller or buyer)", runCancel},
	{"claim", "collect a refund parked by a cancellation", runClaim},
	{"listing", "show a listing", runListing},
	{"approval", "show whether an address approved a sale", runApproval},
	{"refund", "show the refund parked for an address", runRefund},
	{"balance", "show the escrow balance, optionally for one asset", runBalance},
	{"owner", "show the owner of an asset", runOwner},
	{"events", "list indexed events", runEvents},
}

// cli carries the global options shared by every subcommand.
type cli struct {
	endpoint string
	token    string
	stdout   io.Writer
	stderr   io.Writer
	call     rpcCaller
}

func usage() string {
	var b strings.Builder
	b.WriteString("Usage: escrow-cli [--rpc URL] [--token TOKEN] <command> [flags]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(&b, "  %-14s %s\n", cmd.name, cmd.summary)
	}
	return b.String()
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("escrow-cli", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage()) }
	endpoint := global.String("rpc", envOr(rpcURLEnv, "http://127.0.0.1:8545"), "JSON-RPC endpoint")
	token := global.String("token", os.Getenv(rpcTokenEnv), "bearer token for tx_send")
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage())
		return 1
	}

	c := &cli{endpoint: *endpoint, token: *token, stdout: stdout, stderr: stderr, call: rpcCall}
	for _, cmd := range commands {
		if cmd.name != rest[0] {
			continue
		}
		if err := cmd.run(c, rest[1:]); err != nil {
			if err == flag.ErrHelp {
				return 0
			}
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(stderr, "Unknown command: %s\n", rest[0])
	fmt.Fprint(stderr, usage())
	return 1
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("escrow-cli "+name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
