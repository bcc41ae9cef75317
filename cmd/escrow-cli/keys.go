package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"deedescrow/cmd/internal/passphrase"
	"deedescrow/crypto"
)

// signerFlags selects the key a transaction is signed with.
type signerFlags struct {
	keystore string
	key      string
}

func (s *signerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.keystore, "keystore", "", "path to an encrypted keystore file")
	fs.StringVar(&s.key, "key", "", "hex private key (falls back to "+privateKeyEnv+")")
}

func (s *signerFlags) load(c *cli) (*crypto.PrivateKey, error) {
	if s.keystore != "" && s.key != "" {
		return nil, errors.New("--keystore and --key are mutually exclusive")
	}
	if s.keystore != "" {
		pass, err := passphrase.NewSource(keystorePass).WithPrompt(c.stderr).Get()
		if err != nil {
			return nil, err
		}
		key, err := crypto.LoadFromKeystore(s.keystore, pass)
		if err != nil {
			return nil, fmt.Errorf("load keystore: %w", err)
		}
		return key, nil
	}
	raw := s.key
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv(privateKeyEnv))
	}
	if raw == "" {
		return nil, errors.New("a signing key is required (--keystore or --key)")
	}
	key, err := crypto.PrivateKeyFromHex(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

func runKeygen(c *cli, args []string) error {
	fs := c.flags("keygen")
	out := fs.String("out", "", "keystore file to write")
	light := fs.Bool("light", false, "use light scrypt parameters (development only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("--out is required")
	}
	if _, err := os.Stat(*out); err == nil {
		return fmt.Errorf("%s already exists", *out)
	}
	pass, err := passphrase.NewSource(keystorePass).WithPrompt(c.stderr).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	save := crypto.SaveToKeystore
	if *light {
		save = crypto.SaveToKeystoreLight
	}
	if err := save(*out, key, pass); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintln(c.stdout, key.PubKey().Address().String())
	return nil
}

func runAddress(c *cli, args []string) error {
	fs := c.flags("address")
	var signer signerFlags
	signer.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := signer.load(c)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, key.PubKey().Address().String())
	return nil
}
