package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/sigauth"
	"github.com/urfave/cli/v2"
)

const defaultTokenTTL = 5 * time.Minute

func newClient(c *cli.Context) *sigauth.HTTPClient {
	var opts []sigauth.ClientOption
	if token := c.String("token"); token != "" {
		opts = append(opts, sigauth.WithAttestation(token))
	}
	return sigauth.NewHTTPClient(c.String("url"), opts...)
}

func addressArg(c *cli.Context) (common.Address, error) {
	if c.NArg() != 1 {
		return common.Address{}, fmt.Errorf("expected exactly one address argument")
	}
	raw := c.Args().First()
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func accountKey(c *cli.Context) (*ecdsa.PrivateKey, error) {
	raw := c.String("key")
	if raw == "" {
		return nil, fmt.Errorf("missing --key")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid account key: %w", err)
	}
	return key, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
