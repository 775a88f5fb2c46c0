package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/sigauth/adapters/attestation"
	"github.com/layer-3/sigauth/config"
	"github.com/layer-3/sigauth/core"
	"github.com/layer-3/sigauth/internal/eth"
	"github.com/urfave/cli/v2"
)

var (
	urlFlag = &cli.StringFlag{
		Name:    "url",
		Usage:   "base URL of the service",
		Value:   "http://localhost:9000",
		EnvVars: []string{"SIGAUTH_URL"},
	}
	tokenFlag = &cli.StringFlag{
		Name:    "token",
		Usage:   "caller attestation token",
		EnvVars: []string{"SIGAUTH_TOKEN"},
	}
	keyFlag = &cli.StringFlag{
		Name:    "key",
		Usage:   "hex encoded secp256k1 account key",
		EnvVars: []string{"SIGAUTH_ACCOUNT_KEY"},
	}
)

func main() {
	app := &cli.App{
		Name:  "authctl",
		Usage: "sign login messages and talk to the sigauth service",
		Commands: []*cli.Command{
			messageCommand,
			signCommand,
			keygenCommand,
			tokenCommand,
			verifyCommand,
			revokeCommand,
			statusCommand,
			historyCommand,
			ledgerCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var messageCommand = &cli.Command{
	Name:      "message",
	Usage:     "print the login message of an account",
	ArgsUsage: "<address>",
	Action: func(c *cli.Context) error {
		account, err := addressArg(c)
		if err != nil {
			return err
		}
		fmt.Println(core.LoginMessage(account))
		return nil
	},
}

var signCommand = &cli.Command{
	Name:  "sign",
	Usage: "sign a message with an account key",
	Flags: []cli.Flag{
		keyFlag,
		&cli.StringFlag{Name: "message", Usage: "message to sign, defaults to the key's login message"},
	},
	Action: func(c *cli.Context) error {
		key, err := accountKey(c)
		if err != nil {
			return err
		}
		message := c.String("message")
		if message == "" {
			message = core.LoginMessage(crypto.PubkeyToAddress(key.PublicKey))
		}
		sig, err := eth.SignMessage(message, key)
		if err != nil {
			return err
		}
		fmt.Println(hexutil.Encode(sig))
		return nil
	},
}

var keygenCommand = &cli.Command{
	Name:  "keygen",
	Usage: "generate a P-256 attestation issuer key",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "out", Usage: "output PEM file", Required: true},
	},
	Action: func(c *cli.Context) error {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return err
		}
		return config.WritePrivateKey(c.String("out"), key)
	},
}

var tokenCommand = &cli.Command{
	Name:      "token",
	Usage:     "issue a caller attestation token",
	ArgsUsage: "<address>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "issuer-key", Usage: "issuer PEM file", Required: true},
		&cli.DurationFlag{Name: "ttl", Usage: "token lifetime", Value: defaultTokenTTL},
	},
	Action: func(c *cli.Context) error {
		account, err := addressArg(c)
		if err != nil {
			return err
		}
		key, err := config.LoadIssuerKey(c.String("issuer-key"))
		if err != nil {
			return err
		}
		token, err := attestation.NewJWTIssuer(key).Issue(account, c.Duration("ttl"))
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var verifyCommand = &cli.Command{
	Name:  "verify",
	Usage: "authenticate the attested caller",
	Flags: []cli.Flag{
		urlFlag,
		tokenFlag,
		keyFlag,
		&cli.StringFlag{Name: "message", Usage: "signed message, used with --signature"},
		&cli.StringFlag{Name: "signature", Usage: "0x hex signature, used with --message"},
	},
	Action: func(c *cli.Context) error {
		client := newClient(c)

		var (
			receipt *core.Receipt
			err     error
		)
		if c.IsSet("signature") {
			sig, perr := eth.ParseSignature(c.String("signature"))
			if perr != nil {
				return perr
			}
			receipt, err = client.Verify(c.Context, c.String("message"), sig)
		} else {
			key, kerr := accountKey(c)
			if kerr != nil {
				return kerr
			}
			receipt, err = client.Authenticate(c.Context, key)
		}
		if err != nil {
			return err
		}
		return printJSON(receipt)
	},
}

var revokeCommand = &cli.Command{
	Name:  "revoke",
	Usage: "revoke the attested caller's authentication",
	Flags: []cli.Flag{urlFlag, tokenFlag},
	Action: func(c *cli.Context) error {
		receipt, err := newClient(c).Revoke(c.Context)
		if err != nil {
			return err
		}
		return printJSON(receipt)
	},
}

var statusCommand = &cli.Command{
	Name:      "status",
	Usage:     "show the authentication status of an account",
	ArgsUsage: "<address>",
	Flags:     []cli.Flag{urlFlag},
	Action: func(c *cli.Context) error {
		account, err := addressArg(c)
		if err != nil {
			return err
		}
		status, err := newClient(c).Status(c.Context, account)
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	},
}

var historyCommand = &cli.Command{
	Name:      "history",
	Usage:     "list the ledger events of an account",
	ArgsUsage: "<address>",
	Flags:     []cli.Flag{urlFlag},
	Action: func(c *cli.Context) error {
		account, err := addressArg(c)
		if err != nil {
			return err
		}
		events, err := newClient(c).History(c.Context, account)
		if err != nil {
			return err
		}
		return printJSON(events)
	},
}

var ledgerCommand = &cli.Command{
	Name:  "ledger",
	Usage: "check the integrity of the event log",
	Flags: []cli.Flag{urlFlag},
	Action: func(c *cli.Context) error {
		report, err := newClient(c).Ledger(c.Context)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}
