package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/guardian-recovery/api/clients"
	"github.com/ruteri/guardian-recovery/cryptoutils"
	"github.com/ruteri/guardian-recovery/kms"
	"github.com/urfave/cli/v2"
)

var flagServerAddr *cli.StringFlag = &cli.StringFlag{
	Name:  "server-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "Recovery server to unseal",
}
var flagPrivkeyFile *cli.StringFlag = &cli.StringFlag{
	Name:     "privkey-file",
	Required: true,
	EnvVars:  []string{"OPERATOR_PRIVKEY_FILE"},
	Usage:    "Operator private key (PEM)",
}
var flagPubkeyFile *cli.StringFlag = &cli.StringFlag{
	Name:     "pubkey-file",
	Required: true,
	Usage:    "Operator public key (PEM), as registered in the operators file",
}
var flagSharesFile *cli.StringFlag = &cli.StringFlag{
	Name:     "shares-file",
	Required: true,
	Usage:    "Shares file produced by recovery-server seal-init",
}

func main() {
	app := &cli.App{
		Name:           "operator client",
		Usage:          "Manage operator keys and unseal a recovery server",
		DefaultCommand: "status",
		Commands: []*cli.Command{
			&cli.Command{
				Name:  "status",
				Usage: "Show the unseal progress",
				Flags: []cli.Flag{flagServerAddr},
				Action: func(cCtx *cli.Context) error {
					client := clients.NewRecoveryClient(cCtx.String(flagServerAddr.Name))
					status, err := client.SealStatus(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(status)
				},
			},
			&cli.Command{
				Name:  "generate-key",
				Usage: "Generate an operator key pair",
				Flags: []cli.Flag{flagPrivkeyFile, flagPubkeyFile},
				Action: func(cCtx *cli.Context) error {
					privPEM, pubPEM, err := kms.GenerateOperatorKeyPair()
					if err != nil {
						return err
					}
					if err := os.WriteFile(cCtx.String(flagPrivkeyFile.Name), privPEM, 0600); err != nil {
						return err
					}
					if err := os.WriteFile(cCtx.String(flagPubkeyFile.Name), pubPEM, 0600); err != nil {
						return err
					}
					fmt.Printf("Operator fingerprint: %s\n", kms.Fingerprint(pubPEM))
					return nil
				},
			},
			&cli.Command{
				Name:  "submit-share",
				Usage: "Decrypt this operator's share and submit it to the server",
				Flags: []cli.Flag{flagServerAddr, flagPrivkeyFile, flagPubkeyFile, flagSharesFile},
				Action: func(cCtx *cli.Context) error {
					privPEM, err := os.ReadFile(cCtx.String(flagPrivkeyFile.Name))
					if err != nil {
						return err
					}
					pubPEM, err := os.ReadFile(cCtx.String(flagPubkeyFile.Name))
					if err != nil {
						return err
					}
					sharesData, err := os.ReadFile(cCtx.String(flagSharesFile.Name))
					if err != nil {
						return err
					}

					privateKey, err := kms.ParseOperatorPrivateKey(privPEM)
					if err != nil {
						return err
					}

					var shares kms.SharesFile
					if err := json.Unmarshal(sharesData, &shares); err != nil {
						return fmt.Errorf("failed to parse shares file: %w", err)
					}
					encrypted, err := shares.ShareFor(pubPEM)
					if err != nil {
						return err
					}

					share, err := kms.DecryptShare(encrypted.EncryptedShare, privateKey)
					if err != nil {
						return err
					}
					defer cryptoutils.WipeBytes(share)

					signature, err := kms.SignShare(share, privateKey)
					if err != nil {
						return fmt.Errorf("failed to sign share: %w", err)
					}

					client := clients.NewRecoveryClient(cCtx.String(flagServerAddr.Name))
					status, err := client.SubmitSealShare(cCtx.Context, share, signature, pubPEM)
					if err != nil {
						return err
					}
					return printJSON(status)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
