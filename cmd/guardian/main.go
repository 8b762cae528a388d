package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/guardian-recovery/api/clients"
	"github.com/ruteri/guardian-recovery/cryptoutils"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/ruteri/guardian-recovery/recovery"
	"github.com/urfave/cli/v2"
)

var flagServerAddr *cli.StringFlag = &cli.StringFlag{
	Name:  "server-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "Recovery server to connect to",
}
var flagPrivateKey *cli.StringFlag = &cli.StringFlag{
	Name:     "privkey",
	Required: true,
	EnvVars:  []string{"GUARDIAN_PRIVKEY"},
	Usage:    "Guardian secp256k1 private key, hex",
}
var flagWallet *cli.StringFlag = &cli.StringFlag{
	Name:     "wallet",
	Required: true,
	Usage:    "Wallet address being protected",
}
var flagRequestID *cli.StringFlag = &cli.StringFlag{
	Name:     "request-id",
	Required: true,
	Usage:    "Recovery request ID",
}
var flagShareFile *cli.StringFlag = &cli.StringFlag{
	Name:  "share-file",
	Usage: "File holding the guardian's opened share; defaults to <share-dir>/<wallet>.json",
}
var flagShareDir *cli.StringFlag = &cli.StringFlag{
	Name:  "share-dir",
	Value: ".",
	Usage: "Directory where opened shares are kept",
}
var flagPayload *cli.StringFlag = &cli.StringFlag{
	Name:     "payload",
	Required: true,
	Usage:    "Encrypted share payload, hex",
}

var flagNewPassword *cli.StringFlag = &cli.StringFlag{
	Name:     "new-password",
	Required: true,
	EnvVars:  []string{"GUARDIAN_NEW_PASSWORD"},
	Usage:    "Password protecting the recovered key",
}

func main() {
	app := &cli.App{
		Name:  "guardian",
		Usage: "Guardian-side tooling for wallet recovery",
		Commands: []*cli.Command{
			&cli.Command{
				Name:  "keygen",
				Usage: "Generate a guardian key",
				Action: func(cCtx *cli.Context) error {
					key, err := crypto.GenerateKey()
					if err != nil {
						return fmt.Errorf("failed to generate key: %w", err)
					}
					return printJSON(map[string]string{
						"address":    crypto.PubkeyToAddress(key.PublicKey).Hex(),
						"public_key": hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)),
						"privkey":    hexutil.Encode(crypto.FromECDSA(key)),
					})
				},
			},
			&cli.Command{
				Name:  "open-share",
				Usage: "Decrypt a share payload delivered at setup",
				Flags: []cli.Flag{flagPrivateKey, flagWallet, flagPayload, flagShareFile, flagShareDir},
				Action: func(cCtx *cli.Context) error {
					key, wallet, err := keyAndWallet(cCtx)
					if err != nil {
						return err
					}
					payload, err := hexutil.Decode(cCtx.String(flagPayload.Name))
					if err != nil {
						return fmt.Errorf("invalid payload: %w", err)
					}
					share, err := cryptoutils.OpenShare(key, wallet, payload)
					if err != nil {
						return err
					}
					return saveShare(shareFile(cCtx, wallet), share)
				},
			},
			&cli.Command{
				Name:  "sign-approval",
				Usage: "Print the signature approving a recovery request",
				Flags: []cli.Flag{flagPrivateKey, flagWallet, flagRequestID, flagShareFile, flagShareDir},
				Action: func(cCtx *cli.Context) error {
					key, wallet, err := keyAndWallet(cCtx)
					if err != nil {
						return err
					}
					share, err := loadShare(shareFile(cCtx, wallet))
					if err != nil {
						return err
					}
					defer share.Wipe()

					sig, err := cryptoutils.SignMessage(key, recovery.ApprovalMessage(wallet, cCtx.String(flagRequestID.Name), share))
					if err != nil {
						return err
					}
					fmt.Println(hexutil.Encode(sig))
					return nil
				},
			},
			&cli.Command{
				Name:  "approve",
				Usage: "Approve a recovery request with the stored share",
				Flags: []cli.Flag{flagServerAddr, flagPrivateKey, flagWallet, flagRequestID, flagShareFile, flagShareDir},
				Action: func(cCtx *cli.Context) error {
					key, wallet, err := keyAndWallet(cCtx)
					if err != nil {
						return err
					}
					share, err := loadShare(shareFile(cCtx, wallet))
					if err != nil {
						return err
					}
					defer share.Wipe()

					sig, err := cryptoutils.SignMessage(key, recovery.ApprovalMessage(wallet, cCtx.String(flagRequestID.Name), share))
					if err != nil {
						return err
					}

					client := clients.NewRecoveryClient(cCtx.String(flagServerAddr.Name))
					res, err := client.ApproveRecovery(cCtx.Context, wallet, crypto.PubkeyToAddress(key.PublicKey), share, sig)
					if err != nil {
						return err
					}
					return printJSON(res)
				},
			},
			&cli.Command{
				Name:  "complete",
				Usage: "Complete an approved recovery this key initiated",
				Flags: []cli.Flag{flagServerAddr, flagPrivateKey, flagWallet, flagRequestID, flagNewPassword},
				Action: func(cCtx *cli.Context) error {
					key, wallet, err := keyAndWallet(cCtx)
					if err != nil {
						return err
					}
					password := cCtx.String(flagNewPassword.Name)
					sig, err := cryptoutils.SignMessage(key, recovery.CompleteMessage(wallet, cCtx.String(flagRequestID.Name), password))
					if err != nil {
						return err
					}

					client := clients.NewRecoveryClient(cCtx.String(flagServerAddr.Name))
					res, err := client.CompleteRecovery(cCtx.Context, wallet, password, sig)
					if err != nil {
						return err
					}
					return printJSON(res)
				},
			},
			&cli.Command{
				Name:  "accept",
				Usage: "Accept guardianship of a wallet",
				Flags: []cli.Flag{flagServerAddr, flagPrivateKey, flagWallet},
				Action: func(cCtx *cli.Context) error {
					key, wallet, err := keyAndWallet(cCtx)
					if err != nil {
						return err
					}
					guardian := crypto.PubkeyToAddress(key.PublicKey)
					sig, err := cryptoutils.SignMessage(key, recovery.AcceptMessage(wallet, guardian))
					if err != nil {
						return err
					}

					client := clients.NewRecoveryClient(cCtx.String(flagServerAddr.Name))
					res, err := client.AcceptGuardianship(cCtx.Context, wallet, guardian, sig)
					if err != nil {
						return err
					}
					return printJSON(res)
				},
			},
			&cli.Command{
				Name:  "notifications",
				Usage: "Fetch pending notifications; setup shares are opened and stored in share-dir",
				Flags: []cli.Flag{flagServerAddr, flagPrivateKey, flagShareDir},
				Action: func(cCtx *cli.Context) error {
					key, err := parseKey(cCtx.String(flagPrivateKey.Name))
					if err != nil {
						return err
					}

					client := clients.NewRecoveryClient(cCtx.String(flagServerAddr.Name))
					notifications, err := client.FetchNotifications(cCtx.Context, key)
					if err != nil {
						return err
					}

					for _, n := range notifications {
						if n.Type != interfaces.EventSetup || len(n.Payload) == 0 {
							continue
						}
						wallet, err := interfaces.NormalizeAddress(n.Data["wallet"])
						if err != nil {
							fmt.Fprintf(os.Stderr, "skipping setup notification %s: %v\n", n.ID, err)
							continue
						}
						share, err := cryptoutils.OpenShare(key, wallet, n.Payload)
						if err != nil {
							fmt.Fprintf(os.Stderr, "failed to open share for %s: %v\n", wallet.Hex(), err)
							continue
						}
						if err := saveShare(shareFile(cCtx, wallet), share); err != nil {
							return err
						}
					}
					return printJSON(notifications)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

func keyAndWallet(cCtx *cli.Context) (*ecdsa.PrivateKey, common.Address, error) {
	key, err := parseKey(cCtx.String(flagPrivateKey.Name))
	if err != nil {
		return nil, common.Address{}, err
	}
	wallet, err := interfaces.NormalizeAddress(cCtx.String(flagWallet.Name))
	if err != nil {
		return nil, common.Address{}, err
	}
	return key, wallet, nil
}

func shareFile(cCtx *cli.Context, wallet common.Address) string {
	if path := cCtx.String(flagShareFile.Name); path != "" {
		return path
	}
	return filepath.Join(cCtx.String(flagShareDir.Name), interfaces.AddressKey(wallet)+".json")
}

func saveShare(path string, share interfaces.SecretShare) error {
	data, err := json.Marshal(share)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write share: %w", err)
	}
	fmt.Fprintf(os.Stderr, "share %d stored in %s\n", share.Index, path)
	return nil
}

func loadShare(path string) (interfaces.SecretShare, error) {
	var share interfaces.SecretShare
	data, err := os.ReadFile(path)
	if err != nil {
		return share, fmt.Errorf("failed to read share: %w", err)
	}
	if err := json.Unmarshal(data, &share); err != nil {
		return share, fmt.Errorf("failed to parse share: %w", err)
	}
	if share.Index == 0 || share.Value == nil {
		return share, errors.New("share file is empty")
	}
	return share, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
