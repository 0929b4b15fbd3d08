package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"voting-ledger/identity"
)

type walletOutput struct {
	Address    string `json:"address"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey,omitempty"`
}

func walletCommand() *cobra.Command {
	var (
		seed        string
		showPrivate bool
	)
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Generate a mock voter wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				wallet *identity.MockWallet
				err    error
			)
			if seed != "" {
				wallet, err = identity.WalletFromSeed(seed)
			} else {
				wallet, err = identity.NewMockWallet()
			}
			if err != nil {
				return err
			}
			out := walletOutput{
				Address:   wallet.Address.Hex(),
				PublicKey: wallet.PublicKeyHex(),
			}
			if showPrivate {
				out.PrivateKey = wallet.PrivateKeyHex()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "derive the wallet deterministically from this seed")
	cmd.Flags().BoolVar(&showPrivate, "show-private", false, "include the private key in the output")
	return cmd
}
