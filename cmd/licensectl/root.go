package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"licensegate/internal/config"
	"licensegate/internal/security"
	"licensegate/pkg/contracts"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "licensectl [command]",
		Short:             "Operator tooling for the license gate",
		SilenceUsage:      true,
		DisableAutoGenTag: true,
	}

	rootCmd.AddCommand(
		newKeygenCmd(),
		newLookupCmd(),
		newEncryptCmd(),
		newDecryptCmd(),
		newDecodeCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadKeyring builds the keyring from the same environment the server reads
func loadKeyring() (*security.Keyring, error) {
	var sec config.SecurityConfig
	if err := envconfig.Process(config.EnvPrefix+"_SECURITY", &sec); err != nil {
		return nil, fmt.Errorf("failed to read security environment: %w", err)
	}
	return security.NewKeyring(sec.LookupSecret, sec.EncryptionSecret)
}

type keygenOutput struct {
	PublicKey  string `yaml:"public_key"`
	PrivateKey string `yaml:"private_key"`
}

func newKeygenCmd() *cobra.Command {
	var bits int
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a team RSA keypair with the private key encrypted at rest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keyring, err := loadKeyring()
			if err != nil {
				return err
			}
			privPEM, pubPEM, err := security.GenerateKeyPair(bits)
			if err != nil {
				return err
			}
			encrypted, err := keyring.EncryptAtRest(privPEM)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(keygenOutput{PublicKey: pubPEM, PrivateKey: encrypted})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA modulus size")
	return cmd
}

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <team-id> <license-key>",
		Short: "Print the lookup hash stored for a license key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyring, err := loadKeyring()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), keyring.LookupHash(args[1], args[0]))
			return err
		},
	}
}

func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [file]",
		Short: "Encrypt a secret for storage, reading stdin when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyring, err := loadKeyring()
			if err != nil {
				return err
			}
			plaintext, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			blob, err := keyring.EncryptAtRest(string(plaintext))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), blob)
			return err
		},
	}
}

func newDecryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt [file]",
		Short: "Decrypt a stored secret, reading stdin when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyring, err := loadKeyring()
			if err != nil {
				return err
			}
			blob, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			plaintext, err := keyring.DecryptAtRest(strings.TrimSpace(string(blob)))
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), plaintext)
			return err
		},
	}
}

func newDecodeCmd() *cobra.Command {
	var sessionKeyHex, output string
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decrypt a downloaded artifact stream with the raw session key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionKey, err := hex.DecodeString(strings.TrimSpace(sessionKeyHex))
			if err != nil {
				return fmt.Errorf("invalid --session-key: %w", err)
			}

			src := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}

			dst := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				dst = f
			}

			dec, err := security.NewStreamDecrypter(src, sessionKey)
			if err != nil {
				return err
			}
			n, err := io.Copy(dst, dec)
			if err != nil {
				return fmt.Errorf("stream corrupt after %d bytes: %w", n, err)
			}
			cmd.PrintErrf("decoded %d bytes\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionKeyHex, "session-key", "", "hex encoded session key the client generated")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the artifact here instead of stdout")
	_ = cmd.MarkFlagRequired("session-key")
	return cmd
}

func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !asJSON {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), contracts.GetFullVersionString())
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(contracts.GetVersionInfo())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print machine readable build information")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(cmd.InOrStdin())
}
