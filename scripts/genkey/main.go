// genkey generates credentials for tsunagi.
//
// Usage (run from the repo root):
//
//	go run ./scripts/genkey keys            # data/jwt_private.pem, data/jwt_public.pem
//	go run ./scripts/genkey token -sub ci   # bearer token signed with data/jwt_private.pem
//	go run ./scripts/genkey apikey          # API key plus its TSUNAGI_API_KEY_HASH
//
// Point TSUNAGI_JWT_PUBLIC_KEY at data/jwt_public.pem to enable bearer auth.
// The data/ directory is gitignored.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/tsunagi/internal/auth"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "genkey",
		Short:         "Generate tsunagi signing keys, tokens and API keys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var dir string
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Write a new Ed25519 key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			privPath, pubPath, err := writeKeyPair(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\nwrote %s\n", privPath, pubPath)
			return nil
		},
	}
	keys.Flags().StringVar(&dir, "dir", "data", "output directory")

	var (
		keyPath   string
		subject   string
		functions string
		ttl       time.Duration
	)
	token := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, err := readPrivateKey(keyPath)
			if err != nil {
				return err
			}
			var fns []string
			if functions != "" {
				fns = strings.Split(functions, ",")
			}
			tok, exp, err := auth.IssueToken(priv, subject, fns, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	token.Flags().StringVar(&keyPath, "key", filepath.Join("data", "jwt_private.pem"), "Ed25519 private key PEM")
	token.Flags().StringVar(&subject, "sub", "dev", "token subject")
	token.Flags().StringVar(&functions, "functions", "", "comma-separated functions the token may invoke (empty: all)")
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	apikey := &cobra.Command{
		Use:   "apikey",
		Short: "Generate an API key and its hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}
			hash, err := auth.HashAPIKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "api key:              %s\nTSUNAGI_API_KEY_HASH=%s\n", key, hash)
			return nil
		},
	}

	root.AddCommand(keys, token, apikey)
	return root
}

func writeKeyPair(dir string) (string, string, error) {
	privPath := filepath.Join(dir, "jwt_private.pem")
	pubPath := filepath.Join(dir, "jwt_public.pem")

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("create %s: %w", dir, err)
	}
	// Refuse to overwrite: existing tokens would stop validating.
	for _, path := range []string{privPath, pubPath} {
		if _, err := os.Stat(path); err == nil {
			return "", "", fmt.Errorf("%s already exists; delete it first to rotate keys", path)
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", "", fmt.Errorf("marshal public key: %w", err)
	}

	if err := writePEM(privPath, "PRIVATE KEY", privDER); err != nil {
		return "", "", err
	}
	if err := writePEM(pubPath, "PUBLIC KEY", pubDER); err != nil {
		return "", "", err
	}
	return privPath, pubPath, nil
}

func writePEM(path, blockType string, der []byte) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: parse private key: %w", path, err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: not an Ed25519 key", path)
	}
	return priv, nil
}
