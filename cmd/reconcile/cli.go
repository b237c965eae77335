package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"ephemeral-core/internal/auth"
	"ephemeral-core/internal/config"
	"ephemeral-core/internal/logging"
	"ephemeral-core/reconcile/application"
	"ephemeral-core/reconcile/domain"
	"ephemeral-core/reconcile/infra"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "reconcile",
		Short: "Ferramentas do coordenador: sincronização de regionais e tokens de desenvolvimento",
	}
	root.SilenceUsage = true
	root.PersistentFlags().StringP("config", "c", os.Getenv("CONFIG_FILE"), "arquivo YAML de configuração")

	root.AddCommand(newRunCommand())
	root.AddCommand(newTokenCommand())
	root.AddCommand(newGenerateSecretCommand())
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Executa uma passada de reconciliação e imprime o resumo em JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			lg, err := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Writer: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, closeStore, err := infra.Open(ctx, infra.StoreConfig{
				Driver: cfg.Store.Driver,
				Path:   cfg.Store.Path,
				DSN:    cfg.Store.DSN,
			})
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer closeStore()

			rec := application.New(
				infra.NewHTTPSource(cfg.Reconcile.SourceURL, cfg.Reconcile.Timeout),
				store,
				application.WithRefuseEmpty(cfg.Reconcile.RefuseEmpty),
				application.WithLogger(lg),
			)
			res, err := rec.Reconcile(ctx)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(runOutput{Result: res, DurationMs: res.Duration.Milliseconds()})
		},
	}
}

type runOutput struct {
	domain.Result
	DurationMs int64 `json:"duracaoMs"`
}

func newTokenCommand() *cobra.Command {
	var (
		subject string
		roles   string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Gera um JWT HS256 de desenvolvimento assinado com JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			v, err := auth.NewVerifier(cfg.Auth.JWTSecret, auth.WithIssuer(cfg.Auth.Issuer))
			if err != nil {
				return fmt.Errorf("JWT_SECRET: %w", err)
			}

			tok, err := v.Issue(auth.Principal{Name: subject, Roles: splitRoles(roles)}, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "dev", "usuário (claim sub)")
	cmd.Flags().StringVar(&roles, "roles", "", "papéis separados por vírgula (ex: ADMIN,USER)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "validade do token")
	return cmd
}

func splitRoles(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

const secretByteLength = 32

func newGenerateSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-jwt-secret",
		Short: "Gera um segredo HS256 para JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := generateRandomHex(secretByteLength)
			if err != nil {
				return fmt.Errorf("generate JWT_SECRET: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "JWT_SECRET=%s\n", secret)
			return err
		},
	}
}

var randomRead = rand.Read

func generateRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := randomRead(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
