// kycctl is the operator tool for a kycgate deployment. It reads the same
// environment as the server.
//
//	kycctl token --subject <uuid> [--ttl 1h]
//	kycctl hash-admin-token --token <secret>
//	kycctl seed --file subjects.json
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	jwttoken "kycgate/internal/jwt_token"
	"kycgate/internal/platform/config"
	"kycgate/internal/platform/postgres"
	subjectstore "kycgate/internal/verification/store/subject"
	id "kycgate/pkg/domain"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: kycctl <token|hash-admin-token|seed> [flags]")
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	switch args[0] {
	case "token":
		return issueToken(cfg.JWT, args[1:], out)
	case "hash-admin-token":
		return hashAdminToken(args[1:], out)
	case "seed":
		return seed(ctx, cfg.DatabaseURL, args[1:], out)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func issueToken(cfg config.JWTConfig, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("token", pflag.ContinueOnError)
	subject := flags.String("subject", "", "subject UUID the token is issued to")
	ttl := flags.Duration("ttl", cfg.TTL, "token lifetime")
	if err := flags.Parse(args); err != nil {
		return err
	}

	subjectID, err := id.ParseSubjectID(*subject)
	if err != nil {
		return fmt.Errorf("--subject: %w", err)
	}
	token, err := jwttoken.NewJWTService(cfg.SigningKey, cfg.Issuer, cfg.Audience).
		GenerateAccessToken(subjectID, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func hashAdminToken(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("hash-admin-token", pflag.ContinueOnError)
	token := flags.String("token", "", "adjudicator credential to hash")
	cost := flags.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return errors.New("--token is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*token), *cost)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(hash))
	return err
}

func seed(ctx context.Context, databaseURL string, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	file := flags.String("file", "", "JSON array of subjects")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("--file is required")
	}
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	db, err := postgres.Open(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	n, err := subjectstore.LoadSeed(ctx, f, subjectstore.NewPostgres(db), time.Now())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "seeded %d subjects\n", n)
	return err
}
