// cmd/server/config.go
package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind         string
	port         int
	jwtSecret    string
	postgresDSN  string
	redisAddr    string
	redisDB      int
	redisQueue   string
	uploadDir    string
	chaosMode    float64
	cleanupGrace time.Duration
	verbose      bool
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.jwtSecret == "" {
		return errors.New("--jwt-secret is required")
	}
	if c.postgresDSN == "" {
		return errors.New("--postgres-dsn is required")
	}
	if c.chaosMode < 0 || c.chaosMode > 1 {
		return fmt.Errorf("invalid chaos-mode probability (must be in [0,1]): %f", c.chaosMode)
	}
	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BUSFAHRER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "busfahrer-server",
		Short:         "Authoritative backend for the Busfahrer drinking card game.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: BUSFAHRER_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: BUSFAHRER_PORT)")
	fs.StringVar(&cfg.jwtSecret, "jwt-secret", "", "HMAC secret for session tokens (env: BUSFAHRER_JWT_SECRET)")
	fs.StringVar(&cfg.postgresDSN, "postgres-dsn", "", "postgres connection string for the identity tables (env: BUSFAHRER_POSTGRES_DSN)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "redis address for the action audit queue, empty disables auditing (env: BUSFAHRER_REDIS_ADDR)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis database index (env: BUSFAHRER_REDIS_DB)")
	fs.StringVar(&cfg.redisQueue, "redis-queue", "", "redis list name for action records (env: BUSFAHRER_REDIS_QUEUE)")
	fs.StringVar(&cfg.uploadDir, "upload-dir", "uploads", "directory for uploaded avatars (env: BUSFAHRER_UPLOAD_DIR)")
	fs.Float64Var(&cfg.chaosMode, "chaos-mode", 0.5, "probability of the chaos drink multiplier in chaos games (env: BUSFAHRER_CHAOS_MODE)")
	fs.DurationVar(&cfg.cleanupGrace, "cleanup-grace", 15*time.Second, "reconnect grace before a dropped socket leaves its lobby or game (env: BUSFAHRER_CLEANUP_GRACE)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: BUSFAHRER_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}
