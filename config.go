package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/giftchain/chain"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	port           int
	prefix         string
	profile        bool
	revealDelay    time.Duration
	roster         string
	seed           uint64
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.revealDelay < 0 {
		return fmt.Errorf("invalid reveal delay (must not be negative): %s", c.revealDelay)
	}
	if c.sessionTimeout < 0 {
		return fmt.Errorf("invalid session timeout (must not be negative): %s", c.sessionTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// startingRoster is the roster new sessions open with: the --roster file if
// one was given, otherwise an empty roster.
func (c *Config) startingRoster() (chain.Roster, error) {
	if c.roster == "" {
		return chain.Roster{}, nil
	}
	return chain.LoadRosterFile(c.roster)
}

// newSource returns the random source for one chain. A fixed --seed makes
// every chain reproducible; otherwise each gets a fresh seed, which is logged
// so a run can be replayed.
func (c *Config) newSource(label string) chain.Source {
	seed := c.seed
	if seed == 0 {
		var err error
		seed, err = chain.NewSeed()
		if err != nil {
			errorf("RANDOM: %v; falling back to runtime source", err)
			return nil
		}
	}

	logf(c, "RANDOM: %s using seed %d", label, seed)

	return chain.NewSource(seed)
}

func normalizeFlag(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// bindFlags fills any flag left unset on the command line from its
// GIFTCHAIN_* environment variable.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("GIFTCHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "giftchain",
		Short:         "Reveal a gift-exchange chain, one person at a time, on a shared screen.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(v, cmd.Flags())
			return cfg.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	pfs := cmd.PersistentFlags()
	pfs.SetNormalizeFunc(normalizeFlag)
	pfs.DurationVar(&cfg.revealDelay, "reveal-delay", 1500*time.Millisecond, "pause before each reveal is shown (env: GIFTCHAIN_REVEAL_DELAY)")
	pfs.StringVarP(&cfg.roster, "roster", "r", "", "yaml or json roster to preload (env: GIFTCHAIN_ROSTER)")
	pfs.Uint64Var(&cfg.seed, "seed", 0, "fixed random seed, for reproducible chains (env: GIFTCHAIN_SEED)")
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: GIFTCHAIN_VERBOSE)")

	fs := cmd.Flags()
	fs.SetNormalizeFunc(normalizeFlag)
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: GIFTCHAIN_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: GIFTCHAIN_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: GIFTCHAIN_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: GIFTCHAIN_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 2*time.Hour, "time before idle sessions are ended (env: GIFTCHAIN_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: GIFTCHAIN_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: GIFTCHAIN_TLS_KEY)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: GIFTCHAIN_VERSION)")

	cmd.AddCommand(newPlayCmd(cfg))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("giftchain v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func newPlayCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Run the reveal in this terminal instead of a browser.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			roster := chain.SampleRoster()
			if cfg.roster != "" {
				var err error
				roster, err = chain.LoadRosterFile(cfg.roster)
				if err != nil {
					return err
				}
			}
			return runPlay(cmd.Context(), cfg, roster)
		},
	}
}
