// Command scoutline discovers and qualifies social-media prospects.
//
// Usage:
//
//	scoutline run --platforms instagram,tiktok --regions CZ --min-followers 1000 --max-followers 100000 --target 25
//	scoutline serve --listen :8080
//	scoutline runs
//	scoutline enrich
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scoutline-dev/scoutline"
	"github.com/scoutline-dev/scoutline/pkg/auth"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "scoutline",
	Short: "Discover, resolve, validate and deduplicate social-media prospects",
	Long: "Scoutline discovers candidate social-media profiles, resolves and validates\n" +
		"them against campaign criteria, and admits unique identities into a\n" +
		"persistent prospect store.\n\n" + cookieHelp(),
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// cookieHelp lists the cookie environment variables per platform.
func cookieHelp() string {
	var b strings.Builder
	b.WriteString("Sessions are anonymous by default; cookies raise rate tolerance.\n")
	b.WriteString("Cookie environment variables:\n")
	for _, platform := range []string{"instagram", "tiktok", "youtube"} {
		vars := auth.EnvVarsForPlatform(platform)
		sort.Strings(vars)
		fmt.Fprintf(&b, "  %-10s %s\n", platform, strings.Join(vars, ", "))
	}
	return b.String()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.scoutline.yaml)")
	rootCmd.PersistentFlags().String("db", "scoutline.db", "SQLite database path")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-browser", false, "disable the rendering browser")
	rootCmd.PersistentFlags().Bool("headful", false, "run the rendering browser with a visible window")
	rootCmd.PersistentFlags().Duration("cache-ttl", 24*time.Hour, "HTTP cache time-to-live")
	rootCmd.PersistentFlags().String("search-url", "", "override the search surface endpoint")
	rootCmd.PersistentFlags().StringSlice("seeds", nil, "seed handles for chain discovery (platform:username)")

	for _, flag := range []string{"db", "debug", "no-browser", "headful", "cache-ttl", "search-url", "seeds"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".scoutline")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("scoutline")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok { //nolint:errorlint // viper returns the value type directly
			fmt.Fprintf(os.Stderr, "config file error: %v\n", err)
		}
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("debug") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newEngine builds an engine from the resolved global flags.
func newEngine(ctx context.Context) (*scoutline.Engine, error) {
	logger := newLogger()
	slog.SetDefault(logger)

	dbPath := viper.GetString("db")
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	opts := []scoutline.Option{
		scoutline.WithDatabase(dbPath),
		scoutline.WithLogger(logger),
		scoutline.WithCacheTTL(viper.GetDuration("cache-ttl")),
		scoutline.WithBrowserCookies(),
	}
	if viper.GetBool("no-browser") {
		opts = append(opts, scoutline.WithoutBrowser())
	}
	if viper.GetBool("headful") {
		opts = append(opts, scoutline.WithHeadful())
	}
	if u := viper.GetString("search-url"); u != "" {
		opts = append(opts, scoutline.WithSearchURL(u))
	}
	if seeds, err := parseSeeds(viper.GetStringSlice("seeds")); err != nil {
		return nil, err
	} else if len(seeds) > 0 {
		opts = append(opts, scoutline.WithSeeds(seeds))
	}

	return scoutline.New(ctx, opts...)
}

func parseSeeds(raw []string) ([]prospect.Handle, error) {
	var seeds []prospect.Handle
	for _, s := range raw {
		platform, username, ok := strings.Cut(s, ":")
		if !ok || username == "" {
			return nil, fmt.Errorf("invalid seed %q, want platform:username", s)
		}
		seeds = append(seeds, prospect.Handle{
			Platform: prospect.Platform(strings.ToLower(platform)),
			Username: username,
		})
	}
	return seeds, nil
}
