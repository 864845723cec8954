// Package main provides the Oblique CLI entry point.
// Oblique simulates the next turn of a conversation with a completion model.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"oblique/internal/config"
	"oblique/internal/logger"
	"oblique/internal/shell"
	"oblique/internal/version"
)

var (
	logLevel string
	logFile  string
	testMode bool
	userName string
	timeout  time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "oblique",
	Short: "Oblique - simulated conversation turns",
	Long: `Oblique writes the next message of a conversation in the voice of one of
its participants, using a completion model.`,
	SilenceUsage: true,
	RunE:         runShell,
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start the interactive shell",
	RunE:  runShell,
}

var generateCmd = &cobra.Command{
	Use:   "generate [flags] [-- keyword options]",
	Short: "Generate candidates once from a transcript and exit",
	Long: `Generate runs a single session against the transcript and prints every
candidate. Keyword options follow "--", for example:

  oblique generate --transcript chat.jsonl -- -n bob --full`,
	RunE: runGenerate,
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the model profiles in the catalog",
	RunE:  runProfiles,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
			fmt.Println(version.GetDetailedVersion())
			return
		}
		fmt.Println(version.GetFormattedVersion())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	flags.StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	flags.BoolVar(&testMode, "test-mode", false, "Run in deterministic test mode")
	flags.StringVar(&userName, "as", defaultUserName(), "Your name in the transcript")
	flags.String("profile", "", "Model profile key [default: catalog default]")
	flags.String("profiles-file", "", "YAML profile catalog [default: embedded]")
	flags.String("transcript", "", "JSON-lines transcript to load and append to")
	flags.Int("candidates", 3, "Candidates generated per request")
	flags.Int("token-budget", 0, "Trim prompts to this many tokens (0 disables)")
	flags.String("request-log", "", "Write one JSON line per completion attempt to this file")
	flags.Bool("debug-http", false, "Log HTTP exchanges at debug level")

	bindings := map[string]string{
		config.KeyProfile:      "profile",
		config.KeyProfilesFile: "profiles-file",
		config.KeyTranscript:   "transcript",
		config.KeyCandidates:   "candidates",
		config.KeyTokenBudget:  "token-budget",
		config.KeyRequestLog:   "request-log",
		config.KeyDebugHTTP:    "debug-http",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", flag, err)
			os.Exit(1)
		}
	}

	generateCmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "Give up waiting for candidates after this long")
	versionCmd.Flags().Bool("detailed", false, "Show build details")

	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if err := logger.Configure(logLevel, logFile, testMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
	if err := config.LoadDotEnv(); err != nil {
		logger.Warn("Failed to load .env", "error", err)
	}
	config.SetDefaults(viper.GetViper())
	if err := config.BindEnv(viper.GetViper()); err != nil {
		logger.Fatal("Failed to bind environment", "error", err)
	}
}

func runShell(_ *cobra.Command, _ []string) error {
	logger.Info("Starting Oblique", "version", version.Version)

	rt, err := newRuntime(os.Stdout, testMode)
	if err != nil {
		return err
	}
	defer rt.Close()

	app := rt.App(userName)
	sh := shell.NewShell(app, "oblique> ")
	sh.Println(version.GetFormattedVersion())
	sh.Println(fmt.Sprintf("Chat as %s. Type a message, '%s' to simulate a turn, or 'help'.", userName, shell.Keyword))
	sh.Run()
	return nil
}

func runGenerate(_ *cobra.Command, args []string) error {
	rt, err := newRuntime(os.Stdout, testMode)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	app := rt.App(userName)
	handle, err := app.Obliqueme(ctx, args)
	if err != nil {
		return err
	}
	if err := rt.Surface.WaitFinal(ctx, handle); err != nil {
		return fmt.Errorf("waiting for candidates: %w", err)
	}
	return nil
}

func runProfiles(_ *cobra.Command, _ []string) error {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(settings)
	if err != nil {
		return err
	}
	for _, key := range catalog.Keys() {
		p, _ := catalog.Get(key)
		marker := " "
		if key == catalog.Default() {
			marker = "*"
		}
		fmt.Printf("%s %-24s %-9s %s\n", marker, key, p.Type, p.ModelID)
	}
	return nil
}

func defaultUserName() string {
	for _, env := range []string{"OBLIQUE_USER", "USER", "USERNAME"} {
		if name := strings.TrimSpace(os.Getenv(env)); name != "" {
			return name
		}
	}
	return "me"
}
