package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/mailpost/internal/api"
	"github.com/foxzi/mailpost/internal/app"
	"github.com/foxzi/mailpost/internal/config"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mailpost",
	Short: "Mailpost - email campaign server",
	Long:  `Mailpost manages subscribers, templates and email campaigns and sends them through a mail provider.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

var processDueCmd = &cobra.Command{
	Use:   "process-due",
	Short: "Send scheduled campaigns that are due",
	Long:  `Send every scheduled campaign whose time has come and print the run report. Intended for cron.`,
	RunE:  runProcessDue,
}

var testEmailCmd = &cobra.Command{
	Use:   "test-email <to>",
	Short: "Send a test email through the configured provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestEmail,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mailpost version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (environment only when empty)")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, processDueCmd, testEmailCmd, configCmd, versionCmd)
}

func newApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	api.Version = version
	application, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	return application, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	return application.Run(context.Background())
}

func runProcessDue(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close(context.Background())

	report, err := application.ProcessDue(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d campaigns failed", report.Failed, report.Processed)
	}
	return nil
}

func runTestEmail(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close(context.Background())

	result, err := application.SendTestEmail(ctx, args[0])
	if err != nil {
		return fmt.Errorf("test email failed: %w", err)
	}

	fmt.Printf("Test email sent to %s\n", args[0])
	if result.MessageID != "" {
		fmt.Printf("  Message ID: %s\n", result.MessageID)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	provider := cfg.Mail.Provider
	if !cfg.MailEnabled() {
		provider = "none (sending disabled)"
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Public URL: %s\n", cfg.Server.PublicURL)
	fmt.Printf("  API: %s\n", cfg.API.ListenAddr)
	fmt.Printf("  Storage: %s\n", cfg.Storage.Driver)
	fmt.Printf("  Mail provider: %s\n", provider)
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics: %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}

	return nil
}
