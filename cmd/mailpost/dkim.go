package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/foxzi/mailpost/internal/dkim"
)

var (
	dkimDomain   string
	dkimSelector string
	dkimKeyFile  string
	dkimOutDir   string
	dkimBits     int
)

var dkimCmd = &cobra.Command{
	Use:   "dkim",
	Short: "DKIM key management commands",
}

var dkimGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new DKIM key pair",
	Long:  `Generate a new RSA DKIM key pair and output the DNS record to publish.`,
	RunE:  runDKIMGenerate,
}

var dkimShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show DKIM DNS record from existing key",
	RunE:  runDKIMShow,
}

func init() {
	dkimGenerateCmd.Flags().StringVar(&dkimDomain, "domain", "", "Domain name (required)")
	dkimGenerateCmd.Flags().StringVar(&dkimSelector, "selector", "mailpost", "DKIM selector")
	dkimGenerateCmd.Flags().StringVar(&dkimOutDir, "out", ".", "Output directory for key file")
	dkimGenerateCmd.Flags().IntVar(&dkimBits, "bits", dkim.DefaultKeyBits, "RSA key size")
	_ = dkimGenerateCmd.MarkFlagRequired("domain")

	dkimShowCmd.Flags().StringVar(&dkimKeyFile, "key", "", "Path to private key file (required)")
	dkimShowCmd.Flags().StringVar(&dkimDomain, "domain", "", "Domain name (required)")
	dkimShowCmd.Flags().StringVar(&dkimSelector, "selector", "mailpost", "DKIM selector")
	_ = dkimShowCmd.MarkFlagRequired("key")
	_ = dkimShowCmd.MarkFlagRequired("domain")

	dkimCmd.AddCommand(dkimGenerateCmd, dkimShowCmd)
	rootCmd.AddCommand(dkimCmd)
}

func runDKIMGenerate(cmd *cobra.Command, args []string) error {
	kp, err := dkim.GenerateKey(dkimDomain, dkimSelector, dkimBits)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	keyPath := filepath.Join(dkimOutDir, fmt.Sprintf("%s.key", dkimDomain))
	if err := kp.SavePrivateKey(keyPath); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}

	fmt.Printf("DKIM key generated successfully\n\n")
	fmt.Printf("Private key saved to: %s\n\n", keyPath)
	return printRecord(kp)
}

func runDKIMShow(cmd *cobra.Command, args []string) error {
	key, err := dkim.LoadPrivateKey(dkimKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load private key: %w", err)
	}
	return printRecord(&dkim.KeyPair{PrivateKey: key, Domain: dkimDomain, Selector: dkimSelector})
}

func printRecord(kp *dkim.KeyPair) error {
	value, err := kp.DNSRecord()
	if err != nil {
		return err
	}
	zone, err := kp.ZoneRecord()
	if err != nil {
		return err
	}

	fmt.Printf("DNS Record:\n")
	fmt.Printf("  Name: %s\n", kp.DNSName())
	fmt.Printf("  Type: TXT\n")
	fmt.Printf("  Value: %s\n\n", value)
	fmt.Printf("Zone file:\n  %s\n", zone)
	return nil
}
