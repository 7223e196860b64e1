package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sai-swap/internal/domain"
	"sai-swap/internal/pda"
)

var (
	deriveState   string
	deriveVariant string
)

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Print the vault addresses of a state key",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logCloser, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		state, err := domain.ParsePublicKey(deriveState)
		if err != nil {
			return fmt.Errorf("--state: %w", err)
		}
		variant, ok := domain.ParseVariant(deriveVariant)
		if !ok {
			return fmt.Errorf("--variant: unknown variant %q", deriveVariant)
		}
		return printVaults(cmd.OutOrStdout(), pda.NewDeriver(cfg.Program()), state, variant)
	},
}

func init() {
	deriveCmd.Flags().StringVar(&deriveState, "state", "", "state key (base58)")
	deriveCmd.Flags().StringVar(&deriveVariant, "variant", "multi", "multi or single")
	deriveCmd.MarkFlagRequired("state")
}

func printVaults(w io.Writer, deriver *pda.Deriver, state domain.PublicKey, variant domain.Variant) error {
	labels := make([]string, 0, domain.MaxVaults+1)
	for _, a := range variant.Assets() {
		labels = append(labels, a.Label())
	}
	labels = append(labels, domain.LabelProceedsVault)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tADDRESS\tBUMP")
	for _, label := range labels {
		addr, bump, err := deriver.VaultAddress(state, label)
		if err != nil {
			return fmt.Errorf("derive %s: %w", label, err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", label, addr, bump)
	}
	return tw.Flush()
}
