package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sai-swap/internal/client"
	"sai-swap/internal/domain"
)

var (
	watchServer string
	watchState  string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print journaled events from a running server as JSON lines",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, logCloser, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		var state domain.PublicKey
		if watchState != "" {
			if state, err = domain.ParsePublicKey(watchState); err != nil {
				return fmt.Errorf("--state: %w", err)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stream, err := client.Subscribe(ctx, watchServer, state, nil)
		if err != nil {
			return err
		}
		defer stream.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-stream.Events():
				if !ok {
					return nil
				}
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "http://localhost:8080", "base URL of swapd")
	watchCmd.Flags().StringVar(&watchState, "state", "", "only events of this state key")
}
