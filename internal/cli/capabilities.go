package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/calldispatch/internal/core/domain"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Query the wallet for attribution capability support",
	Run:   runCapabilities,
}

func init() {
	rootCmd.AddCommand(capabilitiesCmd)
}

func runCapabilities(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	app := newApp(cfg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Stop(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Wallet.Timeout)
	defer cancel()

	support, raw, err := app.Capabilities(ctx)
	if err != nil {
		slog.Error("Failed to query capabilities", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Chain:      %s (%s)\n", domain.ChainName(cfg.Wallet.ChainID), domain.ChainIDHex(cfg.Wallet.ChainID))
	fmt.Printf("dataSuffix: %s\n", support)

	out, err := json.MarshalIndent(raw, "", "  ")
	if err == nil {
		fmt.Println(string(out))
	}
}
