package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/vietddude/calldispatch/internal/core/domain"
)

var (
	sendTo      []string
	sendData    []string
	sendValue   []string
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Dispatch one or more calls and wait for the outcome",
	Long: `Dispatch calls through the configured wallet. Repeat --to, --data and
--value to build a batch; the n-th flags describe the n-th call.`,
	Run: runSend,
}

func init() {
	sendCmd.Flags().StringArrayVar(&sendTo, "to", nil, "target contract address (repeatable)")
	sendCmd.Flags().StringArrayVar(&sendData, "data", nil, "0x-prefixed call data (repeatable)")
	sendCmd.Flags().StringArrayVar(&sendValue, "value", nil, "wei value in decimal (repeatable)")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 10*time.Minute, "how long to wait for confirmation")
	_ = sendCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) {
	calls, err := buildCalls(sendTo, sendData, sendValue)
	if err != nil {
		fmt.Printf("Invalid call: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	app := newApp(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = app.Stop(shutdownCtx)
	}()

	updates, unsubscribe := app.Subscribe()
	defer unsubscribe()

	if err := app.Send(ctx, calls...); err != nil {
		slog.Error("Dispatch rejected", "error", err, "message", domain.UserMessage(err))
		os.Exit(1)
	}

	final := waitTerminal(ctx, updates)
	switch final.State {
	case domain.StateConfirmed:
		fmt.Printf("Confirmed: %s\n", final.TxHash)
	case domain.StateSent:
		fmt.Printf("Submitted as %s; confirmation was not observed\n", final.Handle)
	case "":
		fmt.Println("Timed out waiting for confirmation")
		os.Exit(1)
	default:
		fmt.Printf("%s: %s\n", final.State, final.Message)
		os.Exit(1)
	}
}

// waitTerminal returns the final status of the dispatch. When the status
// falls back to idle after Sent, the last Sent status is returned.
func waitTerminal(ctx context.Context, updates <-chan domain.TxStatus) domain.TxStatus {
	var sent domain.TxStatus
	for {
		select {
		case <-ctx.Done():
			return sent
		case st, ok := <-updates:
			if !ok {
				return sent
			}
			slog.Info("Status", "state", st.State, "handle", st.Handle, "message", st.Message)
			switch st.State {
			case domain.StateConfirmed, domain.StateCancelled, domain.StateError:
				return st
			case domain.StateSent:
				sent = st
			case domain.StateIdle:
				if sent.State == domain.StateSent {
					return sent
				}
			}
		}
	}
}

// buildCalls zips the repeated flags into calls. Data and value may be
// shorter than the address list.
func buildCalls(to, data, value []string) ([]domain.Call, error) {
	if len(data) > len(to) || len(value) > len(to) {
		return nil, fmt.Errorf("got %d addresses but %d data and %d value flags", len(to), len(data), len(value))
	}

	calls := make([]domain.Call, len(to))
	for i, addr := range to {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("call %d: %q is not an address", i, addr)
		}
		calls[i].To = common.HexToAddress(addr)

		if i < len(data) && data[i] != "" {
			b, err := hexutil.Decode(data[i])
			if err != nil {
				return nil, fmt.Errorf("call %d: data: %w", i, err)
			}
			calls[i].Data = b
		}
		if i < len(value) && value[i] != "" {
			v, err := uint256.FromDecimal(value[i])
			if err != nil {
				return nil, fmt.Errorf("call %d: value: %w", i, err)
			}
			calls[i].Value = v
		}
	}
	return calls, nil
}
