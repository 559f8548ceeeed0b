package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/vietddude/calldispatch/internal/attribution"
)

var suffixCmd = &cobra.Command{
	Use:   "suffix",
	Short: "Encode or inspect attribution suffixes",
}

var suffixEncodeCmd = &cobra.Command{
	Use:   "encode [code...]",
	Short: "Print the suffix for one or more builder codes",
	Args:  cobra.MinimumNArgs(1),
	Run:   runSuffixEncode,
}

var suffixCheckCmd = &cobra.Command{
	Use:   "check [calldata]",
	Short: "Report the builder codes attached to call data",
	Args:  cobra.ExactArgs(1),
	Run:   runSuffixCheck,
}

func init() {
	suffixCmd.AddCommand(suffixEncodeCmd, suffixCheckCmd)
	rootCmd.AddCommand(suffixCmd)
}

func runSuffixEncode(cmd *cobra.Command, args []string) {
	s, err := attribution.Encode(args...)
	if err != nil {
		fmt.Printf("Invalid builder code: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(s.Hex())
}

func runSuffixCheck(cmd *cobra.Command, args []string) {
	data, err := hexutil.Decode(args[0])
	if err != nil {
		fmt.Printf("Invalid call data: %v\n", err)
		os.Exit(1)
	}

	codes, ok := attribution.ParseSuffix(data)
	if !ok {
		fmt.Println("No attribution suffix found")
		os.Exit(1)
	}
	fmt.Printf("Builder codes: %s\n", strings.Join(codes, ", "))
}
