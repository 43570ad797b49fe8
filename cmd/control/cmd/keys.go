package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"monotributo-control/internal/matcher"
	"monotributo-control/pkg/errors"
)

// keysCmd groups the composite key helpers
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Build and parse invoice keys",
	Long: `An invoice key is CUIT-TTT-PPPPP-NNNNNNNN: the issuer CUIT, the document
type, the point of sale and the invoice number, zero padded. Exports and RCEL
documents are joined on it.`,
}

var keysBuildCmd = &cobra.Command{
	Use:     "build <cuit> <type> <point-of-sale> <number>",
	Short:   "Build the key of an invoice",
	Example: "  control keys build 20374730429 11 2 15",
	Args:    cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return buildKey(args, cmd.OutOrStdout())
	},
}

var keysParseCmd = &cobra.Command{
	Use:     "parse <key>...",
	Short:   "Split keys into their components",
	Example: "  control keys parse 20374730429-011-00002-00000015",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return parseKeys(args, cmd.OutOrStdout())
	},
}

func init() {
	keysCmd.AddCommand(keysBuildCmd, keysParseCmd)
	rootCmd.AddCommand(keysCmd)
}

func buildKey(args []string, w io.Writer) error {
	names := [...]string{"cuit", "type", "point-of-sale", "number"}
	var values [4]int64
	for i, arg := range args {
		v, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return errors.ValidationError(errors.CodeInvalidData, names[i], arg, err)
		}
		values[i] = v
	}

	key, err := matcher.BuildKey(values[0], int(values[1]), int(values[2]), values[3])
	if err != nil {
		return errors.ValidationError(errors.CodeOutOfRange, "key", args, err)
	}
	fmt.Fprintln(w, key)
	return nil
}

func parseKeys(keys []string, w io.Writer) error {
	for _, k := range keys {
		parts, err := matcher.ParseKey(k)
		if err != nil {
			return errors.ValidationError(errors.CodeInvalidData, "key", k, err)
		}
		fmt.Fprintf(w, "%s\tcuit=%d type=%d point_of_sale=%d number=%d\n",
			k, parts.CUIT, parts.DocumentType, parts.PointOfSale, parts.Number)
	}
	return nil
}
