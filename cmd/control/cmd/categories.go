package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"monotributo-control/cmd/control/config"
	"monotributo-control/internal/categories"
)

// categoriesCmd represents the categories command
var categoriesCmd = &cobra.Command{
	Use:   "categories [file]",
	Short: "Validate and print a category table",
	Long: `Categories loads a category table, validates it the way a control run does
and prints its brackets in ascending order. Without an argument the table set
by --categories or the config file is used.

Examples:
  control categories
  control categories planilla-control-monotributistas.xlsx`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString(config.KeyCategories)
		if path == "" {
			path = config.DefaultCategories
		}
		if len(args) == 1 {
			path = args[0]
		}
		return printCategories(afero.NewOsFs(), path, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}

func printCategories(fs afero.Fs, path string, w io.Writer) error {
	table, err := categories.NewLoader(fs).Load(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Category table %s (%d brackets)\n\n", path, table.Len())
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Category\tUp to\t")
	for _, b := range table.Brackets() {
		fmt.Fprintf(tw, "%s\t%s\t\n", b.Label, b.UpperBound.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nAbove %s a client is reported as EXCEDE\n", table.Max().StringFixed(2))
	return nil
}
