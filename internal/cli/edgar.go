package cli

import (
	"github.com/daryltucker/llm-pipeline/internal/edgar"
	"github.com/daryltucker/llm-pipeline/internal/output"
	"github.com/spf13/cobra"
)

var (
	emitConfigPath string
	edgarModel     string
)

var edgarCmd = &cobra.Command{
	Use:   "edgar <input> <output>",
	Short: "Extract MD&A (Item 7) from EDGAR 10-K HTML filings",
	Long: `Extracts the Management's Discussion and Analysis section from a 10-K filing.

If <input> is a file, the section is written to <output> and, with --emit-config,
a pipeline config that analyzes it is generated. If <input> is a directory, every
*.htm, *.html and *.txt filing is processed into <output>/<name>_MD-and-A.txt.`,
	Example: `  llm-pipeline edgar filing.htm mda.txt --emit-config mda.toml --model llama3
  llm-pipeline run mda.toml`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := edgar.ProcessPath(args[0], args[1], edgar.Options{
			EmitConfig: emitConfigPath,
			Model:      edgarModel,
		})
		if err != nil {
			return err
		}
		output.Logger.Info("Extraction complete", "sections", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(edgarCmd)
	edgarCmd.Flags().StringVar(&emitConfigPath, "emit-config", "", "Write a pipeline config (.toml or .yaml) for the extracted section")
	edgarCmd.Flags().StringVar(&edgarModel, "model", "llama3", "Model name used in the emitted config")
}
