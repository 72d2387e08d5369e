package main

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/spf13/cobra"

	"github.com/thebtf/kitforge/internal/pipeline"
)

var explainCmd = &cobra.Command{
	Use:   "explain FILE",
	Short: "Print the full score trace for one feature document",
	Long: `explain scores a single feature document and prints every stage of the
decision as JSON: raw rule scores, rule and semantic probabilities, the
fused vector, fired guardrails and the final role with its confidence.`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

func runExplain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	exp, err := pipeline.New(cfg).Explain(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
