package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/m3rciful/cozybot/internal/faq"
	"github.com/m3rciful/cozybot/internal/knowledge"
)

const defaultKnowledgePath = "data/faq.yaml"

var (
	kbPath      string
	kbThreshold float64
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect the knowledge base",
}

var kbCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the knowledge base and its FAQ patterns",
	Long: `Loads the knowledge base, compiles every FAQ pattern and lists the ones
that do not compile. Exits non-zero when any are found, for use in CI.`,
	Args: cobra.NoArgs,
	RunE: runKBCheck,
}

var kbMatchCmd = &cobra.Command{
	Use:   "match <text...>",
	Short: "Show which FAQ entry a message resolves to",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKBMatch,
}

func init() {
	kbCmd.PersistentFlags().StringVarP(&kbPath, "file", "f", defaultKnowledgePath, "Knowledge base YAML")
	kbCmd.PersistentFlags().Float64Var(&kbThreshold, "threshold", faq.DefaultThreshold, "Fuzzy match threshold (0-100)")
	kbCmd.AddCommand(kbMatchCmd)
}

func loadResolver() (*knowledge.Base, *faq.Resolver, error) {
	kb, err := knowledge.Load(kbPath)
	if err != nil {
		return nil, nil, err
	}
	r, err := faq.New(kb, faq.Options{Threshold: kbThreshold})
	if err != nil {
		return nil, nil, err
	}
	return kb, r, nil
}

func runKBCheck(cmd *cobra.Command, args []string) error {
	kb, r, err := loadResolver()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d faq entries, lead fields: %s\n",
		kbPath, len(kb.FAQ), strings.Join(kb.FieldNames(), ", "))

	invalid := r.Invalid()
	for _, p := range invalid {
		fmt.Fprintf(out, "  entry %d: pattern %q: %v\n", p.Entry, p.Pattern, p.Err)
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%d invalid pattern(s)", len(invalid))
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func runKBMatch(cmd *cobra.Command, args []string) error {
	kb, r, err := loadResolver()
	if err != nil {
		return err
	}
	m := r.Explain(strings.Join(args, " "))
	out := cmd.OutOrStdout()
	if !m.OK() {
		fmt.Fprintf(out, "no match (best score %.2f, threshold %.0f)\n", m.Score, r.Threshold())
		return nil
	}
	fmt.Fprintf(out, "%s match on entry %d (score %.2f)\n", m.Phase, m.Entry, m.Score)
	fmt.Fprintf(out, "q: %s\n", kb.FAQ[m.Entry].Question)
	if m.Pattern != "" {
		fmt.Fprintf(out, "pattern: %s\n", m.Pattern)
	}
	fmt.Fprintf(out, "a: %s\n", m.Answer)
	return nil
}
