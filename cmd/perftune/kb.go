package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/perftune/pkg/perftune/knowledge"
	"github.com/jamesainslie/perftune/pkg/perftune/output"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect the knowledge base",
	Long: `The knowledge base maps bottleneck categories to tuning directives:

  cpu_bottleneck=cpu_governor=performance
  memory_bottleneck=vm.swappiness=10,hugepages=1024

Its location is the knowledge_base config key.`,
}

var kbShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "List knowledge base entries",
	Long:  `List every entry of the configured knowledge base, or of the file at path.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKBShow,
}

func init() {
	kbCmd.AddCommand(kbShowCmd)
	rootCmd.AddCommand(kbCmd)
}

func runKBShow(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	} else {
		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			return err
		}
		path = cfg.KnowledgeBase
	}

	// Load tolerates a missing file; here that is worth an error.
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("knowledge base: %w", err)
	}
	kb := knowledge.Load(path)

	w := cmd.OutOrStdout()
	switch outputFormat() {
	case "plain":
		_, err := kb.WriteTo(w)
		return err
	case "json", "jsonl":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(kbEntries(kb))
	case "yaml":
		return yaml.NewEncoder(w).Encode(kbEntries(kb))
	}

	fmt.Fprintln(w, output.TitleStyle.Render(fmt.Sprintf("%s (%d entries)", kb.Path(), kb.Len())))
	for _, key := range kb.Keys() {
		fmt.Fprintf(w, "  %s %s\n", output.LabelStyle.Render(padRight(key, 20)), kb.GetConfigValue(key))
	}
	if missing := missingCategories(kb); len(missing) > 0 {
		fmt.Fprintln(w, output.MutedStyle.Render("  no directive for: "+strings.Join(missing, ", ")))
	}
	return nil
}

// kbEntries copies the entries into a map for encoding.
func kbEntries(kb *knowledge.KnowledgeBase) map[string]string {
	m := make(map[string]string, kb.Len())
	for _, key := range kb.Keys() {
		m[key] = kb.GetConfigValue(key)
	}
	return m
}

// missingCategories lists bottleneck categories without a directive.
func missingCategories(kb *knowledge.KnowledgeBase) []string {
	var missing []string
	for _, t := range types.AllBottleneckTypes {
		key, _ := knowledge.CategoryKey(t)
		if kb.GetConfigValue(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// padRight pads s with spaces to width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
