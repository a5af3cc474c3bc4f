package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/perftune/pkg/perftune/output"
	"github.com/jamesainslie/perftune/pkg/perftune/profile"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the system profile",
	Long:  `Display the operating system, kernel, CPU, memory and network links of this host.`,
	Args:  cobra.NoArgs,
	RunE:  runProfile,
}

func init() {
	rootCmd.AddCommand(profileCmd)
}

// runProfile prints what perftune knows about the host. Partial profiles
// are shown with a warning.
func runProfile(cmd *cobra.Command, _ []string) error {
	p, err := profile.Detect()
	if err != nil {
		printError("%v", err)
	}
	return render(cmd.OutOrStdout(), outputFormat(), &output.Report{Time: time.Now(), Profile: &p})
}
