package cmd

import (
	"fmt"
	"strings"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/profiles"
	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage generation profiles",
	Long: `Generation profiles shape the documents the AI engine writes: who the
audience is, what to emphasise, and what tone to use. Bundled profiles
cover engineers (technical) and product stakeholders (marketing); drop
your own .md files into the profile directory to add more.

Select the active profile with: docsmith config set ai.profile <name>`,
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available generation profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		all := profiles.List(profiles.DefaultDir())
		fmt.Printf("%-14s %-10s %-8s %s\n", "NAME", "AUDIENCE", "SOURCE", "DESCRIPTION")
		for _, p := range all {
			src := "user"
			if p.Bundled {
				src = "bundled"
			}
			name := p.Name
			if p.Name == cfg.AI.Profile {
				name = p.Name + "*"
			}
			fmt.Printf("%-14s %-10s %-8s %s\n", name, orDash(p.Audience), src, p.Description)
		}
		fmt.Println(dimStyle.Render("\n* active profile"))
		return nil
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print one profile's metadata and writing guidance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := profiles.Load(args[0], profiles.DefaultDir())
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %s\n", "Name", p.Name)
		fmt.Printf("%-12s %s\n", "Description", p.Description)
		fmt.Printf("%-12s %s\n", "Audience", orDash(p.Audience))
		if len(p.Focus) > 0 {
			fmt.Printf("%-12s %s\n", "Focus", strings.Join(p.Focus, ", "))
		}
		if len(p.Tags) > 0 {
			fmt.Printf("%-12s %s\n", "Tags", strings.Join(p.Tags, ", "))
		}
		fmt.Printf("%-12s %v\n", "Bundled", p.Bundled)
		fmt.Println()
		fmt.Println(p.Body)
		return nil
	},
}

var profilesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Seed the profile directory with editable copies of the bundled profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := profiles.DefaultDir()
		if err := profiles.Init(dir); err != nil {
			return err
		}
		fmt.Printf("Profiles seeded in %s\n", dir)
		fmt.Println(dimStyle.Render("Edit the .md files there, or add new ones, to customise generation."))
		return nil
	},
}

func init() {
	profilesCmd.AddCommand(profilesListCmd, profilesShowCmd, profilesInitCmd)
}
