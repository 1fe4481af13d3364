package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sevigo/release-warden/internal/config"
	"github.com/sevigo/release-warden/internal/core"
	"github.com/sevigo/release-warden/internal/dispatch"
	"github.com/sevigo/release-warden/internal/handlers"
)

var (
	planKind    string
	planComment string
	planCheck   string
	planBranch  string
	planTag     string
)

var planCmd = &cobra.Command{
	Use:   "plan [package-config.yml]",
	Short: "Preview which handlers an event would trigger.",
	Long:  `Classifies a simulated event against a package configuration file and prints the handler invocations the dispatcher would enqueue, including dependency-injected jobs.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		pkg, err := config.ParsePackageConfig(data)
		if err != nil {
			return err
		}

		event := core.Event{
			Kind:       core.EventKind(planKind),
			ProjectURL: pkg.ProjectURL,
			Comment:    planComment,
			CheckName:  planCheck,
			GitRef:     planBranch,
			ReleaseTag: planTag,
			CommitSHA:  "0000000000000000000000000000000000000000",
		}

		registry := dispatch.NewRegistry(commandPrefix)
		if err := handlers.RegisterAll(registry, handlers.Deps{Logger: slog.Default()}); err != nil {
			return err
		}

		matches := registry.HandlersFor(event, pkg)
		if len(matches) == 0 {
			fmt.Println("no handlers match this event")
			return nil
		}
		for _, m := range matches {
			origin := "configured"
			if m.Job.Synthesized {
				origin = "injected"
			}
			fmt.Printf("%s\tjob=%s\ttargets=%v\t(%s)\n", m.Descriptor.TaskName, m.Job.Type, m.Job.Targets, origin)
		}
		return nil
	},
}

func init() { //nolint:gochecknoinits
	planCmd.Flags().StringVar(&planKind, "kind", string(core.KindPullRequest), "event kind to simulate")
	planCmd.Flags().StringVar(&planComment, "comment", "", "comment body for comment events")
	planCmd.Flags().StringVar(&planCheck, "check", "", "check name for check re-run events")
	planCmd.Flags().StringVar(&planBranch, "branch", "", "branch for push events")
	planCmd.Flags().StringVar(&planTag, "tag", "", "tag for release events")
}
