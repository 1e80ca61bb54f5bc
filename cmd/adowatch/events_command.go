package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"adowatch/internal/event"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var listKinds bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List configured events",
		Args:  cobra.NoArgs,
		// Config is loaded lazily so --kinds works without one.
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if listKinds {
				registry := event.NewRegistry()
				rows := make([][]string, 0, 16)
				for _, kind := range registry.Kinds() {
					rows = append(rows, []string{kind, kindCaption(kind)})
				}
				fmt.Fprintln(out, renderTable([]string{"Kind", "Description"}, rows, nil))
				return nil
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(cfg.Events))
			for _, ev := range cfg.Events {
				subject := ev.Project
				if ev.Repository != "" {
					subject += "/" + ev.Repository
				}
				if ev.Branch != "" {
					subject += "@" + ev.Branch
				}
				rows = append(rows, []string{
					ev.Label(),
					ev.Kind,
					subject,
					strconv.Itoa(len(ev.Filters)),
					strconv.Itoa(len(ev.Jobs)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Event", "Kind", "Subject", "Filters", "Jobs"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&listKinds, "kinds", false, "List the supported event kinds instead")
	return cmd
}

// kindCaption turns a kind name like "pr_draft_on" into a readable caption.
func kindCaption(kind string) string {
	words := strings.ReplaceAll(kind, "_", " ")
	words = strings.Replace(words, "pr ", "pull request ", 1)
	words = strings.Replace(words, "wi ", "work item ", 1)
	return cases.Title(language.Und).String(words)
}
