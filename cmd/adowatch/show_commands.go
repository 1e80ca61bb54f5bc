package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"adowatch/internal/devops"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Inspect the remote organization",
	}
	cmd.AddCommand(newShowProjectsCommand(ctx))
	cmd.AddCommand(newShowReposCommand(ctx))
	cmd.AddCommand(newShowBranchesCommand(ctx))
	cmd.AddCommand(newShowPullReqsCommand(ctx))
	cmd.AddCommand(newShowTeamsCommand(ctx))
	cmd.AddCommand(newShowWorkItemsCommand(ctx))
	return cmd
}

func newShowProjectsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects in the organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			projects, err := client.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(projects))
			for _, p := range projects {
				rows = append(rows, []string{p.Name, p.ID, p.Description})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "ID", "Description"}, rows, nil))
			return nil
		},
	}
}

func newShowReposCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "repos <project>",
		Short: "List repositories in a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			project, err := client.FindProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			repos, err := client.ListRepos(cmd.Context(), project.ID)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(repos))
			for _, r := range repos {
				rows = append(rows, []string{r.Name, r.ID, trimRefPrefix(r.DefaultBranch)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "ID", "Default Branch"}, rows, nil))
			return nil
		},
	}
}

func newShowBranchesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "branches <project> <repo>",
		Short: "List branches in a repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			project, repo, err := resolveProjectRepo(cmd, client, args[0], args[1])
			if err != nil {
				return err
			}
			branches, err := client.ListBranches(cmd.Context(), project.ID, repo.ID)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(branches))
			for _, b := range branches {
				rows = append(rows, []string{b.Name, shortCommit(b.Commit.ID)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Branch", "Head"}, rows, nil))
			return nil
		},
	}
}

func newShowPullReqsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "pullreqs <project> <repo>",
		Aliases: []string{"prs"},
		Short:   "List active pull requests in a repository",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			project, repo, err := resolveProjectRepo(cmd, client, args[0], args[1])
			if err != nil {
				return err
			}
			prs, err := client.ListPullRequests(cmd.Context(), project.ID, repo.ID)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(prs))
			for _, pr := range prs {
				rows = append(rows, []string{
					strconv.Itoa(pr.ID),
					pr.Title,
					pr.Status,
					yesNo(pr.IsDraft),
					pr.CreatedBy.DisplayName,
					trimRefPrefix(pr.SourceRef) + " -> " + trimRefPrefix(pr.TargetRef),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Status", "Draft", "Author", "Refs"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}
}

func newShowTeamsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "teams <project>",
		Short: "List teams in a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			project, err := client.FindProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			teams, err := client.ListTeams(cmd.Context(), project.ID)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(teams))
			for _, team := range teams {
				rows = append(rows, []string{team.Name, team.ID})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "ID"}, rows, nil))
			return nil
		},
	}
}

func newShowWorkItemsCommand(ctx *commandContext) *cobra.Command {
	var team string

	cmd := &cobra.Command{
		Use:   "workitems <project> [id...]",
		Short: "List work items by ID or team backlog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			project, err := client.FindProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var items []devops.WorkItem
			switch {
			case len(args) > 1:
				ids := make([]int, 0, len(args)-1)
				for _, raw := range args[1:] {
					id, convErr := strconv.Atoi(raw)
					if convErr != nil {
						return fmt.Errorf("invalid work item id %q", raw)
					}
					ids = append(ids, id)
				}
				items, err = client.GetWorkItems(cmd.Context(), project.ID, ids)
			case team != "":
				items, err = teamWorkItems(cmd, client, project, team)
			default:
				return fmt.Errorf("provide work item ids or --team")
			}
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					strconv.Itoa(item.ID),
					item.State(),
					item.Title(),
					strconv.Itoa(item.CommentCount()),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "State", "Title", "Comments"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&team, "team", "t", "", "List the backlog of a team instead of explicit ids")
	return cmd
}

func resolveProjectRepo(cmd *cobra.Command, client *devops.Client, projectRef, repoRef string) (devops.Project, devops.Repo, error) {
	project, err := client.FindProject(cmd.Context(), projectRef)
	if err != nil {
		return devops.Project{}, devops.Repo{}, err
	}
	repo, err := client.FindRepo(cmd.Context(), project.ID, repoRef)
	if err != nil {
		return devops.Project{}, devops.Repo{}, err
	}
	return project, repo, nil
}

func teamWorkItems(cmd *cobra.Command, client *devops.Client, project devops.Project, teamRef string) ([]devops.WorkItem, error) {
	teams, err := client.ListTeams(cmd.Context(), project.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range teams {
		if strings.EqualFold(t.Name, teamRef) || strings.EqualFold(t.ID, teamRef) {
			return client.ListTeamWorkItems(cmd.Context(), project.ID, t.ID)
		}
	}
	return nil, fmt.Errorf("unknown team %q in project %q", teamRef, project.Name)
}

func trimRefPrefix(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}

func shortCommit(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
