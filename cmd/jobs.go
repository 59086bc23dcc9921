package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the analysis job queue",
}

var (
	jobsListRepo   string
	jobsListStatus string
	jobsListLimit  int
)

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis jobs, newest first",
	Long: `Shows pipeline jobs across all repositories, or one repository with
--repo. Status filters: pending, running, completed, failed.

Examples:
  docsmith jobs list
  docsmith jobs list --repo 3 --status failed
  docsmith jobs list --status running`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, cleanup, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		filter := store.JobFilter{Limit: jobsListLimit}
		if jobsListStatus != "" {
			switch models.JobStatus(jobsListStatus) {
			case models.JobPending, models.JobRunning, models.JobCompleted, models.JobFailed:
				filter.Status = models.JobStatus(jobsListStatus)
			default:
				return fmt.Errorf("unknown job status %q (valid: pending, running, completed, failed)", jobsListStatus)
			}
		}

		repos := store.NewRepos(db)
		if jobsListRepo != "" {
			repo, rerr := resolveRepoArg(ctx, repos, jobsListRepo)
			if rerr != nil {
				return rerr
			}
			filter.RepoID = repo.ID
		}

		jobs, err := store.NewJobs(db).List(ctx, filter)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs match.")
			return nil
		}

		// Resolve repo names once for display.
		names := map[int64]string{}
		if all, rerr := repos.List(ctx); rerr == nil {
			for _, r := range all {
				names[r.ID] = r.DisplayName()
			}
		}

		fmt.Printf("%-6s %-24s %-10s %-8s %-7s %-10s %s\n",
			"ID", "REPO", "STATUS", "TRIGGER", "RETRIES", "DURATION", "CREATED")
		for _, j := range jobs {
			name := names[j.RepoID]
			if name == "" {
				name = fmt.Sprintf("repo-%d", j.RepoID)
			}
			fmt.Printf("%-6d %-24s %-10s %-8s %-7d %-10s %s\n",
				j.ID, truncate(name, 24), j.Status, j.Trigger, j.RetryCount,
				jobDuration(&j), j.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			if j.ErrorMsg != "" {
				fmt.Printf("       %s\n", dimStyle.Render(truncate(j.ErrorMsg, 90)))
			}
		}
		return nil
	},
}

// jobDuration renders how long a job ran, or has been running so far.
func jobDuration(j *models.Job) string {
	if j.StartedAt == nil {
		return "-"
	}
	end := time.Now()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	d := end.Sub(*j.StartedAt)
	if d < 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsListRepo, "repo", "", "filter by repository id or url")
	jobsListCmd.Flags().StringVar(&jobsListStatus, "status", "", "filter by status")
	jobsListCmd.Flags().IntVar(&jobsListLimit, "limit", 50, "maximum rows to show")
	jobsCmd.AddCommand(jobsListCmd)
}
