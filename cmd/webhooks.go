package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/source"
	"github.com/docsmithhq/docsmith-agent/internal/store"
	"github.com/docsmithhq/docsmith-agent/models"
	"github.com/spf13/cobra"
)

var registerForce bool

var registerWebhooksCmd = &cobra.Command{
	Use:   "register-webhooks [id|url...]",
	Short: "Install push webhooks on the forges for monitored repositories",
	Long: `Registers a push webhook on GitHub or GitLab for every monitored
repository (or just the ones you name), so changes arrive immediately
instead of waiting for the next poll sweep.

Requires webhooks.external_url in the config — the public base URL
forges can reach, e.g. https://docsmith.example.com. Deliveries land on
<external_url>/api/webhooks/<provider> and are verified against
webhooks.secret.

Repositories that already have a webhook are skipped unless --force
re-registers them.`,
	RunE: runRegisterWebhooks,
}

func init() {
	registerWebhooksCmd.Flags().BoolVar(&registerForce, "force", false,
		"re-register even if a webhook id is already recorded")
}

func runRegisterWebhooks(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Webhooks.ExternalURL == "" {
		return fmt.Errorf("webhooks.external_url is not configured — set it with: docsmith config set webhooks.external_url <url>")
	}
	if cfg.Webhooks.Secret == "" {
		fmt.Println(warnStyle.Render("webhooks.secret is empty — deliveries will be accepted unverified."))
	}

	db, cleanup, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	repos := store.NewRepos(db)

	var targets []models.Repo
	if len(args) > 0 {
		for _, arg := range args {
			repo, rerr := resolveRepoArg(ctx, repos, arg)
			if rerr != nil {
				return rerr
			}
			targets = append(targets, *repo)
		}
	} else {
		targets, err = repos.ListMonitored(ctx)
		if err != nil {
			return err
		}
	}
	if len(targets) == 0 {
		fmt.Println("No monitored repositories. Add one with: docsmith repo add <url>")
		return nil
	}

	base := strings.TrimRight(cfg.Webhooks.ExternalURL, "/")
	var installed, skipped, failed int
	for i := range targets {
		repo := &targets[i]
		fmt.Printf("%-48s ", truncate(repo.URL, 48))

		if repo.WebhookID != "" && !registerForce {
			fmt.Println("skip (webhook already installed)")
			skipped++
			continue
		}
		if repo.Provider == "" {
			fmt.Println(warnStyle.Render("FAIL (unknown provider)"))
			failed++
			continue
		}
		prov, perr := source.New(repo.Provider, cfg)
		if perr != nil {
			fmt.Println(warnStyle.Render("FAIL (" + perr.Error() + ")"))
			failed++
			continue
		}
		owner, name := source.ParseOwnerRepo(repo.URL)
		hookURL := base + "/api/webhooks/" + repo.Provider
		hookID, herr := prov.RegisterWebhook(ctx, owner, name, hookURL, cfg.Webhooks.Secret)
		if herr != nil {
			fmt.Println(warnStyle.Render("FAIL (" + herr.Error() + ")"))
			failed++
			continue
		}
		if serr := repos.SetWebhookID(ctx, repo.ID, hookID); serr != nil {
			fmt.Println(warnStyle.Render("FAIL (" + serr.Error() + ")"))
			failed++
			continue
		}
		fmt.Println(successStyle.Render("OK") + " (hook " + hookID + ")")
		installed++
	}

	fmt.Printf("\nInstalled %d, skipped %d, failed %d\n", installed, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("%d webhook registrations failed", failed)
	}
	return nil
}
