package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/orchestrator"
)

const drainTimeout = 30 * time.Second

var errJobFailed = errors.New("job failed")

func runCommand(options func() bootstrap.Options) *cobra.Command {
	return &cobra.Command{
		Use:       "run <operation>",
		Short:     "Run one operation in the foreground and print its stats",
		Long:      "Run one of daily-update, full-crawl, process-content or reprocess-low-quality and wait for it to finish.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(domain.OpDailyUpdate), string(domain.OpFullCrawl), string(domain.OpProcessContent), string(domain.OpReprocess)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := domain.ParseOperation(args[0]); err != nil {
				return err
			}
			return withApp(cmd.Context(), options(), func(ctx context.Context, orch *orchestrator.Orchestrator) error {
				return foreground(ctx, orch, cmd.OutOrStdout(), func() (*domain.CrawlJob, error) {
					return orch.Start(args[0])
				})
			})
		},
	}
}

func crawlCommand(options func() bootstrap.Options) *cobra.Command {
	var req domain.CustomCrawlRequest
	cmd := &cobra.Command{
		Use:       "crawl <blog|video|playlist> <url>",
		Short:     "Crawl a single post, video or playlist",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(domain.CustomBlog), string(domain.CustomVideo), string(domain.CustomPlaylist)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseCustomCrawlKind(args[0])
			if err != nil {
				return err
			}
			req.Kind, req.Target = kind, args[1]
			return withApp(cmd.Context(), options(), func(ctx context.Context, orch *orchestrator.Orchestrator) error {
				return foreground(ctx, orch, cmd.OutOrStdout(), func() (*domain.CrawlJob, error) {
					return orch.StartCustom(req)
				})
			})
		},
	}
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "maximum playlist videos (default 50)")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "print candidates without storing them")
	return cmd
}

// withApp builds the services without the HTTP server and tears them down
// after fn returns. SIGINT and SIGTERM cancel fn's context.
func withApp(parent context.Context, opts bootstrap.Options, fn func(context.Context, *orchestrator.Orchestrator) error) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app.Services.Orchestrator)
}

// foreground starts a job, waits for it and renders the outcome. An
// interrupt shuts the orchestrator down so the job records why it stopped.
func foreground(ctx context.Context, orch *orchestrator.Orchestrator, out io.Writer, start func() (*domain.CrawlJob, error)) error {
	started, err := start()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Started %s job %s\n", started.Operation, started.ID)

	final, err := orch.Wait(ctx, started.ID)
	if err != nil && ctx.Err() == nil {
		return err
	}
	if err != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if shutdownErr := orch.Shutdown(drainCtx); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		if final, err = orch.GetStatus(started.ID); err != nil {
			return err
		}
	}

	renderJob(out, final)
	if final.Status == domain.JobFailed {
		return fmt.Errorf("%w: %s", errJobFailed, final.Message)
	}
	return nil
}
