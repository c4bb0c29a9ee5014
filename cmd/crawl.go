package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/config"
	"github.com/sells-group/project-registry/internal/crawl"
	"github.com/sells-group/project-registry/internal/extract"
	"github.com/sells-group/project-registry/internal/pipeline"
	"github.com/sells-group/project-registry/internal/scrape"
)

var (
	crawlPages   int
	crawlResolve bool
	crawlDetail  bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Search industry news sites for underground plant reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		sources, err := crawl.LoadSources(cfg.Crawl.SourcesFile)
		if err != nil {
			return err
		}
		pages := crawlPages
		if pages <= 0 {
			pages = cfg.Crawl.Pages
		}

		crawler := crawl.New(
			crawl.WithRateLimit(cfg.Crawl.RequestsPerSecond),
			crawl.WithConcurrency(cfg.Crawl.Concurrency),
			crawl.WithMatcher(scrape.NewPathMatcher(cfg.Scrape.ExcludePaths)),
		)
		items, err := crawler.Crawl(ctx, sources, pages)
		if err != nil {
			return err
		}
		if crawlDetail {
			items = crawler.Enrich(ctx, initScraper(cfg), items, cfg.Crawl.Concurrency)
		}
		zap.L().Info("crawl complete", zap.Int("sources", len(sources)), zap.Int("items", len(items)))

		if !crawlResolve {
			return writeJSON(cmd, items)
		}

		env, err := initEnv(ctx, cfg, config.ModeRegistry)
		if err != nil {
			return err
		}
		defer env.Close()

		var created, merged int
		for i := range items {
			confidence := extract.ConfidenceLow
			if items[i].Detailed {
				confidence = extract.ConfidenceMedium
			}
			out, err := env.Pipeline.Observe(ctx, &items[i].Observation, items[i].Source, confidence)
			if err != nil {
				return err
			}
			if out.Action == pipeline.ActionCreated {
				created++
			} else {
				merged++
			}
		}
		zap.L().Info("crawl resolved", zap.Int("created", created), zap.Int("merged", merged))
		return writeJSON(cmd, map[string]int{"items": len(items), "created": created, "merged": merged})
	},
}

func init() {
	crawlCmd.Flags().IntVar(&crawlPages, "pages", 0, "list pages per source (default from config)")
	crawlCmd.Flags().BoolVar(&crawlResolve, "resolve", false, "resolve crawled items into the registry")
	crawlCmd.Flags().BoolVar(&crawlDetail, "detail", false, "fetch each article for fuller extraction")
	rootCmd.AddCommand(crawlCmd)
}
