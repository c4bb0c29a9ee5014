package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/archive"
	"github.com/sells-group/project-registry/internal/config"
	"github.com/sells-group/project-registry/internal/extract"
	"github.com/sells-group/project-registry/internal/notify"
	"github.com/sells-group/project-registry/internal/pipeline"
	"github.com/sells-group/project-registry/internal/resolve"
	"github.com/sells-group/project-registry/internal/scrape"
	"github.com/sells-group/project-registry/internal/store"
	anthropicpkg "github.com/sells-group/project-registry/pkg/anthropic"
	"github.com/sells-group/project-registry/pkg/jina"
	"github.com/sells-group/project-registry/pkg/notion"
)

// registryStore is what every backend implements.
type registryStore interface {
	store.Registry
	store.Intake
}

// registryEnv holds the initialized store, collaborators and pipeline
// shared by the commands.
type registryEnv struct {
	Store    registryStore
	Pipeline *pipeline.Pipeline
	Scraper  *scrape.Chain
	Notifier notify.Notifier
}

// Close releases resources held by the environment.
func (e *registryEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured registry backend.
func initStore(ctx context.Context, c *config.Config) (registryStore, error) {
	var (
		st  registryStore
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	case "notion":
		client := notion.NewClient(c.Notion.Token, notion.WithRateLimit(c.Notion.RateLimit))
		st = store.NewNotion(client, c.Notion.ProjectDB, c.Notion.DetailDB, c.Notion.IntakeDB)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initScraper builds the fetch chain: local HTTP first, Jina reader when a
// key is configured.
func initScraper(c *config.Config) *scrape.Chain {
	scrapers := []scrape.Scraper{scrape.NewLocalScraper(scrape.WithUserAgent(c.Scrape.UserAgent))}
	if c.Jina.Key != "" {
		jinaClient := jina.NewClient(c.Jina.Key, jina.WithBaseURL(c.Jina.BaseURL))
		scrapers = append(scrapers, scrape.NewJinaAdapter(jinaClient, scrape.WithBreaker(scrape.BreakerSettings{
			Failures: c.Scrape.BreakerFailures,
			Window:   time.Duration(c.Scrape.BreakerWindowSeconds) * time.Second,
			Cooldown: time.Duration(c.Scrape.BreakerCooldownSeconds) * time.Second,
		})))
	}
	return scrape.NewChain(scrape.NewPathMatcher(c.Scrape.ExcludePaths), scrapers...)
}

// initExtractor returns the LLM extractor backed by the heuristic one, or
// the heuristic alone.
func initExtractor(c *config.Config) extract.Extractor {
	heuristic := extract.NewHeuristic()
	if c.Extract.Provider != "llm" {
		return heuristic
	}
	var opts []anthropicpkg.ClientOption
	if c.Anthropic.BaseURL != "" {
		opts = append(opts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
	}
	llm := extract.NewLLM(anthropicpkg.NewClient(c.Anthropic.Key, opts...),
		extract.WithModel(c.Anthropic.Model),
		extract.WithMaxTokens(c.Anthropic.MaxTokens),
		extract.WithMaxContentChars(c.Extract.MaxContentChars),
	)
	return extract.WithFallback(llm, heuristic)
}

// initArchiver returns nil when archival is disabled.
func initArchiver(c *config.Config) (*archive.Archiver, error) {
	switch c.Archive.Driver {
	case "", "none":
		return nil, nil
	case "local":
		b, err := archive.NewLocal(c.Archive.Dir)
		if err != nil {
			return nil, err
		}
		return archive.New(b), nil
	case "s3":
		b, err := archive.NewS3(archive.S3Config{
			Endpoint:  c.Archive.Endpoint,
			Region:    c.Archive.Region,
			AccessKey: c.Archive.AccessKey,
			SecretKey: c.Archive.SecretKey,
			Bucket:    c.Archive.Bucket,
			Prefix:    c.Archive.Prefix,
			UseSSL:    c.Archive.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return archive.New(b), nil
	default:
		return nil, eris.Errorf("unsupported archive driver: %s", c.Archive.Driver)
	}
}

// initEnv validates the config for mode and builds the environment.
// Callers should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, mode string) (*registryEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}

	env := &registryEnv{Store: st, Notifier: notify.Discard{}}
	if c.Notify.WebhookURL != "" {
		env.Notifier = notify.NewWebhook(c.Notify.WebhookURL)
	}

	opts := []pipeline.Option{
		pipeline.WithEngine(resolve.New(resolve.WithThreshold(c.Match.Threshold))),
		pipeline.WithNotifier(env.Notifier),
		pipeline.WithRegistryURL(c.Notify.RegistryURL),
	}

	var (
		fetcher   pipeline.Fetcher
		extractor extract.Extractor
	)
	if mode != config.ModeRegistry {
		env.Scraper = initScraper(c)
		fetcher = env.Scraper
		extractor = initExtractor(c)

		arch, err := initArchiver(c)
		if err != nil {
			env.Close()
			return nil, err
		}
		if arch != nil {
			opts = append(opts, pipeline.WithArchiver(arch))
		}
	}

	env.Pipeline = pipeline.New(st, fetcher, extractor, opts...)
	zap.L().Debug("environment ready",
		zap.String("store", c.Store.Driver),
		zap.String("mode", mode),
		zap.String("extract", c.Extract.Provider),
		zap.String("archive", c.Archive.Driver),
	)
	return env, nil
}
