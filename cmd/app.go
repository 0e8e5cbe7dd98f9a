package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/jobscope/internal/utils"
	"github.com/sw33tLie/jobscope/pkg/cache"
	"github.com/sw33tLie/jobscope/pkg/evaluate"
	"github.com/sw33tLie/jobscope/pkg/fetch"
	"github.com/sw33tLie/jobscope/pkg/pipeline"
	"github.com/sw33tLie/jobscope/pkg/scoring"
	"github.com/sw33tLie/jobscope/pkg/storage"
	"github.com/tidwall/gjson"
)

// app bundles everything a command needs. Not every command uses every
// part; the scheduler is only started when network access is asked for.
type app struct {
	db       *storage.DB
	lock     *utils.DBLock
	settings *storage.KV
	local    *storage.KV

	details  *cache.Persisted[pipeline.Details]
	evals    *evaluate.Service
	sched    *fetch.Scheduler
	runner   *pipeline.Runner
	registry *prometheus.Registry
}

type appOptions struct {
	// write takes the database lock for the life of the command.
	write bool
	// network starts a fetch scheduler and a runner.
	network  bool
	referer  string
	maxFetch int
}

func dbPathFromFlags(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("dbpath")
	if path == "" {
		path = viper.GetString("db.path")
	}
	abs, err := utils.GetAbsDBPath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("could not create db directory: %w", err)
	}
	return abs, nil
}

func openApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	path, err := dbPathFromFlags(cmd)
	if err != nil {
		return nil, err
	}

	a := &app{}
	if opts.write {
		if a.lock, err = utils.NewDBLock(path); err != nil {
			return nil, err
		}
		if err := a.lock.Lock(); err != nil {
			return nil, err
		}
	}

	if a.db, err = storage.Open(path); err != nil {
		a.Close()
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	a.settings = a.db.Scope(storage.ScopeSettings)
	a.local = a.db.Scope(storage.ScopeLocal)

	onError := func(err error) { utils.Log.Warnf("Cache write failed: %v", err) }
	if a.details, err = pipeline.OpenDetailsCache(ctx, a.settings, storage.KeyDetailsCache, onError); err != nil {
		a.Close()
		return nil, err
	}
	evalCache, err := evaluate.OpenCache(ctx, a.local, storage.KeyEvalCache, onError)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.evals = &evaluate.Service{
		Provider: evaluate.NewOpenRouter(llmConfig(ctx, a.settings)),
		Cache:    evalCache,
		Tokens:   evaluate.Tokens{Positive: viper.GetString("verdict.positive"), Negative: viper.GetString("verdict.negative")},
		Log:      utils.Log,
	}

	if !opts.network {
		return a, nil
	}

	proxy, _ := cmd.Flags().GetString("proxy")
	client, err := httpClient(proxy)
	if err != nil {
		a.Close()
		return nil, err
	}
	referer := opts.referer
	if referer == "" {
		referer = viper.GetString("fetch.referer")
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector())
	a.sched = fetch.New(fetch.Config{
		Client:  client,
		Referer: referer,
		Cookie:  viper.GetString("fetch.cookie"),
		Metrics: fetch.NewMetrics(a.registry),
		Log:     utils.Log,
	})
	a.runner = pipeline.New(pipeline.Config{
		Scheduler:       a.sched,
		Details:         a.details,
		Settings:        a.settings,
		Toggles:         pipeline.DefaultToggles(),
		ScoreConfig:     scoring.DefaultConfig(),
		MaxFetchPerPass: opts.maxFetch,
		Evaluations:     a.evals,
		Log:             utils.Log,
	})
	return a, nil
}

// Close stops the scheduler, flushes the caches and releases the database.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.sched != nil {
		a.sched.Close()
	}
	if a.details != nil {
		if err := a.details.Close(ctx); err != nil {
			utils.Log.Warnf("Could not save details cache: %v", err)
		}
	}
	if a.evals != nil && a.evals.Cache != nil {
		if err := a.evals.Cache.Close(ctx); err != nil {
			utils.Log.Warnf("Could not save evaluation cache: %v", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			utils.Log.Warnf("%v", err)
		}
	}
}

// saveResults stores a pass. Failures are logged; they never fail the
// pass itself.
func (a *app) saveResults(ctx context.Context, results []pipeline.Result) {
	records := make([]storage.Result, 0, len(results))
	for _, r := range results {
		records = append(records, r.Record())
	}
	if err := a.db.UpsertResults(ctx, records); err != nil {
		utils.Log.Errorf("Could not save results: %v", err)
	}
}

func httpClient(proxy string) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Jar: jar, Timeout: 30 * time.Second}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", proxy, err)
		}
		client.Transport = &http.Transport{
			Proxy:           http.ProxyURL(proxyURL),
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return client, nil
}

// llmConfig builds the provider settings from the config file, overridden
// by whatever was saved with "jobscope settings set llm".
func llmConfig(ctx context.Context, kv *storage.KV) evaluate.OpenRouterConfig {
	cfg := evaluate.OpenRouterConfig{
		APIKey: viper.GetString("openrouter.apikey"),
		Model:  viper.GetString("openrouter.model"),
		Prompt: viper.GetString("openrouter.prompt"),
		Title:  viper.GetString("openrouter.title"),
		Log:    utils.Log,
	}
	raw, ok, err := kv.Get(ctx, storage.KeyLLMSettings)
	if err != nil {
		utils.Log.Warnf("Could not read LLM settings: %v", err)
		return cfg
	}
	if !ok {
		return cfg
	}
	if v := gjson.GetBytes(raw, "apiKey").String(); v != "" {
		cfg.APIKey = v
	}
	if v := gjson.GetBytes(raw, "model").String(); v != "" {
		cfg.Model = v
	}
	if v := gjson.GetBytes(raw, "prompt").String(); v != "" {
		cfg.Prompt = v
	}
	return cfg
}
