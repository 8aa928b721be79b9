package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/cachegate/pkg/classifier"
	"github.com/pario-ai/cachegate/pkg/metrics"
	"github.com/pario-ai/cachegate/pkg/provider"
	"github.com/pario-ai/cachegate/pkg/proxy"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the caching proxy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg
			if listen != "" {
				cfg.Listen = listen
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.NewCollector("cachegate", reg, a.logger)

			geminiClient := provider.NewGeminiClient(cfg.Providers.Gemini.BaseURL, cfg.Providers.Gemini.Timeout)
			providers := provider.NewRegistry(
				provider.NewOllamaProvider(cfg.Providers.Ollama.Endpoint, cfg.Providers.Ollama.DefaultModel, cfg.Providers.Ollama.Timeout, a.logger),
				provider.NewGeminiProvider(geminiClient, cfg.Providers.Gemini.TextModel, cfg.Providers.Gemini.ImageModel, a.logger),
			)

			c := a.cache(m)
			deps := proxy.Deps{
				ProviderKeys: a.providerKeys,
				Providers:    providers,
				Cache:        c,
				Metrics:      m,
				Logger:       a.logger,
				DefaultModel: cfg.Providers.Ollama.DefaultModel,
			}
			if cfg.Classifier.Enabled {
				classifierClient := provider.NewGeminiClient(cfg.Providers.Gemini.BaseURL, cfg.Classifier.Timeout)
				deps.Classifier = classifier.NewGeminiClassifier(classifierClient, cfg.Classifier.Model, a.logger)
				deps.Credentials = classifier.NewCredentialSource(cfg.Classifier.APIKey, a.providerKeys)
			} else {
				a.logger.Warn("cache classifier disabled; ollama responses will not be cached")
			}

			srv := proxy.New(cfg, proxy.NewPipeline(deps), a.serverKeys, c,
				proxy.WithMetrics(m, reg),
				proxy.WithLogger(a.logger),
			)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.logger.Info("starting cachegate",
				zap.String("version", version),
				zap.String("storage", cfg.Storage.Driver),
				zap.Bool("classifier", cfg.Classifier.Enabled),
			)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}
