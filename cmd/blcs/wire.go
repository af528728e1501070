package main

import (
	"log/slog"

	"github.com/John-Robertt/BLCS/internal/config"
	"github.com/John-Robertt/BLCS/internal/fetch"
	"github.com/John-Robertt/BLCS/internal/identity"
	"github.com/John-Robertt/BLCS/internal/infra/httpx"
	"github.com/John-Robertt/BLCS/internal/resolve"
	"github.com/John-Robertt/BLCS/internal/score"
)

// services 是一次进程运行共享的组件；缓存随之存活到进程结束。
type services struct {
	resolver resolve.Resolver
	score    *score.Service
}

func buildServices(eff config.EffectiveConfig, logger *slog.Logger) (*services, error) {
	sourceClient, err := httpx.NewSourceClient(eff.ProxyURL, eff.Timeout)
	if err != nil {
		return nil, err
	}
	apiClient, err := httpx.NewAPIClient(eff.ProxyURL, eff.Timeout)
	if err != nil {
		return nil, err
	}

	matcher, err := identity.New(identity.Options{
		BaseURL:    eff.IdentityBaseURL,
		Path:       eff.IdentityPath,
		HTTPClient: apiClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	fetcher, err := fetch.New(fetch.Options{
		Doer:    sourceClient,
		BaseURL: eff.SourceBaseURL,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	r := resolve.Resolver{Matcher: matcher, Logger: logger}
	return &services{
		resolver: r,
		score:    &score.Service{Resolver: r, Fetcher: fetcher, Logger: logger},
	}, nil
}
