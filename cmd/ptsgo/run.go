package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rudyjantz/ptsgo/internal/extlib"
	"github.com/rudyjantz/ptsgo/internal/frontend"
	"github.com/rudyjantz/ptsgo/internal/pipeline"
)

// loadOnly loads cfg's packages and registers any YAML-extension summaries,
// without driving any phase of the pipeline: newDumpCmd needs this much
// control so it can run the phases itself and capture intermediate shapes.
func loadOnly(ctx context.Context, cfg *cliConfig) (*frontend.Module, error) {
	mod, err := frontend.Load(ctx, cfg.dir, cfg.patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading program: %w", err)
	}
	if cfg.summaries == "" {
		return mod, nil
	}

	v := viper.New()
	v.SetConfigFile(cfg.summaries)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading summary extension file: %w", err)
	}
	yamlCfg, err := extlib.LoadYAML(v)
	if err != nil {
		return nil, err
	}
	mod.Extern().RegisterYAML(yamlCfg)
	return mod, nil
}

// loadAndSolve builds on loadOnly and runs the full pipeline against
// cfg.entry. It is the one place solve and query funnel through, so both
// share exactly the same load-then-solve behavior.
func loadAndSolve(ctx context.Context, log *zap.SugaredLogger, cfg *cliConfig) (*frontend.Module, *pipeline.Result, error) {
	mod, err := loadOnly(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.summaries != "" {
		log.Debugw("registered external-library summary extensions", "path", cfg.summaries)
	}

	if cfg.entry == "" {
		return nil, nil, fmt.Errorf("--entry is required")
	}

	res, err := pipeline.Run(ctx, mod, cfg.entry, pipeline.Config{
		DoSpec:         cfg.doSpec,
		DebugFcn:       cfg.debugFcn,
		DebugGlbl:      cfg.debugGlbl,
		AliasLoadStore: cfg.aliasLoadStore,
	})
	if err != nil {
		log.Errorw("pipeline failed", "entry", cfg.entry, "error", err)
		return nil, nil, err
	}
	return mod, res, nil
}
