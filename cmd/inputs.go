// =============================================================================
// Billing Status Reconciler - Input Discovery
// =============================================================================
//
// Commands that read feeds share the --deferred and --direct flags. When
// neither is given, the input directory is scanned with each feed's
// file_matching_patterns instead.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/billing-status-reconciler/internal/config"
	"github.com/ginjaninja78/billing-status-reconciler/internal/ingest"
	"github.com/ginjaninja78/billing-status-reconciler/internal/logger"
	"github.com/ginjaninja78/billing-status-reconciler/internal/pipeline"
	"github.com/ginjaninja78/billing-status-reconciler/pkg/utils"
)

// inputFlags holds the file lists given on the command line.
type inputFlags struct {
	deferred []string
	direct   []string
}

// bind registers the input flags on cmd.
func (f *inputFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.deferred, "deferred", nil, "Deferred-payment (NP掛け払い) export files")
	cmd.Flags().StringSliceVar(&f.direct, "direct", nil, "Direct-invoice (バクラク請求書) export files")
}

// paths returns the files of both feeds, discovering them when no flag was
// given.
func (f *inputFlags) paths(ctx context.Context, cfg *config.MainConfig) (deferred, direct []string, err error) {
	if len(f.deferred) > 0 || len(f.direct) > 0 {
		return f.deferred, f.direct, nil
	}

	fm := utils.NewFileManager(cfg.InputDir, cfg.OutputDir)
	deferred, err = fm.DiscoverInputFiles(cfg.Feeds.Deferred.FileMatchingPatterns...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover input files: %w", err)
	}
	direct, err = fm.DiscoverInputFiles(cfg.Feeds.Direct.FileMatchingPatterns...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover input files: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("dir", cfg.InputDir).
		Strs("deferred", deferred).Strs("direct", direct).Msg("input files discovered")
	return deferred, direct, nil
}

// load reads every file into memory. An unreadable file is an error; files
// that read but do not decode are reported later as notices.
func (f *inputFlags) load(ctx context.Context, cfg *config.MainConfig) (pipeline.Inputs, error) {
	deferredPaths, directPaths, err := f.paths(ctx, cfg)
	if err != nil {
		return pipeline.Inputs{}, err
	}

	var in pipeline.Inputs
	if in.Deferred, err = readAll(deferredPaths); err != nil {
		return pipeline.Inputs{}, err
	}
	if in.Direct, err = readAll(directPaths); err != nil {
		return pipeline.Inputs{}, err
	}
	return in, nil
}

func readAll(paths []string) ([]ingest.Source, error) {
	sources := make([]ingest.Source, 0, len(paths))
	for _, path := range paths {
		src, err := ingest.ReadFile(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// printNotices writes one line per notice to the command's error stream.
func printNotices(cmd *cobra.Command, notices []pipeline.Notice) {
	for _, n := range notices {
		mark := "!"
		if n.Skipped() {
			mark = "✗"
		}
		if n.Feed != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s [%s] %s\n", mark, n.Feed, n.Message())
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s %s\n", mark, n.Message())
		}
	}
}
