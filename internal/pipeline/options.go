package pipeline

import (
	"github.com/DeusData/importgraph/internal/config"
)

// OptionsFromConfig builds Options for the project at root from its
// configuration file settings.
func OptionsFromConfig(root string, cfg *config.Config) (Options, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	include, exclude, err := cfg.Patterns()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Root:        root,
		Entries:     cfg.Entries,
		Exits:       cfg.Exits,
		ScanDirs:    cfg.ScanDirs,
		Include:     include,
		Exclude:     exclude,
		IgnoreDirs:  cfg.IgnoreDirs,
		NoGitignore: !cfg.EffectiveGitignore(),
		Workers:     cfg.EffectiveWorkers(),
		ScanAll:     cfg.EffectiveScanAll(),
	}, nil
}
