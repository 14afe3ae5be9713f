package config

import (
	"os"
	"path/filepath"
)

// Normalize resolves relative paths against Root. Call it after Validate.
func Normalize(cfg *Config) error {
	if cfg.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		cfg.Root = wd
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return err
	}
	cfg.Root = root

	for _, p := range []*string{
		&cfg.Paging.Dump,
		&cfg.Paging.StateDir,
		&cfg.Paging.CacheDir,
		&cfg.Paging.ToolsDir,
		&cfg.Paging.IconDir,
		&cfg.Paging.BlankIcon,
		&cfg.Paging.ErrorIcon,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(root, *p)
		}
	}
	return nil
}
