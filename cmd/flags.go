package main

import (
	"github.com/spf13/pflag"

	"github.com/jefflunt/tiny-outcome/internal/config"
)

type trackerFlags struct {
	precision int
	warmup    string
	threshold float64
	window    int
}

func (f *trackerFlags) bind(fs *pflag.FlagSet) {
	fs.IntVar(&f.precision, "precision", 500, "number of outcomes kept in the window")
	fs.StringVar(&f.warmup, "warmup", "one_third", "warmup policy (full|two_thirds|half|one_third|none) or sample count")
	fs.Float64Var(&f.threshold, "threshold", 0.66, "probability at or above which the signal counts as a winner")
	fs.IntVar(&f.window, "window", 20, "number of newest outcomes used for the lately check")
}

func (f *trackerFlags) settings() config.TrackerConfig {
	return config.TrackerConfig{
		Precision:    f.precision,
		Warmup:       f.warmup,
		Threshold:    f.threshold,
		LatelyWindow: f.window,
	}
}

type serveFlags struct {
	configPath string
	addr       string
}

func (f *serveFlags) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	fs.StringVar(&f.addr, "addr", "", "listen address, overrides the config file")
}
