// Package config loads a tracking channel's static configuration from a
// YAML file with command-line flag overrides, mirroring
// doismellburning-samoyed's cmd/ binaries: github.com/spf13/pflag layered
// over gopkg.in/yaml.v3, decoded into a plain struct and validated once at
// construction.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mfkiwl/gpstrack/internal/tracking"
)

// File is the on-disk YAML shape, using the enumerated key names.
type File struct {
	IfFreq              float64 `yaml:"if_freq"`
	FsIn                float64 `yaml:"fs_in"`
	VectorLength        int     `yaml:"vector_length"`
	PLLBandwidthHz      float64 `yaml:"pll_bw_hz"`
	DLLBandwidthHz      float64 `yaml:"dll_bw_hz"`
	EarlyLateSpaceChips float64 `yaml:"early_late_space_chips"`
	Dump                bool    `yaml:"dump"`
	DumpFilename        string  `yaml:"dump_filename"`
	PRN                 int     `yaml:"prn"`
	CompatMode          bool    `yaml:"compat_mode"`
}

// FlagSet declares the command-line flags that can override a loaded File.
// Each flag's zero value is distinguished from "not set" via pflag's
// Changed, so a config file value is only overridden when the flag was
// actually passed.
type FlagSet struct {
	fs           *pflag.FlagSet
	configPath   *string
	ifFreq       *float64
	fsIn         *float64
	vectorLength *int
	pllBw        *float64
	dllBw        *float64
	earlyLate    *float64
	dump         *bool
	dumpFilename *string
	prn          *int
	compatMode   *bool
}

// NewFlagSet registers the configuration flags on a fresh pflag.FlagSet.
func NewFlagSet(progName string) *FlagSet {
	fs := pflag.NewFlagSet(progName, pflag.ContinueOnError)
	return &FlagSet{
		fs:           fs,
		configPath:   fs.String("config", "", "path to a YAML configuration file"),
		ifFreq:       fs.Float64("if_freq", 0, "intermediate frequency of the input stream, Hz"),
		fsIn:         fs.Float64("fs_in", 0, "sample rate, Hz"),
		vectorLength: fs.Int("vector_length", 0, "nominal samples per PRN period"),
		pllBw:        fs.Float64("pll_bw_hz", 0, "PLL loop bandwidth, Hz"),
		dllBw:        fs.Float64("dll_bw_hz", 0, "DLL loop bandwidth, Hz"),
		earlyLate:    fs.Float64("early_late_space_chips", 0, "early-late correlator spacing, chips"),
		dump:         fs.Bool("dump", false, "enable binary trace dump"),
		dumpFilename: fs.String("dump_filename", "", "base path for the binary trace dump; channel ID and .dat are appended"),
		prn:          fs.Int("prn", 0, "PRN number to track"),
		compatMode:   fs.Bool("compat_mode", false, "reproduce legacy accumulated-phase and lock-policy quirks byte-for-byte"),
	}
}

// Parse parses args (typically os.Args[1:]) into the flag set.
func (fset *FlagSet) Parse(args []string) error {
	return fset.fs.Parse(args)
}

// Raw exposes the underlying pflag.FlagSet so a binary can register
// additional flags of its own (e.g. input path, diagnostic toggles)
// before calling Parse.
func (fset *FlagSet) Raw() *pflag.FlagSet {
	return fset.fs
}

// Load reads the YAML file named by -config (if any), applies any
// explicitly-passed flag overrides on top, and returns a validated
// tracking.Config. Returns a wrapped error on a missing/malformed file, or
// the error from a failed tracking.Config.Validate. Flags are parsed by
// Parse, not here.
func (fset *FlagSet) Load() (tracking.Config, error) {
	var f File
	if *fset.configPath != "" {
		data, err := os.ReadFile(*fset.configPath)
		if err != nil {
			return tracking.Config{}, fmt.Errorf("config: reading %s: %w", *fset.configPath, err)
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return tracking.Config{}, fmt.Errorf("config: parsing %s: %w", *fset.configPath, err)
		}
	}

	fset.applyOverrides(&f)

	cfg := tracking.Config{
		IfFreqHz:              f.IfFreq,
		SampleRateHz:          f.FsIn,
		Nnom:                  f.VectorLength,
		PLLBandwidthHz:        f.PLLBandwidthHz,
		DLLBandwidthHz:        f.DLLBandwidthHz,
		EarlyLateSpacingChips: f.EarlyLateSpaceChips,
		PRN:                   f.PRN,
		DumpEnabled:           f.Dump,
		DumpPath:              f.DumpFilename,
		CompatMode:            f.CompatMode,
	}
	if err := cfg.Validate(); err != nil {
		return tracking.Config{}, err
	}
	return cfg, nil
}

func (fset *FlagSet) applyOverrides(f *File) {
	if fset.fs.Changed("if_freq") {
		f.IfFreq = *fset.ifFreq
	}
	if fset.fs.Changed("fs_in") {
		f.FsIn = *fset.fsIn
	}
	if fset.fs.Changed("vector_length") {
		f.VectorLength = *fset.vectorLength
	}
	if fset.fs.Changed("pll_bw_hz") {
		f.PLLBandwidthHz = *fset.pllBw
	}
	if fset.fs.Changed("dll_bw_hz") {
		f.DLLBandwidthHz = *fset.dllBw
	}
	if fset.fs.Changed("early_late_space_chips") {
		f.EarlyLateSpaceChips = *fset.earlyLate
	}
	if fset.fs.Changed("dump") {
		f.Dump = *fset.dump
	}
	if fset.fs.Changed("dump_filename") {
		f.DumpFilename = *fset.dumpFilename
	}
	if fset.fs.Changed("prn") {
		f.PRN = *fset.prn
	}
	if fset.fs.Changed("compat_mode") {
		f.CompatMode = *fset.compatMode
	}
}
