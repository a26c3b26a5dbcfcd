package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pdfduo/pdfduo/internal/config"
	"github.com/pdfduo/pdfduo/internal/home"
)

var (
	cfgFile  string
	homePath string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "pdfduo",
	Short: "Batch-translate PDF libraries into side-by-side dual documents",
	Long: `pdfduo walks a directory of PDFs, translates each eligible document with an
external translator and replaces it with a side-by-side dual document: the
original on the left, the translation on the right. Originals are preserved
as *_original.pdf and every result carries an embedded record that makes
reruns idempotent.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.pdfduo/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&homePath, "home", "", "pdfduo home directory (default $HOME/.pdfduo)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// env bundles everything a subcommand needs.
type env struct {
	home   *home.Dir
	cfg    *config.Config
	mgr    *config.Manager
	logger *slog.Logger
}

func setup() (*env, error) {
	dir, err := home.New(homePath)
	if err != nil {
		return nil, err
	}
	if err := dir.EnsureExists(); err != nil {
		return nil, err
	}

	file := cfgFile
	if file == "" {
		if _, err := os.Stat(dir.ConfigPath()); err == nil {
			file = dir.ConfigPath()
		}
	}
	mgr, err := config.NewManager(file)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	return &env{
		home:   dir,
		cfg:    cfg,
		mgr:    mgr,
		logger: newLogger(cfg, dir),
	}, nil
}

func newLogger(cfg *config.Config, dir *home.Dir) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logDir := cfg.LogDir
	if logDir == "" {
		logDir = dir.Path()
	}

	sink := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "pdfduo.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	}
	out := io.MultiWriter(os.Stderr, sink)

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
