package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdfduo/pdfduo/internal/batch"
	"github.com/pdfduo/pdfduo/internal/config"
	"github.com/pdfduo/pdfduo/internal/exclude"
	"github.com/pdfduo/pdfduo/internal/home"
	"github.com/pdfduo/pdfduo/internal/langid"
	"github.com/pdfduo/pdfduo/internal/ledger"
	"github.com/pdfduo/pdfduo/internal/metadata"
	"github.com/pdfduo/pdfduo/internal/pagemerge"
	"github.com/pdfduo/pdfduo/internal/translate"
)

var runCmd = &cobra.Command{
	Use:   "run [root]",
	Short: "Translate every eligible PDF under a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		if err := e.cfg.Validate(); err != nil {
			return err
		}

		root := e.cfg.PDFRoot
		if len(args) == 1 {
			root = args[0]
		}

		// Components hold an immutable snapshot; edits to the config file
		// apply from the next run.
		e.mgr.OnChange(func(c *config.Config) {
			e.logger.Info("config file changed; new settings take effect on the next run")
		})
		e.mgr.WatchConfig()

		meta, err := metadata.NewManager()
		if err != nil {
			return err
		}

		repo := ledger.NewFile(e.home.LedgerPath(), e.logger)
		judge := newJudge(e.cfg)
		gate := exclude.New(e.cfg.Rules, e.cfg.Limits, repo, meta, judge, e.logger)
		invoker := translate.NewInvoker(e.cfg.Translator, e.logger)
		engine := pagemerge.NewEngine()

		outcomePath := e.home.OutcomeLogPath()
		if e.cfg.LogDir != "" {
			outcomePath = filepath.Join(e.cfg.LogDir, home.OutcomeLogFileName)
		}
		outcomes := batch.NewOutcomeLog(outcomePath)

		orch := batch.NewOrchestrator(e.cfg, gate, invoker, engine, meta, repo, outcomes, e.logger)
		sum, err := orch.Run(cmd.Context(), root)
		if err != nil {
			return err
		}

		fmt.Printf("done: %d  skipped: %d  failed: %d\n", sum.Done, sum.Skipped, sum.Failed)
		return nil
	},
}

// newJudge builds the language labeling judge, or nil when the rule is off
// or no API key is configured. The rule chain treats a nil judge as
// disabled.
func newJudge(cfg *config.Config) exclude.LanguageJudge {
	if !cfg.Rules.SkipChineseByLabel || cfg.Labeler.APIKey == "" {
		return nil
	}

	var det langid.Detector
	switch cfg.Labeler.Client {
	case "http":
		det = langid.NewHTTPDetector(cfg.Labeler.APIKey, cfg.Labeler.BaseURL, cfg.Labeler.Model, cfg.Labeler.Detail)
	default:
		det = langid.NewSDKDetector(cfg.Labeler.APIKey, cfg.Labeler.BaseURL, cfg.Labeler.Model, cfg.Labeler.Detail)
	}
	return langid.NewJudge(det, cfg.Labeler.SamplePages, cfg.Labeler.DPI,
		cfg.Labeler.PerPageTimeout, cfg.Labeler.QPS, nil)
}

func init() {
	rootCmd.AddCommand(runCmd)
}
