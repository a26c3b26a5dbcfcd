package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/pdfduo/pdfduo/internal/ledger"
)

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		PDFRoot: ".",
		LogDir:  "",
		Rules: Rules{
			SkipTranslatedByMetadata:    true,
			SkipMaxFileSize:             true,
			SkipMaxPages:                true,
			SkipFilenameFormatCheck:     true,
			SkipFilenameContainsChinese: true,
			SkipContainsKeywords:        true,
			SkipChineseByLabel:          true,
			Keywords:                    []string{"中文版", "翻译"},
		},
		Limits: Limits{
			MaxPages:     100,
			MaxSizeBytes: 50 * 1024 * 1024,
			MaxFailures:  ledger.DefaultMaxFailures,
		},
		Translator: Translator{
			Exe:            "pdf2zh",
			LangIn:         "en",
			LangOut:        "zh",
			Service:        "free",
			QPS:            4,
			Timeout:        30 * time.Minute,
			GapPt:          0,
			DefaultModelID: "Qwen/Qwen2.5-7B-Instruct",
		},
		Labeler: Labeler{
			Client:         "sdk",
			BaseURL:        "https://api.siliconflow.cn/v1",
			Model:          "Qwen/Qwen2.5-VL-32B-Instruct",
			SamplePages:    3,
			DPI:            96,
			Detail:         "low",
			PerPageTimeout: 60 * time.Second,
			QPS:            1,
		},
		Cleanup: Cleanup{
			DeleteMono:           true,
			DeleteAllExceptFinal: false,
			SuppressSkipped:      false,
		},
	}
}

// WriteDefault writes the default configuration to the given path as YAML.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	header := "# pdfduo configuration\n# Values may also be set via PDFDUO_* environment variables.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
