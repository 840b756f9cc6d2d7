package registry

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coinpulse/pulsefeed/internal/domain"
)

// assetFile is the on-disk shape of config/assets.yaml.
type assetFile struct {
	Assets []domain.Asset `yaml:"assets"`
}

// sourceFile is the on-disk shape of config/sources.yaml: entries
// grouped per platform.
type sourceFile struct {
	Twitter  []domain.SourceEntry `yaml:"twitter"`
	Reddit   []domain.SourceEntry `yaml:"reddit"`
	Telegram []domain.SourceEntry `yaml:"telegram"`
}

// YAMLAssetLoader reads the asset list from path on every call, so a
// registry reload picks up operator edits without a restart.
func YAMLAssetLoader(path string) AssetLoader {
	return func(ctx context.Context) ([]domain.Asset, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var f assetFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return f.Assets, nil
	}
}

// YAMLSourceLoader reads the whitelist for one platform from path.
func YAMLSourceLoader(path string, source domain.Source) SourceLoader {
	return func(ctx context.Context) ([]domain.SourceEntry, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var f sourceFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		switch source {
		case domain.SourceTwitter:
			return f.Twitter, nil
		case domain.SourceReddit:
			return f.Reddit, nil
		case domain.SourceTelegram:
			return f.Telegram, nil
		}
		return nil, fmt.Errorf("unknown source %q", source)
	}
}
