package internal

import (
	"fmt"

	"github.com/DreamCats/reidtrain/internal/config"
)

// LoadConfig 依次合并默认配置、configFile 与 KEY VALUE 覆盖项，校验后冻结。
func LoadConfig(configFile string, opts []string) (*config.Config, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.MergeFromList(opts); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.Freeze()
	return cfg, nil
}
