package publish

import (
	"context"
	"fmt"

	"maat-go/internal/config"
	"maat-go/internal/maat"
)

// NewPublisherFromConfig creates a Publisher based on the publish config type.
func NewPublisherFromConfig(ctx context.Context, cfg config.PublishConfig) (maat.Publisher, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryPublisher(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem publisher requires fs_root to be set")
		}
		return NewFileSystemPublisher(cfg.FSRoot)
	case "s3":
		return NewS3PublisherFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown publish type: %s", cfg.Type)
	}
}
