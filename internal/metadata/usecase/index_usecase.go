package usecase

import (
	"context"
	"fmt"
)

// Index operations implementation
func (uc *MetadataUsecase) ListIndexPaths(ctx context.Context) ([]string, error) {
	ctx, cancel := uc.storeContext(ctx)
	defer cancel()
	paths, err := uc.store.ListIndexPaths(ctx)
	if err != nil {
		uc.logger.WithContext(ctx).Error("Failed to list index paths", "error", err)
		return nil, err
	}
	return paths, nil
}

func (uc *MetadataUsecase) CreateIndexPath(ctx context.Context, path string) error {
	if err := validateIndexPath(path); err != nil {
		return err
	}
	uc.logger.WithContext(ctx).Info("Creating index", "path", path)

	storeCtx, cancel := uc.storeContext(ctx)
	defer cancel()
	if err := uc.store.CreateIndexPath(storeCtx, path); err != nil {
		uc.logger.WithContext(ctx).Warn("Failed to create index", "path", path, "error", err)
		return err
	}
	return nil
}

func (uc *MetadataUsecase) DeleteIndexPath(ctx context.Context, path string) error {
	if err := validateIndexPath(path); err != nil {
		return err
	}
	storeCtx, cancel := uc.storeContext(ctx)
	defer cancel()
	if err := uc.store.DeleteIndexPath(storeCtx, path); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", path, err)
	}
	uc.logger.WithContext(ctx).Info("Index deleted", "path", path)
	return nil
}
