package usecase

import (
	"context"
	"sort"
)

func (uc *MetadataUsecase) ListAliases(ctx context.Context, guid string) ([]string, error) {
	ctx, cancel := uc.storeContext(ctx)
	defer cancel()
	return uc.store.ListAliases(ctx, guid)
}

func (uc *MetadataUsecase) CreateAliases(ctx context.Context, guid string, aliases []string) ([]string, error) {
	if err := validateAliases(aliases); err != nil {
		return nil, err
	}
	storeCtx, cancel := uc.storeContext(ctx)
	defer cancel()
	if err := uc.store.CreateAliases(storeCtx, guid, aliases); err != nil {
		return nil, err
	}
	uc.logger.WithContext(ctx).Info("Aliases created", "guid", guid, "count", len(aliases))
	return sortedCopy(aliases), nil
}

func (uc *MetadataUsecase) ReplaceAliases(ctx context.Context, guid string, aliases []string) ([]string, error) {
	if err := validateAliases(aliases); err != nil {
		return nil, err
	}
	storeCtx, cancel := uc.storeContext(ctx)
	defer cancel()
	if err := uc.store.ReplaceAliases(storeCtx, guid, aliases); err != nil {
		return nil, err
	}
	uc.logger.WithContext(ctx).Info("Aliases replaced", "guid", guid, "count", len(aliases))
	return sortedCopy(aliases), nil
}

func (uc *MetadataUsecase) DeleteAlias(ctx context.Context, guid, alias string) error {
	ctx, cancel := uc.storeContext(ctx)
	defer cancel()
	return uc.store.DeleteAlias(ctx, guid, alias)
}

func (uc *MetadataUsecase) DeleteAliases(ctx context.Context, guid string) error {
	ctx, cancel := uc.storeContext(ctx)
	defer cancel()
	return uc.store.DeleteAliases(ctx, guid)
}

func sortedCopy(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}
