package usecase

import (
	"context"
	"fmt"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/query"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/repository"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/eventbus"
)

// buildFilter picks the filter= grammar or the key=value shorthand. Both at
// once is rejected.
func buildFilter(req ListRequest) (query.Filter, error) {
	legacy := false
	for _, values := range req.KeyValues {
		if len(values) > 0 {
			legacy = true
			break
		}
	}
	if req.Filter != "" {
		if legacy {
			return nil, apperrors.NewValidationError("filter cannot be combined with key=value parameters").
				WithCode("FILTER_CONFLICT")
		}
		return query.Parse(req.Filter)
	}
	return query.FromKeyValues(req.KeyValues)
}

func (uc *MetadataUsecase) ListRecords(ctx context.Context, req ListRequest) ([]*model.MetadataRecord, error) {
	if err := validatePage(req.Limit, req.Offset); err != nil {
		return nil, err
	}
	filter, err := buildFilter(req)
	if err != nil {
		return nil, err
	}
	if req.Limit == 0 {
		return []*model.MetadataRecord{}, nil
	}

	ctx, cancel := uc.storeContext(ctx)
	defer cancel()
	records, err := uc.store.List(ctx, repository.ListQuery{
		Filter: filter,
		Limit:  model.ClampLimit(req.Limit),
		Offset: req.Offset,
	})
	if err != nil {
		uc.logger.WithContext(ctx).Error("Failed to list records", "error", err)
		return nil, err
	}
	uc.logger.WithContext(ctx).Debug("Listed records", "count", len(records), "filter", query.Unparse(filter))
	return records, nil
}

func (uc *MetadataUsecase) GetRecord(ctx context.Context, guidOrAlias string) (*model.MetadataRecord, error) {
	ctx, cancel := uc.storeContext(ctx)
	defer cancel()

	rec, err := uc.store.Get(ctx, guidOrAlias)
	if err == nil || !apperrors.IsNotFound(err) {
		return rec, err
	}
	guid, aliasErr := uc.store.GetAlias(ctx, guidOrAlias)
	if aliasErr != nil {
		if apperrors.IsNotFound(aliasErr) {
			return nil, err
		}
		return nil, aliasErr
	}
	return uc.store.Get(ctx, guid)
}

func (uc *MetadataUsecase) newRecord(guid string, data, authz map[string]interface{}, baseID *string) (*model.MetadataRecord, error) {
	if err := validateGUID(guid); err != nil {
		return nil, err
	}
	normalized, err := model.NormalizeObject(data)
	if err != nil {
		return nil, apperrors.NewValidationError("data must be a JSON object").WithCause(err)
	}
	if authz == nil {
		authz = model.CloneObject(uc.defaultAuthz)
	} else if authz, err = model.NormalizeObject(authz); err != nil {
		return nil, apperrors.NewValidationError("authz must be a JSON object").WithCause(err)
	}
	return &model.MetadataRecord{GUID: guid, Data: normalized, Authz: authz, BaseID: baseID}, nil
}

func (uc *MetadataUsecase) CreateRecord(ctx context.Context, guid string, data map[string]interface{}, overwrite bool) (*model.MetadataRecord, error) {
	records, err := uc.CreateRecords(ctx, CreateBatchRequest{
		Records:   []CreateRecordRequest{{GUID: guid, Data: data}},
		Overwrite: overwrite,
	})
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

func (uc *MetadataUsecase) CreateRecords(ctx context.Context, req CreateBatchRequest) ([]*model.MetadataRecord, error) {
	if len(req.Records) == 0 {
		return nil, apperrors.NewValidationError("at least one record is required")
	}
	records := make([]*model.MetadataRecord, 0, len(req.Records))
	seen := make(map[string]struct{}, len(req.Records))
	for i, r := range req.Records {
		rec, err := uc.newRecord(r.GUID, r.Data, r.Authz, r.BaseID)
		if err != nil {
			if appErr, ok := apperrors.AsAppError(err); ok {
				appErr.WithDetail("index", i)
			}
			return nil, err
		}
		if _, dup := seen[rec.GUID]; dup {
			return nil, apperrors.NewConflictError(fmt.Sprintf("guid %q appears more than once", rec.GUID))
		}
		seen[rec.GUID] = struct{}{}
		records = append(records, rec)
	}

	storeCtx, cancel := uc.storeContext(ctx)
	defer cancel()
	if err := uc.store.Create(storeCtx, records, req.Overwrite); err != nil {
		uc.logger.WithContext(ctx).Warn("Failed to create records", "count", len(records), "error", err)
		return nil, err
	}

	for _, rec := range records {
		uc.publish(ctx, eventbus.EventTypeRecordWritten, RecordChange{GUID: rec.GUID, Action: ActionCreated, Data: rec.Data})
	}
	uc.logger.WithContext(ctx).Info("Records created", "count", len(records), "overwrite", req.Overwrite)
	return records, nil
}

func (uc *MetadataUsecase) UpdateRecord(ctx context.Context, req UpdateRequest) (*model.MetadataRecord, error) {
	if err := validateGUID(req.GUID); err != nil {
		return nil, err
	}
	data, err := model.NormalizeObject(req.Data)
	if err != nil {
		return nil, apperrors.NewValidationError("data must be a JSON object").WithCause(err)
	}

	storeCtx, cancel := uc.storeContext(ctx)
	defer cancel()
	rec, err := uc.store.Update(storeCtx, req.GUID, data, req.Merge)
	if err != nil {
		return nil, err
	}
	uc.publish(ctx, eventbus.EventTypeRecordWritten, RecordChange{GUID: rec.GUID, Action: ActionUpdated, Data: rec.Data})
	uc.logger.WithContext(ctx).Info("Record updated", "guid", req.GUID, "merge", req.Merge)
	return rec, nil
}

func (uc *MetadataUsecase) DeleteRecord(ctx context.Context, guid string) (*model.MetadataRecord, error) {
	storeCtx, cancel := uc.storeContext(ctx)
	defer cancel()
	rec, err := uc.store.Delete(storeCtx, guid)
	if err != nil {
		return nil, err
	}
	uc.publish(ctx, eventbus.EventTypeRecordDeleted, RecordChange{GUID: guid, Action: ActionDeleted})
	uc.logger.WithContext(ctx).Info("Record deleted", "guid", guid)
	return rec, nil
}
