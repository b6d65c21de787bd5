package postgres

import (
	"encoding/json"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"

	"gorm.io/datatypes"
)

// metadataRow is the metadata table. Only authz, baseid and created_date are
// promoted out of data.
type metadataRow struct {
	GUID        string         `gorm:"column:guid;primaryKey"`
	Data        datatypes.JSON `gorm:"column:data;type:jsonb;not null"`
	Authz       datatypes.JSON `gorm:"column:authz;type:jsonb;not null"`
	BaseID      *string        `gorm:"column:baseid;index"`
	CreatedDate *time.Time     `gorm:"column:created_date"`
}

func (metadataRow) TableName() string { return "metadata" }

// aliasRow is the metadata_alias table; deleting a guid cascades
type aliasRow struct {
	Alias  string      `gorm:"column:alias;primaryKey"`
	GUID   string      `gorm:"column:guid;not null;index"`
	Record metadataRow `gorm:"foreignKey:GUID;references:GUID;constraint:OnDelete:CASCADE"`
}

func (aliasRow) TableName() string { return "metadata_alias" }

// indexPathRow records a registered index path
type indexPathRow struct {
	Path      string    `gorm:"column:path;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (indexPathRow) TableName() string { return "metadata_index_path" }

func toRow(rec *model.MetadataRecord) (metadataRow, error) {
	data := rec.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	rawData, err := json.Marshal(data)
	if err != nil {
		return metadataRow{}, err
	}
	rawAuthz, err := json.Marshal(rec.Authz)
	if err != nil {
		return metadataRow{}, err
	}
	return metadataRow{
		GUID:        rec.GUID,
		Data:        datatypes.JSON(rawData),
		Authz:       datatypes.JSON(rawAuthz),
		BaseID:      rec.BaseID,
		CreatedDate: rec.CreatedDate,
	}, nil
}

func (r metadataRow) toModel() (*model.MetadataRecord, error) {
	rec := &model.MetadataRecord{GUID: r.GUID, BaseID: r.BaseID}
	if err := decodeObject(r.Data, &rec.Data); err != nil {
		return nil, err
	}
	if err := decodeObject(r.Authz, &rec.Authz); err != nil {
		return nil, err
	}
	if r.CreatedDate != nil {
		t := r.CreatedDate.UTC()
		rec.CreatedDate = &t
	}
	return rec, nil
}

func decodeObject(raw datatypes.JSON, out *map[string]interface{}) error {
	if len(raw) == 0 {
		*out = map[string]interface{}{}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return err
	}
	if *out == nil {
		*out = map[string]interface{}{}
	}
	return nil
}
