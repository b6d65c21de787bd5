package mongodb

import (
	"testing"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestRecordDocument_ToModelNormalizesValues(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := recordDocument{
		GUID: "g1",
		Data: bson.M{
			"count":  int32(3),
			"big":    int64(7),
			"nested": bson.D{{Key: "x", Value: bson.A{int32(1), "y"}}},
			"obj":    bson.M{"z": 1.5},
		},
		Authz:       bson.M{"version": int32(0)},
		CreatedDate: &created,
	}

	rec := doc.toModel()
	assert.Equal(t, "g1", rec.GUID)
	assert.Equal(t, map[string]interface{}{
		"count":  3.0,
		"big":    7.0,
		"nested": map[string]interface{}{"x": []interface{}{1.0, "y"}},
		"obj":    map[string]interface{}{"z": 1.5},
	}, rec.Data)
	assert.Equal(t, map[string]interface{}{"version": 0.0}, rec.Authz)
	assert.Equal(t, created, *rec.CreatedDate)
}

func TestToDocument_EmptyDataIsObject(t *testing.T) {
	doc := toDocument(&model.MetadataRecord{GUID: "g", Authz: map[string]interface{}{}})
	assert.NotNil(t, doc.Data)
	assert.Equal(t, "g", doc.GUID)
}
