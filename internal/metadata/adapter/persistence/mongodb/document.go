package mongodb

import (
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// recordDocument is the stored shape of a metadata record
type recordDocument struct {
	GUID        string     `bson:"_id"`
	Data        bson.M     `bson:"data"`
	Authz       bson.M     `bson:"authz"`
	BaseID      *string    `bson:"baseid,omitempty"`
	CreatedDate *time.Time `bson:"created_date,omitempty"`
}

type aliasDocument struct {
	Alias string `bson:"_id"`
	GUID  string `bson:"guid"`
}

type indexPathDocument struct {
	Path      string    `bson:"_id"`
	CreatedAt time.Time `bson:"created_at"`
}

func toDocument(rec *model.MetadataRecord) recordDocument {
	data := rec.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	return recordDocument{
		GUID:        rec.GUID,
		Data:        bson.M(data),
		Authz:       bson.M(rec.Authz),
		BaseID:      rec.BaseID,
		CreatedDate: rec.CreatedDate,
	}
}

func (d recordDocument) toModel() *model.MetadataRecord {
	rec := &model.MetadataRecord{
		GUID:   d.GUID,
		Data:   objectFromBSON(d.Data),
		Authz:  objectFromBSON(d.Authz),
		BaseID: d.BaseID,
	}
	if d.CreatedDate != nil {
		t := d.CreatedDate.UTC()
		rec.CreatedDate = &t
	}
	return rec
}

func objectFromBSON(m bson.M) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = valueFromBSON(v)
	}
	return out
}

// valueFromBSON converts driver-decoded values into the plain JSON value tree
// used everywhere else: objects, arrays, float64 numbers.
func valueFromBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		return objectFromBSON(t)
	case map[string]interface{}:
		return objectFromBSON(bson.M(t))
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = valueFromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = valueFromBSON(t[i])
		}
		return out
	case []interface{}:
		return valueFromBSON(bson.A(t))
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case primitive.Decimal128:
		return t.String()
	default:
		return v
	}
}
