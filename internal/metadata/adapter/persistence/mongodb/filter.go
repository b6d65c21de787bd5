package mongodb

import (
	"strconv"
	"strings"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/query"

	"go.mongodb.org/mongo-driver/bson"
)

// dataField is the document field holding the user's JSON
const dataField = "data"

// buildMongoFilter lowers a parsed filter into a MongoDB query document over
// the data field. A nil filter selects everything.
func buildMongoFilter(f query.Filter) bson.M {
	if f == nil {
		return bson.M{}
	}
	return lowerFilter(f, dataField)
}

func fieldPath(prefix, key string) string {
	switch {
	case key == "":
		return prefix
	case prefix == "":
		return key
	}
	return prefix + "." + key
}

func lowerFilter(f query.Filter, prefix string) bson.M {
	switch n := f.(type) {
	case *query.Scalar:
		return keyedCondition(prefix, n)
	case *query.Compound:
		path := fieldPath(prefix, n.Key)
		guards := intermediateGuards(prefix, n.Key)
		var cond bson.M
		if n.Quantifier == query.QuantAny {
			cond = bson.M{path: bson.M{"$elemMatch": elementCondition(n.Inner, false)}}
		} else {
			// every element matches: the path is an array with no failing element
			cond = bson.M{"$and": bson.A{
				bson.M{path: bson.M{"$type": "array"}},
				bson.M{path: bson.M{"$not": bson.M{"$elemMatch": elementCondition(n.Inner, true)}}},
			}}
		}
		return guarded(guards, cond)
	case *query.Bool:
		clauses := make(bson.A, 0, len(n.Filters))
		for _, child := range n.Filters {
			clauses = append(clauses, lowerFilter(child, prefix))
		}
		return bson.M{"$" + string(n.Op): clauses}
	}
	return bson.M{}
}

// notArray matches values that are not arrays, including missing ones
var notArray = bson.M{"$not": bson.M{"$type": "array"}}

// intermediateGuards stops Mongo from reaching through arrays on the way to
// key: every proper prefix of the path must not be an array.
func intermediateGuards(prefix, key string) bson.A {
	segments := model.SplitPath(key)
	if len(segments) < 2 {
		return nil
	}
	guards := make(bson.A, 0, len(segments)-1)
	for i := 1; i < len(segments); i++ {
		guards = append(guards, bson.M{fieldPath(prefix, strings.Join(segments[:i], ".")): notArray})
	}
	return guards
}

func guarded(guards bson.A, cond bson.M) bson.M {
	if len(guards) == 0 {
		return cond
	}
	return bson.M{"$and": append(guards, cond)}
}

// keyedCondition lowers a scalar on a dotted key with whole-value semantics:
// an array at the key is compared as a value, never element by element.
func keyedCondition(prefix string, s *query.Scalar) bson.M {
	path := fieldPath(prefix, s.Key)
	expr := operatorExpr(s.Op, s.Value, true)
	var leaf bson.M
	switch s.Op {
	case query.OpExists:
		leaf = bson.M{path: expr}
	case query.OpNe:
		// an array never equals a scalar
		leaf = bson.M{"$or": bson.A{
			bson.M{path: bson.M{"$type": "array"}},
			bson.M{path: expr},
		}}
	default:
		expr["$not"] = bson.M{"$type": "array"}
		leaf = bson.M{path: expr}
	}
	return guarded(intermediateGuards(prefix, s.Key), leaf)
}

// elementCondition builds the $elemMatch body for a scalar applied to each
// array element. negate selects elements that do NOT satisfy the scalar.
func elementCondition(s *query.Scalar, negate bool) bson.M {
	if s.Key == "" {
		expr := operatorExpr(s.Op, s.Value, false)
		if negate {
			return bson.M{"$not": expr}
		}
		return expr
	}
	cond := keyedCondition("", s)
	if negate {
		return bson.M{"$nor": bson.A{cond}}
	}
	return cond
}

// operatorExpr renders the field-level operator document. keyed is false when
// the expression applies to an array element directly, where $exists has no
// meaning.
func operatorExpr(op query.Op, value interface{}, keyed bool) bson.M {
	switch op {
	case query.OpEq:
		if value == nil && keyed {
			return bson.M{"$exists": true, "$eq": nil}
		}
		return bson.M{"$eq": value}
	case query.OpNe:
		if keyed {
			return bson.M{"$exists": true, "$ne": value}
		}
		return bson.M{"$ne": value}
	case query.OpGt:
		return bson.M{"$gt": value}
	case query.OpGte:
		return bson.M{"$gte": value}
	case query.OpLt:
		return bson.M{"$lt": value}
	case query.OpLte:
		return bson.M{"$lte": value}
	case query.OpLike:
		pattern, _ := value.(string)
		return bson.M{"$regex": query.LikeToRegexp(pattern), "$options": "s"}
	case query.OpExists:
		return bson.M{"$exists": true}
	case query.OpText:
		text, _ := value.(string)
		return bson.M{"$in": textAlternatives(text)}
	}
	return bson.M{}
}

// textAlternatives lists the stored values whose text form equals s. A
// number qualifies only when s is its canonical rendering, so "5" matches 5
// while "5.0" and "05" do not.
func textAlternatives(s string) bson.A {
	alts := bson.A{s}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if text, ok := model.TextForm(f); ok && text == s {
			alts = append(alts, f)
		}
	}
	if s == "true" || s == "false" {
		alts = append(alts, s == "true")
	}
	return alts
}
