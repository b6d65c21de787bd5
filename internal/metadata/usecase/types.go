package usecase

// ListRequest selects records for GET /metadata. Filter holds the raw filter=
// expression; KeyValues the remaining key=value parameters.
type ListRequest struct {
	Filter    string
	KeyValues map[string][]string
	Limit     int
	Offset    int
}

// CreateRecordRequest is one element of a POST /metadata body
type CreateRecordRequest struct {
	GUID   string                 `json:"guid"`
	Data   map[string]interface{} `json:"data"`
	Authz  map[string]interface{} `json:"authz,omitempty"`
	BaseID *string                `json:"baseid,omitempty"`
}

// CreateBatchRequest creates one or more records in a single atomic unit
type CreateBatchRequest struct {
	Records   []CreateRecordRequest
	Overwrite bool
}

// UpdateRequest replaces or merges the data of an existing record
type UpdateRequest struct {
	GUID  string
	Data  map[string]interface{}
	Merge bool
}

// RecordChange is the payload of record events
type RecordChange struct {
	GUID   string                 `json:"guid"`
	Action string                 `json:"action"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Record change actions
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)
