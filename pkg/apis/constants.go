package apis

const (
	// HTTP Response Fields
	Location = "Location"

	// Self-defined Fields
	Search  = "search"
	Kind    = "kind"
	Tag     = "tag"
	Start   = "start"
	End     = "end"
	Address = "address"
	Limit   = "limit"
)

// MergePatchContentType is the only body type PATCH /settings accepts.
const MergePatchContentType = "application/merge-patch+json"
