package types

// Status is the row status of reference data entities
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)

func (s Status) String() string {
	return string(s)
}
