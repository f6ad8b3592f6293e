package domain

// Entry is a single journal entry. Timestamp is milliseconds since epoch and
// doubles as the per-user primary key.
type Entry struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Mood      string   `json:"mood"`
	Tags      []string `json:"tags"`
	Timestamp int64    `json:"timestamp"`
}

// EntryInput carries the client supplied fields of a new entry.
type EntryInput struct {
	Title   string
	Content string
	Mood    string
	Tags    []string
}
