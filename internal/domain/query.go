package domain

import "time"

// QueryRecord is one entry of the query history.
type QueryRecord struct {
	ID            string
	Query         string
	Answer        string
	TopK          int
	CitationCount int
	VersionID     int64
	DurationMs    int
	CreatedAt     time.Time
}

// DailyQueryCount is the number of queries recorded on a UTC day (YYYY-MM-DD).
type DailyQueryCount struct {
	Date  string
	Count int
}

// DocumentPage is one cursor page of documents, newest first.
type DocumentPage struct {
	Items      []*Document
	NextCursor string
	HasMore    bool
}
