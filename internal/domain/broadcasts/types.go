package broadcasts

import "time"

var QueryTimeoutDuration = time.Second * 5

// Run is the audit record of one completed broadcast. It is not a resume
// cursor: an interrupted broadcast leaves no row.
type Run struct {
	ID         int64     `json:"id"`
	OperatorID int64     `json:"operator_id"`
	Text       string    `json:"text"`
	Total      int       `json:"total"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
