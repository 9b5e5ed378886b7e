package models

// SubmissionResult is the per-player outcome returned by the pull-based
// submission check. Time is epoch milliseconds of the submission.
type SubmissionResult struct {
	Verdict      string `json:"verdict"`
	Time         int64  `json:"time"`
	Language     string `json:"language"`
	SubmissionID int64  `json:"submissionId"`
}
