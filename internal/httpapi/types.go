package httpapi

import "time"

type scrapeRequest struct {
	Query        string `json:"query"`
	OutputFormat string `json:"output_format"`
	Headless     *bool  `json:"headless"`
}

type cancelRequest struct {
	JobID string `json:"job_id"`
}

type fileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	URL      string    `json:"url"`
}

type setPasswordReq struct {
	Password string `json:"password"`
}
