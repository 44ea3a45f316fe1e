// Package horde drives one image-generation job through the AI Horde async API:
// submit, poll, cancel and retrieve.
//
//	dream CLI                               Horde
//	┌────────────┐  POST /generate/async    ┌──────────┐
//	│ Lifecycle  │ ───────────────────────▶ │          │
//	│            │  GET  /generate/check/id │  api/v2  │
//	│  (0.8s)    │ ◀──────────────────────▶ │          │
//	│            │  GET|DELETE /status/id   │          │
//	└────────────┘ ◀─────────────────────── └──────────┘
package horde

import (
	"encoding/json"
	"fmt"
)

// JobRequest is the payload sent to the async generation endpoint. It is built
// once before submission and never modified by this package.
type JobRequest struct {
	Prompt           string         `json:"prompt"`
	Params           map[string]any `json:"params,omitempty"`
	NSFW             bool           `json:"nsfw"`
	CensorNSFW       bool           `json:"censor_nsfw"`
	TrustedWorkers   bool           `json:"trusted_workers"`
	Models           []string       `json:"models,omitempty"`
	R2               bool           `json:"r2"`
	DryRun           bool           `json:"dry_run"`
	SourceProcessing string         `json:"source_processing,omitempty"`
	SourceImage      string         `json:"source_image,omitempty"`
	SourceMask       string         `json:"source_mask,omitempty"`
}

// Amount returns the number of images requested (params.n), defaulting to 1.
func (r JobRequest) Amount() int {
	switch n := r.Params["n"].(type) {
	case int:
		if n > 0 {
			return n
		}
	case int64:
		if n > 0 {
			return int(n)
		}
	case float64:
		if n > 0 {
			return int(n)
		}
	}
	return 1
}

// Summary renders the request as JSON with image payloads replaced by their length.
func (r JobRequest) Summary() string {
	if r.SourceImage != "" {
		r.SourceImage = fmt.Sprintf("img2img request with size: %d", len(r.SourceImage))
	}
	if r.SourceMask != "" {
		r.SourceMask = fmt.Sprintf("mask with size: %d", len(r.SourceMask))
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("%+v", r)
	}
	return string(data)
}

// SubmitResponse is the reply to a submission. ID is empty when the service
// accepted the call without queueing a job (dry runs, some rejections); Raw
// then carries the body to show the user.
type SubmitResponse struct {
	ID      string  `json:"id"`
	Kudos   float64 `json:"kudos"`
	Message string  `json:"message"`
	Raw     string  `json:"-"`
}

// JobStatus is one snapshot from the check endpoint.
type JobStatus struct {
	Waiting       int     `json:"waiting"`
	Processing    int     `json:"processing"`
	Restarted     int     `json:"restarted"`
	Finished      int     `json:"finished"`
	QueuePosition int     `json:"queue_position"`
	WaitTime      int     `json:"wait_time"`
	Kudos         float64 `json:"kudos"`
	IsPossible    bool    `json:"is_possible"`
	Faulted       bool    `json:"faulted"`
	Done          bool    `json:"done"`
}

// Generation is one produced artifact. Img is either a download URL or inline
// base64 image data.
type Generation struct {
	ID         string `json:"id"`
	Img        string `json:"img"`
	Seed       string `json:"seed,omitempty"`
	WorkerID   string `json:"worker_id"`
	WorkerName string `json:"worker_name,omitempty"`
	Model      string `json:"model,omitempty"`
	Censored   bool   `json:"censored"`
}

// JobResult is the terminal payload from the status endpoint (GET or DELETE).
type JobResult struct {
	Faulted     bool         `json:"faulted"`
	Kudos       float64      `json:"kudos"`
	Generations []Generation `json:"generations"`
}

// Wire schemas. Pointer fields mark values that must be present in the body.

type statusWire struct {
	Waiting       int     `json:"waiting"`
	Processing    int     `json:"processing"`
	Restarted     int     `json:"restarted"`
	Finished      int     `json:"finished"`
	QueuePosition int     `json:"queue_position"`
	WaitTime      int     `json:"wait_time"`
	Kudos         float64 `json:"kudos"`
	IsPossible    bool    `json:"is_possible"`
	Faulted       bool    `json:"faulted"`
	Done          *bool   `json:"done" validate:"required"`
}

func (w statusWire) status() *JobStatus {
	return &JobStatus{
		Waiting:       w.Waiting,
		Processing:    w.Processing,
		Restarted:     w.Restarted,
		Finished:      w.Finished,
		QueuePosition: w.QueuePosition,
		WaitTime:      w.WaitTime,
		Kudos:         w.Kudos,
		IsPossible:    w.IsPossible,
		Faulted:       w.Faulted,
		Done:          *w.Done,
	}
}

type generationWire struct {
	ID         string `json:"id"`
	Img        string `json:"img" validate:"required"`
	Seed       string `json:"seed"`
	WorkerID   string `json:"worker_id"`
	WorkerName string `json:"worker_name"`
	Model      string `json:"model"`
	Censored   bool   `json:"censored"`
}

type resultWire struct {
	Faulted     *bool            `json:"faulted" validate:"required"`
	Kudos       float64          `json:"kudos"`
	Generations []generationWire `json:"generations" validate:"required,dive"`
}

func (w resultWire) result() *JobResult {
	res := &JobResult{
		Faulted:     *w.Faulted,
		Kudos:       w.Kudos,
		Generations: make([]Generation, 0, len(w.Generations)),
	}
	for _, g := range w.Generations {
		res.Generations = append(res.Generations, Generation(g))
	}
	return res
}
