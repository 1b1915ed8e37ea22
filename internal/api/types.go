package api

import (
	"time"

	"github.com/NamiraNet/handoff/internal/board"
	"github.com/NamiraNet/handoff/internal/worker"
)

type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

type MessageResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type PushRequest struct {
	Text string `json:"text"`
}

type PushResponse struct {
	Key  string   `json:"key,omitempty"`
	Keys []string `json:"keys,omitempty"`
}

type MessageView struct {
	Key        string       `json:"key"`
	Status     board.Status `json:"status"`
	PlainText  string       `json:"plain_text"`
	CipherText string       `json:"cipher_text,omitempty"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
	ElapsedMs  int64        `json:"elapsed_ms"`
	Error      string       `json:"error,omitempty"`
	Source     string       `json:"source"`
}

type ListResponse struct {
	Messages []MessageView `json:"messages"`
	Total    int           `json:"total"`
	Pending  int           `json:"pending"`
}

type WorkerStatus struct {
	Name        string `json:"name"`
	State       string `json:"state"`
	StopPolicy  string `json:"stop_policy"`
	Submitted   int64  `json:"submitted"`
	Executed    int64  `json:"executed"`
	Failed      int64  `json:"failed"`
	Discarded   int64  `json:"discarded"`
	QueueLength int    `json:"queue_length"`
	Uptime      string `json:"uptime"`
}

type HealthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Build   VersionInfo  `json:"build"`
	Worker  WorkerStatus `json:"worker"`
}

func newMessageView(item board.Item, source string) MessageView {
	return MessageView{
		Key:        item.Value.Key,
		Status:     board.StatusOf(item),
		PlainText:  item.Value.PlainText,
		CipherText: item.Value.CipherText,
		EnqueuedAt: item.EnqueuedAt,
		ElapsedMs:  item.Elapsed.Milliseconds(),
		Error:      item.Err,
		Source:     source,
	}
}

func newWorkerStatus(s worker.Stats) WorkerStatus {
	return WorkerStatus{
		Name:        s.Name,
		State:       s.State.String(),
		StopPolicy:  s.Policy.String(),
		Submitted:   s.Submitted,
		Executed:    s.Executed,
		Failed:      s.Failed,
		Discarded:   s.Discarded,
		QueueLength: s.QueueLength,
		Uptime:      s.Uptime.String(),
	}
}
