package sink

import (
	"context"

	"mapsharvest-engine/internal/events"
	"mapsharvest-engine/internal/runctx"
)

// Notify announces the delivered result on the event hub so dashboards can
// refresh their file and history views.
type Notify struct {
	Hub *events.Hub
}

func (n *Notify) Deliver(_ context.Context, rc *runctx.RunContext, res Result) error {
	data := map[string]any{
		"status":  res.Status,
		"records": len(res.Records),
		"files":   rc.Artifacts(),
	}
	if res.Err != nil {
		data["error"] = res.Err.Error()
	}
	n.Hub.PublishJob(rc.JobID, events.TypeRecords, data)
	return nil
}
