package webhook

import (
	"context"
	"log/slog"
)

const loadsTable = "loads"

// LoadStatusResult is the outcome of a load status event. Change is empty
// when the event was ignored.
type LoadStatusResult struct {
	Message string `json:"message"`
	Change  string `json:"change,omitempty"`
}

// Processed reports whether the event carried a status change.
func (r *LoadStatusResult) Processed() bool { return r.Change != "" }

// LoadStatus inspects an UPDATE on the loads table and reports the status
// transition. Downstream delivery (email to brokers and customers) is not
// wired yet; the change is only logged.
func LoadStatus(ctx context.Context, p Payload, logger *slog.Logger) *LoadStatusResult {
	if logger == nil {
		logger = slog.Default()
	}
	if p.Table != loadsTable {
		return &LoadStatusResult{Message: "Ignored: Not loads table"}
	}
	if p.Type != TypeUpdate {
		return &LoadStatusResult{Message: "Ignored: Not an UPDATE"}
	}

	oldStatus := field(p.OldRecord, "status")
	newStatus := field(p.Record, "status")
	if oldStatus == newStatus {
		logger.DebugContext(ctx, "load status unchanged", "status", newStatus)
		return &LoadStatusResult{Message: "Status unchanged"}
	}

	id := field(p.Record, "id")
	change := oldStatus + " -> " + newStatus
	logger.InfoContext(ctx, "load status changed", "load_id", id, "change", change)
	return &LoadStatusResult{
		Message: "Notification processed for Load " + id,
		Change:  change,
	}
}
