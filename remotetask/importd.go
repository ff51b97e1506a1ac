package remotetask

import (
	"context"
	"fmt"
	"strconv"

	"github.com/coreos/go-systemd/import1"
)

// ImportD polls systemd-importd's in-flight transfer list, the closest
// structural analog in the teacher repo to "poll a remote bulk-transfer
// service for a terminal status": the teacher's own Driver.CreateMachine
// submits a transfer with PullRaw and polls ListTransfers until the
// submitted transfer id is no longer present. RemoteTask's task_id is
// treated as a systemd-importd transfer id.
type ImportD struct {
	conn *import1.Conn
}

// NewImportD dials the systemd-importd D-Bus service.
func NewImportD() (*ImportD, error) {
	conn, err := import1.New()
	if err != nil {
		return nil, fmt.Errorf("connect to systemd-importd: %w", err)
	}
	return &ImportD{conn: conn}, nil
}

// Query implements API. systemd-importd's ListTransfers call only reports
// in-flight transfers and does not distinguish success from failure once a
// transfer has left the list, so absence is reported as StatusSucceeded;
// callers that need failure detection should prefer HTTPClient or subscribe
// to the transfer's own D-Bus signals directly.
func (d *ImportD) Query(_ context.Context, _, _, taskID string) (Status, error) {
	id, err := strconv.ParseInt(taskID, 10, 32)
	if err != nil {
		return "", fmt.Errorf("task id %q is not a systemd-importd transfer id: %w", taskID, err)
	}

	transfers, err := d.conn.ListTransfers()
	if err != nil {
		return "", err
	}
	for _, t := range transfers {
		if int64(t.Id) == id {
			return "", nil
		}
	}
	return StatusSucceeded, nil
}
