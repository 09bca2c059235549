package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/barangayhub/portal/internal/boundary"
	"github.com/barangayhub/portal/internal/sessionsync"
)

const unrenderable = "state=? (snapshot could not be rendered)"

// renderLine formats snap on one line. Rendering failures never stop the
// watch loop.
func renderLine(logger *slog.Logger, snap sessionsync.Snapshot) string {
	line, _ := boundary.Guard(logger, "render", func() (string, error) {
		return render(snap), nil
	}, unrenderable)
	return line
}

func render(snap sessionsync.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "state=%s loading=%t", snap.State, snap.Loading)

	if snap.Session != nil {
		fmt.Fprintf(&b, " user=%s id=%s", snap.Session.Email, snap.Session.ID)
	} else if snap.Provisional != nil {
		fmt.Fprintf(&b, " provisional=%s", snap.Provisional.Email)
	}
	if snap.Profile != nil {
		fmt.Fprintf(&b, " role=%s", snap.Profile.Role)
	}
	fmt.Fprintf(&b, " flags=%s", flags(snap))
	if snap.Err != nil {
		fmt.Fprintf(&b, " error=%s", snap.Err.Kind)
	}
	return b.String()
}

func flags(snap sessionsync.Snapshot) string {
	caps := snap.Capabilities()
	var set []string
	for _, f := range []struct {
		name string
		on   bool
	}{
		{"admin", caps.Admin},
		{"official", caps.Official},
		{"health_worker", caps.HealthWorker},
		{"tanod", caps.Tanod},
		{"resident", caps.Resident},
	} {
		if f.on {
			set = append(set, f.name)
		}
	}
	if len(set) == 0 {
		return "-"
	}
	return strings.Join(set, ",")
}
