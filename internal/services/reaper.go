package services

import (
	"fmt"
	"log/slog"
)

type credentialIndex interface {
	OwnerKeys() []string
	Exists(ownerKey string) bool
	RemoveOwners(keys []string) (int, error)
}

type sessionSweeper interface {
	Sweep(valid func(ownerKey string) bool) (expired, orphaned int, err error)
}

type dataProbe interface {
	HasData(ownerKey string) (bool, error)
}

// ReapReport counts what one reaper pass removed.
type ReapReport struct {
	ExpiredSessions   int
	OrphanSessions    int
	OrphanCredentials int
}

func (r ReapReport) Empty() bool {
	return r.ExpiredSessions == 0 && r.OrphanSessions == 0 && r.OrphanCredentials == 0
}

// Reaper removes credentials with no task data anywhere, then sessions that
// are expired or point at a missing credential. Credentials go first so a
// second pass finds nothing left to do.
type Reaper struct {
	credentials credentialIndex
	sessions    sessionSweeper
	data        dataProbe
	log         *slog.Logger
}

func NewReaper(credentials credentialIndex, sessions sessionSweeper, data dataProbe, log *slog.Logger) *Reaper {
	return &Reaper{
		credentials: credentials,
		sessions:    sessions,
		data:        data,
		log:         log.With("component", "reaper"),
	}
}

// RunOnce performs one sweep. It must run before connections are accepted.
func (r *Reaper) RunOnce() (ReapReport, error) {
	var report ReapReport

	var orphans []string
	for _, key := range r.credentials.OwnerKeys() {
		has, err := r.data.HasData(key)
		if err != nil {
			// Unknown is not orphaned.
			r.log.Warn("skipping owner, data check failed", "owner", shortKey(key), "error", err)
			continue
		}
		if !has {
			orphans = append(orphans, key)
		}
	}
	if len(orphans) > 0 {
		n, err := r.credentials.RemoveOwners(orphans)
		if err != nil {
			return report, fmt.Errorf("remove orphaned credentials: %w", err)
		}
		report.OrphanCredentials = n
	}

	expired, orphaned, err := r.sessions.Sweep(r.credentials.Exists)
	if err != nil {
		return report, fmt.Errorf("sweep sessions: %w", err)
	}
	report.ExpiredSessions = expired
	report.OrphanSessions = orphaned

	if report.Empty() {
		r.log.Info("no cleanup needed")
	} else {
		r.log.Info("cleanup complete",
			"expired_sessions", report.ExpiredSessions,
			"orphan_sessions", report.OrphanSessions,
			"orphan_credentials", report.OrphanCredentials,
		)
	}
	return report, nil
}
