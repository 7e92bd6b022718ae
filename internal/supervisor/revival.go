package supervisor

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/agent-dashboard/dashboard/internal/manifest"
	"github.com/agent-dashboard/dashboard/internal/projectid"
	"github.com/agent-dashboard/dashboard/internal/session"
)

// maxRevivalFailures is how many consecutive re-create failures a
// manifest entry tolerates before it is pruned (§4.3 Revival).
const maxRevivalFailures = 3

// revive loads the manifest, diffs it against the live session list, and
// re-creates every missing entry using its provider's resume command
// where available. Entries that fail three consecutive attempts are
// dropped from the manifest.
func (s *Supervisor) revive(ctx context.Context) {
	m, err := s.manifestStore.Load()
	if err != nil {
		log.Printf("supervisor: load manifest: %v", err)
		return
	}

	live, err := s.control.ListSessions(ctx)
	if err != nil {
		log.Printf("supervisor: list-sessions during revival: %v", err)
		return
	}
	liveMultiplex := make(map[string]bool, len(live))
	for _, si := range live {
		liveMultiplex[si.Name] = true
	}

	for userName, entry := range m.Sessions {
		multiplexName := projectid.MultiplexName(s.projectID, userName)
		if liveMultiplex[multiplexName] {
			s.adopt(userName, multiplexName, entry)
			continue
		}

		provider, ok := s.registry.For(session.AgentKind(entry.AgentType))
		if !ok {
			log.Printf("supervisor: revival: unknown agent kind %q for %q", entry.AgentType, userName)
			continue
		}
		argv, resumed := provider.ResumeCommand(entry.Cwd, entry.AgentSessionID)
		if !resumed {
			argv = provider.CreateCommand(entry.Cwd)
		}

		if err := s.control.NewSession(ctx, multiplexName, entry.Cwd, strings.Join(argv, " ")); err != nil {
			entry.FailedAttempts++
			log.Printf("supervisor: revival failed for %q (attempt %d): %v", userName, entry.FailedAttempts, err)
			if entry.FailedAttempts >= maxRevivalFailures {
				m.Remove(userName)
			} else {
				m.Put(userName, entry)
			}
			continue
		}
		entry.FailedAttempts = 0
		m.Put(userName, entry)
		s.adopt(userName, multiplexName, entry)
	}

	if err := s.manifestStore.Save(m); err != nil {
		log.Printf("supervisor: save manifest after revival: %v", err)
	}
}

// adopt registers a manifest entry as a live, in-memory Session, whether
// it was already running or was just re-created.
func (s *Supervisor) adopt(userName, multiplexName string, entry manifest.Entry) {
	s.sessions[userName] = &session.Session{
		UserName:       userName,
		MultiplexName:  multiplexName,
		Agent:          session.AgentKind(entry.AgentType),
		Process:        session.Booting,
		AgentActivity:  session.AgentIdle,
		WorkingDir:     entry.Cwd,
		LastActivityAt: time.Now(),
	}
	if entry.AgentSessionID != "" {
		s.agentSessionIDs[userName] = entry.AgentSessionID
	}
}
