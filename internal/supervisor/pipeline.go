package supervisor

import (
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/agent-dashboard/dashboard/internal/config"
	"github.com/agent-dashboard/dashboard/internal/logs"
)

// pipelineResult is one provider refresh's outcome, delivered back to the
// main supervisor loop over resultCh so parsing never happens on the
// event-loop goroutine itself (§4.2 "Parsing happens on a worker
// thread/task").
type pipelineResult struct {
	userName  string
	update    logs.Update
	newOffset int64
	err       error
}

// logPipeline drives the background log-ingestion cadence: it gates real
// work to once every RefreshEveryNTicks message-refresh ticks (~2s at the
// default 50ms cadence, §4.2), and bounds each session to at most one
// in-flight refresh via a singleflight.Group keyed by user name -- a tick
// that fires while a session's previous refresh is still running is
// simply skipped rather than queued, so a slow parse never backs up.
type logPipeline struct {
	cfg       config.LogsConfig
	sf        singleflight.Group
	pending   map[string]bool
	cooldown  map[string]int
	tickCount int
	resultCh  chan pipelineResult
	g         *errgroup.Group
}

func newLogPipeline(cfg config.LogsConfig) *logPipeline {
	return &logPipeline{
		cfg:      cfg,
		pending:  make(map[string]bool),
		cooldown: make(map[string]int),
		resultCh: make(chan pipelineResult, 64),
		g:        &errgroup.Group{},
	}
}

// due reports whether this message-refresh tick should gate real pipeline
// work, per the RefreshEveryNTicks cadence.
func (p *logPipeline) due() bool {
	p.tickCount++
	return p.tickCount%p.cfg.RefreshEveryNTicks == 0
}

// refreshSession dispatches provider.UpdateFromLog on a background
// goroutine for userName, unless a refresh for it is already in flight.
func (p *logPipeline) refreshSession(provider logs.Provider, handle logs.Handle, offset int64, userName string) {
	if p.pending[userName] {
		return
	}
	p.pending[userName] = true
	p.g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				p.resultCh <- pipelineResult{userName: userName, err: fmt.Errorf("logs: panic parsing %s: %v", userName, r)}
			}
		}()
		v, sfErr, _ := p.sf.Do(userName, func() (interface{}, error) {
			update, newOffset, parseErr := provider.UpdateFromLog(handle, offset)
			return pipelineResult{userName: userName, update: update, newOffset: newOffset, err: parseErr}, parseErr
		})
		res, ok := v.(pipelineResult)
		if !ok {
			res = pipelineResult{userName: userName, err: sfErr}
		}
		p.resultCh <- res
		return nil
	})
}

// Wait joins every still-running refresh goroutine, used at shutdown.
func (p *logPipeline) wait() error {
	return p.g.Wait()
}

// coolingDown reports whether userName is still within its retry cooldown
// window (§4.2 "Retry/cooldown") and should not be probed for a log handle
// this tick.
func (p *logPipeline) coolingDown(userName string) bool {
	return p.cooldown[userName] > 0
}

// startCooldown seeds userName's cooldown counter after a failed resolve
// for a session that has never had a log handle, so discoverLogHandle
// skips it for the next ticks ticks instead of hot-looping the resolution
// strategy (lsof for Claude, a directory walk for Codex/Gemini) every 500ms.
func (p *logPipeline) startCooldown(userName string, ticks int) {
	p.cooldown[userName] = ticks
}

// tickCooldowns decrements every session's outstanding cooldown by one,
// called once per session-refresh tick.
func (p *logPipeline) tickCooldowns() {
	for userName, left := range p.cooldown {
		if left <= 1 {
			delete(p.cooldown, userName)
			continue
		}
		p.cooldown[userName] = left - 1
	}
}

// clearCooldown drops any outstanding cooldown for userName, used once a
// resolve succeeds.
func (p *logPipeline) clearCooldown(userName string) {
	delete(p.cooldown, userName)
}
