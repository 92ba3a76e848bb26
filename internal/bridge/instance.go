// Package bridge implements the Bridge Orchestrator: it owns one Child
// Supervisor and one HTTP/1.1 Mini-Server per configured child, wires the
// Router's ingress hook to the child's stdin and its egress path from the
// child's stdout, and drives the per-child lifecycle state machine.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/inercia/mcproxy/internal/appdir"
	"github.com/inercia/mcproxy/internal/child"
	"github.com/inercia/mcproxy/internal/config"
	"github.com/inercia/mcproxy/internal/defense"
	"github.com/inercia/mcproxy/internal/discovery"
	"github.com/inercia/mcproxy/internal/framer"
	"github.com/inercia/mcproxy/internal/httpmini"
	"github.com/inercia/mcproxy/internal/logging"
	"github.com/inercia/mcproxy/internal/observability"
	"github.com/inercia/mcproxy/internal/router"
	"github.com/inercia/mcproxy/internal/session"
	"github.com/inercia/mcproxy/internal/transport"
)

// discoveryDelay is how long after a child transitions to Running the
// Orchestrator waits before running Tool Discovery, giving the child a
// moment to finish its own startup.
const discoveryDelay = 1 * time.Second

// sessionSweepInterval bounds how often the Session Registry sweep runs
// in the background, on top of the "at least on every connection
// removal" trigger already wired into connection close handling.
const sessionSweepInterval = 10 * time.Second

// Instance is one running (or stopped) bridge for a single configured
// child.
type Instance struct {
	logger *slog.Logger
	emit   *observability.Emitter

	mu         sync.Mutex
	cfg        config.ChildConfig
	status     observability.Status
	actualPort int

	child    *child.Handle
	server   *httpmini.Server
	rt       *router.Router
	sessions *session.Registry
	def      *defense.ScannerDefense
	token    string

	cancel    context.CancelFunc
	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
}

// New creates a stopped Instance for cfg. hooks may have nil fields; the
// Instance never blocks on them (see internal/observability).
func New(cfg config.ChildConfig, hooks observability.Hooks) *Instance {
	return &Instance{
		cfg:    cfg,
		logger: logging.WithChild(logging.Bridge(), cfg.ID, cfg.Name),
		emit:   observability.NewEmitter(hooks),
		status: observability.StatusStopped,
	}
}

// Status returns the instance's current status.
func (b *Instance) Status() observability.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// ActualPort returns the bound port, 0 if not currently Running.
func (b *Instance) ActualPort() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.actualPort
}

// Config returns a copy of the instance's current configuration,
// including any tools discovery has cached on it.
func (b *Instance) Config() config.ChildConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// ActiveClients returns the active-clients projection for this instance's
// session registry, empty if the instance isn't running.
func (b *Instance) ActiveClients() []session.ClientView {
	b.mu.Lock()
	sessions := b.sessions
	b.mu.Unlock()
	if sessions == nil {
		return nil
	}
	return sessions.ActiveClients()
}

func (b *Instance) setStatus(s observability.Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
	b.emit.Status(b.cfg.ID, s)
}

// Start resolves the listen port, spawns the child, binds the listener,
// and schedules Tool Discovery. On any failure the instance transitions
// to Error and the error is returned; on success it transitions to
// Running.
func (b *Instance) Start(parent context.Context) error {
	b.setStatus(observability.StatusStarting)

	port, err := resolvePort(b.cfg.Host, b.cfg.Port)
	if err != nil {
		b.fail(err)
		return err
	}

	token, err := config.ResolveToken(b.cfg)
	if err != nil {
		b.fail(err)
		return err
	}

	ctx, cancel := context.WithCancel(parent)

	h, err := child.Spawn(ctx, b.cfg)
	if err != nil {
		cancel()
		b.fail(err)
		return err
	}

	defCfg := defense.DefaultConfig()
	defCfg.Enabled = true
	if dir, derr := appdir.Dir(); derr == nil {
		defCfg.PersistPath = filepath.Join(dir, "blocklist-"+b.cfg.ID+".json")
	}
	def, err := defense.New(defCfg, logging.Defense())
	if err != nil {
		cancel()
		h.Terminate()
		b.fail(err)
		return err
	}

	sessions := session.New(logging.Session())

	var srv *httpmini.Server
	var rt *router.Router
	handler := func(conn *httpmini.Conn, req transport.Request) {
		b.handleRequest(rt, sessions, def, conn, req)
	}
	srv = httpmini.New(b.cfg.Host, port, handler, def, logging.HTTPServer())
	srv.OnBlocked(func(ip, reason string) {
		b.emit.Log(b.cfg.ID, "defense", fmt.Sprintf("blocked connection from %s: %s", ip, reason))
	})
	srv.OnClose(func(connID, sessionID string) {
		rt.DropConnection(connID)
		if sessionID != "" {
			sessions.Unbind(sessionID, connID)
		}
		sessions.Sweep()
		if sessionID != "" {
			b.emit.Clients(b.cfg.ID, toClientInfo(sessions.ActiveClients()))
		}
	})
	if err := srv.Listen(); err != nil {
		cancel()
		h.Terminate()
		def.Close()
		b.fail(&ErrBindFailed{Err: err})
		return &ErrBindFailed{Err: err}
	}

	rt = router.New(srv, sessions, logging.Router())
	rt.SetStdin(h.Stdin())

	b.mu.Lock()
	b.cancel = cancel
	b.child = h
	b.server = srv
	b.rt = rt
	b.sessions = sessions
	b.def = def
	b.token = token
	b.actualPort = actualPort(srv)
	b.mu.Unlock()

	go framer.Pump(h.Stdout(), rt.Egress, b.logger)
	go b.pumpStderr(h)
	go b.serveLoop(srv)
	go b.awaitExit(h)

	b.sweepStop = make(chan struct{})
	b.sweepWG.Add(1)
	go b.sweepLoop(sessions)

	b.setStatus(observability.StatusRunning)
	b.emit.Log(b.cfg.ID, "system", fmt.Sprintf("bridge listening on %s:%d", b.cfg.Host, b.actualPort))

	if len(b.cfg.Tools) == 0 {
		go b.runDiscovery(ctx, rt)
	}

	return nil
}

func (b *Instance) fail(err error) {
	b.setStatus(observability.StatusError)
	b.emit.Log(b.cfg.ID, "system", err.Error())
}

func (b *Instance) serveLoop(srv *httpmini.Server) {
	if err := srv.Serve(); err != nil {
		b.emit.Log(b.cfg.ID, "system", "listener error: "+err.Error())
		b.Stop()
	}
}

func (b *Instance) pumpStderr(h *child.Handle) {
	_ = framer.Pump(h.Stderr(), func(line string) {
		b.emit.Log(b.cfg.ID, "stderr", line)
	}, b.logger)
}

func (b *Instance) awaitExit(h *child.Handle) {
	code := <-h.Exited()
	b.emit.Log(b.cfg.ID, "system", fmt.Sprintf("child exited with code %d", code))
	b.Stop()
}

func (b *Instance) sweepLoop(sessions *session.Registry) {
	defer b.sweepWG.Done()
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.sweepStop:
			return
		case <-ticker.C:
			if sessions.Sweep() > 0 {
				b.emit.Clients(b.cfg.ID, toClientInfo(sessions.ActiveClients()))
			}
		}
	}
}

func (b *Instance) runDiscovery(ctx context.Context, rt *router.Router) {
	log := logging.WithChild(logging.Discovery(), b.cfg.ID, b.cfg.Name)
	time.Sleep(discoveryDelay)
	log.Debug("starting tool discovery handshake")
	tools, err := discovery.Discover(ctx, rt, "mcproxy", 0)
	if err != nil {
		log.Warn("tool discovery failed", "error", err)
		b.emit.Log(b.cfg.ID, "system", "tool discovery failed: "+err.Error())
		return
	}
	log.Debug("tool discovery complete", "tools", len(tools))

	disabled := make(map[string]bool, len(b.cfg.DisabledTools))
	for _, name := range b.cfg.DisabledTools {
		disabled[name] = true
	}

	infos := make([]config.ToolInfo, 0, len(tools))
	obsInfos := make([]observability.ToolInfo, 0, len(tools))
	for _, t := range tools {
		if disabled[t.Name] {
			continue
		}
		schema := make(map[string]any, len(t.InputSchema))
		for k, v := range t.InputSchema {
			schema[k] = v
		}
		infos = append(infos, config.ToolInfo{Name: t.Name, Description: t.Description, InputSchema: schema})
		obsInfos = append(obsInfos, observability.ToolInfo{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}

	b.mu.Lock()
	b.cfg.Tools = infos
	b.mu.Unlock()

	b.emit.Tools(b.cfg.ID, obsInfos)
	b.emit.Log(b.cfg.ID, "system", fmt.Sprintf("discovered %d tools", len(infos)))
}

// Stop tears down a Running (or Starting/Error) instance: cancels the
// child's context, stops the listener, and transitions to Stopped. Safe
// to call more than once.
func (b *Instance) Stop() {
	b.mu.Lock()
	if b.status == observability.StatusStopped {
		b.mu.Unlock()
		return
	}
	cancel := b.cancel
	srv := b.server
	h := b.child
	def := b.def
	sweepStop := b.sweepStop
	b.status = observability.StatusStopped
	b.actualPort = 0
	b.sessions = nil
	b.def = nil
	b.mu.Unlock()

	if sweepStop != nil {
		select {
		case <-sweepStop:
		default:
			close(sweepStop)
		}
	}
	if srv != nil {
		srv.Stop()
	}
	if h != nil {
		h.Terminate()
	}
	if cancel != nil {
		cancel()
	}
	if def != nil {
		if n := def.BlockedCount(); n > 0 {
			b.emit.Log(b.cfg.ID, "defense", fmt.Sprintf("%d IP(s) blocked during this run", n))
		}
		def.Close()
	}

	b.emit.Status(b.cfg.ID, observability.StatusStopped)
}

// BlockedCount returns the number of IPs currently blocked by this
// instance's scanner defense, 0 if the instance isn't running.
func (b *Instance) BlockedCount() int {
	b.mu.Lock()
	def := b.def
	b.mu.Unlock()
	if def == nil {
		return 0
	}
	return def.BlockedCount()
}

func resolvePort(host string, port int) (int, error) {
	if port == 0 {
		l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
		if err != nil {
			return 0, &ErrBindFailed{Err: err}
		}
		p := l.Addr().(*net.TCPAddr).Port
		l.Close()
		return p, nil
	}
	if port < 1024 {
		return 0, ErrPortRestricted
	}
	return port, nil
}

func actualPort(srv *httpmini.Server) int {
	addr, ok := srv.Addr().(*net.TCPAddr)
	if !ok {
		return 0
	}
	return addr.Port
}

func toClientInfo(views []session.ClientView) []observability.ClientInfo {
	out := make([]observability.ClientInfo, 0, len(views))
	for _, v := range views {
		out = append(out, observability.ClientInfo{SessionID: v.SessionID, Name: v.Name, Idle: v.Idle})
	}
	return out
}

// handleRequest is the Mini-Server's Handler: it runs the Transport
// Classifier, updates the Session Registry and Router state, and writes
// the appropriate response.
func (b *Instance) handleRequest(rt *router.Router, sessions *session.Registry, def *defense.ScannerDefense, conn *httpmini.Conn, req transport.Request) {
	ip := defense.ExtractIP(conn.Conn.RemoteAddr())
	status := b.classifyAndHandle(rt, sessions, conn, req)
	def.RecordRequest(ip, &defense.RequestInfo{
		Path:       req.Path,
		Method:     req.Method,
		StatusCode: status,
		UserAgent:  req.UserAgent(),
		Timestamp:  time.Now(),
	})
}

func (b *Instance) classifyAndHandle(rt *router.Router, sessions *session.Registry, conn *httpmini.Conn, req transport.Request) int {
	decision := transport.Classify(req, b.token, session.Mint)

	switch decision.Action {
	case transport.ActionPreflight:
		conn.WritePreflight()
		return 204

	case transport.ActionNotFound:
		conn.WriteNotFound()
		return 404

	case transport.ActionUnauthorized:
		conn.WriteUnauthorized()
		return 401

	case transport.ActionUpgradeSSE, transport.ActionUpgradeNDJSON:
		format := transport.FormatNDJSON
		if decision.Action == transport.ActionUpgradeSSE {
			format = transport.FormatSSE
		}
		sessions.Bind(decision.SessionID, conn.ID, format.String())
		conn.SetSessionID(decision.SessionID)
		if ua := req.UserAgent(); ua != "" {
			sessions.ObserveUserAgent(decision.SessionID, ua)
		}
		if err := conn.UpgradeStream(format, decision.SessionID); err != nil {
			return 0
		}
		if format == transport.FormatSSE {
			endpoint := fmt.Sprintf("http://%s/message?sessionId=%s", hostHeader(b.cfg.Host, b.currentPort()), decision.SessionID)
			_ = conn.WriteSSEEvent("endpoint", endpoint)
		}
		b.emit.Clients(b.cfg.ID, toClientInfo(sessions.ActiveClients()))
		return 200

	case transport.ActionSessionMessage:
		sessions.Touch(decision.SessionID)
		_ = rt.Ingress(decision.Action, conn.ID, decision.SessionID, req.Body)
		conn.WriteShort(202, "application/json", []byte(`{"status":"accepted"}`))
		return 202

	case transport.ActionStreamable:
		sid := session.Mint()
		sessions.Bind(sid, conn.ID, transport.FormatSSE.String())
		conn.SetSessionID(sid)
		if err := conn.UpgradeStream(transport.FormatSSE, sid); err != nil {
			return 0
		}
		_ = rt.Ingress(decision.Action, conn.ID, sid, req.Body)
		b.emit.Clients(b.cfg.ID, toClientInfo(sessions.ActiveClients()))
		return 200

	case transport.ActionSync:
		conn.MarkAwaitingSync()
		_ = rt.Ingress(decision.Action, conn.ID, "", req.Body)
		return 200

	case transport.ActionNotification:
		_ = rt.Ingress(decision.Action, conn.ID, "", req.Body)
		conn.WriteShort(202, "application/json", []byte(`{"status":"accepted"}`))
		return 202

	default:
		conn.WriteNotFound()
		return 404
	}
}

func (b *Instance) currentPort() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.actualPort
}

func hostHeader(host string, port int) string {
	h := host
	if h == "" || h == "0.0.0.0" {
		h = "127.0.0.1"
	}
	return net.JoinHostPort(h, itoaHost(port))
}

func itoaHost(port int) string {
	return fmt.Sprintf("%d", port)
}
