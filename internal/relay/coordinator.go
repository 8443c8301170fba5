// Package relay implements the event coordinator at the heart of the
// signaling relay: it admits connections, walks each identity through the
// matchmaking state machine, relays signaling and chat payloads between
// paired peers, applies the moderation rules (bans, country blocks, abuse
// reports with automatic banning), and keeps admin observers updated with
// full state snapshots.
//
// Handlers execute atomically relative to each other: a single mutex is held
// for the whole of every event, so observers never see a half-applied
// transition. Work that can block (blocklist persistence, audit inserts,
// event publishing, closing sockets) happens off the hot path.
package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/pairwave/relay/internal/audit"
	"github.com/pairwave/relay/internal/ban"
	"github.com/pairwave/relay/internal/matching"
	"github.com/pairwave/relay/internal/messaging"
	"github.com/pairwave/relay/internal/metrics"
	"github.com/pairwave/relay/internal/protocol"
	"github.com/pairwave/relay/internal/report"
	"github.com/pairwave/relay/internal/session"
	"github.com/pairwave/relay/internal/visitor"
)

// Sender delivers server messages to live connections. The websocket server
// implements it; tests substitute a fake.
type Sender interface {
	// Send writes a message to one connection. Errors mean the connection
	// is gone; the coordinator treats them as best-effort.
	Send(id string, data []byte) error
	// Close tears down the connection. It may re-enter the coordinator
	// via the transport's disconnect callback, so the coordinator only
	// calls it from outside its own lock.
	Close(id string)
	// Broadcast writes a message to every live connection.
	Broadcast(data []byte)
}

// Config carries the coordinator's collaborators. Events and Audit may be
// nil; both integrations are optional and fire-and-forget.
type Config struct {
	Sessions   *session.Registry
	Bans       *ban.Store
	Blocklist  *ban.Blocklist
	Queue      *matching.Queue
	Reports    *report.Ledger
	Visitors   *visitor.Ledger
	Sender     Sender
	AdminToken string
	Events     *messaging.Publisher
	Audit      *audit.Store
}

// Coordinator orchestrates every inbound event against the moderation and
// matchmaking state.
type Coordinator struct {
	mu sync.Mutex

	sessions  *session.Registry
	bans      *ban.Store
	blocklist *ban.Blocklist
	queue     *matching.Queue
	reports   *report.Ledger
	visitors  *visitor.Ledger
	sender    Sender

	adminToken string
	admins     map[string]struct{}

	events  *messaging.Publisher
	auditor *audit.Store
}

// NewCoordinator wires a coordinator from its collaborators.
func NewCoordinator(cfg Config) *Coordinator {
	return &Coordinator{
		sessions:   cfg.Sessions,
		bans:       cfg.Bans,
		blocklist:  cfg.Blocklist,
		queue:      cfg.Queue,
		reports:    cfg.Reports,
		visitors:   cfg.Visitors,
		sender:     cfg.Sender,
		adminToken: cfg.AdminToken,
		admins:     make(map[string]struct{}),
		events:     cfg.Events,
		auditor:    cfg.Audit,
	}
}

// Connect admits a new connection or rejects it on policy grounds. The
// country hint comes from a trusted upstream header and wins over GeoIP
// resolution. Returns false when the connection was rejected; the rejection
// notice has already been sent and the socket scheduled for closing.
func (c *Coordinator) Connect(id, ip, countryHint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	country := c.sessions.ResolveCountry(ip, countryHint)

	if c.bans.IsIPBanned(ip) {
		log.Printf("[relay] rejected banned ip %s", ip)
		metrics.RejectedConnectsTotal.WithLabelValues("banned").Inc()
		c.send(id, protocol.TypeBanned, protocol.BannedMsg{
			Message: "You are banned from this service.",
		})
		go c.sender.Close(id)
		return false
	}

	if c.blocklist.IsBlocked(country) {
		log.Printf("[relay] rejected blocked country %s (ip %s)", country, ip)
		metrics.RejectedConnectsTotal.WithLabelValues("country_blocked").Inc()
		c.send(id, protocol.TypeCountryBlocked, protocol.CountryBlockedMsg{
			Message:     "This service is not available in your country.",
			CountryCode: country,
		})
		go c.sender.Close(id)
		return false
	}

	c.sessions.Add(id, ip, country)
	c.visitors.Record(id, ip, country)
	log.Printf("[relay] connected %s from %s (%s)", id, ip, country)

	c.publishSnapshotLocked()
	return true
}

// Identify associates a device fingerprint with the connection. A banned
// fingerprint gets the same treatment a banned IP gets at connect time.
func (c *Coordinator) Identify(id, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessions.Get(id) == nil {
		return
	}

	if c.bans.IsFingerprintBanned(fingerprint) {
		log.Printf("[relay] banned fingerprint identified on %s", id)
		metrics.RejectedConnectsTotal.WithLabelValues("banned").Inc()
		c.banishLocked(id)
		c.publishSnapshotLocked()
		return
	}

	c.sessions.SetFingerprint(id, fingerprint)
	c.visitors.SetFingerprint(id, fingerprint)
	c.publishSnapshotLocked()
}

// FindPartner enters the identity into the matchmaking queue and attempts to
// form pairs. Banned identities are rejected and disconnected even if they
// slipped past the connect-time check (the fingerprint may have been banned
// after they identified).
func (c *Coordinator) FindPartner(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn := c.sessions.Get(id)
	if conn == nil {
		return
	}

	if c.bans.IsIPBanned(conn.IP) || c.bans.IsFingerprintBanned(conn.Fingerprint) {
		log.Printf("[relay] banned identity %s tried to find a partner", id)
		c.banishLocked(id)
		c.publishSnapshotLocked()
		return
	}

	if c.queue.Enqueue(id) {
		c.send(id, protocol.TypeWaiting, protocol.WaitingMsg{
			Message: "Looking for a partner...",
		})
	}

	c.drainLocked()
	c.publishSnapshotLocked()
}

// Signal relays an opaque WebRTC signaling payload to the sender's partner.
// Payloads addressed to anyone other than the current, still-connected
// partner are dropped silently.
func (c *Coordinator) Signal(from, to string, payload json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.relayableLocked(from, to) {
		return
	}
	metrics.RelayedTotal.WithLabelValues("signal").Inc()
	c.send(to, protocol.TypeSignal, protocol.ServerSignalMsg{
		From:    from,
		Payload: payload,
	})
}

// Chat relays a text message to the sender's partner under the same
// addressing rule as Signal.
func (c *Coordinator) Chat(from, to, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.relayableLocked(from, to) {
		return
	}
	metrics.RelayedTotal.WithLabelValues("chat").Inc()
	c.send(to, protocol.TypeChatMessage, protocol.ServerChatMsg{Text: text})
}

// relayableLocked reports whether from may relay a payload to to: the target
// must be from's current partner and still connected.
func (c *Coordinator) relayableLocked(from, to string) bool {
	if to == "" || c.queue.PartnerOf(from) != to {
		return false
	}
	return c.sessions.Get(to) != nil
}

// Report files an abuse report from the reporter against the explicit target
// if given, otherwise against the reporter's current partner. Reports with no
// resolvable live target are dropped. Reaching the distinct-reporter
// threshold bans the target's current IP and fingerprint and disconnects it.
func (c *Coordinator) Report(reporter, target string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessions.Get(reporter) == nil {
		return
	}
	if target == "" {
		target = c.queue.PartnerOf(reporter)
	}
	tconn := c.sessions.Get(target)
	if tconn == nil {
		return
	}

	count := c.reports.Report(target, reporter)
	metrics.ReportsTotal.Inc()
	log.Printf("[relay] %s reported %s (%d distinct reporters)", reporter, target, count)

	c.events.PublishReport(messaging.ReportEvent{
		Target:      target,
		Reporter:    reporter,
		Count:       count,
		TargetIP:    tconn.IP,
		Fingerprint: tconn.Fingerprint,
		Ts:          time.Now().Unix(),
	})
	c.auditReport(audit.Row{
		Target:      target,
		Reporter:    reporter,
		TargetIP:    tconn.IP,
		Fingerprint: tconn.Fingerprint,
		Count:       count,
	})

	if count >= ban.AutoBanThreshold {
		log.Printf("[relay] auto-banning %s (ip %s)", target, tconn.IP)
		c.bans.Ban(tconn.IP, tconn.Fingerprint, ban.DefaultDuration)
		metrics.BansTotal.WithLabelValues("auto").Inc()
		c.events.PublishBan(messaging.BanEvent{
			IP:          tconn.IP,
			Fingerprint: tconn.Fingerprint,
			Origin:      "auto",
			Ts:          time.Now().Unix(),
		})
		c.banishLocked(target)
	}

	c.publishSnapshotLocked()
}

// AttachScreenshot stores screenshot evidence against the explicit target if
// given, otherwise against the sender's current partner. Dropped when no
// target can be resolved.
func (c *Coordinator) AttachScreenshot(from, target, image string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if target == "" {
		target = c.queue.PartnerOf(from)
	}
	if target == "" || image == "" {
		return
	}
	c.reports.AttachScreenshot(target, image)
	c.publishSnapshotLocked()
}

// Skip abandons the current pairing and re-enters the queue. The abandoned
// peer is notified and left unpaired; it must ask for a new partner itself.
func (c *Coordinator) Skip(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessions.Get(id) == nil {
		return
	}

	if partner, ok := c.queue.Unpair(id); ok {
		c.send(partner, protocol.TypePartnerDisconnected, protocol.PartnerDisconnectedMsg{})
	}

	if c.queue.Enqueue(id) {
		c.send(id, protocol.TypeWaiting, protocol.WaitingMsg{
			Message: "Looking for a partner...",
		})
	}

	c.drainLocked()
	c.publishSnapshotLocked()
}

// Disconnect removes every trace of the identity: queue position, pairing
// (the peer is notified), session entry, gauges, and admin registration. The
// whole teardown is one atomic step; observers see either the fully
// connected or the fully removed state. Safe to call more than once.
func (c *Coordinator) Disconnect(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.removeLocked(id) {
		return
	}
	log.Printf("[relay] disconnected %s", id)
	c.publishSnapshotLocked()
}

// removeLocked performs the teardown without publishing, so callers that
// continue mutating state afterwards push a single snapshot at the end.
// Returns false if the identity held no state.
func (c *Coordinator) removeLocked(id string) bool {
	conn := c.sessions.Remove(id)
	queued := c.queue.Remove(id)
	partner, paired := c.queue.Unpair(id)
	delete(c.admins, id)

	if conn == nil && !queued && !paired {
		return false
	}

	if paired {
		c.send(partner, protocol.TypePartnerDisconnected, protocol.PartnerDisconnectedMsg{})
	}
	if conn != nil {
		c.visitors.Disconnect(id, conn.Country)
	}
	return true
}

// banishLocked sends the ban notice, then tears the identity down and
// schedules the socket close. The notice goes out before the close so the
// client learns why it was dropped.
func (c *Coordinator) banishLocked(id string) {
	c.send(id, protocol.TypeBanned, protocol.BannedMsg{
		Message: "You are banned from this service.",
	})
	c.removeLocked(id)
	go c.sender.Close(id)
}

// drainLocked forms pairs while two or more identities are waiting. Entries
// whose connection is gone are discarded; a live survivor goes back to the
// head of the queue so its wait is preserved. The first-dequeued of each
// formed pair is the initiator.
func (c *Coordinator) drainLocked() {
	for c.queue.WaitingCount() >= 2 {
		a, b, ok := c.queue.PopPair()
		if !ok {
			return
		}
		aLive := c.sessions.Get(a) != nil
		bLive := c.sessions.Get(b) != nil

		switch {
		case aLive && bLive:
			c.queue.Pair(a, b)
			c.send(a, protocol.TypePartnerFound, protocol.PartnerFoundMsg{
				PeerID:    b,
				Initiator: true,
			})
			c.send(b, protocol.TypePartnerFound, protocol.PartnerFoundMsg{
				PeerID:    a,
				Initiator: false,
			})
			log.Printf("[relay] paired %s with %s", a, b)
		case aLive:
			c.queue.PushFront(a)
		case bLive:
			c.queue.PushFront(b)
		}
	}
}

// send marshals and delivers one server message. Delivery failures mean the
// connection is on its way out; they are logged and otherwise ignored.
func (c *Coordinator) send(id, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[relay] marshal %s: %v", msgType, err)
		return
	}
	if err := c.sender.Send(id, data); err != nil {
		log.Printf("[relay] send %s to %s: %v", msgType, id, err)
	}
}

// auditReport writes the audit row off the hot path. The sink is optional
// and failures never affect relay behavior.
func (c *Coordinator) auditReport(row audit.Row) {
	if c.auditor == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.auditor.RecordReport(ctx, row); err != nil {
			log.Printf("[relay] audit report: %v", err)
		}
	}()
}
