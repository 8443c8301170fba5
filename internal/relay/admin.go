package relay

import (
	"fmt"
	"log"
	"time"

	"github.com/pairwave/relay/internal/ban"
	"github.com/pairwave/relay/internal/messaging"
	"github.com/pairwave/relay/internal/metrics"
	"github.com/pairwave/relay/internal/protocol"
	"github.com/pairwave/relay/internal/report"
	"github.com/pairwave/relay/internal/visitor"
)

// Snapshot is the full moderation state pushed to admin observers after
// every state-mutating event.
type Snapshot struct {
	LiveConnectedCount    int                  `json:"liveConnectedCount"`
	WaitingCount          int                  `json:"waitingCount"`
	PairedPairCount       int                  `json:"pairedPairCount"`
	TotalVisitorsEver     int                  `json:"totalVisitorsEver"`
	CountryCounts         map[string]int       `json:"countryCounts"`
	ActiveIPBans          []ban.IPBan          `json:"activeIpBans"`
	ActiveFingerprintBans []ban.FingerprintBan `json:"activeFpBans"`
	ReportedUsers         []report.Row         `json:"reportedUsers"`
	RecentVisitors        []visitor.Entry      `json:"recentVisitors"`
	BlockedCountries      []string             `json:"blockedCountries"`
}

// AdminJoin registers a live connection as an admin observer. On success the
// requester immediately receives one snapshot; other observers are not
// notified. A bad credential yields an error message on the connection.
func (c *Coordinator) AdminJoin(id, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessions.Get(id) == nil {
		return
	}
	if c.adminToken == "" || token != c.adminToken {
		log.Printf("[relay] rejected admin join from %s", id)
		c.send(id, protocol.TypeError, protocol.ErrorMsg{
			Code:    "unauthorized",
			Message: "invalid admin credential",
		})
		return
	}

	c.admins[id] = struct{}{}
	log.Printf("[relay] admin observer joined: %s", id)

	data, err := protocol.NewServerMessage(protocol.TypeAdminUpdate, c.snapshotLocked())
	if err != nil {
		log.Printf("[relay] marshal snapshot: %v", err)
		return
	}
	if err := c.sender.Send(id, data); err != nil {
		log.Printf("[relay] send snapshot to %s: %v", id, err)
	}
}

// BroadcastMessage pushes an announcement to every live connection.
func (c *Coordinator) BroadcastMessage(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := protocol.NewServerMessage(protocol.TypeAdminMessage, protocol.AdminMessageMsg{Text: text})
	if err != nil {
		log.Printf("[relay] marshal broadcast: %v", err)
		return
	}
	c.sender.Broadcast(data)
	c.events.PublishBroadcast(messaging.BroadcastEvent{
		Text: text,
		Ts:   time.Now().Unix(),
	})
	log.Printf("[relay] broadcast: %q", text)
}

// BanIdentity manually bans the connection's current IP and fingerprint for
// the default duration, clears its report entry, and disconnects it. Returns
// an error if the identity is not connected.
func (c *Coordinator) BanIdentity(target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn := c.sessions.Get(target)
	if conn == nil {
		return fmt.Errorf("relay: identity %q is not connected", target)
	}

	log.Printf("[relay] admin banned %s (ip %s)", target, conn.IP)
	c.bans.Ban(conn.IP, conn.Fingerprint, ban.DefaultDuration)
	c.reports.Remove(target)
	metrics.BansTotal.WithLabelValues("manual").Inc()
	c.events.PublishBan(messaging.BanEvent{
		IP:          conn.IP,
		Fingerprint: conn.Fingerprint,
		Origin:      "manual",
		Ts:          time.Now().Unix(),
	})

	c.banishLocked(target)
	c.publishSnapshotLocked()
	return nil
}

// UnbanIP lifts the ban on an IP address.
func (c *Coordinator) UnbanIP(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bans.Unban(ip, "")
	log.Printf("[relay] unbanned ip %s", ip)
	c.publishSnapshotLocked()
}

// UnbanFingerprint lifts the ban on a device fingerprint.
func (c *Coordinator) UnbanFingerprint(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bans.Unban("", fingerprint)
	log.Printf("[relay] unbanned fingerprint %s", fingerprint)
	c.publishSnapshotLocked()
}

// RemoveReport clears the report entry (reporters and screenshot) for a
// target. A later report against the same target counts from one again.
func (c *Coordinator) RemoveReport(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports.Remove(target)
	c.publishSnapshotLocked()
}

// BlockCountry adds a country code to the blocked set. Already-connected
// sessions from that country stay connected; the block applies to new
// connections.
func (c *Coordinator) BlockCountry(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocklist.Block(code)
	log.Printf("[relay] blocked country %s", code)
	c.publishSnapshotLocked()
}

// UnblockCountry removes a country code from the blocked set.
func (c *Coordinator) UnblockCountry(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocklist.Unblock(code)
	log.Printf("[relay] unblocked country %s", code)
	c.publishSnapshotLocked()
}

// ClearBlockedCountries empties the blocked set.
func (c *Coordinator) ClearBlockedCountries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocklist.ClearAll()
	log.Printf("[relay] cleared blocked countries")
	c.publishSnapshotLocked()
}

// BlockedCountries returns the blocked set for the admin API.
func (c *Coordinator) BlockedCountries() []string {
	return c.blocklist.Codes()
}

// DailyVisitors returns visitor counts per UTC day, optionally bounded by an
// inclusive date range.
func (c *Coordinator) DailyVisitors(from, to *time.Time) []visitor.DayCount {
	return c.visitors.DailyCounts(from, to)
}

// TopCountries returns the live per-country presence, busiest first.
func (c *Coordinator) TopCountries(limit int) []visitor.CountryCount {
	return c.visitors.TopCountries(limit)
}

// RecentVisitors returns the newest history entries in chronological order.
func (c *Coordinator) RecentVisitors(limit int) []visitor.Entry {
	return c.visitors.Recent(limit)
}

// Snapshot builds the current moderation state. Used by the admin HTTP API;
// websocket observers receive the same shape pushed after every event.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	return Snapshot{
		LiveConnectedCount:    c.sessions.Count(),
		WaitingCount:          c.queue.WaitingCount(),
		PairedPairCount:       c.queue.PairCount(),
		TotalVisitorsEver:     c.visitors.Total(),
		CountryCounts:         c.visitors.CountryCounts(),
		ActiveIPBans:          c.bans.ActiveIPBans(),
		ActiveFingerprintBans: c.bans.ActiveFingerprintBans(),
		ReportedUsers:         c.reports.Rows(),
		RecentVisitors:        c.visitors.Recent(visitor.RecentLimit),
		BlockedCountries:      c.blocklist.Codes(),
	}
}

// publishSnapshotLocked pushes a full snapshot to every admin observer and
// refreshes the state gauges. Called at the end of every state-mutating
// event.
func (c *Coordinator) publishSnapshotLocked() {
	metrics.ConnectionsTotal.Set(float64(c.sessions.Count()))
	metrics.WaitingTotal.Set(float64(c.queue.WaitingCount()))
	metrics.ActivePairs.Set(float64(c.queue.PairCount()))

	if len(c.admins) == 0 {
		return
	}

	start := time.Now()
	data, err := protocol.NewServerMessage(protocol.TypeAdminUpdate, c.snapshotLocked())
	if err != nil {
		log.Printf("[relay] marshal snapshot: %v", err)
		return
	}
	for id := range c.admins {
		if err := c.sender.Send(id, data); err != nil {
			log.Printf("[relay] send snapshot to %s: %v", id, err)
		}
	}
	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
}
