package analytics

import (
	"time"
)

// Identity is the application identity set once by Configure.
type Identity struct {
	TrackingID  string
	AppName     string
	AppVersion  string
	AppID       string
	InstallerID string
}

// Session is the identity and request budget of a single run.
type Session struct {
	Identity

	UserID        string
	UUID          string
	RandomizeUUID bool
	RequestsSent  int
	StartedAt     time.Time
}

// Session returns a copy of the current session.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// ResetSession starts a new session: the request counter restarts from zero
// and, when UUIDs are randomized, a new UUID is drawn. Queued events are kept.
func (c *Client) ResetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.session.UUID
	c.startSessionLocked()
	c.logger.Debug("Session reset", "previous_uuid", previous, "session_uuid", c.session.UUID)
}

// SetUserID attaches a free-form user identifier to every following batch.
func (c *Client) SetUserID(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.UserID = userID
}

// SetRandomizeUUID switches between a random per-session UUID and the
// persisted per-install one. The switch takes effect immediately; the
// request counter is left alone.
func (c *Client) SetRandomizeUUID(randomize bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setRandomizeUUIDLocked(randomize)
}

func (c *Client) setRandomizeUUIDLocked(randomize bool) {
	if c.session.RandomizeUUID == randomize {
		return
	}
	c.session.RandomizeUUID = randomize
	c.session.UUID = c.sessionUUID(randomize)
}

func (c *Client) startSessionLocked() {
	c.session.UUID = c.sessionUUID(c.session.RandomizeUUID)
	c.session.RequestsSent = 0
	c.session.StartedAt = c.now()
}

func (c *Client) sessionUUID(randomize bool) string {
	if randomize {
		return newUUID()
	}
	return getClientUUID(c.uuidFile)
}
