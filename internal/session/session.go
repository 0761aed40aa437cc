// Package session provides server-side, per-client sessions for Keystone.
// The client holds only an opaque random token in a cookie; everything the
// server knows about the client (the authenticated user and a pending flash
// message) lives in the Store under a key derived from that token.
package session

// Data is the stored session payload. It is JSON-encoded in Redis.
type Data struct {
	// UserID is the authenticated user. Zero means not authenticated; user
	// ids are assigned by AUTO_INCREMENT and start at 1.
	UserID int64 `json:"user_id,omitempty"`

	// Flash is the one pending notification, overwritten by newer messages.
	Flash string `json:"flash,omitempty"`
}

func (d Data) isEmpty() bool {
	return d.UserID == 0 && d.Flash == ""
}

// Session is the request-scoped view of one client's stored session. It is
// not safe for concurrent use; each request gets its own instance.
type Session struct {
	token string
	data  Data
	dirty bool

	// staleToken is the token that was active before Clear. Its stored
	// record is deleted on the next commit.
	staleToken string
}

// newSession returns a session for token with the given stored data. An
// empty token means the client has no stored session yet.
func newSession(token string, data Data) *Session {
	return &Session{token: token, data: data}
}

// Clear drops all attributes, including the user id, and detaches the
// session from its current token. The next commit deletes the old record
// and issues a fresh token if anything is stored again, so a token seen
// before a login is never authenticated afterwards.
func (s *Session) Clear() {
	if s.token != "" {
		s.staleToken = s.token
	}
	s.token = ""
	s.data = Data{}
	s.dirty = true
}

// SetUser marks the session authenticated as userID.
func (s *Session) SetUser(userID int64) {
	s.data.UserID = userID
	s.dirty = true
}

// UserID returns the authenticated user id, or false if there is none.
func (s *Session) UserID() (int64, bool) {
	if s.data.UserID == 0 {
		return 0, false
	}
	return s.data.UserID, true
}

// SetFlash stores msg as the pending notification, replacing any earlier one.
func (s *Session) SetFlash(msg string) {
	s.data.Flash = msg
	s.dirty = true
}

// ConsumeFlash returns the pending notification and clears it.
func (s *Session) ConsumeFlash() string {
	msg := s.data.Flash
	if msg != "" {
		s.data.Flash = ""
		s.dirty = true
	}
	return msg
}
