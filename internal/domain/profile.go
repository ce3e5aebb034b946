package domain

import (
	"strings"
	"time"
)

// Profile holds a user's public details. Every field but Username is
// optional. Only the signed-in user's own profile can be edited; the edit
// stays Pending until the server confirms it.
type Profile struct {
	ID       int64
	Username string
	FullName string
	Email    string
	Location string
	Sex      string
	About    string
	Flags    int

	FirstOn  time.Time
	LastOn   time.Time
	LastPost time.Time
	// Fetched is when the profile was last read from the server. Zero
	// means it has never been fetched.
	Fetched time.Time

	Pending      bool
	PendingToken string
}

// FriendlyName is "Full Name (username)", or the username alone when the
// full name is not known.
func (p *Profile) FriendlyName() string {
	name := strings.TrimSpace(p.FullName)
	if name == "" || strings.EqualFold(name, p.Username) {
		return p.Username
	}
	return name + " (" + p.Username + ")"
}
