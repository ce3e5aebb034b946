package domain

import "strings"

// DirCategory is a category/subcategory pair from the forum directory.
type DirCategory struct {
	ID   int64
	Name string
	Sub  string
}

// DirForum is a directory listing entry. It is refreshed independently of
// the joined folders.
type DirForum struct {
	ID     int64
	Name   string
	Title  string
	Desc   string
	Type   string
	Cat    string
	Sub    string
	Recent int

	Moderators   []string
	Participants []string

	AddedMods    []string
	RemovedMods  []string
	AddedParts   []string
	RemovedParts []string

	DetailsPending bool
	PendingToken   string
}

func (f *DirForum) IsClosed() bool {
	return strings.EqualFold(f.Type, "c") || strings.EqualFold(f.Type, "closed")
}

// IsModerator reports whether username moderates the forum.
func (f *DirForum) IsModerator(username string) bool {
	for _, m := range f.Moderators {
		if strings.EqualFold(m, username) {
			return true
		}
	}
	return false
}
