package domain

// RootID is the parent ID of top-level folders (forums).
const RootID int64 = -1

// FolderFlags describe the membership state of a forum or topic.
type FolderFlags uint32

const (
	FolderReadOnly FolderFlags = 1 << iota
	FolderResigned
	FolderCannotResign
	FolderOwnerCommentsOnly
	FolderJoinFailed
	FolderRecent
)

// Folder is a node of the forum/topic hierarchy. Top-level folders are
// forums and their children are topics; only topics hold messages.
type Folder struct {
	ID             int64
	ParentID       int64
	Name           string
	DisplayName    string
	Flags          FolderFlags
	Index          int
	Unread         int
	UnreadPriority int

	ResignPending        bool
	MarkReadRangePending bool
	JoinPending          bool

	// RefreshRequired is not persisted. It marks folders that a fast
	// sync must fetch.
	RefreshRequired bool
}

func (f *Folder) IsTopLevel() bool {
	return f.ParentID == RootID
}

func (f *Folder) Has(flag FolderFlags) bool {
	return f.Flags&flag != 0
}

func (f *Folder) Set(flag FolderFlags, on bool) {
	if on {
		f.Flags |= flag
	} else {
		f.Flags &^= flag
	}
}

// HasPending reports whether the folder carries an unconfirmed local change.
func (f *Folder) HasPending() bool {
	return f.ResignPending || f.MarkReadRangePending || f.JoinPending
}

// Title returns the display name, falling back to the name.
func (f *Folder) Title() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Name
}
