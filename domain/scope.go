package domain

// Scope is the namespace tasks live under remotely: the global collection or
// the sub-collection of one identity.
type Scope struct {
	Identity string `json:"identity,omitempty"`
}

// GlobalScope is shared by every client that does not resolve an identity.
var GlobalScope = Scope{}

// IdentityScope scopes tasks to the given identity token.
func IdentityScope(token string) Scope { return Scope{Identity: token} }

// IsGlobal reports whether s is the global collection.
func (s Scope) IsGlobal() bool { return s.Identity == "" }

// Key is the stable string used to address the scope in backends.
func (s Scope) Key() string {
	if s.IsGlobal() {
		return "todos"
	}
	return "users/" + s.Identity + "/todos"
}

func (s Scope) String() string { return s.Key() }

// SyncState is the process wide view of remote health. It is not persisted.
type SyncState struct {
	Online bool   `json:"online"`
	Scope  *Scope `json:"scope,omitempty"`
}

// InitialSyncState is the state at startup and after a reset.
func InitialSyncState() SyncState { return SyncState{Online: true} }
