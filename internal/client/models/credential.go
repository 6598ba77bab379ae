package models

// AdminFlag is the tri-state administrator flag: the server may not have
// told us yet.
type AdminFlag int8

const (
	AdminUnknown AdminFlag = iota
	AdminNo
	AdminYes
)

// AdminFlagFromBool converts a server-reported flag.
func AdminFlagFromBool(b bool) AdminFlag {
	if b {
		return AdminYes
	}
	return AdminNo
}

// ParseAdminFlag reads the persisted string form. Anything other than
// "true" or "false" is unknown.
func ParseAdminFlag(s string) AdminFlag {
	switch s {
	case "true":
		return AdminYes
	case "false":
		return AdminNo
	default:
		return AdminUnknown
	}
}

// String returns the persisted form; unknown is the empty string.
func (f AdminFlag) String() string {
	switch f {
	case AdminYes:
		return "true"
	case AdminNo:
		return "false"
	default:
		return ""
	}
}

// IsAdmin treats unknown as not admin.
func (f AdminFlag) IsAdmin() bool {
	return f == AdminYes
}

// Credential is the bearer token plus the derived privilege flag.
// An empty Token means no credential.
type Credential struct {
	Token string
	Admin AdminFlag
}

// Present reports whether a token is held.
func (c Credential) Present() bool {
	return c.Token != ""
}
