package activedirectory

import (
	"errors"

	"github.com/go-ldap/ldap/v3"
)

var (
	// ErrConnection is returned when the server cannot be reached or the bind is refused.
	ErrConnection = errors.New("directory connection failed")
	// ErrAlreadyExists is returned by AddEntry when the DN is taken.
	ErrAlreadyExists = errors.New("directory entry already exists")
	// ErrNotConnected is returned by operations attempted before Connect.
	ErrNotConnected = errors.New("directory instance is not connected")
)

// IsNoSuchObject reports whether err carries the LDAP noSuchObject result code.
// Replication lag makes this transient on freshly created objects.
func IsNoSuchObject(err error) bool {
	return hasResultCode(err, ldap.LDAPResultNoSuchObject)
}

func hasResultCode(err error, code uint16) bool {
	var ldapErr *ldap.Error
	if !errors.As(err, &ldapErr) {
		return false
	}
	return ldapErr.ResultCode == code
}
