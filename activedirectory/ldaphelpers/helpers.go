package ldaphelpers

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

type Filter interface {
	String() string
}

type rawFilter string

func (f rawFilter) String() string {
	return string(f)
}

// Logical operators
type andFilter struct {
	parts []Filter
}

func And(filters ...Filter) Filter {
	return andFilter{parts: filters}
}

func (f andFilter) String() string {
	var parts []string
	for _, p := range f.parts {
		parts = append(parts, p.String())
	}
	return "(&" + strings.Join(parts, "") + ")"
}

type orFilter struct {
	parts []Filter
}

func Or(filters ...Filter) Filter {
	return orFilter{parts: filters}
}

func (f orFilter) String() string {
	var parts []string
	for _, p := range f.parts {
		parts = append(parts, p.String())
	}
	return "(|" + strings.Join(parts, "") + ")"
}

type notFilter struct {
	part Filter
}

func Not(f Filter) Filter {
	return notFilter{part: f}
}

func (f notFilter) String() string {
	return "(!" + f.part.String() + ")"
}

// Eq matches attr exactly; value is escaped per RFC 4515.
func Eq(attr, value string) Filter {
	return rawFilter("(" + attr + "=" + ldap.EscapeFilter(value) + ")")
}

func Present(attr string) Filter {
	return rawFilter("(" + attr + "=*)")
}

// UserAccounts selects person/user objects carrying every RequiredAttributes value.
// Accounts whose userAccountControl equals one of excludedUAC are dropped on the server.
func UserAccounts(excludedUAC ...string) Filter {
	parts := []Filter{Eq("objectCategory", "person"), Eq("objectClass", "user")}
	for _, attr := range RequiredAttributes {
		parts = append(parts, Present(attr))
	}
	if len(excludedUAC) > 0 {
		codes := make([]Filter, 0, len(excludedUAC))
		for _, code := range excludedUAC {
			codes = append(codes, Eq(AttrUserAccountControl, code))
		}
		parts = append(parts, Not(Or(codes...)))
	}
	return And(parts...)
}
