package activedirectory

import (
	"strings"
	"time"
)

// Settings describes how to reach and authenticate against a directory server.
type Settings struct {
	URL                string
	BaseDN             string
	BindDN             string
	Password           string
	PageSize           uint32
	InsecureSkipVerify bool
	DialTimeout        time.Duration

	// ExcludedControlCodes are userAccountControl values filtered out of user scans.
	ExcludedControlCodes []string
}

// Entry is a directory object with its attribute values decoded to text.
type Entry struct {
	DN         string
	Attributes map[string][]string
}

// NewEntry builds an Entry from already-decoded attribute values.
func NewEntry(dn string, attrs map[string][]string) Entry {
	if attrs == nil {
		attrs = make(map[string][]string)
	}
	return Entry{DN: dn, Attributes: attrs}
}

// Values returns every value of the named attribute. Attribute names compare
// case-insensitively.
func (e Entry) Values(name string) ([]string, bool) {
	if v, ok := e.Attributes[name]; ok {
		return v, len(v) > 0
	}
	for k, v := range e.Attributes {
		if strings.EqualFold(k, name) {
			return v, len(v) > 0
		}
	}
	return nil, false
}

// Get returns the first value of the named attribute.
func (e Entry) Get(name string) (string, bool) {
	v, ok := e.Values(name)
	if !ok {
		return "", false
	}
	return v[0], true
}
