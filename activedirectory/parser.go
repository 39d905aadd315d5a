package activedirectory

import (
	"f0oster/adsweep/activedirectory/ldaphelpers"
	"f0oster/adsweep/activedirectory/transformers"

	"github.com/go-ldap/ldap/v3"
)

// ParseEntries converts raw search results into Entries, dropping any without a DN.
func ParseEntries(entries []*ldap.Entry) []Entry {
	results := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if parsed, ok := parseEntry(entry); ok {
			results = append(results, parsed)
		}
	}
	return results
}

func parseEntry(entry *ldap.Entry) (Entry, bool) {
	if entry == nil {
		return Entry{}, false
	}

	attrs := make(map[string][]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		values := attr.ByteValues
		if len(values) == 0 && len(attr.Values) > 0 {
			values = make([][]byte, len(attr.Values))
			for i, v := range attr.Values {
				values[i] = []byte(v)
			}
		}
		attrs[attr.Name] = transformers.Normalize(attr.Name, values)
	}

	dn := entry.DN
	if dn == "" {
		if v, ok := attrs[ldaphelpers.AttrDistinguishedName]; ok && len(v) > 0 {
			dn = v[0]
		}
	}
	if dn == "" {
		return Entry{}, false
	}

	return Entry{DN: dn, Attributes: attrs}, true
}
