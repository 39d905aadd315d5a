package classifier

import (
	"sort"
	"strconv"
)

// ClassifiedUser is the projection of a stale account written to scan artifacts.
type ClassifiedUser struct {
	Name                   string `json:"name"`
	Email                  string `json:"email"`
	DN                     string `json:"dn"`
	DaysSinceLastPwdChange int    `json:"days_since_last_pwd_change"`
}

// StaleBucket maps a stringified day threshold to the accounts that met it.
type StaleBucket map[string][]ClassifiedUser

// Totals counts the users in every bucket.
func (b StaleBucket) Totals() map[string]int {
	totals := make(map[string]int, len(b))
	for k, users := range b {
		totals[k] = len(users)
	}
	return totals
}

// Keys returns the bucket labels in ascending numeric order. Labels that are not
// numbers sort after the numeric ones, alphabetically.
func (b StaleBucket) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, errI := strconv.Atoi(keys[i])
		nj, errJ := strconv.Atoi(keys[j])
		switch {
		case errI == nil && errJ == nil:
			return ni < nj
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

// AtLeast returns the users of every bucket whose threshold is at least minDays,
// smallest threshold first and input order within a bucket. Accounts land only in
// the largest threshold they meet, so acting on one bucket alone would skip the
// stalest ones.
func (b StaleBucket) AtLeast(minDays int) []ClassifiedUser {
	var users []ClassifiedUser
	for _, k := range b.Keys() {
		days, err := strconv.Atoi(k)
		if err != nil || days < minDays {
			continue
		}
		users = append(users, b[k]...)
	}
	return users
}

// DNs returns the distinguished names of AtLeast(minDays).
func (b StaleBucket) DNs(minDays int) []string {
	users := b.AtLeast(minDays)
	dns := make([]string, 0, len(users))
	for _, u := range users {
		dns = append(dns, u.DN)
	}
	return dns
}

// Emails returns the mail addresses of AtLeast(minDays).
func (b StaleBucket) Emails(minDays int) []string {
	users := b.AtLeast(minDays)
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	return emails
}
