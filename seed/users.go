package seed

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TestUser is one account to create.
type TestUser struct {
	Name    string `yaml:"name"`
	Surname string `yaml:"surname"`
	Sam     string `yaml:"sam"`
}

// DistributionList is the set of mailing lists owned by one account. Members are
// named by sam and stored as the seeded users' mail addresses.
type DistributionList struct {
	Account string              `yaml:"account"`
	Lists   map[string][]string `yaml:"lists"`
}

// UserList splits accounts into standard ones, which may be disabled or
// labelled at random, and special ones, which are only created.
type UserList struct {
	Standard          []TestUser         `yaml:"standard"`
	Special           []TestUser         `yaml:"special"`
	DistributionLists []DistributionList `yaml:"distribution_lists"`
}

// LoadUsers reads a user list from a YAML or JSON file.
func LoadUsers(path string) (UserList, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return UserList{}, fmt.Errorf("read user list: %w", err)
	}
	return ParseUsers(raw)
}

func ParseUsers(raw []byte) (UserList, error) {
	var list UserList
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return UserList{}, fmt.Errorf("parse user list: %w", err)
	}
	for _, u := range list.all() {
		if u.Sam == "" || u.FullName() == "" {
			return UserList{}, fmt.Errorf("user list entry %+v needs name, surname and sam", u)
		}
	}
	for _, dl := range list.DistributionLists {
		if dl.Account == "" {
			return UserList{}, fmt.Errorf("distribution list entry needs an account")
		}
		if _, err := list.resolve(dl); err != nil {
			return UserList{}, err
		}
	}
	return list, nil
}

func (l UserList) all() []TestUser {
	return append(append([]TestUser{}, l.Standard...), l.Special...)
}

// resolve maps each list's member sams to mail addresses.
func (l UserList) resolve(dl DistributionList) (map[string][]string, error) {
	bySam := make(map[string]TestUser, len(l.Standard)+len(l.Special))
	for _, u := range l.all() {
		bySam[u.Sam] = u
	}
	out := make(map[string][]string, len(dl.Lists))
	for name, members := range dl.Lists {
		emails := make([]string, 0, len(members))
		for _, sam := range members {
			u, ok := bySam[sam]
			if !ok {
				return nil, fmt.Errorf("distribution list %s/%s names unknown user %q", dl.Account, name, sam)
			}
			emails = append(emails, u.Mail())
		}
		out[name] = emails
	}
	return out, nil
}

// FullName is the lower-cased concatenation used for cn and mail.
func (u TestUser) FullName() string {
	return strings.ToLower(u.Name + u.Surname)
}

func (u TestUser) Mail() string {
	return u.FullName() + "@email.com"
}

// DN places the account under CN=Users of base.
func (u TestUser) DN(base string) string {
	return fmt.Sprintf("cn=%s,CN=Users,%s", u.FullName(), base)
}

// Attributes is the attribute set the account is created with.
func (u TestUser) Attributes() map[string][]string {
	name := u.FullName()
	return map[string][]string{
		"cn":                 {name},
		"displayName":        {"Test account " + name},
		"description":        {"Test account"},
		"givenName":          {name},
		"mail":               {u.Mail()},
		"name":               {"TEST " + name},
		"objectClass":        {"top", "person", "organizationalPerson", "user"},
		"sAMAccountName":     {u.Sam},
		"userAccountControl": {"512"},
	}
}
