package activedirectory

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"f0oster/adsweep/activedirectory/ldaphelpers"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

const defaultPageSize uint32 = 500

// Conn is the subset of *ldap.Conn used by an ActiveDirectoryInstance.
type Conn interface {
	Bind(username, password string) error
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
	Modify(modifyRequest *ldap.ModifyRequest) error
	Add(addRequest *ldap.AddRequest) error
	Unbind() error
}

// DialFunc opens a raw connection to the server named in Settings.
type DialFunc func(ctx context.Context, settings Settings) (Conn, error)

type ActiveDirectoryInstance struct {
	settings       Settings
	dial           DialFunc
	logger         *zap.Logger
	ldapConnection Conn
}

type Option func(*ActiveDirectoryInstance)

// WithDialer replaces the network dialer, mostly for tests.
func WithDialer(dial DialFunc) Option {
	return func(ad *ActiveDirectoryInstance) {
		ad.dial = dial
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(ad *ActiveDirectoryInstance) {
		if logger != nil {
			ad.logger = logger
		}
	}
}

func NewActiveDirectoryInstance(settings Settings, opts ...Option) *ActiveDirectoryInstance {
	if settings.PageSize == 0 {
		settings.PageSize = defaultPageSize
	}
	ad := &ActiveDirectoryInstance{
		settings: settings,
		dial:     dialLDAP,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ad)
	}
	return ad
}

func dialLDAP(ctx context.Context, settings Settings) (Conn, error) {
	timeout := settings.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	conn, err := ldap.DialURL(settings.URL,
		ldap.DialWithDialer(dialer),
		ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: settings.InsecureSkipVerify}),
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Connect dials the configured server and binds with the service account.
func (ad *ActiveDirectoryInstance) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := ad.dial(ctx, ad.settings)
	if err != nil {
		ad.logger.Error("failed to connect to LDAP server", zap.String("url", ad.settings.URL), zap.Error(err))
		return fmt.Errorf("%w: dial %s: %v", ErrConnection, ad.settings.URL, err)
	}

	if err := conn.Bind(ad.settings.BindDN, ad.settings.Password); err != nil {
		_ = conn.Unbind()
		ad.logger.Error("failed to bind to LDAP server", zap.String("bind_dn", ad.settings.BindDN), zap.Error(err))
		return fmt.Errorf("%w: bind as %s: %v", ErrConnection, ad.settings.BindDN, err)
	}

	ad.ldapConnection = conn
	ad.logger.Debug("authenticated to directory", zap.String("url", ad.settings.URL), zap.String("bind_dn", ad.settings.BindDN))
	return nil
}

// Close unbinds and releases the connection. Safe to call more than once.
func (ad *ActiveDirectoryInstance) Close() error {
	if ad.ldapConnection == nil {
		return nil
	}
	err := ad.ldapConnection.Unbind()
	ad.ldapConnection = nil
	return err
}

// FetchUsers returns every person/user entry under the search base, in server order.
func (ad *ActiveDirectoryInstance) FetchUsers(ctx context.Context) ([]Entry, error) {
	var users []Entry
	err := ad.FetchPagedEntriesWithCallback(ctx, ldaphelpers.UserAccounts(ad.settings.ExcludedControlCodes...).String(), ldaphelpers.ScanAttributes,
		func(entries []*ldap.Entry) error {
			users = append(users, ParseEntries(entries)...)
			return nil
		})
	if err != nil {
		return nil, err
	}
	ad.logger.Info("fetched user entries", zap.Int("count", len(users)), zap.String("base_dn", ad.settings.BaseDN))
	return users, nil
}

// FetchPagedEntriesWithCallback performs a paged subtree search and calls processPage once per page.
func (ad *ActiveDirectoryInstance) FetchPagedEntriesWithCallback(
	ctx context.Context, filter string, attributes []string, processPage func(entries []*ldap.Entry) error,
) error {
	if ad.ldapConnection == nil {
		return ErrNotConnected
	}

	pageControl := ldap.NewControlPaging(ad.settings.PageSize)
	pageRequest := ldap.NewSearchRequest(
		ad.settings.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attributes,
		[]ldap.Control{pageControl},
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		searchResults, err := ad.ldapConnection.Search(pageRequest)
		if err != nil {
			return fmt.Errorf("LDAP search failed: %w", err)
		}

		if err := processPage(searchResults.Entries); err != nil {
			return fmt.Errorf("processing page failed: %w", err)
		}

		control := ldap.FindControl(searchResults.Controls, ldap.ControlTypePaging)
		pagingControl, ok := control.(*ldap.ControlPaging)
		if !ok || len(pagingControl.Cookie) == 0 {
			break
		}
		pageControl.SetCookie(pagingControl.Cookie)
	}

	return nil
}

// ReplaceAttribute sets attr on dn to the single value given.
func (ad *ActiveDirectoryInstance) ReplaceAttribute(ctx context.Context, dn, attr, value string) error {
	if ad.ldapConnection == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := ldap.NewModifyRequest(dn, nil)
	req.Replace(attr, []string{value})
	if err := ad.ldapConnection.Modify(req); err != nil {
		return fmt.Errorf("modify %s on %s: %w", attr, dn, err)
	}
	return nil
}

// AddEntry creates dn with the given attributes.
func (ad *ActiveDirectoryInstance) AddEntry(ctx context.Context, dn string, attrs map[string][]string) error {
	if ad.ldapConnection == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := ldap.NewAddRequest(dn, nil)
	for name, values := range attrs {
		req.Attribute(name, values)
	}
	if err := ad.ldapConnection.Add(req); err != nil {
		if hasResultCode(err, ldap.LDAPResultEntryAlreadyExists) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, dn)
		}
		return fmt.Errorf("add %s: %w", dn, err)
	}
	return nil
}

// BaseDN returns the configured search base.
func (ad *ActiveDirectoryInstance) BaseDN() string {
	return ad.settings.BaseDN
}
