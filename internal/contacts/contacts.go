// Package contacts resolves people's names to email addresses from a
// CardDAV address book.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/emersion/go-vcard"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/carddav"

	"github.com/nugget/aide/internal/httpkit"
)

var (
	// ErrNoMatch means no contact with an email matched the name.
	ErrNoMatch = errors.New("no matching contact")

	// ErrAmbiguous means several contacts matched and none exactly.
	ErrAmbiguous = errors.New("ambiguous contact name")
)

// Contact is the subset of a vCard aide uses.
type Contact struct {
	Name  string
	Email string
}

// Resolver turns a display name into an email address.
type Resolver interface {
	ResolveEmail(ctx context.Context, name string) (string, error)
}

// CardDAV searches every address book under the account's home set.
type CardDAV struct {
	client *carddav.Client
	logger *slog.Logger

	mu    sync.Mutex
	books []string
}

// NewCardDAV creates a client for the server at endpoint using basic
// auth. Address books are discovered on first use.
func NewCardDAV(endpoint, username, password string, httpClient *http.Client, logger *slog.Logger) (*CardDAV, error) {
	if httpClient == nil {
		httpClient = httpkit.NewClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	var hc webdav.HTTPClient = httpClient
	if username != "" {
		hc = webdav.HTTPClientWithBasicAuth(httpClient, username, password)
	}
	client, err := carddav.NewClient(hc, endpoint)
	if err != nil {
		return nil, fmt.Errorf("carddav client: %w", err)
	}
	return &CardDAV{client: client, logger: logger}, nil
}

func (c *CardDAV) addressBooks(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.books != nil {
		return c.books, nil
	}

	principal, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}
	home, err := c.client.FindAddressBookHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find address book home: %w", err)
	}
	found, err := c.client.FindAddressBooks(ctx, home)
	if err != nil {
		return nil, fmt.Errorf("list address books: %w", err)
	}

	books := make([]string, 0, len(found))
	for _, ab := range found {
		books = append(books, ab.Path)
	}
	c.logger.Debug("discovered address books", "count", len(books))
	c.books = books
	return books, nil
}

// Search returns contacts whose formatted name contains query.
func (c *CardDAV) Search(ctx context.Context, query string) ([]Contact, error) {
	books, err := c.addressBooks(ctx)
	if err != nil {
		return nil, err
	}

	q := &carddav.AddressBookQuery{
		DataRequest: carddav.AddressDataRequest{
			Props: []string{vcard.FieldFormattedName, vcard.FieldEmail},
		},
		PropFilters: []carddav.PropFilter{{
			Name: vcard.FieldFormattedName,
			TextMatches: []carddav.TextMatch{{
				Text:      query,
				MatchType: carddav.MatchContains,
			}},
		}},
	}

	var out []Contact
	for _, book := range books {
		objs, err := c.client.QueryAddressBook(ctx, book, q)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", book, err)
		}
		for _, obj := range objs {
			if ct, ok := fromCard(obj.Card); ok {
				out = append(out, ct)
			}
		}
	}
	return out, nil
}

// ResolveEmail finds the email for name.
func (c *CardDAV) ResolveEmail(ctx context.Context, name string) (string, error) {
	found, err := c.Search(ctx, name)
	if err != nil {
		return "", err
	}
	return pick(found, name)
}

// fromCard extracts the formatted name and preferred email.
func fromCard(card vcard.Card) (Contact, bool) {
	email := card.PreferredValue(vcard.FieldEmail)
	if email == "" {
		return Contact{}, false
	}
	name := card.PreferredValue(vcard.FieldFormattedName)
	if name == "" {
		if n := card.Name(); n != nil {
			name = strings.TrimSpace(n.GivenName + " " + n.FamilyName)
		}
	}
	return Contact{Name: name, Email: email}, true
}

// pick chooses one contact for name: an exact case-insensitive match
// wins, otherwise the candidates must agree on a single address.
func pick(found []Contact, name string) (string, error) {
	want := strings.TrimSpace(name)
	var exact []Contact
	for _, c := range found {
		if strings.EqualFold(c.Name, want) {
			exact = append(exact, c)
		}
	}
	if len(exact) > 0 {
		found = exact
	}

	emails := make(map[string]bool)
	var names []string
	for _, c := range found {
		emails[strings.ToLower(c.Email)] = true
		names = append(names, c.Name)
	}
	switch len(emails) {
	case 0:
		return "", fmt.Errorf("%q: %w", name, ErrNoMatch)
	case 1:
		return found[0].Email, nil
	default:
		sort.Strings(names)
		return "", fmt.Errorf("%q matches %s: %w", name, strings.Join(names, ", "), ErrAmbiguous)
	}
}
