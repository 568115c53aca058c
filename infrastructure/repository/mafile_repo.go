// Package repository provides data access implementations.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"steamclaim/domain/account"
)

// maFileExt is the extension of authenticator bundle files.
const maFileExt = ".maFile"

// maFileDocument mirrors the JSON layout of an authenticator bundle.
// Field names follow the on-disk format, which mixes naming styles.
type maFileDocument struct {
	AccountName  string           `json:"account_name"`
	SharedSecret string           `json:"shared_secret"`
	Session      maSessionSection `json:"Session"`
	Cookies      []cookieJSON     `json:"cookies,omitempty"`
}

type maSessionSection struct {
	SteamID          int64  `json:"SteamID"`
	SessionID        string `json:"SessionID"`
	SteamLoginSecure string `json:"SteamLoginSecure"`
}

// cookieJSON allows a bundle to carry an explicit cookie jar alongside
// the session section, e.g. one exported from a browser profile.
type cookieJSON struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	HTTPOnly bool   `json:"httpOnly"`
	Secure   bool   `json:"secure"`
	SameSite string `json:"sameSite,omitempty"`
}

// sessionCookieHosts are the storefront hosts the session cookies are
// replayed against when a bundle has no explicit cookie jar.
var sessionCookieHosts = []string{
	"store.steampowered.com",
	"steamcommunity.com",
}

// FileAccountRepository implements account.Repository over a directory
// of authenticator bundle files. The directory is read once per call;
// bundles that fail to parse are logged and skipped so one bad file
// does not take down a batch run.
type FileAccountRepository struct {
	dir    string
	logger *slog.Logger
}

// NewFileAccountRepository creates a repository backed by dir.
func NewFileAccountRepository(dir string, logger *slog.Logger) *FileAccountRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileAccountRepository{
		dir:    dir,
		logger: logger,
	}
}

// FindByID retrieves an account by its unique identifier.
// Returns nil without error when no bundle matches.
func (r *FileAccountRepository) FindByID(ctx context.Context, id string) (*account.Account, error) {
	accounts, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, acc := range accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return nil, nil
}

// FindAll retrieves all accounts, ordered by file name.
func (r *FileAccountRepository) FindAll(ctx context.Context) ([]*account.Account, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read account directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), maFileExt) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var accounts []*account.Account
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(r.dir, name)
		acc, err := loadMaFile(path)
		if err != nil {
			r.logger.Warn("Skipping unreadable account bundle", "file", name, "error", err)
			continue
		}
		accounts = append(accounts, acc)
	}

	return accounts, nil
}

// loadMaFile parses a single bundle into a domain Account.
func loadMaFile(path string) (*account.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}

	var doc maFileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	if doc.AccountName == "" {
		return nil, fmt.Errorf("bundle %s has no account_name", filepath.Base(path))
	}
	if doc.Session.SteamID == 0 {
		return nil, fmt.Errorf("bundle %s has no session SteamID", filepath.Base(path))
	}

	acc := &account.Account{
		ID:           strconv.FormatInt(doc.Session.SteamID, 10),
		Name:         doc.AccountName,
		SharedSecret: doc.SharedSecret,
		Cookies:      bundleCookies(&doc),
	}
	return acc, nil
}

// bundleCookies prefers an explicit cookie jar and otherwise expands
// the session section into storefront cookies.
func bundleCookies(doc *maFileDocument) []account.Cookie {
	if len(doc.Cookies) > 0 {
		cookies := make([]account.Cookie, len(doc.Cookies))
		for i, c := range doc.Cookies {
			cookies[i] = account.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
				SameSite: c.SameSite,
			}
		}
		return cookies
	}

	var cookies []account.Cookie
	for _, host := range sessionCookieHosts {
		if doc.Session.SessionID != "" {
			cookies = append(cookies, account.Cookie{
				Name:   "sessionid",
				Value:  doc.Session.SessionID,
				Domain: host,
				Path:   "/",
			})
		}
		if doc.Session.SteamLoginSecure != "" {
			cookies = append(cookies, account.Cookie{
				Name:     "steamLoginSecure",
				Value:    doc.Session.SteamLoginSecure,
				Domain:   host,
				Path:     "/",
				HTTPOnly: true,
				Secure:   true,
			})
		}
	}
	return cookies
}

// Ensure FileAccountRepository implements account.Repository
var _ account.Repository = (*FileAccountRepository)(nil)
