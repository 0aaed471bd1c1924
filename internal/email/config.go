package email

import (
	"fmt"
	"strings"
)

// Config holds every mail provider account. It lives under the
// "email" key of the aide config file.
type Config struct {
	// DefaultProvider is used when a draft names no provider. Defaults
	// to the first account.
	DefaultProvider string `yaml:"default_provider"`

	// BccOwner receives a blind copy of every outbound message unless
	// it is already a recipient.
	BccOwner string `yaml:"bcc_owner"`

	// UnreadLimit caps how many unread messages a check reports per
	// provider. Default: 10.
	UnreadLimit int `yaml:"unread_limit"`

	Accounts []AccountConfig `yaml:"accounts"`
}

// Configured reports whether at least one account can send or check mail.
func (c Config) Configured() bool {
	for _, a := range c.Accounts {
		if a.SMTPConfigured() || a.IMAPConfigured() {
			return true
		}
	}
	return false
}

// ApplyDefaults fills zero-value fields. Well-known provider names get
// their public server hostnames.
func (c *Config) ApplyDefaults() {
	if c.UnreadLimit <= 0 {
		c.UnreadLimit = 10
	}
	for i := range c.Accounts {
		a := &c.Accounts[i]
		a.Name = strings.ToLower(strings.TrimSpace(a.Name))

		if known, ok := wellKnown[a.Name]; ok {
			if a.IMAP.Host == "" {
				a.IMAP.Host = known.imap
			}
			if a.SMTP.Host == "" {
				a.SMTP.Host = known.smtp
			}
		}
		if a.Username != "" {
			if a.IMAP.Username == "" {
				a.IMAP.Username = a.Username
			}
			if a.SMTP.Username == "" {
				a.SMTP.Username = a.Username
			}
			if a.DefaultFrom == "" {
				a.DefaultFrom = a.Username
			}
		}
		if a.Password != "" {
			if a.IMAP.Password == "" {
				a.IMAP.Password = a.Password
			}
			if a.SMTP.Password == "" {
				a.SMTP.Password = a.Password
			}
		}

		if a.IMAP.Port == 0 {
			a.IMAP.Port = 993
		}
		// Port 143 is the only plaintext convention; everything else is TLS.
		if !a.IMAP.TLS && a.IMAP.Port != 143 {
			a.IMAP.TLS = true
		}

		if a.SMTP.Host != "" {
			if a.SMTP.Port == 0 {
				a.SMTP.Port = 587
			}
			if !a.SMTP.StartTLS && a.SMTP.Port != 465 {
				a.SMTP.StartTLS = true
			}
		}
	}
	if c.DefaultProvider == "" && len(c.Accounts) > 0 {
		c.DefaultProvider = c.Accounts[0].Name
	}
	c.DefaultProvider = strings.ToLower(c.DefaultProvider)
}

// Validate returns the first inconsistency found.
func (c Config) Validate() error {
	names := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Name == "" {
			return fmt.Errorf("email.accounts[%d].name must not be empty", i)
		}
		if names[a.Name] {
			return fmt.Errorf("email.accounts[%d].name %q is a duplicate", i, a.Name)
		}
		names[a.Name] = true

		if a.IMAP.Port < 1 || a.IMAP.Port > 65535 {
			return fmt.Errorf("email.accounts[%d] (%s): imap.port %d out of range (1-65535)", i, a.Name, a.IMAP.Port)
		}
		if a.SMTP.Host != "" {
			if a.SMTP.Username == "" {
				return fmt.Errorf("email.accounts[%d] (%s): smtp username is required when smtp.host is set", i, a.Name)
			}
			if a.SMTP.Port < 1 || a.SMTP.Port > 65535 {
				return fmt.Errorf("email.accounts[%d] (%s): smtp.port %d out of range (1-65535)", i, a.Name, a.SMTP.Port)
			}
		}
	}
	if c.DefaultProvider != "" && len(c.Accounts) > 0 && !names[c.DefaultProvider] {
		return fmt.Errorf("email.default_provider %q is not a configured account", c.DefaultProvider)
	}
	return nil
}

type providerHosts struct{ imap, smtp string }

var wellKnown = map[string]providerHosts{
	"gmail": {imap: "imap.gmail.com", smtp: "smtp.gmail.com"},
	"naver": {imap: "imap.naver.com", smtp: "smtp.naver.com"},
}

// AccountConfig is one provider account. Username and Password are
// shorthand that fill the IMAP and SMTP credentials when those are
// left empty.
type AccountConfig struct {
	// Name is the provider label used in drafts and digests
	// (e.g., "gmail", "naver", "work").
	Name string `yaml:"name"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	IMAP IMAPConfig `yaml:"imap"`
	SMTP SMTPConfig `yaml:"smtp"`

	// DefaultFrom is the From address. Defaults to Username.
	DefaultFrom string `yaml:"default_from"`
}

// SMTPConfigured reports whether this account can send.
func (a AccountConfig) SMTPConfigured() bool {
	return a.SMTP.Host != "" && a.SMTP.Username != "" && a.SMTP.Password != ""
}

// IMAPConfigured reports whether this account can be checked.
func (a AccountConfig) IMAPConfigured() bool {
	return a.IMAP.Host != "" && a.IMAP.Username != "" && a.IMAP.Password != ""
}

// IMAPConfig holds IMAP connection parameters.
type IMAPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"` // default 993
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"` // default true unless port is 143
}

// SMTPConfig holds SMTP connection parameters.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"` // default 587
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// StartTLS upgrades a plain connection. Default true; false means
	// implicit TLS (port 465).
	StartTLS bool `yaml:"starttls"`
}
