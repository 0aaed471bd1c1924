package email

import "testing"

func TestConfig_Configured(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"no accounts", Config{}, false},
		{"empty account", Config{Accounts: []AccountConfig{{Name: "gmail"}}}, false},
		{
			name: "imap without password",
			cfg: Config{Accounts: []AccountConfig{{
				Name: "work",
				IMAP: IMAPConfig{Host: "imap.example.com", Username: "user@example.com"},
			}}},
			want: false,
		},
		{
			name: "smtp complete",
			cfg: Config{Accounts: []AccountConfig{{
				Name: "work",
				SMTP: SMTPConfig{Host: "smtp.example.com", Username: "u", Password: "p"},
			}}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Configured(); got != tt.want {
				t.Errorf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_ApplyDefaults_WellKnownProvider(t *testing.T) {
	cfg := Config{
		Accounts: []AccountConfig{
			{Name: " Naver ", Username: "me@naver.com", Password: "secret"},
			{Name: "gmail", Username: "me@gmail.com", Password: "app-pass"},
		},
	}
	cfg.ApplyDefaults()

	naver := cfg.Accounts[0]
	if naver.Name != "naver" {
		t.Errorf("name = %q, want normalized %q", naver.Name, "naver")
	}
	if naver.IMAP.Host != "imap.naver.com" || naver.SMTP.Host != "smtp.naver.com" {
		t.Errorf("hosts = %q / %q", naver.IMAP.Host, naver.SMTP.Host)
	}
	if naver.IMAP.Username != "me@naver.com" || naver.SMTP.Password != "secret" {
		t.Errorf("credentials not propagated: %+v", naver)
	}
	if naver.DefaultFrom != "me@naver.com" {
		t.Errorf("DefaultFrom = %q", naver.DefaultFrom)
	}
	if naver.IMAP.Port != 993 || !naver.IMAP.TLS {
		t.Errorf("IMAP port/tls = %d/%v", naver.IMAP.Port, naver.IMAP.TLS)
	}
	if naver.SMTP.Port != 587 || !naver.SMTP.StartTLS {
		t.Errorf("SMTP port/starttls = %d/%v", naver.SMTP.Port, naver.SMTP.StartTLS)
	}
	if !naver.SMTPConfigured() || !naver.IMAPConfigured() {
		t.Error("account should be fully configured")
	}

	if cfg.DefaultProvider != "naver" {
		t.Errorf("DefaultProvider = %q, want first account", cfg.DefaultProvider)
	}
	if cfg.UnreadLimit != 10 {
		t.Errorf("UnreadLimit = %d, want 10", cfg.UnreadLimit)
	}
}

func TestConfig_ApplyDefaults_Ports(t *testing.T) {
	cfg := Config{
		DefaultProvider: "WORK",
		Accounts: []AccountConfig{
			{
				Name: "work",
				IMAP: IMAPConfig{Host: "imap.example.com", Username: "user", Port: 143},
				SMTP: SMTPConfig{Host: "smtp.example.com", Username: "user", Port: 465},
			},
			{Name: "readonly", IMAP: IMAPConfig{Host: "imap.example.com", Username: "user"}},
		},
	}
	cfg.ApplyDefaults()

	if cfg.Accounts[0].IMAP.TLS {
		t.Error("TLS should remain false for port 143")
	}
	if cfg.Accounts[0].SMTP.StartTLS {
		t.Error("StartTLS should remain false for port 465")
	}
	if cfg.Accounts[1].SMTP.Port != 0 {
		t.Errorf("SMTP port should stay 0 without a host, got %d", cfg.Accounts[1].SMTP.Port)
	}
	if cfg.DefaultProvider != "work" {
		t.Errorf("DefaultProvider = %q, want lowercased", cfg.DefaultProvider)
	}
}

func TestConfig_Validate(t *testing.T) {
	smtp := SMTPConfig{Host: "smtp.gmail.com", Port: 587, Username: "user", Password: "pass"}
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg: Config{DefaultProvider: "gmail", Accounts: []AccountConfig{{
				Name: "gmail",
				IMAP: IMAPConfig{Host: "imap.gmail.com", Port: 993, Username: "user"},
				SMTP: smtp,
			}}},
		},
		{
			name:    "missing name",
			cfg:     Config{Accounts: []AccountConfig{{IMAP: IMAPConfig{Port: 993}}}},
			wantErr: true,
		},
		{
			name: "duplicate names",
			cfg: Config{Accounts: []AccountConfig{
				{Name: "work", IMAP: IMAPConfig{Port: 993}},
				{Name: "work", IMAP: IMAPConfig{Port: 993}},
			}},
			wantErr: true,
		},
		{
			name:    "invalid imap port",
			cfg:     Config{Accounts: []AccountConfig{{Name: "x", IMAP: IMAPConfig{Port: 0}}}},
			wantErr: true,
		},
		{
			name: "smtp missing username",
			cfg: Config{Accounts: []AccountConfig{{
				Name: "x",
				IMAP: IMAPConfig{Port: 993},
				SMTP: SMTPConfig{Host: "smtp.gmail.com", Port: 587},
			}}},
			wantErr: true,
		},
		{
			name: "smtp invalid port",
			cfg: Config{Accounts: []AccountConfig{{
				Name: "x",
				IMAP: IMAPConfig{Port: 993},
				SMTP: SMTPConfig{Host: "smtp.gmail.com", Username: "u"},
			}}},
			wantErr: true,
		},
		{
			name: "unknown default provider",
			cfg: Config{DefaultProvider: "yahoo", Accounts: []AccountConfig{{
				Name: "gmail",
				IMAP: IMAPConfig{Port: 993},
			}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
