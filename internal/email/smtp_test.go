package email

import (
	"errors"
	"testing"
)

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare address", "user@example.com", "user@example.com"},
		{"name and address", "Alice <alice@example.com>", "alice@example.com"},
		{"just angle brackets", "<user@test.com>", "user@test.com"},
		{"surrounding space", "  bob@example.com ", "bob@example.com"},
		{"empty", "", ""},
		{"no closing bracket", "Alice <user@test.com", "Alice <user@test.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractAddress(tt.input); got != tt.want {
				t.Errorf("extractAddress(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCollectRecipients(t *testing.T) {
	got := collectRecipients(
		[]string{"Alice <alice@example.com>", "bob@example.com"},
		[]string{"owner@example.com", "ALICE@example.com"},
	)

	want := []string{"alice@example.com", "bob@example.com", "owner@example.com"}
	if len(got) != len(want) {
		t.Fatalf("collectRecipients = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recipient %d = %q, want %q", i, got[i], want[i])
		}
	}

	if len(collectRecipients(nil, nil)) != 0 {
		t.Error("empty inputs should return no recipients")
	}
}

func TestRecipientError_Unwrap(t *testing.T) {
	base := errors.New("550 no such user")
	err := error(&RecipientError{Addr: "x@example.com", Err: base})
	if !errors.Is(err, base) {
		t.Error("RecipientError should unwrap to the server error")
	}
}
