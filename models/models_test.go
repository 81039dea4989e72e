package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	notFound := NewError(KindNotFound, "ticket not found, try again", nil)

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"plain error", errors.New("connection reset"), KindTransient},
		{"typed", notFound, KindNotFound},
		{"wrapped", fmt.Errorf("lookup: %w", notFound), KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageOf(t *testing.T) {
	if got := MessageOf(NewError(KindSubmissionRejected, "", nil)); got != DefaultMessage(KindSubmissionRejected) {
		t.Errorf("empty message = %q", got)
	}
	if got := MessageOf(NewError(KindNotFound, "ticket is for a different event", nil)); got != "ticket is for a different event" {
		t.Errorf("custom message = %q", got)
	}
	if got := MessageOf(errors.New("i/o timeout")); got != "network error, try again" {
		t.Errorf("plain error = %q", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("nonce too low")
	err := NewError(KindSubmissionFailed, "check-in failed, retry", cause)
	if !errors.Is(err, cause) {
		t.Error("cause is not reachable through Unwrap")
	}
	if got := err.Error(); got != "submission_failed: check-in failed, retry: nonce too low" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDisplayOwner(t *testing.T) {
	tests := []struct {
		name    string
		owner   string
		ownName string
		want    string
	}{
		{"named", "0x1234567890abcdef1234567890abcdef12345678", "Ada", "Ada"},
		{"address", "0x1234567890abcdef1234567890abcdef12345678", "", "0x1234...5678"},
		{"short", "0x1234", "", "0x1234"},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := TicketRecord{Owner: tt.owner, OwnerName: tt.ownName}
			if got := ticket.DisplayOwner(); got != tt.want {
				t.Errorf("TicketRecord.DisplayOwner = %q, want %q", got, tt.want)
			}
			entry := RecentEntry{Owner: tt.owner, OwnerName: tt.ownName}
			if got := entry.DisplayOwner(); got != tt.want {
				t.Errorf("RecentEntry.DisplayOwner = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSource(t *testing.T) {
	for in, want := range map[string]Source{
		"scan":   SourceScan,
		"link":   SourceDeepLink,
		"manual": SourceManual,
		"":       SourceManual,
		"camera": SourceManual,
	} {
		if got := ParseSource(in); got != want {
			t.Errorf("ParseSource(%q) = %q, want %q", in, got, want)
		}
	}
}
