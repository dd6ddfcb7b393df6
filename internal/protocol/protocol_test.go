package protocol

import (
	"errors"
	"strings"
	"testing"
)

// TestValidate tests payload validation with various inputs
func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		max     int64
		wantErr error
	}{
		{
			name: "ascii text",
			data: []byte("hello"),
			max:  DefaultMaxPayloadSize,
		},
		{
			name: "multibyte text",
			data: []byte("Conexión establecida ✓"),
			max:  DefaultMaxPayloadSize,
		},
		{
			name: "empty payload",
			data: []byte{},
			max:  DefaultMaxPayloadSize,
		},
		{
			name: "payload at max size",
			data: []byte(strings.Repeat("x", 16)),
			max:  16,
		},
		{
			name:    "payload over max size",
			data:    []byte(strings.Repeat("x", 17)),
			max:     16,
			wantErr: ErrPayloadTooLarge,
		},
		{
			name: "size check disabled",
			data: []byte(strings.Repeat("x", 1024)),
			max:  0,
		},
		{
			name:    "invalid utf8",
			data:    []byte{0xff, 0xfe, 0xfd},
			max:     DefaultMaxPayloadSize,
			wantErr: ErrInvalidUTF8,
		},
		{
			name:    "truncated multibyte sequence",
			data:    []byte("ok\xc3"),
			max:     DefaultMaxPayloadSize,
			wantErr: ErrInvalidUTF8,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Validate(tt.data, tt.max)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestIsDisconnect tests case-insensitive matching of the disconnect word
func TestIsDisconnect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		data string
		word string
		want bool
	}{
		{"chao", "chao", true},
		{"CHAO", "chao", true},
		{"Chao", "chao", true},
		{"cHaO", "chao", true},
		{"chao ", "chao", false},
		{"chao!", "chao", false},
		{"hello", "chao", false},
		{"", "chao", false},
		{"", "", false},
		{"bye", "BYE", true},
	}

	for _, tt := range tests {
		if got := IsDisconnect([]byte(tt.data), tt.word); got != tt.want {
			t.Errorf("IsDisconnect(%q, %q) = %v, want %v", tt.data, tt.word, got, tt.want)
		}
	}
}

func TestFormatIncoming(t *testing.T) {
	t.Parallel()

	got := FormatIncoming(DefaultIncomingLabel, []byte("hola"))
	want := "Message received from server: hola"
	if got != want {
		t.Errorf("FormatIncoming() = %q, want %q", got, want)
	}
}
