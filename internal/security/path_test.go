package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		allowAbsolute bool
		wantErr       bool
	}{
		{"relative file", "config.json", false, false},
		{"nested relative", "data/session-journal.db", false, false},
		{"empty", "", false, true},
		{"traversal", "../etc/passwd", false, true},
		{"hidden traversal", "data/../../secret", true, true},
		{"dotted name is fine", "data/..journal.db", false, false},
		{"absolute rejected", "/etc/crmbridge.yaml", false, true},
		{"absolute allowed", "/var/lib/crmbridge/journal.db", true, false},
		{"nul byte", "data/\x00journal.db", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path, tt.allowAbsolute)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKeysMatch(t *testing.T) {
	assert.True(t, KeysMatch("s3cret", "s3cret"))
	assert.False(t, KeysMatch("s3cret", "other"))
	assert.False(t, KeysMatch("", "s3cret"))
	assert.False(t, KeysMatch("", ""))
	assert.False(t, KeysMatch("s3cret", ""))
	assert.False(t, KeysMatch("s3cre", "s3cret"))
}
