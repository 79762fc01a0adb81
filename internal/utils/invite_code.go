package utils

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/yukikurage/family-task-sync/internal/constants"
)

// Letters and digits that are hard to confuse when read aloud or typed on a phone.
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateInviteCode returns a code like "K7QM-2XWD"
func GenerateInviteCode() (string, error) {
	raw := make([]byte, constants.InviteCodeLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	code := make([]byte, len(raw))
	for i, b := range raw {
		code[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return groupInviteCode(string(code)), nil
}

// NormalizeInviteCode puts user input into stored form: upper case,
// separators dropped and regrouped.
func NormalizeInviteCode(input string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(input) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return groupInviteCode(b.String())
}

func groupInviteCode(code string) string {
	size := constants.InviteCodeGroupSize
	groups := make([]string, 0, len(code)/size+1)
	for len(code) > size {
		groups = append(groups, code[:size])
		code = code[size:]
	}
	if code != "" {
		groups = append(groups, code)
	}
	return strings.Join(groups, "-")
}
