// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "testing"

func TestRoleDisplayName(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUser, "You"},
		{RoleAssistant, "Assistant"},
		{Role("other"), "other"},
	}

	for _, tt := range tests {
		if got := tt.role.DisplayName(); got != tt.want {
			t.Errorf("Role(%q).DisplayName() = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestRoleValid(t *testing.T) {
	if !RoleUser.Valid() || !RoleAssistant.Valid() {
		t.Error("known roles should be valid")
	}
	if Role("system").Valid() {
		t.Error("Role(system) should not be valid")
	}
}

func TestMessageIsEmpty(t *testing.T) {
	if !NewMessage(RoleUser, "  \n\t").IsEmpty() {
		t.Error("whitespace-only message should be empty")
	}
	if NewMessage(RoleAssistant, "Paris").IsEmpty() {
		t.Error("message with content should not be empty")
	}
}
