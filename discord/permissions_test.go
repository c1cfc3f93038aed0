package discord

import (
	"testing"
)

func TestAnalyzePermissionsSingleBit(t *testing.T) {
	a := AnalyzePermissions(1 << 3)
	if len(a.Granted) != 1 || a.Granted[0] != "ADMINISTRATOR" {
		t.Errorf("Granted = %v, want [ADMINISTRATOR]", a.Granted)
	}
	if !a.IsAdmin {
		t.Error("IsAdmin = false for ADMINISTRATOR bit")
	}
	if len(a.DangerousGranted) != 1 {
		t.Errorf("DangerousGranted = %v, want ADMINISTRATOR flagged", a.DangerousGranted)
	}
}

func TestAnalyzePermissionsRequiredSet(t *testing.T) {
	// VIEW_CHANNEL | CONNECT | SPEAK | USE_VAD | READ_MESSAGE_HISTORY
	value := uint64(1<<10 | 1<<20 | 1<<21 | 1<<25 | 1<<16)
	a := AnalyzePermissions(value)
	if len(a.MissingRequired) != 0 {
		t.Errorf("MissingRequired = %v, want none", a.MissingRequired)
	}
	if len(a.DangerousGranted) != 0 {
		t.Errorf("DangerousGranted = %v, want none", a.DangerousGranted)
	}
	if len(a.Granted) != 5 {
		t.Errorf("Granted %d permissions, want 5: %v", len(a.Granted), a.Granted)
	}
}

func TestAnalyzePermissionsMissingRequired(t *testing.T) {
	// CONNECT only
	a := AnalyzePermissions(1 << 20)
	want := map[string]bool{"VIEW_CHANNEL": true, "SPEAK": true, "USE_VAD": true, "READ_MESSAGE_HISTORY": true}
	if len(a.MissingRequired) != len(want) {
		t.Fatalf("MissingRequired = %v, want %d entries", a.MissingRequired, len(want))
	}
	for _, name := range a.MissingRequired {
		if !want[name] {
			t.Errorf("unexpected missing permission %q", name)
		}
	}
}

func TestAnalyzePermissionsUnknownBits(t *testing.T) {
	a := AnalyzePermissions(1 << 60)
	if len(a.Granted) != 0 {
		t.Errorf("Granted = %v, want none", a.Granted)
	}
	if len(a.Unknown) != 1 || a.Unknown[0] != "BIT_60" {
		t.Errorf("Unknown = %v, want [BIT_60]", a.Unknown)
	}
}

func TestAnalyzePermissionsZero(t *testing.T) {
	a := AnalyzePermissions(0)
	if len(a.Granted) != 0 || a.IsAdmin {
		t.Errorf("zero value decoded to %v", a.Granted)
	}
	if len(a.MissingRequired) != len(RequiredPermissions) {
		t.Errorf("MissingRequired = %v, want all required", a.MissingRequired)
	}
}
