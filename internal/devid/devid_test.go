// SPDX-License-Identifier: MIT

package devid

import "testing"

func TestForAudioDevice_StableAcrossWhitespaceAndCase(t *testing.T) {
	a := ForAudioDevice("USB Condenser  Mic", "ALSA")
	b := ForAudioDevice("usb condenser mic", "alsa")
	if a != b {
		t.Fatalf("expected IDs to match after normalization, got %q vs %q", a, b)
	}
}

func TestForAudioDevice_DistinguishesHostAPI(t *testing.T) {
	a := ForAudioDevice("Mic", "ALSA")
	b := ForAudioDevice("Mic", "JACK")
	if a == b {
		t.Fatalf("expected distinct IDs across host APIs, got %q for both", a)
	}
}

func TestForRemoteDevice_ScopedByAddress(t *testing.T) {
	a := ForRemoteDevice("10.0.0.5", "Mic")
	b := ForRemoteDevice("10.0.0.6", "Mic")
	if a == b {
		t.Fatalf("expected distinct IDs across remote hosts, got %q for both", a)
	}
}

func TestIsValidID(t *testing.T) {
	if !IsValidID(ForAudioDevice("x", "y")) {
		t.Fatal("expected generated ID to validate")
	}
	cases := []string{"", "nokind", "bogus:deadbeef", "audio:not-hex", "audio:"}
	for _, c := range cases {
		if IsValidID(c) {
			t.Fatalf("expected %q to be invalid", c)
		}
	}
}
