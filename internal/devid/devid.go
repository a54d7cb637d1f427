// SPDX-License-Identifier: MIT

// Package devid derives stable device identities for capture sources.
// Device enumeration order is not guaranteed stable across OS/driver
// restarts, so DeviceHandle.ID must be derived from properties that
// persist for the same physical device rather than from its position in
// an Enumerate() call. The same problem shows up for USB audio devices,
// solved there by hashing physical port path instead of trusting ALSA
// card index; here the identifying properties are name plus host API,
// backend ID, or remote address rather than a sysfs path.
package devid

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// normalize lowercases and collapses whitespace so that trivial
// formatting differences across enumeration calls don't change the
// derived ID (mirrors mapper.go's SafeBase10 approach of tolerating
// superficial string variation while keeping parsing strict).
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func hashOf(parts ...string) string {
	h := fnv.New64a()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte(normalize(p)))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// ForAudioDevice derives a stable ID for a local audio device from its
// name and host API, e.g. distinguishing two identically-named cards
// exposed through different backends.
func ForAudioDevice(name, hostAPI string) string {
	return "audio:" + hashOf(name, hostAPI)
}

// ForMIDIDevice derives a stable ID for a local MIDI device from the
// identifier its backend already considers persistent.
func ForMIDIDevice(backendID string) string {
	return "midi:" + hashOf(backendID)
}

// ForRemoteDevice derives a stable ID for a device advertised by a remote
// capture host, scoped to that host's address so identically-named
// devices on different hosts never collide.
func ForRemoteDevice(address, name string) string {
	return "remote:" + hashOf(address, name)
}

// IsValidID reports whether s has the "<kind>:<hex>" shape this package
// produces. Useful for config validation of persisted device IDs.
func IsValidID(s string) bool {
	kind, hex, ok := strings.Cut(s, ":")
	if !ok || hex == "" {
		return false
	}
	switch kind {
	case "audio", "midi", "remote":
	default:
		return false
	}
	for _, r := range hex {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}
