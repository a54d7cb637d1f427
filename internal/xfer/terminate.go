// SPDX-License-Identifier: MIT

package xfer

import "time"

// SendTerminate sends HostEvent{Kind: HostTerminate} to ch, retrying with a
// short bounded exponential backoff if the channel is momentarily full:
// Terminate is the one HostEvent that must succeed. It gives up and
// reports the last error after the deadline elapses: exponential backoff
// with a much lower ceiling than a connection retry, since this spin is
// meant to be brief.
func SendTerminate(ch *HostChannel, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	delay := time.Millisecond
	const maxDelay = 20 * time.Millisecond

	for {
		err := ch.TrySend(HostEvent{Kind: HostTerminate})
		if err == nil || err == ErrClosed {
			return err
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(delay)
		if delay *= 2; delay > maxDelay {
			delay = maxDelay
		}
	}
}
