package application

import "math/bits"

// GracePeriodActive reports whether the authorization bypass window opened at
// lastChange is still open at now. The window covers [lastChange,
// lastChange+duration); the boundary instant itself is the first inactive
// second. All values are unsigned unix seconds.
//
// The sum is carry-checked: a window end past the uint64 range can only lie
// in the future, so it reports active instead of wrapping. A now that sits
// numerically before lastChange still satisfies the strict comparison, so a
// clock that moved backwards inside the window keeps the window open.
func GracePeriodActive(lastChange uint64, now uint64, duration uint64) bool {
	end, carry := bits.Add64(lastChange, duration, 0)
	if carry != 0 {
		return true
	}
	return end > now
}
