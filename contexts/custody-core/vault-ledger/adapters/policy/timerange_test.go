package policy

import (
	"errors"
	"testing"
	"time"

	"vaultd/contexts/custody-core/vault-ledger/domain/entities"
	domainerrors "vaultd/contexts/custody-core/vault-ledger/domain/errors"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func atSecond(sec int64) fixedClock {
	return fixedClock{now: time.Unix(sec, 0).UTC()}
}

func TestTimeRangeAuthorize(t *testing.T) {
	cases := []struct {
		name string
		now  int64
		want bool
	}{
		{"before window", 999, true},
		{"window start", 1000, false},
		{"inside window", 1500, false},
		{"window end", 2000, false},
		{"after window", 2001, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewTimeRange(1000, 2000, atSecond(tc.now))
			if err != nil {
				t.Fatalf("time range construction failed: %v", err)
			}
			if got := p.Authorize("user-1", entities.Asset("usdx"), 10); got != tc.want {
				t.Fatalf("Authorize at %d = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestTimeRangeRejectsDegenerateWindow(t *testing.T) {
	for _, tc := range []struct {
		name  string
		start uint64
		end   uint64
	}{
		{"empty", 1000, 1000},
		{"inverted", 2000, 1000},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewTimeRange(tc.start, tc.end, atSecond(0)); !errors.Is(err, domainerrors.ErrInvalidTimeRange) {
				t.Fatalf("expected ErrInvalidTimeRange, got %v", err)
			}
		})
	}
}

func TestStaticPolicies(t *testing.T) {
	if !(AllowAll{}).Authorize("user-1", entities.AssetNative, 1) {
		t.Fatal("AllowAll must authorize everything")
	}
	if (DenyAll{}).Authorize("user-1", entities.AssetNative, 1) {
		t.Fatal("DenyAll must authorize nothing")
	}
}

func TestFromSpec(t *testing.T) {
	if _, err := FromSpec("Allow", 0, 0, nil); err != nil {
		t.Fatalf("allow kind must build: %v", err)
	}
	if _, err := FromSpec(" deny ", 0, 0, nil); err != nil {
		t.Fatalf("deny kind must build: %v", err)
	}
	p, err := FromSpec("timerange", 1000, 2000, atSecond(1500))
	if err != nil {
		t.Fatalf("timerange kind must build: %v", err)
	}
	if p.Authorize("user-1", entities.Asset("usdx"), 10) {
		t.Fatal("timerange policy must forbid inside the window")
	}
	if _, err := FromSpec("whitelist", 0, 0, nil); !errors.Is(err, domainerrors.ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy for unknown kind, got %v", err)
	}
}
