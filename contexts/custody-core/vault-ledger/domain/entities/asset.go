package entities

import "strings"

// Asset identifies what a balance is denominated in. The native currency is
// a distinguished sentinel; every other value names a fungible token.
type Asset string

const AssetNative Asset = "native"

func NormalizeAsset(raw string) Asset {
	return Asset(strings.ToLower(strings.TrimSpace(raw)))
}

func (a Asset) IsNative() bool {
	return a == AssetNative
}

func (a Asset) IsValid() bool {
	return strings.TrimSpace(string(a)) != ""
}
