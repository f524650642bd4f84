package entity

import "errors"

// Sentinel errors for the configuration-error category of spec §7 (fail-fast
// before any scan). Live here rather than in a leaf package like sweep or
// config since entity has no dependency on anything else in this module and
// every pipeline stage already depends on it — the one place a cross-package
// sentinel can live without inverting the layering spec §2 describes.
var (
	ErrInvalidCIDR   = errors.New("invalid CIDR")
	ErrConfigInvalid = errors.New("invalid configuration")
)
