package leaderboard

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode is an osu! game mode.
type Mode int

const (
	ModeStandard Mode = iota
	ModeTaiko
	ModeCatch
	ModeMania
)

var modeNames = [...]string{"std", "taiko", "ctb", "mania"}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m >= ModeStandard && m <= ModeMania }

// String returns the readable mode name used in leaderboard keys.
func (m Mode) String() string {
	if !m.Valid() {
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
	return modeNames[m]
}

// Modes lists every mode.
func Modes() []Mode { return []Mode{ModeStandard, ModeTaiko, ModeCatch, ModeMania} }

// ParseMode accepts a readable name or a numeric mode.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(i), nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || !Mode(n).Valid() {
		return 0, fmt.Errorf("%w: mode %q", ErrInvalidArgument, s)
	}
	return Mode(n), nil
}

// Variant partitions leaderboards by ruleset modifier.
type Variant int

const (
	VariantRegular Variant = iota
	VariantRelax
)

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool { return v == VariantRegular || v == VariantRelax }

func (v Variant) String() string {
	if v == VariantRelax {
		return "relax"
	}
	return "regular"
}

// VariantOf maps the relax flag.
func VariantOf(relax bool) Variant {
	if relax {
		return VariantRelax
	}
	return VariantRegular
}

// UnknownCountry is the sentinel for users without a resolved country.
const UnknownCountry = "xx"

// Key returns the sorted set name for a mode and variant.
func Key(mode Mode, variant Variant) string {
	prefix := "ripple:leaderboard:"
	if variant == VariantRelax {
		prefix = "ripple:leaderboard_relax:"
	}
	return prefix + mode.String()
}

// CountryKey returns the per-country sorted set name. country is lower-cased.
func CountryKey(mode Mode, variant Variant, country string) string {
	return Key(mode, variant) + ":" + strings.ToLower(country)
}

// knownCountry reports whether country should get its own board.
func knownCountry(country string) bool {
	return country != "" && !strings.EqualFold(country, UnknownCountry)
}
