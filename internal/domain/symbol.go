package domain

import "strings"

// Canonical symbols identify an instrument independent of venue naming:
// the base coin of a USDT-settled perpetual. Each venue mapping is a
// pure function that strips the venue's fixed quote suffix; for a fixed
// suffix the mapping is injective. Inputs that do not carry the suffix
// (non-USDT contracts) normalize to "" and are dropped by the caller.

// NormalizeBybitSymbol maps a Bybit linear contract name to its
// canonical symbol, e.g. "BTCUSDT" -> "BTC".
func NormalizeBybitSymbol(raw string) string {
	if !strings.HasSuffix(raw, "USDT") {
		return ""
	}
	return strings.TrimSuffix(raw, "USDT")
}

// BybitSymbol is the inverse mapping, e.g. "BTC" -> "BTCUSDT".
func BybitSymbol(canonical string) string {
	if canonical == "" {
		return ""
	}
	return canonical + "USDT"
}

// NormalizeGateSymbol maps a Gate.io futures contract name to its
// canonical symbol, e.g. "BTC_USDT" -> "BTC".
func NormalizeGateSymbol(raw string) string {
	if !strings.HasSuffix(raw, "_USDT") {
		return ""
	}
	return strings.TrimSuffix(raw, "_USDT")
}

// GateSymbol is the inverse mapping, e.g. "BTC" -> "BTC_USDT".
func GateSymbol(canonical string) string {
	if canonical == "" {
		return ""
	}
	return canonical + "_USDT"
}
