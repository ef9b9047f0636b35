package services

import (
	"strings"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

var canonicalStatuses = map[string]models.StandardStatus{
	"active":                models.StatusActive,
	"active under contract": models.StatusActiveUnderContract,
	"activeundercontract":   models.StatusActiveUnderContract,
	"pending":               models.StatusPending,
	"closed":                models.StatusClosed,
}

var letterStatuses = map[string]models.StandardStatus{
	"a": models.StatusActive,
	"u": models.StatusPending,
	"s": models.StatusClosed,
	"p": models.StatusPending,
}

// NormalizeStatus maps a source status vocabulary onto StandardStatus.
// lastStatus is the legacy secondary code some sources send alongside a
// single-letter status ("U" + "Sld" means sold). Anything unrecognized is
// Unknown; it is never defaulted to Active.
func NormalizeStatus(status, lastStatus string) models.StandardStatus {
	raw := strings.TrimSpace(status)
	last := strings.ToLower(strings.TrimSpace(lastStatus))
	lower := strings.ToLower(raw)

	if s, ok := canonicalStatuses[lower]; ok {
		return s
	}
	if strings.Contains(lower, "active under contract") {
		return models.StatusActiveUnderContract
	}

	// Legacy codes. A bare "U" (or no status) defers to lastStatus.
	code := lower
	if code == "" || code == "u" {
		switch last {
		case "sld", "lsd":
			return models.StatusClosed
		case "pnd":
			return models.StatusPending
		}
	}
	switch {
	case code == "sld" || code == "lsd":
		return models.StatusClosed
	case code == "au" || (code == "u" && last == "act"):
		return models.StatusActiveUnderContract
	case code == "pnd" || code == "p":
		return models.StatusPending
	}

	if s, ok := letterStatuses[code]; ok {
		return s
	}
	return models.StatusUnknown
}
