package app

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"review_ledger/internal/domain"
)

/********** alias registries (single source of truth) **********/

var userAliases = map[string][]string{
	"identity": {"principal", "identity", "stx_address", "address", "wallet", "id"},
	"name":     {"name", "display_name", "displayName", "username", "profile.name"},
	"active":   {"active", "is_active", "isActive", "status"},
}

var locationAliases = map[string][]string{
	"id":      {"location_id", "locationId", "id"},
	"name":    {"name", "title", "place.name", "display_name"},
	"city":    {"address.city", "city", "locality", "town"},
	"country": {"address.country", "country", "country_code", "countryCode"},
	"lat":     {"lat", "latitude", "location.lat", "geo.lat"},
	"lon":     {"lon", "lng", "longitude", "location.lon", "location.lng", "geo.lon"},
	"active":  {"active", "is_active", "isActive", "status"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// firstNonEmpty: first non-empty string (or integral number rendered as one) for an alias set.
func firstNonEmpty(m map[string]any, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		switch v := lookupAny(m, p).(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return &s
			}
		case float64:
			if v == float64(int64(v)) {
				s := strconv.FormatInt(int64(v), 10)
				return &s
			}
		}
	}
	return nil
}

// firstFloat: number from several paths (float64/int/string like "8,0").
func firstFloat(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// firstUint: positive integer from several paths (float64/int/string).
func firstUint(m map[string]any, paths ...string) uint64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			if v > 0 && v == float64(uint64(v)) {
				return uint64(v)
			}
		case int:
			if v > 0 {
				return uint64(v)
			}
		case string:
			if n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

// isActive reads bools, "active"/"inactive" style strings and 0/1. Absent means active.
func isActive(m map[string]any, paths ...string) bool {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case bool:
			return v
		case float64:
			return v != 0
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "inactive", "disabled", "closed", "suspended", "deleted", "false", "0":
				return false
			case "":
				continue
			default:
				return true
			}
		}
	}
	return true
}

func rawJSON(context string, v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("context", context).Msg("marshal raw payload failed")
		return nil
	}
	return b
}

/********** users mapper **********/

// mapUsers splits entries with an identity into active users and the
// identities the directory reports as inactive. The burn identity is never registered.
func mapUsers(in []map[string]any) ([]domain.RegisteredUser, []domain.Identity) {
	out := make([]domain.RegisteredUser, 0, len(in))
	var inactive []domain.Identity
	for _, u := range in {
		id := firstNonEmpty(u, userAliases, "identity")
		if id == nil || domain.Identity(*id) == domain.BurnIdentity {
			continue
		}
		if !isActive(u, userAliases["active"]...) {
			inactive = append(inactive, domain.Identity(*id))
			continue
		}
		out = append(out, domain.RegisteredUser{
			Identity: domain.Identity(*id),
			Name:     firstNonEmpty(u, userAliases, "name"),
			RawJSON:  rawJSON("mapUsers", u),
		})
	}
	return out, inactive
}

/********** location mapper **********/

func mapLocation(p map[string]any) (domain.RegisteredLocation, bool) {
	return domain.RegisteredLocation{
		ID:      firstUint(p, locationAliases["id"]...),
		Name:    firstNonEmpty(p, locationAliases, "name"),
		City:    firstNonEmpty(p, locationAliases, "city"),
		Country: firstNonEmpty(p, locationAliases, "country"),
		Lat:     firstFloat(p, locationAliases["lat"]...),
		Lon:     firstFloat(p, locationAliases["lon"]...),
		RawJSON: rawJSON("mapLocation", p),
	}, isActive(p, locationAliases["active"]...)
}
