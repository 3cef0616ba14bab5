package device

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"
)

const (
	maxNameLength = 100
	maxSlugLength = 64
	maxIDLength   = 64
	slugPattern   = `^[a-z0-9]+(?:_[a-z0-9]+)*$`
)

var slugRegex = regexp.MustCompile(slugPattern)

var transliterate = strings.NewReplacer(
	"ä", "a", "ö", "o", "ü", "u", "ß", "ss",
	"é", "e", "è", "e", "à", "a",
)

// ValidateDevice checks the fields every registered device needs.
// Returns the first failure, wrapped in ErrInvalidDevice or a more
// specific sentinel.
func ValidateDevice(d Device) error {
	if err := ValidateSlug(d.ID); err != nil {
		return err
	}
	if len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	if err := ValidateAddress(d.Address); err != nil {
		return err
	}
	if err := validateIdentifier("homeserver_id", d.HomeserverID); err != nil {
		return err
	}
	if err := validateIdentifier("heater_id", d.HeaterID); err != nil {
		return err
	}
	switch d.Source {
	case SourceConfig, SourceEntry:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidDevice, d.Source)
	}
	return nil
}

// ValidateSlug checks that id is lowercase alphanumeric words joined by
// single underscores.
func ValidateSlug(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidSlug)
	}
	if len(id) > maxSlugLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(id) {
		return fmt.Errorf("%w: %q must be lowercase alphanumeric with underscores", ErrInvalidSlug, id)
	}
	return nil
}

// ValidateAddress checks that addr is an IPv4 or IPv6 address.
func ValidateAddress(addr string) error {
	if _, err := netip.ParseAddr(addr); err != nil {
		return fmt.Errorf("%w: %q is not an IP address", ErrInvalidAddress, addr)
	}
	return nil
}

func validateIdentifier(field, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidDevice, field)
	}
	if len(v) > maxIDLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidDevice, field, maxIDLength)
	}
	return nil
}

// Slugify turns a display name into a device ID.
//
// "Küche Oben" becomes "kuche_oben". Runs of anything other than ASCII
// letters and digits collapse to a single underscore.
func Slugify(name string) string {
	s := transliterate.Replace(strings.ToLower(strings.TrimSpace(name)))

	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "_")
	}
	return slug
}
