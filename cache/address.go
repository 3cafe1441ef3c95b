package cache

import "strconv"

// Address is the composite location of an item inside every layer.
// Region and key are kept as a tuple rather than concatenated, so a key in a
// region never collides with the same key in the global namespace.
// An empty Region means "no region".
type Address struct {
	Region string
	Key    string
}

// Compose validates key and returns its global address.
func Compose(key string) (Address, error) {
	if key == "" {
		return Address{}, invalidArg("key must not be empty")
	}
	return Address{Key: key}, nil
}

// ComposeRegion validates region and key and returns the regioned address.
func ComposeRegion(region, key string) (Address, error) {
	if region == "" {
		return Address{}, invalidArg("region must not be empty")
	}
	if key == "" {
		return Address{}, invalidArg("key must not be empty")
	}
	return Address{Region: region, Key: key}, nil
}

// Global reports whether the address has no region.
func (a Address) Global() bool { return a.Region == "" }

// String flattens the address for layers that need a single string key.
//
// Global addresses are encoded as "g:<key>", regioned ones as
// "r:<len(region)>:<region>:<key>". The leading tag separates the two
// namespaces and the length prefix makes the region boundary unambiguous
// without escaping.
func (a Address) String() string {
	if a.Global() {
		return "g:" + a.Key
	}
	return RegionPrefix(a.Region) + a.Key
}

// RegionPrefix returns the flat-key prefix shared by every address in region.
// Layers use it to scan or clear a region.
func RegionPrefix(region string) string {
	return "r:" + strconv.Itoa(len(region)) + ":" + region + ":"
}

// ParseAddress reverses String. It fails with ErrInvalidArgument on input
// that String could not have produced.
func ParseAddress(s string) (Address, error) {
	switch {
	case len(s) > 2 && s[:2] == "g:":
		return Address{Key: s[2:]}, nil
	case len(s) > 2 && s[:2] == "r:":
		rest := s[2:]
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i >= len(rest) || rest[i] != ':' || rest[0] == '0' {
			break
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil || n <= 0 {
			break
		}
		rest = rest[i+1:]
		if len(rest) < n+2 || rest[n] != ':' {
			break
		}
		return Address{Region: rest[:n], Key: rest[n+1:]}, nil
	}
	return Address{}, invalidArg("malformed address %q", s)
}
