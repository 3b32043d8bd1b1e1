package controlconn

import (
	"fmt"
	"strconv"
	"strings"
)

// CassandraVersion is a parsed major.minor.patch server version, with an
// optional qualifier (e.g. "beta1" from "4.0-beta1", or a DSE build tag)
// carried along for diagnostics but never used in comparisons. A trailing
// "-SNAPSHOT" is dropped by ParseCassandraVersion and never kept here.
type CassandraVersion struct {
	Major     int
	Minor     int
	Patch     int
	Qualifier string
}

// ParseCassandraVersion parses a `local.release_version` value such as
// "3.11.4", "4.0-beta1" or "3.0.0-SNAPSHOT". It tolerates a missing patch
// component the way older Cassandra releases report their version.
func ParseCassandraVersion(v string) (CassandraVersion, error) {
	var out CassandraVersion
	v = strings.TrimPrefix(strings.TrimSuffix(v, "-SNAPSHOT"), "v")
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return out, fmt.Errorf("controlconn: invalid version string %q", v)
	}

	var err error
	out.Major, err = strconv.Atoi(parts[0])
	if err != nil {
		return out, fmt.Errorf("controlconn: invalid major version %q: %w", parts[0], err)
	}

	if len(parts) == 2 {
		minor := strings.SplitN(parts[1], "-", 2)
		out.Minor, err = strconv.Atoi(minor[0])
		if err != nil {
			return out, fmt.Errorf("controlconn: invalid minor version %q: %w", minor[0], err)
		}
		if len(minor) == 2 {
			out.Qualifier = minor[1]
		}
		return out, nil
	}

	out.Minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return out, fmt.Errorf("controlconn: invalid minor version %q: %w", parts[1], err)
	}

	patch := strings.SplitN(parts[2], "-", 2)
	out.Patch, err = strconv.Atoi(patch[0])
	if err != nil {
		return out, fmt.Errorf("controlconn: invalid patch version %q: %w", patch[0], err)
	}
	if len(patch) == 2 {
		out.Qualifier = patch[1]
	}
	return out, nil
}

// Before reports whether v is strictly lower than major.minor.patch.
func (v CassandraVersion) Before(major, minor, patch int) bool {
	if v.Major != major {
		return v.Major < major
	}
	if v.Minor != minor {
		return v.Minor < minor
	}
	return v.Patch < patch
}

// AtLeast reports whether v is greater than or equal to major.minor.patch.
func (v CassandraVersion) AtLeast(major, minor, patch int) bool {
	return !v.Before(major, minor, patch)
}

func (v CassandraVersion) String() string {
	if v.Qualifier != "" {
		return fmt.Sprintf("%d.%d.%d-%s", v.Major, v.Minor, v.Patch, v.Qualifier)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// usesModernSchema reports whether V >= 3.0.0, the threshold at which the
// server exposes schema metadata through system_schema.* rather than the
// legacy system.schema_* tables (spec §3, Data Model).
func (v CassandraVersion) usesModernSchema() bool {
	return v.AtLeast(3, 0, 0)
}
