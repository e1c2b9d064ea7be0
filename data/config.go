package data

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Granularity decides which raw files form one collection.
type Granularity string

const (
	// GranularityFile indexes every raw file as its own collection.
	GranularityFile Granularity = "file"
	// GranularityDirectory indexes all matching files of a directory together.
	GranularityDirectory Granularity = "directory"
)

func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case GranularityFile:
		return GranularityFile, nil
	case GranularityDirectory, "":
		return GranularityDirectory, nil
	default:
		return "", InvalidConfig("unknown partition granularity '%s'", s)
	}
}

func (g *Granularity) UnmarshalText(text []byte) error {
	parsed, err := ParseGranularity(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// UpdatePolicy decides whether an existing index may be reused.
type UpdatePolicy string

const (
	// PolicyAlways rebuilds every index.
	PolicyAlways UpdatePolicy = "always"
	// PolicyTest reuses an index only when every member fingerprint matches.
	PolicyTest UpdatePolicy = "test"
	// PolicyNoCheck reuses any existing index without comparing fingerprints.
	PolicyNoCheck UpdatePolicy = "nocheck"
	// PolicyNever reuses existing indexes and fails when one is missing.
	PolicyNever UpdatePolicy = "never"
)

func ParseUpdatePolicy(s string) (UpdatePolicy, error) {
	switch UpdatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyAlways:
		return PolicyAlways, nil
	case PolicyTest, "":
		return PolicyTest, nil
	case PolicyNoCheck:
		return PolicyNoCheck, nil
	case PolicyNever:
		return PolicyNever, nil
	default:
		return "", InvalidConfig("unknown update policy '%s'", s)
	}
}

func (p *UpdatePolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseUpdatePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// CollectionConfig identifies one scan target. O carries the format
// specific options handed to the record scanner untouched.
type CollectionConfig[O any] struct {
	// Unique collection name, used as prefix of every unit name
	Name string
	// Root of the archive tree
	TopDir string
	// Glob matched against base names of member files
	Glob string
	// Optional directory mirroring the archive tree for index files
	IndexDir string

	Granularity Granularity
	Policy      UpdatePolicy

	// Format specific options
	Options O
}

// Validate checks required fields and fills defaults.
func (c *CollectionConfig[O]) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return InvalidConfig("collection name is required")
	}
	if strings.ContainsAny(c.Name, `/\`) {
		return InvalidConfig("collection name '%s' must not contain path separators", c.Name)
	}
	if strings.TrimSpace(c.TopDir) == "" {
		return InvalidConfig("top directory is required for collection '%s'", c.Name)
	}
	if c.Glob == "" {
		c.Glob = "*"
	}

	granularity, err := ParseGranularity(string(c.Granularity))
	if err != nil {
		return err
	}
	c.Granularity = granularity

	policy, err := ParseUpdatePolicy(string(c.Policy))
	if err != nil {
		return err
	}
	c.Policy = policy

	c.TopDir = filepath.Clean(c.TopDir)
	if c.IndexDir != "" {
		c.IndexDir = filepath.Clean(c.IndexDir)
	}
	return nil
}

var segmentEscaper = strings.NewReplacer("%", "%25", "-", "%2D")

// UnitName returns the name of the unit rooted at the relative directory.
// Path segments are joined with '-'. A '-' or '%' inside a segment is
// percent-encoded, so distinct directories never share a unit name.
func (c *CollectionConfig[O]) UnitName(relDir string) string {
	relDir = filepath.ToSlash(filepath.Clean(relDir))
	if relDir == "." || relDir == "" {
		return c.Name
	}

	segments := strings.Split(relDir, "/")
	for i, segment := range segments {
		segments[i] = segmentEscaper.Replace(segment)
	}
	return c.Name + "-" + strings.Join(segments, "-")
}

// IndexDirFor returns the directory holding the index files for dir.
func (c *CollectionConfig[O]) IndexDirFor(dir string) (string, error) {
	if c.IndexDir == "" {
		return dir, nil
	}

	rel, err := filepath.Rel(c.TopDir, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: '%s' is outside of '%s'", ErrInvalid, dir, c.TopDir)
	}
	return filepath.Join(c.IndexDir, rel), nil
}
