package main

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed *.sql
var embeddedSQL embed.FS

// Filenames follow NNN_name.(up|down).sql so lexicographic order is
// application order.
var filenamePattern = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// MigrationFile is one parsed migration filename.
type MigrationFile struct {
	Sequence  int
	Name      string
	Direction string
	Filename  string
}

// Catalog wraps the embedded migration files with validation: naming, up/down
// pairing, gap-free sequencing, and checksum pinning across operations. The
// binary refuses to run migrations whose files fail any of these checks.
type Catalog struct {
	fs        fs.FS
	checksums map[string]string
}

// NewCatalog builds a catalog over the given filesystem, or over the SQL
// embedded in this binary when nil.
func NewCatalog(filesystem fs.FS) *Catalog {
	if filesystem == nil {
		filesystem = embeddedSQL
	}

	return &Catalog{
		fs:        filesystem,
		checksums: make(map[string]string),
	}
}

// FS exposes the underlying filesystem for the migrate source driver.
func (c *Catalog) FS() fs.FS {
	return c.fs
}

// Files lists the migration files that match the naming standard, sorted.
// Non-conforming .sql files are ignored here and rejected by Validate.
func (c *Catalog) Files() ([]string, error) {
	entries, err := fs.ReadDir(c.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if !entry.IsDir() && filenamePattern.MatchString(entry.Name()) {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)

	return files, nil
}

// Content reads one migration file.
func (c *Catalog) Content(filename string) ([]byte, error) {
	return fs.ReadFile(c.fs, filename)
}

// MaxSequence returns the highest migration sequence in the catalog, 0 when
// the catalog is empty or unreadable.
func (c *Catalog) MaxSequence() int {
	files, err := c.Files()
	if err != nil {
		return 0
	}

	maxSeq := 0

	for _, filename := range files {
		if m, err := parseFilename(filename); err == nil && m.Sequence > maxSeq {
			maxSeq = m.Sequence
		}
	}

	return maxSeq
}

// Validate checks the whole catalog. On first success it pins each file's
// checksum; later calls fail if any file changed underneath a running
// operation.
func (c *Catalog) Validate() error {
	files, err := c.Files()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no migration files found")
	}

	// A .sql file that slipped past the naming standard is an authoring
	// mistake, not something to silently skip.
	if err := c.checkStrayFiles(); err != nil {
		return err
	}

	parsed := make([]*MigrationFile, 0, len(files))

	for _, filename := range files {
		m, err := parseFilename(filename)
		if err != nil {
			return err
		}

		parsed = append(parsed, m)
	}

	if err := checkPairing(parsed); err != nil {
		return err
	}

	if err := checkSequence(parsed); err != nil {
		return err
	}

	return c.checkAndPinChecksums(files)
}

func (c *Catalog) checkStrayFiles() error {
	entries, err := fs.ReadDir(c.fs, ".")
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasSuffix(name, ".sql") && !filenamePattern.MatchString(name) {
			return fmt.Errorf("migration file %q does not match NNN_name.(up|down).sql", name)
		}
	}

	return nil
}

func parseFilename(filename string) (*MigrationFile, error) {
	matches := filenamePattern.FindStringSubmatch(filename)
	if matches == nil {
		return nil, fmt.Errorf("invalid migration filename %q (expected NNN_name.(up|down).sql)", filename)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid sequence in %q: %w", filename, err)
	}

	return &MigrationFile{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

// checkPairing requires every up file to have its down counterpart and vice
// versa; a one-sided migration cannot be rolled back or applied.
func checkPairing(files []*MigrationFile) error {
	type pair struct{ up, down bool }

	pairs := make(map[string]*pair)

	for _, m := range files {
		key := fmt.Sprintf("%03d_%s", m.Sequence, m.Name)
		if pairs[key] == nil {
			pairs[key] = &pair{}
		}

		if m.Direction == "up" {
			pairs[key].up = true
		} else {
			pairs[key].down = true
		}
	}

	keys := make([]string, 0, len(pairs))
	for key := range pairs {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		p := pairs[key]
		if !p.up {
			return fmt.Errorf("migration %s has a down file but no up file", key)
		}

		if !p.down {
			return fmt.Errorf("migration %s has an up file but no down file", key)
		}
	}

	return nil
}

// checkSequence requires sequences to start at 001 and be gap-free, so a
// partially shipped binary is caught before it half-applies a schema.
func checkSequence(files []*MigrationFile) error {
	seen := make(map[int]bool)
	for _, m := range files {
		seen[m.Sequence] = true
	}

	sequences := make([]int, 0, len(seen))
	for seq := range seen {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	if len(sequences) == 0 {
		return nil
	}

	if sequences[0] != 1 {
		return fmt.Errorf("migration sequence starts at %03d, expected 001", sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		if sequences[i] != sequences[i-1]+1 {
			return fmt.Errorf("gap in migration sequence: %03d follows %03d", sequences[i], sequences[i-1])
		}
	}

	return nil
}

func (c *Catalog) checkAndPinChecksums(files []string) error {
	for _, filename := range files {
		content, err := c.Content(filename)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", filename, err)
		}

		sum := fmt.Sprintf("%x", sha256.Sum256(content))

		if pinned, ok := c.checksums[filename]; ok && pinned != sum {
			return fmt.Errorf("migration %s changed since validation (checksum mismatch)", filename)
		}

		c.checksums[filename] = sum
	}

	return nil
}
