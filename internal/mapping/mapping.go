package mapping

import (
	"slices"
	"strings"
	"sync"

	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/location"
)

// Record is the destination table definition for one source object.
type Record struct {
	DestinationName []string                   `yaml:"destination_name" json:"destinationName"`
	Columns         []catalog.ColumnDefinition `yaml:"columns" json:"columns"`
	SourceLocation  location.Location          `yaml:"source_location" json:"sourceLocation"`
}

// DestinationSchema returns the schema part of a two-part destination
// name, or "" for a one-part name.
func (r *Record) DestinationSchema() string {
	if len(r.DestinationName) == 2 {
		return r.DestinationName[0]
	}
	return ""
}

// DestinationTable returns the table part of the destination name.
func (r *Record) DestinationTable() string {
	if len(r.DestinationName) == 0 {
		return ""
	}
	return r.DestinationName[len(r.DestinationName)-1]
}

// QualifiedDestination returns "schema.table" or "table".
func (r *Record) QualifiedDestination() string {
	return strings.Join(r.DestinationName, ".")
}

// UnsupportedColumns returns the columns flagged as not representable.
func UnsupportedColumns(cols []catalog.ColumnDefinition) []catalog.ColumnDefinition {
	var out []catalog.ColumnDefinition
	for _, c := range cols {
		if !c.IsSupported {
			out = append(out, c)
		}
	}
	return out
}

func (r *Record) clone() *Record {
	return &Record{
		DestinationName: slices.Clone(r.DestinationName),
		Columns:         slices.Clone(r.Columns),
		SourceLocation:  slices.Clone(r.SourceLocation),
	}
}

// Cache stores mapping records per identity and source location.
type Cache struct {
	mu      sync.RWMutex
	records map[string]map[string]*Record // identity key -> location key
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{records: make(map[string]map[string]*Record)}
}

// Put stores a record for loc. With replaceExisting false an existing
// record is kept (first write wins); with true it is overwritten. Calls
// with a destination name that is not one or two parts, an empty location
// or no columns are ignored. Put reports whether the record was stored.
func (c *Cache) Put(id catalog.Identity, destinationName []string, loc location.Location, columns []catalog.ColumnDefinition, replaceExisting bool) bool {
	if len(destinationName) < 1 || len(destinationName) > 2 || len(loc) == 0 || len(columns) == 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	byLoc, ok := c.records[id.Key()]
	if !ok {
		byLoc = make(map[string]*Record)
		c.records[id.Key()] = byLoc
	}
	key := loc.String()
	if _, exists := byLoc[key]; exists && !replaceExisting {
		return false
	}
	byLoc[key] = &Record{
		DestinationName: slices.Clone(destinationName),
		Columns:         slices.Clone(columns),
		SourceLocation:  slices.Clone(loc),
	}
	return true
}

// Get returns a copy of the record for loc.
func (c *Cache) Get(id catalog.Identity, loc location.Location) (*Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[id.Key()][loc.String()]
	if !ok {
		return nil, false
	}
	return r.clone(), true
}

// Has reports whether a record exists for loc.
func (c *Cache) Has(id catalog.Identity, loc location.Location) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.records[id.Key()][loc.String()]
	return ok
}

// Len returns the number of records held for id.
func (c *Cache) Len(id catalog.Identity) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records[id.Key()])
}

// Clear drops every record for id.
func (c *Cache) Clear(id catalog.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, id.Key())
}
