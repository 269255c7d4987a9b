package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/AdamBeresnev/quadras-match/internal/match"
	"gopkg.in/yaml.v3"
)

const defaultSlotMinutes = 60

// File is the on-disk shape of the venue catalog.
type File struct {
	Venues []VenueConfig `yaml:"venues"`
	Teams  []TeamConfig  `yaml:"teams"`
}

type VenueConfig struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Timezone    string        `yaml:"timezone"`
	OpensAt     string        `yaml:"opens_at"`
	ClosesAt    string        `yaml:"closes_at"`
	SlotMinutes int           `yaml:"slot_minutes"`
	Fields      []FieldConfig `yaml:"fields"`
}

type FieldConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	SlotMinutes int    `yaml:"slot_minutes"`
}

type TeamConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Catalog is a read-only view of venues and fields. Safe for concurrent use.
type Catalog struct {
	venues map[string]*match.Venue
	fields map[string]*match.Field
	teams  []TeamConfig
}

func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(f)
}

func New(f File) (*Catalog, error) {
	c := &Catalog{
		venues: make(map[string]*match.Venue),
		fields: make(map[string]*match.Field),
		teams:  f.Teams,
	}

	for _, vc := range f.Venues {
		if vc.ID == "" {
			return nil, fmt.Errorf("venue without id")
		}
		if _, dup := c.venues[vc.ID]; dup {
			return nil, fmt.Errorf("duplicate venue %q", vc.ID)
		}

		loc := time.UTC
		if vc.Timezone != "" {
			l, err := time.LoadLocation(vc.Timezone)
			if err != nil {
				return nil, fmt.Errorf("venue %q: %w", vc.ID, err)
			}
			loc = l
		}
		opens, err := parseClock(vc.OpensAt, 0)
		if err != nil {
			return nil, fmt.Errorf("venue %q opens_at: %w", vc.ID, err)
		}
		closes, err := parseClock(vc.ClosesAt, 24*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("venue %q closes_at: %w", vc.ID, err)
		}
		// A closing time at or before opening wraps past midnight.
		if closes <= opens {
			closes += 24 * time.Hour
		}

		v := &match.Venue{
			ID:           vc.ID,
			Name:         vc.Name,
			Location:     loc,
			OpensAt:      opens,
			ClosesAt:     closes,
			SlotDuration: minutes(vc.SlotMinutes),
		}
		c.venues[v.ID] = v

		for _, fc := range vc.Fields {
			if fc.ID == "" {
				return nil, fmt.Errorf("venue %q has a field without id", vc.ID)
			}
			if _, dup := c.fields[fc.ID]; dup {
				return nil, fmt.Errorf("duplicate field %q", fc.ID)
			}
			d := v.SlotDuration
			if fc.SlotMinutes > 0 {
				d = minutes(fc.SlotMinutes)
			}
			c.fields[fc.ID] = &match.Field{ID: fc.ID, VenueID: v.ID, Name: fc.Name, SlotDuration: d}
		}
	}

	return c, nil
}

func (c *Catalog) Venue(id string) (*match.Venue, error) {
	v, ok := c.venues[id]
	if !ok {
		return nil, match.ErrVenueNotFound
	}
	return v, nil
}

func (c *Catalog) Field(id string) (*match.Field, error) {
	f, ok := c.fields[id]
	if !ok {
		return nil, match.ErrFieldNotFound
	}
	return f, nil
}

func (c *Catalog) Venues() []*match.Venue {
	out := make([]*match.Venue, 0, len(c.venues))
	for _, v := range c.venues {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fields returns the fields of a venue ordered by id.
func (c *Catalog) Fields(venueID string) ([]*match.Field, error) {
	if _, err := c.Venue(venueID); err != nil {
		return nil, err
	}
	var out []*match.Field
	for _, f := range c.fields {
		if f.VenueID == venueID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Teams returns the teams listed in the catalog file, used to seed the team directory.
func (c *Catalog) Teams() []TeamConfig {
	return c.teams
}

func minutes(n int) time.Duration {
	if n <= 0 {
		n = defaultSlotMinutes
	}
	return time.Duration(n) * time.Minute
}

// parseClock parses "HH:MM" into an offset from midnight.
func parseClock(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	if s == "24:00" {
		return 24 * time.Hour, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
