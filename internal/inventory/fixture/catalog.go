// Package fixture serves flight or hotel inventory from a YAML catalog. It
// backs local development and tests with realistic holds and stock.
package fixture

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tripnest/service-booking/internal/domain/offer"
)

// Catalog is the YAML document describing one provider.
type Catalog struct {
	Provider string        `yaml:"provider"`
	Kind     offer.Kind    `yaml:"kind"`
	Currency string        `yaml:"currency"`
	Latency  time.Duration `yaml:"latency"`
	HoldTTL  time.Duration `yaml:"hold_ttl"`
	QuoteTTL time.Duration `yaml:"quote_ttl"`
	Flights  []FlightEntry `yaml:"flights"`
	Hotels   []HotelEntry  `yaml:"hotels"`
}

// FlightEntry is a scheduled flight that operates every day.
type FlightEntry struct {
	ID               string        `yaml:"id"`
	Origin           string        `yaml:"origin"`
	Destination      string        `yaml:"destination"`
	Carrier          string        `yaml:"carrier"`
	FlightNumber     string        `yaml:"flight_number"`
	DepartTime       string        `yaml:"depart_time"`
	Duration         time.Duration `yaml:"duration"`
	Stops            int           `yaml:"stops"`
	PricePerTraveler int64         `yaml:"price_per_traveler"`
	Seats            int           `yaml:"seats"`
}

// HotelEntry is a room type at a property.
type HotelEntry struct {
	ID           string `yaml:"id"`
	City         string `yaml:"city"`
	PropertyName string `yaml:"property_name"`
	RoomType     string `yaml:"room_type"`
	NightlyRate  int64  `yaml:"nightly_rate"`
	Rooms        int    `yaml:"rooms"`
	Occupancy    int    `yaml:"occupancy"`
}

// LoadFile reads and parses a catalog file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if c.Provider == "" {
		return fmt.Errorf("catalog provider is required")
	}
	if !c.Kind.IsValid() {
		return fmt.Errorf("catalog %s: invalid kind %q", c.Provider, c.Kind)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("catalog %s: currency must be an ISO code", c.Provider)
	}
	if c.HoldTTL <= 0 {
		c.HoldTTL = 15 * time.Minute
	}
	if c.QuoteTTL <= 0 {
		c.QuoteTTL = 15 * time.Minute
	}

	seen := map[string]bool{}
	for i, f := range c.Flights {
		if f.ID == "" || seen[f.ID] {
			return fmt.Errorf("catalog %s: flight %d has a missing or duplicate id", c.Provider, i)
		}
		seen[f.ID] = true
		if _, err := time.Parse("15:04", f.DepartTime); err != nil {
			return fmt.Errorf("catalog %s: flight %s depart_time: %w", c.Provider, f.ID, err)
		}
		if f.Duration <= 0 || f.PricePerTraveler <= 0 {
			return fmt.Errorf("catalog %s: flight %s needs a duration and a price", c.Provider, f.ID)
		}
	}
	for i, h := range c.Hotels {
		if h.ID == "" || seen[h.ID] {
			return fmt.Errorf("catalog %s: hotel %d has a missing or duplicate id", c.Provider, i)
		}
		seen[h.ID] = true
		if h.NightlyRate <= 0 {
			return fmt.Errorf("catalog %s: hotel %s needs a nightly rate", c.Provider, h.ID)
		}
		if h.Occupancy <= 0 {
			c.Hotels[i].Occupancy = 2
		}
	}
	return nil
}
