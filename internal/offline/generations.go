package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fitness-gateway-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cache tiers. Each tier has exactly one live generation; a version bump
// replaces them wholesale at activation.
const (
	TierStatic  = "static"
	TierDynamic = "dynamic"
	TierAPI     = "api"
)

const cacheDomain = "fitness"

// GenerationName builds the versioned bucket name for a tier.
func GenerationName(tier, version string) string {
	return fmt.Sprintf("%s-%s-v%s", cacheDomain, tier, version)
}

// Generations stores cached responses grouped into versioned, named buckets.
// Writes overwrite per (generation, url); last writer wins.
type Generations struct {
	db *gorm.DB
}

// NewGenerations wraps the database handle.
func NewGenerations(db *gorm.DB) *Generations {
	return &Generations{db: db}
}

// Put stores or overwrites one response under the generation.
func (g *Generations) Put(generation, url string, status int, headers http.Header, body []byte) error {
	hdr, err := json.Marshal(headers)
	if err != nil {
		return err
	}
	row := models.CachedResource{
		Generation: generation,
		URL:        url,
		StatusCode: status,
		Headers:    string(hdr),
		Body:       body,
		StoredAt:   time.Now(),
	}
	return g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "generation"}, {Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"status_code", "headers", "body", "stored_at"}),
	}).Create(&row).Error
}

// Match returns the cached response for the URL within the generation.
func (g *Generations) Match(generation, url string) (*models.CachedResource, bool, error) {
	var row models.CachedResource
	err := g.db.First(&row, "generation = ? AND url = ?", generation, url).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &row, true, nil
}

// Names enumerates all generation names currently present.
func (g *Generations) Names() ([]string, error) {
	var names []string
	err := g.db.Model(&models.CachedResource{}).Distinct("generation").Pluck("generation", &names).Error
	return names, err
}

// Delete removes every resource belonging to the generation.
func (g *Generations) Delete(generation string) error {
	return g.db.Delete(&models.CachedResource{}, "generation = ?", generation).Error
}

// DeleteAll removes every cached resource across all generations.
func (g *Generations) DeleteAll() error {
	return g.db.Where("1 = 1").Delete(&models.CachedResource{}).Error
}

// decodeHeaders restores the header map stored by Put. A bad blob yields an
// empty header set rather than an error.
func decodeHeaders(blob string) http.Header {
	h := http.Header{}
	if blob == "" {
		return h
	}
	_ = json.Unmarshal([]byte(blob), &h)
	return h
}
