package units

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

var ErrProfileNotFound = errors.New("profile not found")

var profileExtensions = []string{".json", ".yaml", ".yml"}

// ProfileLoader reads unit profiles from JSON or YAML files.
type ProfileLoader struct {
	cache       sync.Map // name -> *types.StoredUnitProfile
	validator   *Validator
	searchPaths []string
}

func NewProfileLoader(searchPaths []string) (*ProfileLoader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &ProfileLoader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load finds name (without extension) in the search paths. A path with an
// extension is read directly.
func (l *ProfileLoader) Load(name string) (*types.StoredUnitProfile, error) {
	// Cache-Check
	if cached, ok := l.cache.Load(name); ok {
		return cached.(*types.StoredUnitProfile), nil
	}

	var candidates []string
	if ext := filepath.Ext(name); ext != "" {
		candidates = append(candidates, name)
	} else {
		for _, searchPath := range l.searchPaths {
			for _, ext := range profileExtensions {
				candidates = append(candidates, filepath.Join(searchPath, name+ext))
			}
		}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		profile, err := l.Parse(path, data)
		if err != nil {
			return nil, err
		}

		l.cache.Store(name, profile)
		return profile, nil
	}

	return nil, fmt.Errorf("%w: %s (searched in: %v)", ErrProfileNotFound, name, l.searchPaths)
}

// Parse decodes and validates a profile document. YAML is converted to
// JSON first so both formats go through the same schema.
func (l *ProfileLoader) Parse(path string, data []byte) (*types.StoredUnitProfile, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s: %w", path, err)
		}
		data = converted
	}

	if err := l.validator.ValidateDocument(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", path, err)
	}

	var profile types.StoredUnitProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", path, err)
	}

	return &profile, nil
}

// GetUnitProfile finds a profile by id among all files in the search paths.
func (l *ProfileLoader) GetUnitProfile(ctx context.Context, id uuid.UUID) (*types.StoredUnitProfile, error) {
	var found *types.StoredUnitProfile
	l.cache.Range(func(_, value interface{}) bool {
		if p := value.(*types.StoredUnitProfile); p.ID == id {
			found = p
			return false
		}
		return true
	})
	if found != nil {
		return found, nil
	}

	for _, searchPath := range l.searchPaths {
		entries, err := os.ReadDir(searchPath)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			ext := filepath.Ext(entry.Name())
			if entry.IsDir() || !isProfileExt(ext) {
				continue
			}
			profile, err := l.Load(filepath.Join(searchPath, entry.Name()))
			if err != nil {
				continue
			}
			if profile.ID == id {
				return profile, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
}

func isProfileExt(ext string) bool {
	for _, e := range profileExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func (l *ProfileLoader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
