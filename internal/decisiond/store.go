package decisiond

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy effects.
const (
	EffectPermit = "permit"
	EffectForbid = "forbid"
)

// ErrInvalidStore indicates a policy store document that cannot be served.
var ErrInvalidStore = errors.New("invalid policy store")

// PolicyDoc is one policy of the store.
type PolicyDoc struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Effect      string `yaml:"effect"`
	// Rego is a module in package policy that defines the boolean rule
	// match.
	Rego string `yaml:"rego,omitempty"`

	// Condition is a CEL expression over principal, action, resource and
	// context. A policy has either Rego or Condition.
	Condition string `yaml:"condition,omitempty"`
}

// Statement returns the policy source.
func (p PolicyDoc) Statement() string {
	if p.Condition != "" {
		return p.Condition
	}
	return p.Rego
}

// Store is a policy store file.
type Store struct {
	PolicyStoreID string      `yaml:"policyStoreId"`
	Policies      []PolicyDoc `yaml:"policies"`

	loadedAt time.Time
}

// LoadStore reads and validates a policy store file.
func LoadStore(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy store %s: %w", path, err)
	}
	return ParseStore(data)
}

// ParseStore parses and validates a policy store document.
func ParseStore(data []byte) (*Store, error) {
	var s Store
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStore, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	s.loadedAt = time.Now().UTC()
	return &s, nil
}

func (s *Store) validate() error {
	if s.PolicyStoreID == "" {
		return fmt.Errorf("%w: policyStoreId is required", ErrInvalidStore)
	}

	seen := make(map[string]struct{}, len(s.Policies))
	for i, p := range s.Policies {
		if p.ID == "" {
			return fmt.Errorf("%w: policy %d has no id", ErrInvalidStore, i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate policy id %s", ErrInvalidStore, p.ID)
		}
		seen[p.ID] = struct{}{}

		if p.Effect != EffectPermit && p.Effect != EffectForbid {
			return fmt.Errorf("%w: policy %s has effect %q, want permit or forbid", ErrInvalidStore, p.ID, p.Effect)
		}
		if (p.Rego == "") == (p.Condition == "") {
			return fmt.Errorf("%w: policy %s needs exactly one of rego or condition", ErrInvalidStore, p.ID)
		}
	}
	return nil
}

// Policy returns the policy with id.
func (s *Store) Policy(id string) (PolicyDoc, bool) {
	for _, p := range s.Policies {
		if p.ID == id {
			return p, true
		}
	}
	return PolicyDoc{}, false
}
