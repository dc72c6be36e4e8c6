package auth

import (
	"fmt"
	"os"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// RoleName identifies a role in the registry
type RoleName string

// Capability is a "domain.action" permission token
type Capability string

const (
	RoleAdmin       RoleName = "admin"
	RoleExpositor   RoleName = "expositor"
	RoleVisitante   RoleName = "visitante"
	RoleProfesional RoleName = "profesional"
	RolePrensa      RoleName = "prensa"
)

// DefaultRole is assigned to every new registration
const DefaultRole = RoleVisitante

// RoleDef is the static definition of a role
type RoleDef struct {
	Name         RoleName     `json:"name"`
	DisplayName  string       `json:"display_name"`
	Description  string       `json:"description"`
	Capabilities []Capability `json:"capabilities"`
}

// CapabilityDef pairs a capability with its human readable description
type CapabilityDef struct {
	Capability  Capability `json:"capability"`
	Description string     `json:"description"`
}

// RoleRegistry is the frozen role and capability catalog. It is safe
// for concurrent use since nothing mutates it after load.
type RoleRegistry struct {
	order    []RoleName
	roles    map[RoleName]RoleDef
	capOrder []Capability
	catalog  map[Capability]string
}

type roleDocument struct {
	Roles []struct {
		Name         string   `yaml:"name"`
		DisplayName  string   `yaml:"display_name"`
		Description  string   `yaml:"description"`
		Capabilities []string `yaml:"capabilities"`
	} `yaml:"roles"`
	Capabilities yaml.Node `yaml:"capabilities"`
}

var (
	defaultRegistry     *RoleRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRoleRegistry returns the registry built from the embedded catalog
func DefaultRoleRegistry() *RoleRegistry {
	defaultRegistryOnce.Do(func() {
		reg, err := LoadRoleRegistry(defaultRolesYAML)
		if err != nil {
			panic(fmt.Sprintf("auth: embedded role catalog is invalid: %v", err))
		}
		defaultRegistry = reg
	})
	return defaultRegistry
}

// LoadRoleRegistryFile reads a YAML catalog from disk
func LoadRoleRegistryFile(path string) (*RoleRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read role catalog").
			WithMetadata(map[string]any{"path": path})
	}
	return LoadRoleRegistry(data)
}

// LoadRoleRegistry parses a YAML catalog. Every capability granted to a
// role must be declared in the capabilities section.
func LoadRoleRegistry(data []byte) (*RoleRegistry, error) {
	doc := roleDocument{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse role catalog")
	}

	reg := &RoleRegistry{
		roles:   make(map[RoleName]RoleDef, len(doc.Roles)),
		catalog: map[Capability]string{},
	}

	// mapping node keeps the declaration order
	if doc.Capabilities.Kind == yaml.MappingNode {
		content := doc.Capabilities.Content
		for i := 0; i+1 < len(content); i += 2 {
			c := Capability(strings.TrimSpace(content[i].Value))
			if !validCapabilityFormat(c) {
				return nil, catalogError("malformed capability", string(c))
			}
			if _, dup := reg.catalog[c]; dup {
				return nil, catalogError("duplicate capability", string(c))
			}
			reg.catalog[c] = content[i+1].Value
			reg.capOrder = append(reg.capOrder, c)
		}
	}

	for _, r := range doc.Roles {
		name := RoleName(strings.TrimSpace(r.Name))
		if name == "" {
			return nil, catalogError("role without name", "")
		}
		if _, dup := reg.roles[name]; dup {
			return nil, catalogError("duplicate role", string(name))
		}

		def := RoleDef{
			Name:        name,
			DisplayName: r.DisplayName,
			Description: r.Description,
		}
		seen := map[Capability]struct{}{}
		for _, raw := range r.Capabilities {
			c := Capability(strings.TrimSpace(raw))
			if _, ok := reg.catalog[c]; !ok {
				return nil, catalogError("undeclared capability", string(c))
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			def.Capabilities = append(def.Capabilities, c)
		}

		reg.roles[name] = def
		reg.order = append(reg.order, name)
	}

	if len(reg.order) == 0 {
		return nil, catalogError("catalog declares no roles", "")
	}

	return reg, nil
}

func catalogError(msg, subject string) error {
	return goerrors.New("invalid role catalog: "+msg, goerrors.CategoryBadInput).
		WithMetadata(map[string]any{"subject": subject})
}

func validCapabilityFormat(c Capability) bool {
	domain, action, ok := strings.Cut(string(c), ".")
	return ok && domain != "" && action != "" && !strings.Contains(action, ".")
}

// AllRoles returns every role definition in declaration order
func (r *RoleRegistry) AllRoles() []RoleDef {
	out := make([]RoleDef, 0, len(r.order))
	for _, name := range r.order {
		def, _ := r.Role(name)
		out = append(out, def)
	}
	return out
}

// RoleNames returns the registered role names in declaration order
func (r *RoleRegistry) RoleNames() []RoleName {
	out := make([]RoleName, len(r.order))
	copy(out, r.order)
	return out
}

// Role returns a copy of the role definition
func (r *RoleRegistry) Role(name RoleName) (RoleDef, bool) {
	def, ok := r.roles[name]
	if !ok {
		return RoleDef{}, false
	}
	caps := make([]Capability, len(def.Capabilities))
	copy(caps, def.Capabilities)
	def.Capabilities = caps
	return def, true
}

// IsValidRole reports whether name is a registered role
func (r *RoleRegistry) IsValidRole(name string) bool {
	_, ok := r.roles[RoleName(name)]
	return ok
}

// CapabilitiesOf returns the deduplicated union of the capabilities of
// the given roles. Unknown names contribute nothing.
func (r *RoleRegistry) CapabilitiesOf(names []RoleName) []Capability {
	seen := map[Capability]struct{}{}
	out := []Capability{}
	for _, name := range names {
		def, ok := r.roles[name]
		if !ok {
			continue
		}
		for _, c := range def.Capabilities {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// DescriptionOf returns the catalog description or the capability itself
func (r *RoleRegistry) DescriptionOf(c Capability) string {
	if desc, ok := r.catalog[c]; ok && desc != "" {
		return desc
	}
	return string(c)
}

// Capabilities returns the full capability catalog in declaration order
func (r *RoleRegistry) Capabilities() []CapabilityDef {
	out := make([]CapabilityDef, 0, len(r.capOrder))
	for _, c := range r.capOrder {
		out = append(out, CapabilityDef{Capability: c, Description: r.catalog[c]})
	}
	return out
}

// ParseRoles converts raw input into role names. The first unknown entry
// fails the whole set with ErrInvalidRole. Duplicates are collapsed.
func (r *RoleRegistry) ParseRoles(raw []string) ([]RoleName, error) {
	out := make([]RoleName, 0, len(raw))
	seen := map[RoleName]struct{}{}
	for _, s := range raw {
		if !r.IsValidRole(s) {
			return nil, withMeta(withMessage(ErrInvalidRole, "Rol inválido: "+s), map[string]any{
				"role": s,
			})
		}
		name := RoleName(s)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// KnownRoles filters stored role strings down to registered names
func (r *RoleRegistry) KnownRoles(raw []string) []RoleName {
	out := make([]RoleName, 0, len(raw))
	for _, s := range raw {
		if r.IsValidRole(s) {
			out = append(out, RoleName(s))
		}
	}
	return out
}
