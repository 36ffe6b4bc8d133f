package catalog

import (
	"fmt"

	"github.com/helios-suite/helios/internal/contexts"
	"github.com/helios-suite/helios/internal/shared"
)

// Hierarchy declares which other roles a role may administer. Both lists
// support the "*" wildcard; exclusions win over grants.
type Hierarchy struct {
	CanManageRoles []string `json:"can_manage_roles"`
	CannotManage   []string `json:"cannot_manage"`
}

// Descriptor is the declarative definition of a built-in role.
type Descriptor struct {
	Name              string              `json:"name"`
	Slug              string              `json:"slug"`
	Context           contexts.Kind       `json:"context"`
	InterfaceAccess   []string            `json:"interface_access"`
	SystemPermissions []string            `json:"system_permissions"`
	ModulePermissions map[string][]string `json:"module_permissions"`
	Hierarchy         Hierarchy           `json:"hierarchy"`
}

// Validate checks the required descriptor fields. A failing descriptor is
// excluded from the catalog, never loaded partially.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor: name is required")
	}
	if d.Slug == "" {
		return fmt.Errorf("descriptor: slug is required")
	}
	if !d.Context.Valid() {
		return fmt.Errorf("descriptor %s: invalid context %q", d.Slug, d.Context)
	}
	if d.InterfaceAccess == nil {
		return fmt.Errorf("descriptor %s: interface_access is required", d.Slug)
	}
	for _, tag := range d.InterfaceAccess {
		if !shared.ValidInterface(tag) {
			return fmt.Errorf("descriptor %s: unknown interface %q", d.Slug, tag)
		}
	}
	if d.SystemPermissions == nil {
		return fmt.Errorf("descriptor %s: system_permissions is required", d.Slug)
	}
	return nil
}

// HasInterface reports whether the role is exposed through tag.
func (d Descriptor) HasInterface(tag string) bool {
	for _, t := range d.InterfaceAccess {
		if t == tag {
			return true
		}
	}
	return false
}

// Record is one stored descriptor blob as produced by a Source.
type Record struct {
	Interface string
	Slug      string
	Body      []byte
	Version   int64
}
