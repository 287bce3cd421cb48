package catalog

import "opsagent/internal/descriptor"

// CategoryCustom is reported for actions that match no universal category.
const CategoryCustom = "CUSTOM"

// UniversalCategory groups app-specific action names that do the same thing, so
// knowledge about "restart" in one application can be mapped onto another.
type UniversalCategory struct {
	ID          string
	Normalized  string
	Description string
	Risk        descriptor.RiskLevel
	Aliases     []string
}

var universalCategories = []UniversalCategory{
	{ID: "RESTART", Normalized: "restart", Description: "Restart the application/service", Risk: descriptor.RiskMedium,
		Aliases: []string{"restart_service", "restart_django", "restart_fastapi", "restart_nextjs", "restart_spring", "restart_container", "restart_dev_server"}},
	{ID: "SCALE", Normalized: "scale", Description: "Scale application resources", Risk: descriptor.RiskSafe,
		Aliases: []string{"scale_up", "scale_down", "change_replica_count"}},
	{ID: "CLEAR_CACHE", Normalized: "clear_cache", Description: "Clear application cache", Risk: descriptor.RiskSafe,
		Aliases: []string{"clear_cache", "clear_next_cache", "clear_node_modules"}},
	{ID: "REBUILD", Normalized: "rebuild", Description: "Rebuild application", Risk: descriptor.RiskMedium,
		Aliases: []string{"rebuild_project", "rebuild_app", "rebuild_image"}},
	{ID: "REDEPLOY", Normalized: "redeploy", Description: "Redeploy application", Risk: descriptor.RiskHigh,
		Aliases: []string{"redeploy", "deploy"}},
	{ID: "HEALTH_CHECK", Normalized: "health_check", Description: "Check application health", Risk: descriptor.RiskSafe,
		Aliases: []string{"check_health", "health_check", "ping"}},
	{ID: "ROLLBACK", Normalized: "rollback", Description: "Rollback to previous version", Risk: descriptor.RiskHigh,
		Aliases: []string{"rollback", "revert"}},
	{ID: "RELOAD", Normalized: "reload", Description: "Reload application configuration", Risk: descriptor.RiskSafe,
		Aliases: []string{"reload_app", "reload", "hot_reload"}},
}

// UniversalCategories returns the built-in categories in their fixed order.
func UniversalCategories() []UniversalCategory {
	out := make([]UniversalCategory, len(universalCategories))
	copy(out, universalCategories)
	return out
}

func lookupCategory(action string) (UniversalCategory, bool) {
	for _, cat := range universalCategories {
		for _, alias := range cat.Aliases {
			if alias == action {
				return cat, true
			}
		}
	}
	return UniversalCategory{}, false
}

// Category returns the universal category ID of a catalog action, CUSTOM when the
// name matches no alias or is not in the catalog.
func (c *Catalog) Category(name string) string {
	if !c.Has(name) {
		return CategoryCustom
	}
	if cat, ok := lookupCategory(name); ok {
		return cat.ID
	}
	return CategoryCustom
}

// NormalizedName maps an action to its category's normalized name, or to itself.
func (c *Catalog) NormalizedName(name string) string {
	if cat, ok := lookupCategory(name); ok && c.Has(name) {
		return cat.Normalized
	}
	return name
}

// NormalizedNames lists NormalizedName for every action in definition order.
func (c *Catalog) NormalizedNames() []string {
	out := make([]string, len(c.actions))
	for i, a := range c.actions {
		out[i] = c.NormalizedName(a.Name)
	}
	return out
}

// Equivalent lists the catalog's actions that belong to category, in definition order.
func (c *Catalog) Equivalent(category string) []string {
	var out []string
	for _, a := range c.actions {
		if c.Category(a.Name) == category {
			out = append(out, a.Name)
		}
	}
	return out
}

// Taxonomy maps each universal category present in the catalog to its actions.
func (c *Catalog) Taxonomy() map[string][]string {
	out := make(map[string][]string)
	for _, cat := range universalCategories {
		if eq := c.Equivalent(cat.ID); len(eq) > 0 {
			out[cat.ID] = eq
		}
	}
	return out
}

// IsSafe reports whether the action is declared safe.
func (c *Catalog) IsSafe(name string) bool {
	a, ok := c.Action(name)
	return ok && a.RiskLevel == descriptor.RiskSafe
}

// Translate maps an action of source onto the first action of target that shares
// its universal category. Custom actions translate to custom actions the same way.
func Translate(action string, source, target *Catalog) (string, bool) {
	if source == nil || target == nil {
		return "", false
	}
	eq := target.Equivalent(source.Category(action))
	if len(eq) == 0 {
		return "", false
	}
	return eq[0], true
}
