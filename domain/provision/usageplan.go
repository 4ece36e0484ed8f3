package provision

import "strings"

var planSeparators = strings.NewReplacer("\r\n", ",", "\r", ",", "\n", ",")

// ParseUsagePlans normalizes a delimiter-tolerant list of usage plan IDs.
// Commas and line breaks separate entries; entries are lower-cased, trimmed,
// and de-duplicated in first-seen order. Empty entries are dropped.
func ParseUsagePlans(raw string) []string {
	raw = planSeparators.Replace(strings.ToLower(raw))

	seen := make(map[string]bool)
	plans := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		plan := strings.TrimSpace(part)
		if plan == "" || seen[plan] {
			continue
		}
		seen[plan] = true
		plans = append(plans, plan)
	}
	return plans
}

// JoinUsagePlans encodes plan IDs for the usage_plans column.
// An empty list is stored as the empty string (NULL in the table).
func JoinUsagePlans(plans []string) string {
	return strings.Join(plans, ",")
}

// SplitUsagePlans decodes the usage_plans column.
func SplitUsagePlans(column string) []string {
	if strings.TrimSpace(column) == "" {
		return nil
	}
	var plans []string
	for _, p := range strings.Split(column, ",") {
		if p = strings.TrimSpace(p); p != "" {
			plans = append(plans, p)
		}
	}
	return plans
}
