package emitter

import (
	"strconv"
	"strings"
	"time"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/internal/correlation"
	"github.com/stratuswatch/detect-engine/internal/models"
)

// RenderExplanation fills the rule's explanation template from the event,
// context, and evaluator details. Only variables in the allowed set are
// substituted; anything else stays literal so templates cannot leak
// arbitrary engine state into operator-facing text.
func RenderExplanation(rule *catalog.RuleDefinition, match *correlation.Match, event *models.NormalizedEvent, snapshot *models.ContextSnapshot, timeWindow time.Duration, allowed map[string]bool) string {
	values := map[string]string{
		"event_type":          event.EventType,
		"asset_id":            event.AssetID,
		"identity_id":         event.IdentityID,
		"metric_name":         "metric",
		"metric_value":        "unknown",
		"baseline_value":      "unknown",
		"time_window":         strconv.Itoa(int(timeWindow.Seconds())),
		"multiplier":          "0",
		"missing_patches":     "none",
		"network_destination": "unknown",
		"process_name":        "unknown",
	}

	if name, ok := event.Attributes["metric_name"].(string); ok && name != "" {
		values["metric_name"] = name
	}
	if v, ok := event.Attributes["metric_value"]; ok {
		values["metric_value"] = formatValue(v)
	}
	if snapshot != nil {
		if snapshot.Baseline != nil {
			if snapshot.Baseline.MetricName != "" {
				values["metric_name"] = snapshot.Baseline.MetricName
			}
			values["baseline_value"] = formatFloat(snapshot.Baseline.ExpectedValue)
		}
		if snapshot.PatchState != nil && len(snapshot.PatchState.MissingPatches) > 0 {
			values["missing_patches"] = strings.Join(snapshot.PatchState.MissingPatches, ", ")
		}
	}
	if rule.Deviation != nil {
		values["multiplier"] = formatFloat(rule.Deviation.Multiplier)
	}
	if event.NetworkFlow != nil && event.NetworkFlow.Destination != "" {
		values["network_destination"] = event.NetworkFlow.Destination
	}
	if event.ProcessLineage != nil && event.ProcessLineage.ProcessName != "" {
		values["process_name"] = event.ProcessLineage.ProcessName
	}

	// Evaluator details override the generic extraction.
	if match != nil {
		for key, value := range match.Details {
			values[key] = formatValue(value)
		}
	}

	rendered := rule.Output.ExplanationTemplate
	for _, name := range catalog.Placeholders(rendered) {
		if !allowed[name] {
			continue
		}
		value, ok := values[name]
		if !ok {
			continue
		}
		rendered = strings.ReplaceAll(rendered, "{"+name+"}", value)
	}

	if match != nil && match.WithoutContext {
		rendered += " Evaluated without required context; confidence reduced."
	}
	return rendered
}

func formatValue(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return formatFloat(value)
	case float32:
		return formatFloat(float64(value))
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	case []string:
		return strings.Join(value, ", ")
	default:
		return "unknown"
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
