package coordinator

import (
	"fmt"

	"modelmgr/pkg/types"
)

const bytesPerGB = 1024 * 1024 * 1024

// Working-set multipliers over on-disk size: weights plus KV cache and
// activations for text, decode buffers for image pipelines.
const (
	textMemoryMultiplier  = 1.5
	imageMemoryMultiplier = 1.8
)

// Fractions of total physical memory that grade an admission decision.
const (
	warningFraction  = 0.50
	criticalFraction = 0.60
)

// requiredGB estimates the working set of mdl in slot, companion included.
func requiredGB(mdl types.DownloadedModel, slot types.Slot) float64 {
	bytes := mdl.SizeBytes
	if slot == types.SlotText {
		bytes += mdl.CompanionBytes
	}
	mult := textMemoryMultiplier
	if slot == types.SlotImage {
		mult = imageMemoryMultiplier
	}
	return float64(bytes) / bytesPerGB * mult
}

func grade(required, totalGB float64) types.MemoryCheckResult {
	switch {
	case required > totalGB*criticalFraction:
		return types.MemoryCheckResult{
			CanLoad:  false,
			Severity: types.SeverityCritical,
			Message:  fmt.Sprintf("Loading would use %.1f GB of %.1f GB total memory", required, totalGB),
		}
	case required > totalGB*warningFraction:
		return types.MemoryCheckResult{
			CanLoad:  true,
			Severity: types.SeverityWarning,
			Message:  fmt.Sprintf("Loading will use %.1f GB of %.1f GB total memory", required, totalGB),
		}
	default:
		return types.MemoryCheckResult{CanLoad: true, Severity: types.SeveritySafe}
	}
}

var blockedResult = types.MemoryCheckResult{
	CanLoad:  false,
	Severity: types.SeverityBlocked,
	Message:  "Model not found",
}

// CheckMemory grades loading modelID into slot against total physical
// memory. Unknown models block rather than error.
func (c *Coordinator) CheckMemory(modelID string, slot types.Slot) types.MemoryCheckResult {
	mdl, err := c.catalog.Get(modelID)
	if err != nil {
		return blockedResult
	}
	totalGB, err := c.device.TotalMemoryGB()
	if err != nil {
		return types.MemoryCheckResult{
			CanLoad:  false,
			Severity: types.SeverityBlocked,
			Message:  "Unable to determine system memory",
		}
	}
	return grade(requiredGB(mdl, slot), totalGB)
}

// CheckMemoryDual grades holding a text and an image model resident at the
// same time. Either id may be empty.
func (c *Coordinator) CheckMemoryDual(textModelID, imageModelID string) types.MemoryCheckResult {
	var required float64
	if textModelID != "" {
		mdl, err := c.catalog.Get(textModelID)
		if err != nil {
			return blockedResult
		}
		required += requiredGB(mdl, types.SlotText)
	}
	if imageModelID != "" {
		mdl, err := c.catalog.Get(imageModelID)
		if err != nil {
			return blockedResult
		}
		required += requiredGB(mdl, types.SlotImage)
	}
	totalGB, err := c.device.TotalMemoryGB()
	if err != nil {
		return types.MemoryCheckResult{
			CanLoad:  false,
			Severity: types.SeverityBlocked,
			Message:  "Unable to determine system memory",
		}
	}
	return grade(required, totalGB)
}
