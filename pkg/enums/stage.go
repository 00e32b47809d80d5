package enums

import "fmt"

// Stage is the supply-chain step a product moved through.
type Stage string

const (
	StageManufacturing Stage = "manufacturing"
	StageFarm          Stage = "farm"
	StageProcessing    Stage = "processing"
	StageWarehouse     Stage = "warehouse"
	StageDistribution  Stage = "distribution"
	StageStore         Stage = "store"
	StageCustomer      Stage = "customer"
	StageQualityCheck  Stage = "quality_check"
	StagePackaging     Stage = "packaging"
	StageShipping      Stage = "shipping"
)

var validStages = []Stage{
	StageManufacturing,
	StageFarm,
	StageProcessing,
	StageWarehouse,
	StageDistribution,
	StageStore,
	StageCustomer,
	StageQualityCheck,
	StagePackaging,
	StageShipping,
}

// String implements fmt.Stringer.
func (s Stage) String() string {
	return string(s)
}

// IsValid reports whether the value is a known Stage.
func (s Stage) IsValid() bool {
	for _, candidate := range validStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// Stages returns every accepted stage in declaration order.
func Stages() []Stage {
	out := make([]Stage, len(validStages))
	copy(out, validStages)
	return out
}

// ParseStage converts raw input into a Stage.
func ParseStage(value string) (Stage, error) {
	for _, candidate := range validStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stage %q", value)
}
