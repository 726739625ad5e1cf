package types

import (
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/samber/lo"
)

// FeatureKey is the closed enumeration of gated features. Unknown keys
// fail closed at the boundary instead of defaulting silently.
type FeatureKey string

const (
	FeatureKeyMaxGroups               FeatureKey = "max_groups"
	FeatureKeyMaxEvents               FeatureKey = "max_events"
	FeatureKeyMaxParticipantsPerGroup FeatureKey = "max_participants_per_group"
	FeatureKeyReceiptScanning         FeatureKey = "receipt_scanning"
	FeatureKeyCSVExport               FeatureKey = "csv_export"
	FeatureKeyPrioritySupport         FeatureKey = "priority_support"
)

func (f FeatureKey) String() string {
	return string(f)
}

func (f FeatureKey) Validate() error {
	if !lo.Contains(AllFeatureKeys(), f) {
		return ierr.NewError("unknown feature key").
			WithHint("Unknown feature key").
			WithReportableDetails(map[string]any{
				"feature_key": f,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// AllFeatureKeys returns every known feature key
func AllFeatureKeys() []FeatureKey {
	return []FeatureKey{
		FeatureKeyMaxGroups,
		FeatureKeyMaxEvents,
		FeatureKeyMaxParticipantsPerGroup,
		FeatureKeyReceiptScanning,
		FeatureKeyCSVExport,
		FeatureKeyPrioritySupport,
	}
}
