package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles for the workflow. Supports gradual
// rollout by student, cohort targeting by academic year, and time-based
// activation (useful for switching behaviors at semester boundaries).
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // studentID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Students are assigned based on hash of their ID
	RolloutPercent int

	// Cohort targeting by academic year (e.g., "2025-26")
	// Empty means all cohorts
	TargetCohorts []string

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	StudentID string // Student UUID
	Cohort    string // Academic year (e.g., "2025-26")
	IsAdmin   bool   // Is admin user
}

// Predefined feature flag names.
const (
	// === Notification Features ===
	FeatureNotifyInvitations = "notify.invitations"  // Invitation lifecycle messages
	FeatureNotifyGroupStatus = "notify.group_status" // Finalize/disband messages
	FeatureNotifyAllocation  = "notify.allocation"   // Faculty allocation messages

	// === Workflow Features ===
	FeatureWorkflowSoloProjects      = "workflow.solo_projects"      // Solo project registration
	FeatureWorkflowAdminReallocation = "workflow.admin_reallocation" // Admin faculty re-allocation
	FeatureWorkflowCarryForward      = "workflow.carry_forward"      // Carry groups across semesters

	// === Maintenance Features ===
	FeatureReconcileReferences = "maintenance.reconcile_references" // Nightly reference sweep
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureNotifyInvitations] = &Feature{
		Name:           FeatureNotifyInvitations,
		Description:    "Notify on invitation lifecycle changes",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyGroupStatus] = &Feature{
		Name:           FeatureNotifyGroupStatus,
		Description:    "Notify members on group finalize and disband",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyAllocation] = &Feature{
		Name:           FeatureNotifyAllocation,
		Description:    "Notify project owners on faculty allocation",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureWorkflowSoloProjects] = &Feature{
		Name:           FeatureWorkflowSoloProjects,
		Description:    "Allow solo project registration in internship semesters",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureWorkflowAdminReallocation] = &Feature{
		Name:           FeatureWorkflowAdminReallocation,
		Description:    "Allow admins to re-allocate faculty on claimed projects",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureWorkflowCarryForward] = &Feature{
		Name:           FeatureWorkflowCarryForward,
		Description:    "Carry finalized groups into the next semester on promotion",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureReconcileReferences] = &Feature{
		Name:           FeatureReconcileReferences,
		Description:    "Run the nightly dangling-reference sweep",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_NOTIFY_INVITATIONS=true
// Example: FEATURE_WORKFLOW_CARRY_FORWARD=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		val := os.Getenv(envKey)
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}

		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "notify.invitations" -> "FEATURE_NOTIFY_INVITATIONS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check user overrides first
	if ctx != nil && ctx.StudentID != "" {
		if userOverrides, ok := ff.userOverrides[ctx.StudentID]; ok {
			if enabled, ok := userOverrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Admin users get all features
	if ctx != nil && ctx.IsAdmin {
		return true
	}

	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check cohort targeting
	if len(feature.TargetCohorts) > 0 && ctx != nil && ctx.Cohort != "" {
		cohortMatch := false
		for _, c := range feature.TargetCohorts {
			if c == ctx.Cohort {
				cohortMatch = true
				break
			}
		}
		if !cohortMatch {
			return false
		}
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.StudentID != "" {
		return ff.isInRollout(ctx.StudentID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a student is in the rollout percentage.
// Uses consistent hashing so students stay in their bucket.
func (ff *FeatureFlags) isInRollout(studentID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(studentID))
	bucket := int(h.Sum32() % 100)

	return bucket < percent
}

// SetUserOverride sets a feature override for a specific student.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetUserOverride(studentID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[studentID]; !ok {
		ff.userOverrides[studentID] = make(map[string]bool)
	}
	ff.userOverrides[studentID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a student.
func (ff *FeatureFlags) ClearUserOverrides(studentID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, studentID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// NotificationsEnabled checks if any notification category is enabled.
func (ff *FeatureFlags) NotificationsEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureNotifyInvitations, ctx) ||
		ff.IsEnabled(FeatureNotifyGroupStatus, ctx) ||
		ff.IsEnabled(FeatureNotifyAllocation, ctx)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
