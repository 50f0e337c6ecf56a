package domain

// CompletionStatus is the outcome recorded by a completion event.
type CompletionStatus string

const (
	CompletionCompleted CompletionStatus = "completed"
	CompletionDNF       CompletionStatus = "dnf"
	CompletionRereading CompletionStatus = "rereading"
)

func (s CompletionStatus) String() string { return string(s) }

func (s CompletionStatus) IsValid() bool {
	switch s {
	case CompletionCompleted, CompletionDNF, CompletionRereading:
		return true
	}
	return false
}

// WritingStyle is the finite set of prose style tags produced by enrichment.
type WritingStyle string

const (
	StyleUnknown        WritingStyle = ""
	StyleLyrical        WritingStyle = "lyrical"
	StyleSparse         WritingStyle = "sparse"
	StyleDense          WritingStyle = "dense"
	StyleConversational WritingStyle = "conversational"
	StyleDescriptive    WritingStyle = "descriptive"
	StyleExperimental   WritingStyle = "experimental"
	StyleAcademic       WritingStyle = "academic"
	StyleHumorous       WritingStyle = "humorous"
)

var allStyles = []WritingStyle{
	StyleLyrical, StyleSparse, StyleDense, StyleConversational,
	StyleDescriptive, StyleExperimental, StyleAcademic, StyleHumorous,
}

// AllStyles returns the known writing styles in declaration order.
func AllStyles() []WritingStyle {
	out := make([]WritingStyle, len(allStyles))
	copy(out, allStyles)
	return out
}

func (s WritingStyle) String() string { return string(s) }

func (s WritingStyle) IsKnown() bool { return s != StyleUnknown }

func (s WritingStyle) IsValid() bool {
	for _, candidate := range allStyles {
		if s == candidate {
			return true
		}
	}
	return false
}

// NarrativeStructure tags how a book is told.
type NarrativeStructure string

const (
	StructureUnknown    NarrativeStructure = ""
	StructureLinear     NarrativeStructure = "linear"
	StructureNonlinear  NarrativeStructure = "nonlinear"
	StructureMultiPOV   NarrativeStructure = "multi_pov"
	StructureEpistolary NarrativeStructure = "epistolary"
	StructureFrame      NarrativeStructure = "frame"
	StructureEpisodic   NarrativeStructure = "episodic"
)

func (s NarrativeStructure) String() string { return string(s) }

func (s NarrativeStructure) IsValid() bool {
	switch s {
	case StructureLinear, StructureNonlinear, StructureMultiPOV,
		StructureEpistolary, StructureFrame, StructureEpisodic:
		return true
	}
	return false
}

// Energy is the mood axis describing intensity.
type Energy string

const (
	EnergyLow    Energy = "low"
	EnergyMedium Energy = "medium"
	EnergyHigh   Energy = "high"
)

func (e Energy) IsValid() bool {
	return e == EnergyLow || e == EnergyMedium || e == EnergyHigh
}

// Pacing is the mood axis describing narrative speed.
type Pacing string

const (
	PacingSlow   Pacing = "slow"
	PacingMedium Pacing = "medium"
	PacingFast   Pacing = "fast"
)

func (p Pacing) IsValid() bool {
	return p == PacingSlow || p == PacingMedium || p == PacingFast
}

// Tone is the mood axis describing emotional register.
type Tone string

const (
	ToneDark    Tone = "dark"
	ToneNeutral Tone = "neutral"
	ToneLight   Tone = "light"
)

func (t Tone) IsValid() bool {
	return t == ToneDark || t == ToneNeutral || t == ToneLight
}

// MoodComplexity is the mood axis describing how demanding a read feels.
type MoodComplexity string

const (
	MoodComplexityLight     MoodComplexity = "light"
	MoodComplexityModerate  MoodComplexity = "moderate"
	MoodComplexityDemanding MoodComplexity = "demanding"
)

func (c MoodComplexity) IsValid() bool {
	return c == MoodComplexityLight || c == MoodComplexityModerate || c == MoodComplexityDemanding
}

// TargetStatus is the lifecycle state of a deferred target.
type TargetStatus string

const (
	TargetWaiting   TargetStatus = "waiting"
	TargetPreparing TargetStatus = "preparing"
	TargetReady     TargetStatus = "ready"
	TargetPromoted  TargetStatus = "promoted"
	TargetAbandoned TargetStatus = "abandoned"
)

func (s TargetStatus) String() string { return string(s) }

func (s TargetStatus) IsValid() bool {
	switch s {
	case TargetWaiting, TargetPreparing, TargetReady, TargetPromoted, TargetAbandoned:
		return true
	}
	return false
}

// IsTerminal reports whether the engine has stopped scoring the target.
func (s TargetStatus) IsTerminal() bool {
	return s == TargetPromoted || s == TargetAbandoned
}

// ReminderMode controls when the reader wants to hear about a target.
type ReminderMode string

const (
	ReminderOnReady   ReminderMode = "on_ready"
	ReminderMonthly   ReminderMode = "monthly"
	ReminderQuarterly ReminderMode = "quarterly"
	ReminderManual    ReminderMode = "manual"
)

func (m ReminderMode) String() string { return string(m) }

func (m ReminderMode) IsValid() bool {
	switch m {
	case ReminderOnReady, ReminderMonthly, ReminderQuarterly, ReminderManual:
		return true
	}
	return false
}

// PlanStatus is the lifecycle state of a preparation plan.
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanAbandoned PlanStatus = "abandoned"
	PlanCompleted PlanStatus = "completed"
)

func (s PlanStatus) String() string { return string(s) }

func (s PlanStatus) IsValid() bool {
	return s == PlanActive || s == PlanAbandoned || s == PlanCompleted
}

// AuditCause records why a mastery value changed.
type AuditCause string

const (
	CauseReview     AuditCause = "review"
	CauseManualEdit AuditCause = "manual_edit"
	CauseDecayTick  AuditCause = "decay_tick"
)

func (c AuditCause) String() string { return string(c) }

func (c AuditCause) IsValid() bool {
	return c == CauseReview || c == CauseManualEdit || c == CauseDecayTick
}

// IsTouch reports whether the change counts as reader activity for decay.
func (c AuditCause) IsTouch() bool {
	return c == CauseReview || c == CauseManualEdit
}

// EntityKind distinguishes mastery-bearing entities.
type EntityKind string

const (
	EntityBook  EntityKind = "book"
	EntitySkill EntityKind = "skill"
	EntityTopic EntityKind = "topic"
)

func (k EntityKind) IsValid() bool {
	return k == EntityBook || k == EntitySkill || k == EntityTopic
}

// GapTag names a readiness shortfall. The set is closed.
type GapTag string

const (
	GapComplexity        GapTag = "complexity_gap"
	GapLength            GapTag = "length_tolerance"
	GapStyleUnfamiliar   GapTag = "style_unfamiliar"
	GapThemeMismatch     GapTag = "theme_mismatch"
	GapLowCompletionRate GapTag = "low_historical_completion"
)

// AllGapTags returns the closed gap set in canonical order.
func AllGapTags() []GapTag {
	return []GapTag{GapComplexity, GapLength, GapStyleUnfamiliar, GapThemeMismatch, GapLowCompletionRate}
}

func (g GapTag) IsValid() bool {
	for _, tag := range AllGapTags() {
		if g == tag {
			return true
		}
	}
	return false
}

// StrengthTag mirrors GapTag for factors the reader is well matched on.
type StrengthTag string

const (
	StrengthComplexityMatch          StrengthTag = "complexity_match"
	StrengthLengthFit                StrengthTag = "length_fit"
	StrengthStyleMatch               StrengthTag = "style_match"
	StrengthThemeOverlap             StrengthTag = "theme_overlap"
	StrengthHighHistoricalCompletion StrengthTag = "high_historical_completion"
)

// Recommendation is the classification of a readiness score.
type Recommendation string

const (
	RecommendReadNow            Recommendation = "read_now"
	RecommendMaybeLater         Recommendation = "maybe_later"
	RecommendNotYet             Recommendation = "not_yet"
	RecommendDifferentDirection Recommendation = "different_direction"
)

func (r Recommendation) String() string { return string(r) }
