package match

// Status is the processing state of one submitted document.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusAnalyzing  Status = "analyzing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusAnalyzing, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is expected from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// rank orders the non-error statuses along the happy path.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusProcessing:
		return 1
	case StatusAnalyzing:
		return 2
	case StatusCompleted:
		return 3
	default:
		return -1
	}
}

// IsForwardTransition reports whether moving from -> to follows the item
// state machine: queued -> processing -> analyzing -> completed, with error
// reachable from any non-terminal state. Skipping ahead is allowed; going
// back or leaving a terminal state is not. Repeating the same status is
// always allowed.
func IsForwardTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	if to == StatusError {
		return true
	}
	return to.rank() > from.rank()
}

// AnalysisItem is the progress record for one submitted document.
type AnalysisItem struct {
	Filename    string  `json:"filename"`
	Status      Status  `json:"status"`
	Progress    float64 `json:"progress"`
	CurrentStep string  `json:"current_step"`
}

// NewAnalysisItem returns the initial record for a freshly submitted file.
func NewAnalysisItem(filename string) AnalysisItem {
	return AnalysisItem{
		Filename:    filename,
		Status:      StatusQueued,
		Progress:    0,
		CurrentStep: string(StatusQueued),
	}
}

// SkillLevel grades a candidate's proficiency in one skill.
type SkillLevel string

const (
	LevelExpert       SkillLevel = "expert"
	LevelProficient   SkillLevel = "proficient"
	LevelIntermediate SkillLevel = "intermediate"
	LevelBeginner     SkillLevel = "beginner"
	LevelMissing      SkillLevel = "missing"
)

// Relevance grades how much a skill matters for the criteria.
type Relevance string

const (
	RelevanceHigh   Relevance = "high"
	RelevanceMedium Relevance = "medium"
	RelevanceLow    Relevance = "low"
)

// SkillMatch is one row of a result's skill breakdown.
type SkillMatch struct {
	SkillName       string     `json:"skill_name"`
	MatchPercentage float64    `json:"match_percentage"`
	Level           SkillLevel `json:"level"`
	Relevance       Relevance  `json:"relevance"`
}

// MatchResult is the service's assessment of one document against the criteria.
type MatchResult struct {
	Filename             string   `json:"filename"`
	OverallMatch         float64  `json:"overall_match"`
	SkillsMatch          float64  `json:"skills_match"`
	ExperienceMatch      float64  `json:"experience_match"`
	EducationMatch       float64  `json:"education_match"`
	TechnicalSkillsScore float64  `json:"technical_skills_score"`
	SoftSkillsScore      float64  `json:"soft_skills_score"`
	LeadershipScore      float64  `json:"leadership_score"`
	CommunicationScore   float64  `json:"communication_score"`
	Summary              string   `json:"summary"`
	Strengths            []string `json:"strengths"`
	Weaknesses           []string `json:"weaknesses"`

	SkillBreakdown        []SkillMatch `json:"skill_breakdown"`
	MissingRequiredSkills []string     `json:"missing_required_skills"`
	YearsOfExperience     *float64     `json:"years_of_experience,omitempty"`
	EducationLevel        *string      `json:"education_level,omitempty"`
	Certifications        []string     `json:"certifications"`
	Languages             []string     `json:"languages"`

	// FileID references the service's stored copy of the source document.
	FileID string `json:"file_id,omitempty"`
}
