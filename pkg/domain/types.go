package domain

import "time"

type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanPro        Plan = "PRO"
	PlanEnterprise Plan = "ENTERPRISE"
)

type GenerationStatus string

const (
	StatusPending    GenerationStatus = "PENDING"
	StatusProcessing GenerationStatus = "PROCESSING"
	StatusCompleted  GenerationStatus = "COMPLETED"
	StatusFailed     GenerationStatus = "FAILED"
)

// GenerationInput carries the user's product description for one request.
type GenerationInput struct {
	Idea              string `json:"idea"`
	TargetMarket      string `json:"targetMarket"`
	Constraints       string `json:"constraints,omitempty"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// ProductRequirements is the top-level summary section of a PRD.
type ProductRequirements struct {
	Overview       string   `json:"overview"`
	Goals          []string `json:"goals"`
	SuccessMetrics []string `json:"successMetrics"`
}

type UserStory struct {
	Role               string   `json:"role"`
	Action             string   `json:"action"`
	Benefit            string   `json:"benefit"`
	AcceptanceCriteria []string `json:"acceptanceCriteria"`
}

// Risk categories and levels are advisory: the model is instructed to use
// Technical|Market|Operational|Financial and Low|Medium|High but incoming
// values are not enforced.
type Risk struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Likelihood  string `json:"likelihood"`
	Impact      string `json:"impact"`
	Mitigation  string `json:"mitigation"`
}

type MVPScope struct {
	InScope     []string `json:"inScope"`
	OutOfScope  []string `json:"outOfScope"`
	Timeline    string   `json:"timeline"`
	Assumptions []string `json:"assumptions"`
}

// PRDDocument is the validated output of one generation. All four sections
// must be present for a document to be considered valid; nested shapes are
// not deep-validated.
type PRDDocument struct {
	ProductRequirements ProductRequirements `json:"productRequirements"`
	UserStories         []UserStory         `json:"userStories"`
	Risks               []Risk              `json:"risks"`
	MVPScope            MVPScope            `json:"mvpScope"`
}

// UsageAccount tracks one user's monthly generation quota. Created lazily on
// first access with the FREE plan and a zero counter.
type UsageAccount struct {
	UserID               string    `json:"userId"`
	Email                string    `json:"email"`
	Plan                 Plan      `json:"plan"`
	GenerationsThisMonth int       `json:"generationsThisMonth"`
	MonthResetDate       time.Time `json:"monthResetDate"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// GenerationRecord is the audit/history entry created after a successful
// generation. Records are created already COMPLETED in the synchronous flow;
// the remaining statuses are reserved for an async pipeline.
type GenerationRecord struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	Input        GenerationInput  `json:"input"`
	Document     PRDDocument      `json:"document"`
	Status       GenerationStatus `json:"status"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty"`
}

// User is the authenticated caller as derived from the access token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
