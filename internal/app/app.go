package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"prdgen/internal/util"
	"prdgen/pkg/ai"
	"prdgen/pkg/domain"
	"prdgen/pkg/events"
	"prdgen/pkg/prd"
	"prdgen/pkg/quota"
	"prdgen/pkg/storage"
	"prdgen/pkg/store"
)

const defaultExportURLTTL = 15 * time.Minute

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store

	GenerationProvider string
	GenerationBaseURL  string
	GenerationAPIKey   string
	GenerationModel    string
	MaxOutputTokens    int
	Temperature        float64
	Generator          ai.TextGenerator

	ObjectStore  storage.ObjectStore
	Events       *events.Publisher
	ExportURLTTL time.Duration
}

// App wires storage, the model client, and quota accounting into the
// PRD-generation service.
type App struct {
	store        store.Store
	generator    ai.TextGenerator
	objectStore  storage.ObjectStore
	events       *events.Publisher
	exportURLTTL time.Duration
}

// New constructs the application. A nil Store falls back to Postgres via
// DatabaseURL; a nil Generator is built from the provider settings.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	generator := cfg.Generator
	if generator == nil {
		var err error
		generator, err = newGenerator(cfg)
		if err != nil {
			return nil, err
		}
	}

	exportURLTTL := cfg.ExportURLTTL
	if exportURLTTL <= 0 {
		exportURLTTL = defaultExportURLTTL
	}

	return &App{
		store:        dataStore,
		generator:    generator,
		objectStore:  cfg.ObjectStore,
		events:       cfg.Events,
		exportURLTTL: exportURLTTL,
	}, nil
}

func newGenerator(cfg Config) (ai.TextGenerator, error) {
	if cfg.GenerationModel == "" {
		return nil, fmt.Errorf("generation model required")
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.GenerationProvider))
	if provider == "" {
		provider = "anthropic"
	}
	switch provider {
	case "anthropic":
		return ai.NewAnthropicGenerator(cfg.GenerationAPIKey, cfg.GenerationModel, cfg.MaxOutputTokens, cfg.Temperature)
	case "openai-compat":
		if cfg.GenerationBaseURL == "" {
			return nil, fmt.Errorf("generation base URL required for openai-compat")
		}
		return ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel, cfg.MaxOutputTokens, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", provider)
	}
}

// Generate runs one PRD generation for the caller: server-side quota
// admission, a single model call, extraction, persistence, then quota
// consumption. Quota is never consumed on a failure path. The admission check
// and the consumption are two separate writes; concurrent requests from the
// same user can race past the check, which is accepted for this quota (it is
// an accounting boundary, not a billing one).
func (a *App) Generate(ctx context.Context, user domain.User, input domain.GenerationInput) (domain.GenerationRecord, error) {
	logger := util.LoggerFromContext(ctx)
	if strings.TrimSpace(user.ID) == "" {
		return domain.GenerationRecord{}, fmt.Errorf("user id required")
	}
	if strings.TrimSpace(input.Idea) == "" {
		return domain.GenerationRecord{}, generationErr(KindMissingInput, "product idea is required", nil)
	}
	if strings.TrimSpace(input.TargetMarket) == "" {
		return domain.GenerationRecord{}, generationErr(KindMissingInput, "target market is required", nil)
	}

	acct, err := a.ensureAccount(user)
	if err != nil {
		return domain.GenerationRecord{}, fmt.Errorf("load usage account: %w", err)
	}
	acct, err = a.rolloverIfNeeded(acct, time.Now().UTC())
	if err != nil {
		return domain.GenerationRecord{}, err
	}
	if acct.GenerationsThisMonth >= quota.PlanLimit(acct.Plan) {
		return domain.GenerationRecord{}, ErrQuotaExceeded
	}

	prompt := prd.BuildPrompt(input)
	raw, err := a.generator.GenerateText(ctx, prompt)
	if err != nil {
		return domain.GenerationRecord{}, generationErr(KindModelInvocationFailed, "model request failed, please try again", err)
	}

	doc, err := prd.Extract(raw)
	if err != nil {
		// Raw model text goes to logs only, never to the caller.
		var extractErr *prd.ExtractionError
		if errors.As(err, &extractErr) {
			logger.Warn("model output rejected", "reason", extractErr.Reason, "raw_len", len(extractErr.Raw))
			logger.Debug("raw model output", "raw", extractErr.Raw)
		}
		return domain.GenerationRecord{}, generationErr(KindInvalidModelOutput, "the model returned an unusable document, please try again", err)
	}

	completedAt := time.Now().UTC()
	rec := domain.GenerationRecord{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Input:       input,
		Document:    doc,
		Status:      domain.StatusCompleted,
		CreatedAt:   completedAt,
		CompletedAt: &completedAt,
	}
	if err := a.store.CreateGenerationRecord(rec); err != nil {
		return domain.GenerationRecord{}, fmt.Errorf("save generation record: %w", err)
	}

	acct = quota.Consume(acct)
	acct.UpdatedAt = completedAt
	if err := a.store.UpdateUsageAccount(acct); err != nil {
		return domain.GenerationRecord{}, fmt.Errorf("update usage account: %w", err)
	}

	if err := a.events.PublishCompleted(ctx, events.GenerationCompleted{
		RecordID:    rec.ID,
		UserID:      user.ID,
		Plan:        acct.Plan,
		UsedAfter:   acct.GenerationsThisMonth,
		CompletedAt: completedAt,
	}); err != nil {
		logger.Warn("publish generation event", "err", err)
	}

	return rec, nil
}

// Usage returns the caller's account after lazy creation and month rollover,
// plus the plan limit.
func (a *App) Usage(user domain.User) (domain.UsageAccount, int, error) {
	if strings.TrimSpace(user.ID) == "" {
		return domain.UsageAccount{}, 0, fmt.Errorf("user id required")
	}
	acct, err := a.ensureAccount(user)
	if err != nil {
		return domain.UsageAccount{}, 0, fmt.Errorf("load usage account: %w", err)
	}
	acct, err = a.rolloverIfNeeded(acct, time.Now().UTC())
	if err != nil {
		return domain.UsageAccount{}, 0, err
	}
	return acct, quota.PlanLimit(acct.Plan), nil
}

// ListGenerations returns the caller's recent history, newest first.
func (a *App) ListGenerations(user domain.User, limit int) ([]domain.GenerationRecord, error) {
	if strings.TrimSpace(user.ID) == "" {
		return nil, fmt.Errorf("user id required")
	}
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	records, err := a.store.ListGenerationRecordsByUser(user.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	return records, nil
}

// GetGeneration returns one record, owner-only.
func (a *App) GetGeneration(user domain.User, id string) (domain.GenerationRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.GenerationRecord{}, fmt.Errorf("generation id required")
	}
	rec, ok, err := a.store.GetGenerationRecord(id)
	if err != nil {
		return domain.GenerationRecord{}, fmt.Errorf("load generation: %w", err)
	}
	if !ok {
		return domain.GenerationRecord{}, ErrRecordNotFound
	}
	if rec.UserID != user.ID {
		return domain.GenerationRecord{}, ErrRecordForbidden
	}
	return rec, nil
}

// Export renders a record as markdown. When object storage is configured the
// document is uploaded and a presigned download URL returned; otherwise the
// markdown itself is returned and url is empty.
func (a *App) Export(ctx context.Context, user domain.User, id string) (markdown string, url string, err error) {
	rec, err := a.GetGeneration(user, id)
	if err != nil {
		return "", "", err
	}
	markdown = prd.Markdown(rec.Document, rec.Input)
	if a.objectStore == nil {
		return markdown, "", nil
	}
	key := fmt.Sprintf("exports/%s/%s.md", rec.UserID, rec.ID)
	if err := a.objectStore.Put(ctx, key, strings.NewReader(markdown), int64(len(markdown)), "text/markdown"); err != nil {
		return "", "", fmt.Errorf("upload export: %w", err)
	}
	url, err = a.objectStore.PresignGet(ctx, key, a.exportURLTTL)
	if err != nil {
		return "", "", fmt.Errorf("presign export: %w", err)
	}
	return markdown, url, nil
}

// ensureAccount loads the caller's account, creating the FREE default on
// first access.
func (a *App) ensureAccount(user domain.User) (domain.UsageAccount, error) {
	acct, ok, err := a.store.GetUsageAccount(user.ID)
	if err != nil {
		return domain.UsageAccount{}, err
	}
	if ok {
		return acct, nil
	}
	acct = quota.NewAccount(user.ID, user.Email, time.Now().UTC())
	if err := a.store.CreateUsageAccount(acct); err != nil {
		return domain.UsageAccount{}, err
	}
	return acct, nil
}

// rolloverIfNeeded persists a calendar-month reset when one applies.
func (a *App) rolloverIfNeeded(acct domain.UsageAccount, now time.Time) (domain.UsageAccount, error) {
	rolled := quota.Rollover(acct, now)
	if rolled.MonthResetDate.Equal(acct.MonthResetDate) {
		return acct, nil
	}
	rolled.UpdatedAt = now
	if err := a.store.UpdateUsageAccount(rolled); err != nil {
		return domain.UsageAccount{}, fmt.Errorf("persist quota rollover: %w", err)
	}
	return rolled, nil
}
