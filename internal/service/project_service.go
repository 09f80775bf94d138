package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
	"github.com/bvc-digitalhub/digitalhub-api/internal/repository"
)

const (
	maxProjectTitleLen       = 200
	maxProjectDescriptionLen = 5000
	maxTechStackEntries      = 30
)

type ProjectInput struct {
	Title       string
	Description string
	TechStack   []string
	RepoLink    string
	LiveLink    string
}

type ProjectService struct {
	repo    repository.ProjectRepository
	feed    ProjectFeedCache
	feedTTL time.Duration
	logger  *slog.Logger
}

func NewProjectService(repo repository.ProjectRepository) *ProjectService {
	return &ProjectService{repo: repo, feed: NoopProjectFeedCache{}, logger: slog.Default()}
}

// WithFeedCache caches pages of the public feed for ttl. Cache failures never
// fail a request.
func (s *ProjectService) WithFeedCache(cache ProjectFeedCache, ttl time.Duration, logger *slog.Logger) *ProjectService {
	if cache != nil {
		s.feed = cache
	}
	s.feedTTL = ttl
	if logger != nil {
		s.logger = logger
	}
	return s
}

// ToggleLike flips actorID's mark on the project and returns the full liker
// list afterwards. Owners cannot like their own project.
func (s *ProjectService) ToggleLike(ctx context.Context, projectID, actorID string) (likers []string, err error) {
	ctx, span := observability.StartSpan(ctx, "project.toggle_like", attribute.String("project.id", projectID))
	defer func() { observability.EndSpan(span, err, ErrSelfLike, ErrProjectNotFound, ErrUnauthorized) }()

	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordProjectOperation(ctx, "toggle_like", outcome, time.Since(start)) }()

	if actorID == "" {
		outcome = "unauthorized"
		return nil, ErrUnauthorized
	}
	project, err := s.repo.FindByID(ctx, projectID)
	if err != nil {
		outcome = notFoundOutcome(err)
		return nil, mapProjectErr(err)
	}
	if project.OwnerID == actorID {
		outcome = "forbidden"
		observability.RecordLikeToggle(ctx, "self_like_rejected")
		return nil, ErrSelfLike
	}

	res, err := s.repo.ToggleLike(ctx, projectID, actorID)
	if err != nil {
		outcome = notFoundOutcome(err)
		return nil, mapProjectErr(err)
	}
	s.invalidateFeed(ctx)
	span.SetAttributes(attribute.Bool("like.added", res.Liked), attribute.Int("like.count", len(res.Likers)))
	if res.Liked {
		observability.RecordLikeToggle(ctx, "added")
	} else {
		observability.RecordLikeToggle(ctx, "removed")
	}
	if res.Likers == nil {
		res.Likers = []string{}
	}
	return res.Likers, nil
}

func (s *ProjectService) Create(ctx context.Context, ownerID string, in ProjectInput) (*domain.Project, error) {
	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordProjectOperation(ctx, "create", outcome, time.Since(start)) }()

	if ownerID == "" {
		outcome = "unauthorized"
		return nil, ErrUnauthorized
	}
	clean, err := normalizeProjectInput(in)
	if err != nil {
		outcome = "bad_request"
		return nil, err
	}
	project := &domain.Project{
		OwnerID:     ownerID,
		Title:       clean.Title,
		Description: clean.Description,
		TechStack:   domain.StringList(clean.TechStack),
		RepoLink:    clean.RepoLink,
		LiveLink:    clean.LiveLink,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		outcome = "error"
		return nil, err
	}
	s.invalidateFeed(ctx)
	// reload so the owner relation and liker list are populated
	created, err := s.repo.FindByID(ctx, project.ID)
	if err != nil {
		outcome = "error"
		return nil, err
	}
	return created, nil
}

func (s *ProjectService) Get(ctx context.Context, id string) (*domain.Project, error) {
	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordProjectOperation(ctx, "get", outcome, time.Since(start)) }()

	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		outcome = notFoundOutcome(err)
		return nil, mapProjectErr(err)
	}
	return project, nil
}

func (s *ProjectService) List(ctx context.Context, req repository.PageRequest) (repository.PageResult[domain.Project], error) {
	req = req.Normalized()
	key := fmt.Sprintf("%d:%d", req.Page, req.PageSize)
	gen, genErr := s.feed.Generation(ctx)
	if genErr != nil {
		s.logger.WarnContext(ctx, "project feed cache generation read failed", "error", genErr)
	} else if raw, ok, err := s.feed.Get(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "project feed cache read failed", "error", err)
	} else if ok {
		var cached repository.PageResult[domain.Project]
		if err := json.Unmarshal(raw, &cached); err == nil {
			observability.RecordRepositoryOperation(ctx, "project_feed_cache", "get", "hit")
			return cached, nil
		}
	}
	observability.RecordRepositoryOperation(ctx, "project_feed_cache", "get", "miss")

	res, err := s.list(ctx, "list", repository.ProjectListFilter{}, req)
	if err != nil {
		return res, err
	}
	if s.feedTTL > 0 && genErr == nil {
		if raw, err := json.Marshal(res); err == nil {
			if err := s.feed.Set(ctx, gen, key, raw, s.feedTTL); err != nil {
				s.logger.WarnContext(ctx, "project feed cache write failed", "error", err)
			}
		}
	}
	return res, nil
}

func (s *ProjectService) ListByOwner(ctx context.Context, ownerID string, req repository.PageRequest) (repository.PageResult[domain.Project], error) {
	if ownerID == "" {
		return repository.PageResult[domain.Project]{}, ErrUnauthorized
	}
	return s.list(ctx, "list_mine", repository.ProjectListFilter{OwnerID: ownerID}, req)
}

func (s *ProjectService) list(ctx context.Context, op string, filter repository.ProjectListFilter, req repository.PageRequest) (repository.PageResult[domain.Project], error) {
	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordProjectOperation(ctx, op, outcome, time.Since(start)) }()

	res, err := s.repo.ListPaged(ctx, filter, req)
	if err != nil {
		outcome = "error"
		return repository.PageResult[domain.Project]{}, err
	}
	return res, nil
}

func (s *ProjectService) Update(ctx context.Context, actorID, id string, in ProjectInput) (*domain.Project, error) {
	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordProjectOperation(ctx, "update", outcome, time.Since(start)) }()

	if err := s.requireOwner(ctx, actorID, id); err != nil {
		outcome = ownerOutcome(err)
		return nil, err
	}
	clean, err := normalizeProjectInput(in)
	if err != nil {
		outcome = "bad_request"
		return nil, err
	}
	updates := map[string]any{
		"title":       clean.Title,
		"description": clean.Description,
		"tech_stack":  domain.StringList(clean.TechStack),
		"repo_link":   clean.RepoLink,
		"live_link":   clean.LiveLink,
	}
	if err := s.repo.Update(ctx, id, updates); err != nil {
		outcome = notFoundOutcome(err)
		return nil, mapProjectErr(err)
	}
	s.invalidateFeed(ctx)
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		outcome = notFoundOutcome(err)
		return nil, mapProjectErr(err)
	}
	return project, nil
}

func (s *ProjectService) Delete(ctx context.Context, actorID, id string) error {
	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordProjectOperation(ctx, "delete", outcome, time.Since(start)) }()

	if err := s.requireOwner(ctx, actorID, id); err != nil {
		outcome = ownerOutcome(err)
		return err
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		outcome = notFoundOutcome(err)
		return mapProjectErr(err)
	}
	s.invalidateFeed(ctx)
	return nil
}

func (s *ProjectService) invalidateFeed(ctx context.Context) {
	if err := s.feed.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "project feed cache invalidation failed", "error", err)
	}
}

func (s *ProjectService) requireOwner(ctx context.Context, actorID, id string) error {
	if actorID == "" {
		return ErrUnauthorized
	}
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return mapProjectErr(err)
	}
	if project.OwnerID != actorID {
		return ErrNotProjectOwner
	}
	return nil
}

func normalizeProjectInput(in ProjectInput) (ProjectInput, error) {
	out := ProjectInput{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		RepoLink:    strings.TrimSpace(in.RepoLink),
		LiveLink:    strings.TrimSpace(in.LiveLink),
	}
	if n := utf8.RuneCountInString(out.Title); n == 0 || n > maxProjectTitleLen {
		return ProjectInput{}, fmt.Errorf("%w: title must be between 1 and %d characters", ErrValidation, maxProjectTitleLen)
	}
	if utf8.RuneCountInString(out.Description) > maxProjectDescriptionLen {
		return ProjectInput{}, fmt.Errorf("%w: description must be at most %d characters", ErrValidation, maxProjectDescriptionLen)
	}
	seen := make(map[string]struct{}, len(in.TechStack))
	out.TechStack = []string{}
	for _, tech := range in.TechStack {
		tech = strings.TrimSpace(tech)
		if tech == "" {
			continue
		}
		key := strings.ToLower(tech)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.TechStack = append(out.TechStack, tech)
	}
	if len(out.TechStack) > maxTechStackEntries {
		return ProjectInput{}, fmt.Errorf("%w: at most %d tech stack entries", ErrValidation, maxTechStackEntries)
	}
	for field, link := range map[string]string{"repo_link": out.RepoLink, "live_link": out.LiveLink} {
		if link != "" && !isHTTPURL(link) {
			return ProjectInput{}, fmt.Errorf("%w: %s must be an http(s) url", ErrValidation, field)
		}
	}
	return out, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func mapProjectErr(err error) error {
	if errors.Is(err, repository.ErrProjectNotFound) {
		return ErrProjectNotFound
	}
	return err
}

func notFoundOutcome(err error) string {
	if errors.Is(err, repository.ErrProjectNotFound) {
		return "not_found"
	}
	return "error"
}

func ownerOutcome(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotProjectOwner):
		return "forbidden"
	default:
		return notFoundOutcome(err)
	}
}
