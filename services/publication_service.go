package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"crowpro-api/models"
	"crowpro-api/policy"
	"crowpro-api/repositories"
	"crowpro-api/storage"
)

// publishAtSkew absorbs clock drift between a client that sends "now" as
// publish_at and the server.
const publishAtSkew = time.Minute

type PublicationService interface {
	Create(ctx context.Context, actor *models.User, pubType models.PublicationType, req models.CreatePublicationRequest) (*models.Publication, error)
	Get(ctx context.Context, actor *models.User, pubType models.PublicationType, slug string) (*models.Publication, error)
	List(ctx context.Context, actor *models.User, params models.PublicationListParams) ([]models.Publication, int64, error)
	ListMine(ctx context.Context, actor *models.User, params models.PublicationListParams) ([]models.Publication, int64, error)
	ListByAuthor(ctx context.Context, authorID uint, params models.PublicationListParams) ([]models.Publication, int64, error)
	Update(ctx context.Context, actor *models.User, pubType models.PublicationType, slug string, req models.UpdatePublicationRequest) (*models.Publication, error)
	Hide(ctx context.Context, actor *models.User, pubType models.PublicationType, slug string) error
	UpdateAuthors(ctx context.Context, actor *models.User, pubType models.PublicationType, slug string, authorIDs []uint) (*models.Publication, error)
	UploadThumbnail(ctx context.Context, actor *models.User, pubType models.PublicationType, slug string, upload ImageUpload) (*models.Publication, error)
	Approve(ctx context.Context, actor *models.User, slug string) (*models.Publication, error)
	Publish(ctx context.Context, actor *models.User, slug string, publishAt *time.Time) (*models.Publication, error)
	Unpublish(ctx context.Context, actor *models.User, slug string) (*models.Publication, error)
}

type publicationService struct {
	pubRepo  repositories.PublicationRepository
	userRepo repositories.UserRepository
	store    storage.BlobStore
	log      *slog.Logger
	maxImage int64
	now      func() time.Time
}

func NewPublicationService(pubRepo repositories.PublicationRepository, userRepo repositories.UserRepository, store storage.BlobStore, maxImage int64, log *slog.Logger) PublicationService {
	return &publicationService{
		pubRepo:  pubRepo,
		userRepo: userRepo,
		store:    store,
		log:      log,
		maxImage: maxImage,
		now:      time.Now,
	}
}

func createAction(pubType models.PublicationType) policy.Action {
	if pubType == models.TypeEditorial {
		return policy.CreateEditorial
	}
	return policy.CreateArticle
}

func editAction(pubType models.PublicationType) policy.Action {
	if pubType == models.TypeEditorial {
		return policy.EditEditorial
	}
	return policy.EditArticle
}

func (s *publicationService) clock() time.Time {
	return s.now().UTC()
}

func (s *publicationService) hydrate(ctx context.Context, p *models.Publication) {
	if p.Thumbnail == "" {
		return
	}
	url, err := s.store.URL(ctx, p.Thumbnail)
	if err != nil {
		s.log.WarnContext(ctx, "resolve thumbnail", "publication_id", p.ID, "error", err)
		return
	}
	p.ThumbnailURL = &url
}

func (s *publicationService) hydrateAll(ctx context.Context, items []models.Publication) {
	for i := range items {
		s.hydrate(ctx, &items[i])
	}
}

func (s *publicationService) load(ctx context.Context, pubType models.PublicationType, slug string) (*models.Publication, error) {
	p, err := s.pubRepo.GetBySlug(ctx, slug, pubType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrPublicationNotFound
		}
		return nil, fmt.Errorf("load publication: %w", err)
	}
	return p, nil
}

func (s *publicationService) reload(ctx context.Context, id uint) (*models.Publication, error) {
	p, err := s.pubRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrPublicationNotFound
		}
		return nil, fmt.Errorf("reload publication: %w", err)
	}
	s.hydrate(ctx, p)
	return p, nil
}

// visible loads a publication the actor may read. Records the actor may not see
// are reported as missing rather than forbidden.
func (s *publicationService) visible(ctx context.Context, actor *models.User, pubType models.PublicationType, slug string) (*models.Publication, error) {
	p, err := s.load(ctx, pubType, slug)
	if err != nil {
		return nil, err
	}
	if err := s.readable(actor, p); err != nil {
		return nil, err
	}
	return p, nil
}

// readable reports NotFound when actor may not see p.
func (s *publicationService) readable(actor *models.User, p *models.Publication) error {
	if p.IsPubliclyVisible(s.clock()) || policy.Allowed(actor, policy.ReadUnpublished, policy.ResourceOf(p)) {
		return nil
	}
	return models.ErrPublicationNotFound
}

func (s *publicationService) uniqueSlug(ctx context.Context, requested, title string) (string, error) {
	if requested != "" {
		candidate := slug.Make(requested)
		if candidate == "" {
			return "", &models.ErrorValidation{Message: "slug must contain letters or digits"}
		}
		exists, err := s.pubRepo.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if exists {
			return "", models.ErrSlugExists
		}
		return candidate, nil
	}

	base := slug.Make(title)
	if base == "" {
		base = "publication"
	}

	candidate := base
	for attempt := 0; attempt < 5; attempt++ {
		exists, err := s.pubRepo.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%s", base, uuid.NewString()[:8])
	}
	return "", models.ErrSlugExists
}

// Create stores new content as a Draft. The creator is listed as an author when their role allows it.
func (s *publicationService) Create(ctx context.Context, actor *models.User, pubType models.PublicationType, req models.CreatePublicationRequest) (*models.Publication, error) {
	if err := policy.Authorize(actor, createAction(pubType), nil); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, &models.ErrorValidation{Message: "title is required"}
	}

	slugValue, err := s.uniqueSlug(ctx, req.Slug, title)
	if err != nil {
		return nil, err
	}

	p := &models.Publication{
		PublicationType: pubType,
		Title:           title,
		Slug:            slugValue,
		Content:         req.Content,
		CreatedByID:     actor.ID,
	}
	if actor.CanAuthor() {
		p.Authors = []models.User{*actor}
	}

	if err := s.pubRepo.Create(ctx, p); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, models.ErrSlugExists
		}
		return nil, fmt.Errorf("create publication: %w", err)
	}

	s.log.InfoContext(ctx, "publication created", "publication_id", p.ID, "type", pubType, "by", actor.ID)
	return s.reload(ctx, p.ID)
}

func (s *publicationService) Get(ctx context.Context, actor *models.User, pubType models.PublicationType, slug string) (*models.Publication, error) {
	p, err := s.visible(ctx, actor, pubType, slug)
	if err != nil {
		return nil, err
	}
	s.hydrate(ctx, p)
	return p, nil
}

// List applies the caller's read scope: anonymous callers and readers see public
// content, authors additionally see their own, editors and staff see everything.
func (s *publicationService) List(ctx context.Context, actor *models.User, params models.PublicationListParams) ([]models.Publication, int64, error) {
	params.Page, params.Limit = normalizePaging(params.Page, params.Limit)

	switch {
	case actor == nil || !actor.IsActive:
		params.PublicOnly = true
	case policy.ScopeFor(actor.Role, policy.ReadUnpublished) == policy.ScopeAny:
	case policy.ScopeFor(actor.Role, policy.ReadUnpublished) == policy.ScopeOwn:
		params.VisibleTo = actor.ID
	default:
		params.PublicOnly = true
	}

	return s.list(ctx, params)
}

func (s *publicationService) ListMine(ctx context.Context, actor *models.User, params models.PublicationListParams) ([]models.Publication, int64, error) {
	if actor == nil {
		return nil, 0, models.ErrTokenMissing
	}
	params.Page, params.Limit = normalizePaging(params.Page, params.Limit)
	params.AuthorID = actor.ID
	return s.list(ctx, params)
}

func (s *publicationService) ListByAuthor(ctx context.Context, authorID uint, params models.PublicationListParams) ([]models.Publication, int64, error) {
	params.Page, params.Limit = normalizePaging(params.Page, params.Limit)
	params.AuthorID = authorID
	params.PublicOnly = true
	return s.list(ctx, params)
}

func (s *publicationService) list(ctx context.Context, params models.PublicationListParams) ([]models.Publication, int64, error) {
	items, total, err := s.pubRepo.GetList(ctx, params, s.clock())
	if err != nil {
		return nil, 0, fmt.Errorf("list publications: %w", err)
	}
	s.hydrateAll(ctx, items)
	return items, total, nil
}

// Update edits title and content; a non-nil Published runs the publish or unpublish transition.
func (s *publicationService) Update(ctx context.Context, actor *models.User, pubType models.PublicationType, slug string, req models.UpdatePublicationRequest) (*models.Publication, error) {
	p, err := s.load(ctx, pubType, slug)
	if err != nil {
		return nil, err
	}
	if p.Hide {
		return nil, models.ErrPublicationHidden
	}

	fields := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, &models.ErrorValidation{Message: "title may not be blank"}
		}
		fields["title"] = title
	}
	if req.Content != nil {
		fields["content"] = *req.Content
	}

	if len(fields) > 0 {
		if err := policy.Authorize(actor, editAction(p.PublicationType), policy.ResourceOf(p)); err != nil {
			return nil, err
		}
	}

	toggle := req.Published != nil && *req.Published != p.Published
	if toggle {
		if err := s.checkToggle(actor, p, *req.Published); err != nil {
			return nil, err
		}
	}

	if len(fields) > 0 {
		ok, err := s.pubRepo.UpdateContent(ctx, p.ID, fields)
		if err != nil {
			return nil, fmt.Errorf("update publication: %w", err)
		}
		if !ok {
			return nil, models.ErrPublicationHidden
		}
	}

	if toggle {
		if *req.Published {
			return s.publish(ctx, actor, p, nil)
		}
		return s.unpublish(ctx, actor, p)
	}

	return s.reload(ctx, p.ID)
}

// checkToggle runs the publish or unpublish transition on a copy and checks the
// caller may perform it, so a rejected toggle leaves the record untouched.
func (s *publicationService) checkToggle(actor *models.User, p *models.Publication, publish bool) error {
	next := *p
	if publish {
		if err := s.readable(actor, p); err != nil {
			return err
		}
		if err := next.Publish(s.clock()); err != nil {
			return err
		}
	} else if err := next.Unpublish(); err != nil {
		return err
	}
	return policy.Authorize(actor, policy.PublishContent, policy.ResourceOf(p))
}

// Hide soft-deletes content. Hiding hidden content is a no-op.
func (s *publicationService) Hide(ctx context.Context, actor *models.User, pubType models.PublicationType, slug string) error {
	p, err := s.load(ctx, pubType, slug)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, policy.HideContent, policy.ResourceOf(p)); err != nil {
		return err
	}
	if p.Hide {
		return nil
	}

	if _, err := s.pubRepo.Hide(ctx, p.ID); err != nil {
		return fmt.Errorf("hide publication: %w", err)
	}

	s.log.InfoContext(ctx, "publication hidden", "publication_id", p.ID, "by", actor.ID)
	return nil
}

// UpdateAuthors replaces the author list. Every id must belong to an active Author or Editor.
func (s *publicationService) UpdateAuthors(ctx context.Context, actor *models.User, pubType models.PublicationType, slug string, authorIDs []uint) (*models.Publication, error) {
	p, err := s.load(ctx, pubType, slug)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ManageAuthors, policy.ResourceOf(p)); err != nil {
		return nil, err
	}
	if p.Hide {
		return nil, models.ErrPublicationHidden
	}

	ids := uniqueIDs(authorIDs)
	if len(ids) == 0 {
		return nil, models.ErrInvalidAuthors
	}

	authors, err := s.userRepo.GetActiveByIDs(ctx, ids, models.RoleAuthor, models.RoleEditor)
	if err != nil {
		return nil, fmt.Errorf("load authors: %w", err)
	}
	if len(authors) != len(ids) {
		return nil, models.ErrInvalidAuthors
	}

	if err := s.pubRepo.ReplaceAuthors(ctx, p.ID, ids); err != nil {
		return nil, fmt.Errorf("replace authors: %w", err)
	}

	s.log.InfoContext(ctx, "publication authors updated", "publication_id", p.ID, "authors", ids, "by", actor.ID)
	return s.reload(ctx, p.ID)
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *publicationService) UploadThumbnail(ctx context.Context, actor *models.User, pubType models.PublicationType, slug string, upload ImageUpload) (*models.Publication, error) {
	p, err := s.load(ctx, pubType, slug)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, editAction(p.PublicationType), policy.ResourceOf(p)); err != nil {
		return nil, err
	}
	if p.Hide {
		return nil, models.ErrPublicationHidden
	}

	key, contentType, err := imageKey("thumbnails", upload, s.maxImage)
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, key, upload.Reader, upload.Size, contentType); err != nil {
		return nil, fmt.Errorf("store thumbnail: %w", err)
	}
	if err := s.pubRepo.UpdateThumbnail(ctx, p.ID, key); err != nil {
		return nil, fmt.Errorf("update thumbnail: %w", err)
	}

	if p.Thumbnail != "" {
		if err := s.store.Delete(ctx, p.Thumbnail); err != nil {
			s.log.WarnContext(ctx, "delete previous thumbnail", "key", p.Thumbnail, "error", err)
		}
	}

	return s.reload(ctx, p.ID)
}

// Approve moves a Draft to Approved. Of concurrent approvals exactly one wins;
// the others see ErrAlreadyApproved.
func (s *publicationService) Approve(ctx context.Context, actor *models.User, slug string) (*models.Publication, error) {
	p, err := s.load(ctx, "", slug)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ApproveContent, policy.ResourceOf(p)); err != nil {
		return nil, err
	}

	now := s.clock()
	if err := p.Approve(actor.ID, now); err != nil {
		return nil, err
	}

	ok, err := s.pubRepo.Approve(ctx, p.ID, actor.ID, now)
	if err != nil {
		return nil, fmt.Errorf("approve publication: %w", err)
	}
	if !ok {
		return nil, s.classify(ctx, p.ID, func(current *models.Publication) error {
			return current.Approve(actor.ID, now)
		}, models.ErrAlreadyApproved)
	}

	s.log.InfoContext(ctx, "publication approved", "publication_id", p.ID, "by", actor.ID)
	return s.reload(ctx, p.ID)
}

// Publish makes approved content public now, or at publishAt when it lies in the future.
func (s *publicationService) Publish(ctx context.Context, actor *models.User, slug string, publishAt *time.Time) (*models.Publication, error) {
	p, err := s.load(ctx, "", slug)
	if err != nil {
		return nil, err
	}
	return s.publish(ctx, actor, p, publishAt)
}

// publish checks the transition before the caller's rights, so publishing a Draft
// reports that approval is missing to anyone who can see it. Callers who cannot
// see the record get NotFound.
func (s *publicationService) publish(ctx context.Context, actor *models.User, p *models.Publication, publishAt *time.Time) (*models.Publication, error) {
	if err := s.readable(actor, p); err != nil {
		return nil, err
	}
	res := policy.ResourceOf(p)

	now := s.clock()
	at := now
	if publishAt != nil {
		requested := publishAt.UTC()
		if requested.Before(now.Add(-publishAtSkew)) {
			return nil, models.ErrPublishInPast
		}
		if requested.After(now) {
			at = requested
		}
	}

	if err := p.Publish(at); err != nil {
		return nil, err
	}

	if err := policy.Authorize(actor, policy.PublishContent, res); err != nil {
		return nil, err
	}

	ok, err := s.pubRepo.Publish(ctx, p.ID, at)
	if err != nil {
		return nil, fmt.Errorf("publish publication: %w", err)
	}
	if !ok {
		return nil, s.classify(ctx, p.ID, func(current *models.Publication) error {
			return current.Publish(at)
		}, models.ErrNotApproved)
	}

	s.log.InfoContext(ctx, "publication published", "publication_id", p.ID, "at", at, "by", actor.ID)
	return s.reload(ctx, p.ID)
}

func (s *publicationService) Unpublish(ctx context.Context, actor *models.User, slug string) (*models.Publication, error) {
	p, err := s.load(ctx, "", slug)
	if err != nil {
		return nil, err
	}
	return s.unpublish(ctx, actor, p)
}

func (s *publicationService) unpublish(ctx context.Context, actor *models.User, p *models.Publication) (*models.Publication, error) {
	if err := policy.Authorize(actor, policy.PublishContent, policy.ResourceOf(p)); err != nil {
		return nil, err
	}
	if err := p.Unpublish(); err != nil {
		return nil, err
	}

	ok, err := s.pubRepo.Unpublish(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("unpublish publication: %w", err)
	}
	if !ok {
		return nil, s.classify(ctx, p.ID, func(current *models.Publication) error {
			return current.Unpublish()
		}, models.ErrPublicationHidden)
	}

	s.log.InfoContext(ctx, "publication unpublished", "publication_id", p.ID, "by", actor.ID)
	return s.reload(ctx, p.ID)
}

// classify explains why a conditional update matched no row by replaying the
// transition against the current record.
func (s *publicationService) classify(ctx context.Context, id uint, transition func(*models.Publication) error, fallback error) error {
	current, err := s.pubRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrPublicationNotFound
		}
		return fmt.Errorf("reload publication: %w", err)
	}
	if err := transition(current); err != nil {
		return err
	}
	return fallback
}
