package boards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/identity"
	"github.com/slateboards/slate/pkg/observability"
	"github.com/slateboards/slate/pkg/orgs"
	"github.com/slateboards/slate/pkg/perm"
	"github.com/slateboards/slate/pkg/quota"
	"github.com/slateboards/slate/pkg/ratelimit"
	"github.com/slateboards/slate/pkg/storage"
	"github.com/slateboards/slate/pkg/tenancy"
)

const serializationFailure = "40001"

// retryBackoff spaces the single retry of the serializable attachment
// transaction.
const retryBackoff = 25 * time.Millisecond

// Service implements board, list, card and attachment operations for one
// deployment.
type Service struct {
	db      *sql.DB
	orgs    *orgs.PostgresService
	checker *perm.Checker
	limiter *ratelimit.Limiter
	objects storage.ObjectStore
	metrics *observability.Metrics
}

// NewService wires the board service.
func NewService(db *sql.DB, orgService *orgs.PostgresService, checker *perm.Checker, limiter *ratelimit.Limiter, objects storage.ObjectStore, metrics *observability.Metrics) *Service {
	return &Service{
		db:      db,
		orgs:    orgService,
		checker: checker,
		limiter: limiter,
		objects: objects,
		metrics: metrics,
	}
}

func (s *Service) store(tc *identity.TenantContext) *tenancy.Store {
	return tenancy.NewStore(s.db, tc, s.metrics)
}

func (s *Service) rejectQuota(resource quota.Resource, err error) error {
	if apperrors.IsLimitReached(err) && s.metrics != nil {
		s.metrics.QuotaRejected.WithLabelValues(string(resource)).Inc()
	}
	return err
}

// ListBoards returns the caller's organization's boards.
func (s *Service) ListBoards(ctx context.Context, tc *identity.TenantContext) ([]*tenancy.Board, error) {
	return s.store(tc).ListBoards(ctx)
}

// GetBoard returns one board the caller can view.
func (s *Service) GetBoard(ctx context.Context, tc *identity.TenantContext, id int64) (*tenancy.Board, error) {
	if err := s.checker.Can(ctx, tc, id, perm.PermBoardView); err != nil {
		return nil, err
	}
	return s.store(tc).GetBoard(ctx, id)
}

// CreateBoard creates a board, subject to the org role gate, the board rate
// limit and the plan's board ceiling.
func (s *Service) CreateBoard(ctx context.Context, tc *identity.TenantContext, title string) (*tenancy.Board, error) {
	if err := s.checker.GuardWrite(tc); err != nil {
		return nil, err
	}
	if err := s.checker.RequireOrgRole(tc, orgs.RoleMember); err != nil {
		return nil, err
	}
	if err := s.limiter.Check(ctx, tc.UserID, "board.create"); err != nil {
		return nil, err
	}

	org, err := s.orgs.GetOrganization(ctx, tc.OrgID)
	if err != nil {
		return nil, err
	}
	count, err := s.store(tc).CountBoards(ctx)
	if err != nil {
		return nil, err
	}
	if err := quota.Evaluate(org.Plan, quota.ResourceBoards, count); err != nil {
		return nil, s.rejectQuota(quota.ResourceBoards, err)
	}

	return s.store(tc).CreateBoard(ctx, title)
}

// UpdateBoard renames a board.
func (s *Service) UpdateBoard(ctx context.Context, tc *identity.TenantContext, id int64, title string) error {
	if err := s.checker.GuardWrite(tc); err != nil {
		return err
	}
	if err := s.checker.Can(ctx, tc, id, perm.PermBoardEdit); err != nil {
		return err
	}
	return s.store(tc).UpdateBoard(ctx, id, title)
}

// DeleteBoard deletes a board and everything on it.
func (s *Service) DeleteBoard(ctx context.Context, tc *identity.TenantContext, id int64) error {
	if err := s.checker.GuardWrite(tc); err != nil {
		return err
	}
	if err := s.checker.Can(ctx, tc, id, perm.PermBoardDelete); err != nil {
		return err
	}
	return s.store(tc).DeleteBoard(ctx, id)
}

// CreateList adds a list to a board.
func (s *Service) CreateList(ctx context.Context, tc *identity.TenantContext, boardID int64, title string) (*tenancy.List, error) {
	if err := s.checker.GuardWrite(tc); err != nil {
		return nil, err
	}
	if err := s.checker.Can(ctx, tc, boardID, perm.PermBoardEdit); err != nil {
		return nil, err
	}
	return s.store(tc).CreateList(ctx, boardID, title)
}

// CreateCard adds a card to a list, subject to the card rate limit and the
// plan's per-board card ceiling.
func (s *Service) CreateCard(ctx context.Context, tc *identity.TenantContext, listID int64, title, description string) (*tenancy.Card, error) {
	if err := s.checker.GuardWrite(tc); err != nil {
		return nil, err
	}

	store := s.store(tc)
	list, err := store.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Can(ctx, tc, list.BoardID, perm.PermCardCreate); err != nil {
		return nil, err
	}
	// The limiter only sees callers who may actually create: a forbidden
	// caller must not burn budget or be told RATE_LIMITED instead of the
	// truthful answer.
	if err := s.limiter.Check(ctx, tc.UserID, "card.create"); err != nil {
		return nil, err
	}

	org, err := s.orgs.GetOrganization(ctx, tc.OrgID)
	if err != nil {
		return nil, err
	}
	count, err := store.CountCards(ctx, list.BoardID)
	if err != nil {
		return nil, err
	}
	if err := quota.Evaluate(org.Plan, quota.ResourceCardsPerBoard, count); err != nil {
		return nil, s.rejectQuota(quota.ResourceCardsPerBoard, err)
	}

	return store.CreateCard(ctx, listID, title, description)
}

// UpdateCard edits a card's title and description.
func (s *Service) UpdateCard(ctx context.Context, tc *identity.TenantContext, id int64, title, description string) error {
	if err := s.checker.GuardWrite(tc); err != nil {
		return err
	}

	store := s.store(tc)
	card, err := store.GetCard(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checker.Can(ctx, tc, card.BoardID, perm.PermCardEdit); err != nil {
		return err
	}
	return store.UpdateCard(ctx, id, title, description)
}

// DeleteCard removes a card.
func (s *Service) DeleteCard(ctx context.Context, tc *identity.TenantContext, id int64) error {
	if err := s.checker.GuardWrite(tc); err != nil {
		return err
	}

	store := s.store(tc)
	card, err := store.GetCard(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checker.Can(ctx, tc, card.BoardID, perm.PermCardDelete); err != nil {
		return err
	}
	return store.DeleteCard(ctx, id)
}

// ReorderCards applies a new card ordering to a list. The ordering is
// validated against the list's actual cards; any foreign or stale id rejects
// the whole request.
func (s *Service) ReorderCards(ctx context.Context, tc *identity.TenantContext, listID int64, orderedIDs []int64) error {
	if err := s.checker.GuardWrite(tc); err != nil {
		return err
	}

	store := s.store(tc)
	list, err := store.GetList(ctx, listID)
	if err != nil {
		return err
	}
	if err := s.checker.Can(ctx, tc, list.BoardID, perm.PermCardMove); err != nil {
		return err
	}
	if err := s.limiter.Check(ctx, tc.UserID, "card.reorder"); err != nil {
		return err
	}

	return store.ReorderCards(ctx, listID, orderedIDs)
}

// CreateAttachment attaches a file to a card.
//
// The plan ceiling is checked twice: an advisory read up front for a fast
// rejection, then again inside a serializable transaction that counts and
// inserts atomically. Two concurrent uploads at the ceiling conflict at
// commit; the loser retries once and then is rejected. Bytes reach object
// storage only after the metadata row commits.
func (s *Service) CreateAttachment(ctx context.Context, tc *identity.TenantContext, cardID int64, fileName, contentType string, sizeBytes int64, content io.Reader) (*tenancy.Attachment, error) {
	if err := s.checker.GuardWrite(tc); err != nil {
		return nil, err
	}

	store := s.store(tc)
	card, err := store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Can(ctx, tc, card.BoardID, perm.PermAttachmentAdd); err != nil {
		return nil, err
	}
	if err := s.limiter.Check(ctx, tc.UserID, "attachment.upload"); err != nil {
		return nil, err
	}

	org, err := s.orgs.GetOrganization(ctx, tc.OrgID)
	if err != nil {
		return nil, err
	}
	limits := quota.ForPlan(org.Plan)

	current, err := store.CountAttachments(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if err := quota.Check(quota.ResourceAttachmentsPerCard, current, limits.MaxAttachmentsPerCard); err != nil {
		return nil, s.rejectQuota(quota.ResourceAttachmentsPerCard, err)
	}

	attachment, err := s.createAttachmentAuthoritative(ctx, store, card, fileName, sizeBytes, limits.MaxAttachmentsPerCard)
	if err != nil {
		return nil, err
	}

	objectKey := fmt.Sprintf("attachments/%s/%d/%s", tc.OrgID, attachment.ID, uuid.New().String())
	if err := s.objects.PutObject(ctx, objectKey, content, contentType); err != nil {
		return nil, fmt.Errorf("failed to upload attachment: %w", err)
	}
	if err := store.MarkAttachmentUploaded(ctx, attachment.ID, objectKey); err != nil {
		return nil, err
	}
	attachment.ObjectKey = objectKey
	attachment.Uploaded = true

	return attachment, nil
}

func (s *Service) createAttachmentAuthoritative(ctx context.Context, store *tenancy.Store, card *tenancy.Card, fileName string, sizeBytes int64, limit int) (*tenancy.Attachment, error) {
	check := func(current int) error {
		return quota.Check(quota.ResourceAttachmentsPerCard, current, limit)
	}

	attachment, err := store.CreateAttachmentAuthoritative(ctx, card, fileName, sizeBytes, check)
	if err == nil {
		return attachment, nil
	}
	if apperrors.IsLimitReached(err) {
		return nil, s.rejectQuota(quota.ResourceAttachmentsPerCard, err)
	}
	if !isSerializationFailure(err) {
		return nil, err
	}

	// Lost a serializable race. One retry with fresh state; a second
	// conflict means the card is contended at its ceiling, so deny.
	if s.metrics != nil {
		s.metrics.QuotaRetries.Inc()
	}
	time.Sleep(retryBackoff)

	attachment, err = store.CreateAttachmentAuthoritative(ctx, card, fileName, sizeBytes, check)
	if err == nil {
		return attachment, nil
	}
	if apperrors.IsLimitReached(err) || isSerializationFailure(err) {
		return nil, s.rejectQuota(quota.ResourceAttachmentsPerCard, &apperrors.LimitReachedError{
			Resource: string(quota.ResourceAttachmentsPerCard),
			Current:  limit,
			Limit:    limit,
		})
	}
	return nil, err
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == serializationFailure
}

// ListAttachments returns a card's attachments.
func (s *Service) ListAttachments(ctx context.Context, tc *identity.TenantContext, cardID int64) ([]*tenancy.Attachment, error) {
	store := s.store(tc)
	card, err := store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Can(ctx, tc, card.BoardID, perm.PermBoardView); err != nil {
		return nil, err
	}
	return store.ListAttachments(ctx, cardID)
}

// OpenAttachment streams an attachment's bytes.
func (s *Service) OpenAttachment(ctx context.Context, tc *identity.TenantContext, cardID, attachmentID int64) (io.ReadCloser, *tenancy.Attachment, error) {
	attachments, err := s.ListAttachments(ctx, tc, cardID)
	if err != nil {
		return nil, nil, err
	}
	for _, a := range attachments {
		if a.ID == attachmentID && a.Uploaded {
			reader, err := s.objects.GetObject(ctx, a.ObjectKey)
			if err != nil {
				return nil, nil, err
			}
			return reader, a, nil
		}
	}
	return nil, nil, apperrors.ErrNotFound
}

// RecordAICall spends one AI call from the organization's monthly budget.
// The pre-check rejects without consuming; the post-increment check catches
// the race where two calls both passed the pre-check at the ceiling.
func (s *Service) RecordAICall(ctx context.Context, tc *identity.TenantContext) error {
	if err := s.checker.GuardWrite(tc); err != nil {
		return err
	}
	if err := s.limiter.Check(ctx, tc.UserID, "ai.generate"); err != nil {
		return err
	}

	org, err := s.orgs.GetOrganization(ctx, tc.OrgID)
	if err != nil {
		return err
	}
	limits := quota.ForPlan(org.Plan)
	if err := quota.Check(quota.ResourceAICallsPerMonth, org.AICallsUsed, limits.MaxAICallsPerMonth); err != nil {
		return s.rejectQuota(quota.ResourceAICallsPerMonth, err)
	}

	used, err := s.orgs.IncrementAICalls(ctx, tc.OrgID)
	if err != nil {
		return err
	}
	if used > limits.MaxAICallsPerMonth {
		return s.rejectQuota(quota.ResourceAICallsPerMonth, &apperrors.LimitReachedError{
			Resource: string(quota.ResourceAICallsPerMonth),
			Current:  used,
			Limit:    limits.MaxAICallsPerMonth,
		})
	}

	return nil
}
