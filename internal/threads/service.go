package threads

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"blogpilot/internal/domain"
	"blogpilot/internal/infra/credentials"
	"blogpilot/internal/ledger"
	"blogpilot/internal/posts"
	"blogpilot/internal/sanitize"
)

const (
	MaxTextRunes = 500
	ShareFeature = "threads_share"
)

// Service links Threads accounts and shares posts, charging the
// threads_share feature for every successful share.
type Service struct {
	users  domain.UserRepository
	posts  *posts.Service
	ledger *ledger.Service
	client *Client
	cipher *credentials.Cipher
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(users domain.UserRepository, postSvc *posts.Service, ledgerSvc *ledger.Service, client *Client, cipher *credentials.Cipher, logger zerolog.Logger) *Service {
	return &Service{
		users:  users,
		posts:  postSvc,
		ledger: ledgerSvc,
		client: client,
		cipher: cipher,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type ConnectInput struct {
	AccessToken string
	// ExpiresIn is the token lifetime in seconds as returned by the OAuth
	// exchange. Zero means 60 days.
	ExpiresIn int64
}

func (s *Service) Connect(ctx context.Context, userID string, in ConnectInput) (*domain.ThreadsIntegration, error) {
	token := strings.TrimSpace(in.AccessToken)
	if token == "" {
		return nil, fmt.Errorf("%w: access token is required", domain.ErrInvalidInput)
	}
	if in.ExpiresIn < 0 {
		return nil, fmt.Errorf("%w: expiresIn must not be negative", domain.ErrInvalidInput)
	}
	profile, err := s.client.Me(ctx, token)
	if err != nil {
		return nil, err
	}
	sealed, err := s.cipher.Seal(userID, credentials.PurposeThreads, token)
	if err != nil {
		return nil, err
	}
	lifetime := time.Duration(in.ExpiresIn) * time.Second
	if lifetime == 0 {
		lifetime = 60 * 24 * time.Hour
	}
	now := s.now()
	th := &domain.ThreadsIntegration{
		ThreadsUserID: profile.ID,
		Username:      profile.Username,
		TokenSealed:   sealed,
		ExpiresAt:     now.Add(lifetime),
		ConnectedAt:   now,
	}
	if err := s.users.SetThreads(ctx, userID, th); err != nil {
		return nil, fmt.Errorf("save threads integration: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("threads_user", profile.Username).Msg("threads connected")
	return th, nil
}

func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.users.SetThreads(ctx, userID, nil); err != nil {
		return fmt.Errorf("clear threads integration: %w", err)
	}
	return nil
}

// SharePost posts title, excerpt and link of a post. The charge is refunded
// when Threads rejects the post. Reusing idempotencyKey after a successful
// share returns the shared post without a second charge.
func (s *Service) SharePost(ctx context.Context, userID, postID, idempotencyKey string) (*domain.Post, error) {
	p, err := s.posts.Get(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PostStatusPublished {
		return nil, fmt.Errorf("%w: only published posts can be shared", domain.ErrInvalidInput)
	}
	threadsUserID, token, err := s.token(ctx, userID)
	if err != nil {
		return nil, err
	}

	key := ""
	if k := strings.TrimSpace(idempotencyKey); k != "" {
		key = "threads:" + p.ID + ":" + k
	}
	charge, err := s.ledger.DeductForFeature(ctx, ledger.FeatureRequest{
		UserID:         userID,
		Feature:        ShareFeature,
		Actor:          userID,
		IdempotencyKey: key,
		Metadata:       map[string]string{"postId": p.ID},
	})
	if err != nil {
		return nil, err
	}
	if charge.Replayed {
		if p.Threads != nil {
			return p, nil
		}
		return nil, fmt.Errorf("%w: share already attempted with this key", domain.ErrIdempotencyConflict)
	}

	share, err := s.publish(ctx, threadsUserID, token, ComposeText(p))
	if err != nil {
		s.refund(ctx, charge.Transaction.ID, err)
		return nil, err
	}
	updated, err := s.posts.RecordThreads(ctx, p, *share)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Str("post_id", p.ID).Str("media_id", share.MediaID).Msg("post shared to threads")
	return updated, nil
}

func (s *Service) publish(ctx context.Context, threadsUserID, token, text string) (*domain.ThreadsShare, error) {
	creationID, err := s.client.CreateTextContainer(ctx, threadsUserID, token, text)
	if err != nil {
		return nil, err
	}
	mediaID, err := s.client.Publish(ctx, threadsUserID, token, creationID)
	if err != nil {
		return nil, err
	}
	share := &domain.ThreadsShare{MediaID: mediaID, PostedAt: s.now()}
	// The post exists at this point; a missing permalink is not a failure.
	if link, err := s.client.Permalink(ctx, mediaID, token); err != nil {
		s.logger.Warn().Err(err).Str("media_id", mediaID).Msg("threads permalink lookup failed")
	} else {
		share.Permalink = link
	}
	return share, nil
}

func (s *Service) refund(ctx context.Context, txID string, cause error) {
	_, err := s.ledger.Refund(ctx, ledger.RefundRequest{
		TransactionID: txID,
		Actor:         "system",
		Reason:        "threads share failed",
	})
	if err != nil {
		s.logger.Error().Err(err).AnErr("cause", cause).Str("tx_id", txID).Msg("threads refund failed")
	}
}

func (s *Service) token(ctx context.Context, userID string) (threadsUserID, token string, err error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if u.Threads == nil {
		return "", "", fmt.Errorf("%w: threads", domain.ErrIntegrationMissing)
	}
	if !u.Threads.ExpiresAt.IsZero() && !u.Threads.ExpiresAt.After(s.now()) {
		return "", "", fmt.Errorf("%w: threads token expired", domain.ErrIntegrationMissing)
	}
	token, err = s.cipher.Open(userID, credentials.PurposeThreads, u.Threads.TokenSealed)
	if err != nil {
		return "", "", fmt.Errorf("open threads token: %w", err)
	}
	return u.Threads.ThreadsUserID, token, nil
}

// ComposeText builds the share text. Title and link are kept whole; the
// excerpt absorbs the truncation.
func ComposeText(p *domain.Post) string {
	link := ""
	if p.WordPress != nil {
		link = p.WordPress.Link
	}
	head := sanitize.Truncate(p.Title, MaxTextRunes)
	tail := ""
	if link != "" {
		tail = "\n\n" + link
	}
	room := MaxTextRunes - utf8.RuneCountInString(head) - utf8.RuneCountInString(tail)
	if room < 0 {
		return sanitize.Truncate(head, MaxTextRunes)
	}
	body := ""
	if p.Excerpt != "" && room > 2 {
		body = "\n\n" + sanitize.Truncate(p.Excerpt, room-2)
	}
	return head + body + tail
}
