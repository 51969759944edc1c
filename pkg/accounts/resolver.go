package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-identity/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

const tracerName = "github.com/StricklySoft/stricklysoft-identity/pkg/accounts"

// Webhook results recorded by the events counter and returned to the
// provider.
const (
	WebhookApplied = "ok"
	WebhookIgnored = "ignored"
	WebhookFailed  = "error"
)

// Resolver maps verified identities to accounts. It is safe for
// concurrent use.
type Resolver struct {
	store    Store
	userInfo UserInfoSource
	validate *validator.Validate
	now      func() time.Time
	tracer   trace.Tracer
	logger   *slog.Logger
	metrics  *Metrics
}

var _ auth.AccountResolver = (*Resolver)(nil)

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithUserInfo sets the provider lookup used when a token carries no
// usable email or profile data.
func WithUserInfo(src UserInfoSource) ResolverOption {
	return func(r *Resolver) { r.userInfo = src }
}

// WithClock overrides time.Now for last-login stamps.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) ResolverOption {
	return func(r *Resolver) { r.tracer = tp.Tracer(tracerName) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver returns a resolver over store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveFromClaims returns the live account for the token's subject,
// creating it on first login, and stamps its last login.
//
// A concurrent first login that wins the insert is not an error: the
// loser re-reads and returns the winner's row. If the re-read finds no
// live row, for example because the subject's account was soft-deleted,
// the result is INT_005.
func (r *Resolver) ResolveFromClaims(ctx context.Context, claims *auth.TokenClaims) (_ *models.Account, retErr error) {
	ctx, span := r.tracer.Start(ctx, "accounts.ResolveFromClaims")
	defer func() {
		finishSpan(span, retErr)
		span.End()
	}()

	if claims == nil || claims.SubjectID == "" {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "accounts: claims carry no subject")
	}
	span.SetAttributes(attribute.String("identity.subject_id", claims.SubjectID))

	path := PathExisting
	acct, err := r.store.GetBySubjectID(ctx, claims.SubjectID)
	if sserr.HasCode(err, sserr.CodeNotFoundAccount) {
		acct, path, err = r.provision(ctx, claims)
	}
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	if err := r.store.TouchLastLogin(ctx, acct.ID, now); err != nil {
		return nil, err
	}
	acct.LastLoginAt = &now

	r.metrics.provision(path)
	span.SetAttributes(
		attribute.Int64("identity.account_id", acct.ID),
		attribute.String("identity.provision_path", path),
	)
	return acct, nil
}

func (r *Resolver) provision(ctx context.Context, claims *auth.TokenClaims) (*models.Account, string, error) {
	email := claims.Email
	hints := claims.Hints()
	picture := claims.Picture()

	if models.IsPlaceholderEmail(email) || blankHints(hints) {
		if info := r.lookupUser(ctx, claims.SubjectID); info != nil {
			if models.IsPlaceholderEmail(email) && !models.IsPlaceholderEmail(info.Email) {
				email = info.Email
			}
			hints = hints.Merge(info.Hints())
			if picture == nil && info.ImageURL != "" {
				img := info.ImageURL
				picture = &img
			}
		}
	}
	if models.IsPlaceholderEmail(email) {
		email = models.PlaceholderEmail(claims.SubjectID)
	}

	acct, recovered, err := r.createOrRecover(ctx, models.NewAccount{
		SubjectID:       claims.SubjectID,
		Email:           email,
		Nickname:        models.DeriveNickname(hints, email),
		ProfileImageURL: picture,
	})
	if err != nil {
		return nil, "", err
	}
	if recovered {
		return acct, PathRecovered, nil
	}
	r.logger.InfoContext(ctx, "accounts: account provisioned",
		"subject_id", acct.SubjectID, "account_id", acct.ID)
	return acct, PathCreated, nil
}

// createOrRecover inserts na. On a uniqueness conflict it returns the live
// row for the same subject instead.
func (r *Resolver) createOrRecover(ctx context.Context, na models.NewAccount) (*models.Account, bool, error) {
	acct, err := r.store.Insert(ctx, na)
	if err == nil {
		return acct, false, nil
	}
	if !sserr.IsConflict(err) {
		return nil, false, sserr.Wrap(err, sserr.CodeInternalAccountCreation, "accounts: failed to create account")
	}

	existing, ferr := r.store.GetBySubjectID(ctx, na.SubjectID)
	if ferr == nil {
		r.logger.DebugContext(ctx, "accounts: insert lost race, using existing account",
			"subject_id", na.SubjectID, "account_id", existing.ID)
		return existing, true, nil
	}
	if !sserr.HasCode(ferr, sserr.CodeNotFoundAccount) {
		return nil, false, sserr.Wrap(ferr, sserr.CodeInternalAccountCreation, "accounts: failed to re-read account after conflict")
	}

	r.logger.WarnContext(ctx, "accounts: insert conflicted but no live account exists",
		"subject_id", na.SubjectID, "error", err)
	out := sserr.Wrap(err, sserr.CodeInternalAccountCreation, "accounts: failed to create account").
		WithDetail("subject_id", na.SubjectID)
	if e, ok := sserr.AsError(err); ok && e.Details["constraint"] != nil {
		out = out.WithDetail("constraint", e.Details["constraint"])
	}
	return nil, false, out
}

func (r *Resolver) lookupUser(ctx context.Context, subjectID string) *models.UserInfo {
	if r.userInfo == nil {
		return nil
	}
	info, err := r.userInfo.LookupUser(ctx, subjectID)
	switch {
	case err != nil:
		r.metrics.userLookup("error")
		r.logger.WarnContext(ctx, "accounts: provider user lookup failed, continuing without it",
			"subject_id", subjectID, "error", err)
		return nil
	case info == nil:
		r.metrics.userLookup("empty")
	default:
		r.metrics.userLookup("ok")
	}
	return info
}

func blankHints(h models.ProfileHints) bool {
	for _, v := range []string{h.Nickname, h.Username, h.FirstName, h.LastName} {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WebhookResult is the outcome of one lifecycle event.
type WebhookResult struct {
	Type   string
	Status string

	// Account is the row written by a created or updated event.
	Account *models.Account

	// Deleted reports whether a deleted event flagged a live account.
	Deleted bool
}

// ResolveFromWebhookEvent applies a verified provider lifecycle event.
//
// user.created and user.updated write the provider's view through,
// inserting the account when it is missing. user.deleted soft-deletes the
// subject's account if there is one. Other event types are ignored.
//
// Error codes:
//   - [sserr.CodeValidationFormat]: data is not a user object
//   - [sserr.CodeValidationRequired]: data has no user id
//   - [sserr.CodeValidationMissingEmail]: created/updated user has no email
//   - [sserr.CodeInternalAccountCreation]: insert failed and no row to recover
func (r *Resolver) ResolveFromWebhookEvent(ctx context.Context, evt models.WebhookEvent) (_ *WebhookResult, retErr error) {
	ctx, span := r.tracer.Start(ctx, "accounts.ResolveFromWebhookEvent",
		trace.WithAttributes(attribute.String("identity.event_type", evt.Type)))
	label := eventLabel(evt.Type)
	defer func() {
		finishSpan(span, retErr)
		span.End()
		if retErr != nil {
			r.metrics.webhookEvent(label, WebhookFailed)
		}
	}()

	switch evt.Type {
	case models.EventUserCreated, models.EventUserUpdated, models.EventUserDeleted:
	default:
		r.logger.InfoContext(ctx, "accounts: ignoring webhook event", "event_type", evt.Type)
		r.metrics.webhookEvent(label, WebhookIgnored)
		return &WebhookResult{Type: evt.Type, Status: WebhookIgnored}, nil
	}

	user, err := decodeWebhookUser(evt.Data)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("identity.subject_id", user.ID))

	res := &WebhookResult{Type: evt.Type, Status: WebhookApplied}
	if evt.Type == models.EventUserDeleted {
		deleted, err := r.store.SoftDelete(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		res.Deleted = deleted
		r.logger.InfoContext(ctx, "accounts: account deleted by provider",
			"subject_id", user.ID, "found", deleted)
	} else {
		acct, err := r.upsertFromProvider(ctx, user)
		if err != nil {
			return nil, err
		}
		res.Account = acct
		r.logger.InfoContext(ctx, "accounts: account synced from provider",
			"event_type", evt.Type, "subject_id", user.ID, "account_id", acct.ID)
	}
	r.metrics.webhookEvent(label, WebhookApplied)
	return res, nil
}

func (r *Resolver) upsertFromProvider(ctx context.Context, u *models.WebhookUser) (*models.Account, error) {
	email := u.PrimaryEmail()
	if email == "" {
		return nil, sserr.New(sserr.CodeValidationMissingEmail, "accounts: provider user has no email address").
			WithDetail("subject_id", u.ID)
	}
	nickname := models.DeriveNickname(u.Hints(), email)
	update := models.ProviderUpdate{Email: &email, Nickname: &nickname, ProfileImageURL: u.Image()}

	acct, err := r.store.UpdateFromProvider(ctx, u.ID, update)
	if !sserr.HasCode(err, sserr.CodeNotFoundAccount) {
		return acct, err
	}

	acct, recovered, err := r.createOrRecover(ctx, models.NewAccount{
		SubjectID:       u.ID,
		Email:           email,
		Nickname:        nickname,
		ProfileImageURL: update.ProfileImageURL,
	})
	if err != nil || !recovered {
		return acct, err
	}
	// Someone else created the row between our update and insert.
	return r.store.UpdateFromProvider(ctx, u.ID, update)
}

func decodeWebhookUser(data json.RawMessage) (*models.WebhookUser, error) {
	var u models.WebhookUser
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidationFormat, "accounts: webhook data is not a user object")
	}
	if u.ID == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "accounts: webhook user id is missing")
	}
	return &u, nil
}

func eventLabel(t string) string {
	switch t {
	case models.EventUserCreated, models.EventUserUpdated, models.EventUserDeleted:
		return t
	default:
		return "other"
	}
}

// UpdateProfile applies a user edit to account id and returns the result.
// An empty edit returns the account unchanged.
func (r *Resolver) UpdateProfile(ctx context.Context, id int64, u models.ProfileUpdate) (_ *models.Account, retErr error) {
	ctx, span := r.tracer.Start(ctx, "accounts.UpdateProfile",
		trace.WithAttributes(attribute.Int64("identity.account_id", id)))
	defer func() {
		finishSpan(span, retErr)
		span.End()
	}()

	u.Normalize()
	if err := r.validate.Struct(u); err != nil {
		return nil, validationError(err)
	}
	if u.IsEmpty() {
		return r.store.GetByID(ctx, id)
	}
	return r.store.UpdateProfile(ctx, id, u)
}

func validationError(err error) *sserr.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return sserr.Wrap(err, sserr.CodeValidation, "invalid profile update")
	}
	fe := verrs[0]
	field := jsonFieldName(fe.Field())
	switch fe.Tag() {
	case "min", "max":
		var msg string
		if field == "nickname" {
			msg = fmt.Sprintf("nickname must be %d to %d characters",
				models.ProfileNicknameMinLength, models.ProfileNicknameMaxLength)
		} else {
			msg = fmt.Sprintf("%s must be at most %d characters", field, models.ProfileImageURLMaxLength)
		}
		return sserr.New(sserr.CodeValidationRange, msg).WithDetail("field", field)
	default:
		return sserr.Newf(sserr.CodeValidation, "%s is invalid", field).WithDetail("field", field)
	}
}

func jsonFieldName(structField string) string {
	switch structField {
	case "Nickname":
		return "nickname"
	case "ProfileImageURL":
		return "profile_image_url"
	default:
		return structField
	}
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
