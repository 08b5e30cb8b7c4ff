// Package gig implements the posting lifecycle: moderated submission,
// approval, fan-out, applications, reports and teardown. Contact
// between posters and applicants is brokered through direct messages;
// the posts themselves never carry contact details.
package gig

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"gigboard/internal/access"
	"gigboard/internal/filter"
	"gigboard/internal/ratelimit"
	"gigboard/internal/replicate"
	"gigboard/internal/snapshot"
	"gigboard/internal/storage"
	"gigboard/internal/transport"
	"gigboard/pkg/logx"
)

type Config struct {
	DefaultExpiry  time.Duration
	MinDescription int
	MinPay         int
}

func (c *Config) normalize() {
	if c.DefaultExpiry <= 0 {
		c.DefaultExpiry = 7 * 24 * time.Hour
	}
	if c.MinDescription <= 0 {
		c.MinDescription = 100
	}
	if c.MinPay <= 0 {
		c.MinPay = 20
	}
}

// SubmitInput is the raw modal content of a submission.
type SubmitInput struct {
	Title       string
	Description string
	Pay         string
	Timeline    string
}

func (in SubmitInput) echo() []EchoField {
	fields := []EchoField{
		{Name: "Title", Value: in.Title},
		{Name: "Description", Value: in.Description},
		{Name: "Pay", Value: in.Pay},
	}
	if in.Timeline != "" {
		fields = append(fields, EchoField{Name: "Timeline", Value: in.Timeline})
	}
	return fields
}

func (in SubmitInput) sanitized() SubmitInput {
	return SubmitInput{
		Title:       Sanitize(in.Title),
		Description: Sanitize(in.Description),
		Pay:         Sanitize(in.Pay),
		Timeline:    Sanitize(in.Timeline),
	}
}

// ApplyInput is the raw modal content of an application.
type ApplyInput struct {
	Name    string
	Message string
	Resume  string
}

// SubmitResult reports what happened to a submission.
type SubmitResult struct {
	GigID   string
	Pending bool
	Results []replicate.Result
}

// Service executes lifecycle operations.
type Service struct {
	cfg     Config
	store   *storage.Store
	cache   *snapshot.Cache
	acl     *access.Control
	limiter *ratelimit.Limiter
	engine  *replicate.Engine
	msgr    transport.Messenger
	log     logx.Logger

	now   func() time.Time
	newID func() string
}

func NewService(cfg Config, store *storage.Store, cache *snapshot.Cache, acl *access.Control,
	limiter *ratelimit.Limiter, engine *replicate.Engine, msgr transport.Messenger, log logx.Logger) *Service {
	cfg.normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		cache:   cache,
		acl:     acl,
		limiter: limiter,
		engine:  engine,
		msgr:    msgr,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

var firstInt = regexp.MustCompile(`\d+`)

// Submit validates a submission and either posts it (open categories)
// or parks it pending approval (approve-mode categories). Validation
// failures return a ValidationError carrying the input back.
func (s *Service) Submit(ctx context.Context, actor access.Actor, originChannel, categoryID string, in SubmitInput) (SubmitResult, error) {
	ok, err := s.acl.CanCreateGig(ctx, actor)
	if err != nil {
		return SubmitResult{}, err
	}
	if !ok {
		return SubmitResult{}, &PermissionError{Op: "post gigs"}
	}
	banned, err := s.acl.IsBanned(ctx, actor, categoryID)
	if err != nil {
		return SubmitResult{}, err
	}
	if banned {
		return SubmitResult{}, &PermissionError{Op: "use this bot"}
	}

	joined := strings.Join([]string{in.Title, in.Description, in.Pay, in.Timeline}, " ")
	if reason := filter.FindProhibited(joined); reason != "" {
		return SubmitResult{}, &ValidationError{
			Reason: "For your security, contact details are not allowed in gig posts. The bot handles contact automatically. Please remove any contact info or usernames.",
			Echo:   in.echo(),
		}
	}
	if len(in.Description) < s.cfg.MinDescription {
		return SubmitResult{}, &ValidationError{
			Reason: fmt.Sprintf("Description must be at least %d characters. Current length: %d", s.cfg.MinDescription, len(in.Description)),
			Echo:   in.echo(),
		}
	}
	if !s.payMeetsMinimum(in.Pay) {
		return SubmitResult{}, &ValidationError{
			Reason: fmt.Sprintf("Pay must contain a number of at least %d.", s.cfg.MinPay),
			Echo:   in.echo(),
		}
	}

	v, err := s.cache.View(ctx)
	if err != nil {
		return SubmitResult{}, err
	}
	cat, okCat := v.Categories[categoryID]
	if !okCat {
		return SubmitResult{}, &NotFoundError{Msg: "This category no longer exists."}
	}
	if cat.ApproveMode && len(v.Reports[categoryID]) == 0 {
		return SubmitResult{}, &ValidationError{
			Reason: "This category requires approval, but no report channels are configured.",
			Echo:   in.echo(),
		}
	}

	if !cat.ApproveMode {
		mod, err := s.acl.IsModerator(ctx, actor)
		if err != nil {
			return SubmitResult{}, err
		}
		if !mod {
			remaining, err := s.limiter.Check(ctx, actor.UserID, originChannel)
			if err != nil {
				return SubmitResult{}, err
			}
			if remaining > 0 {
				return SubmitResult{}, &CooldownError{Remaining: remaining.Round(time.Minute).String()}
			}
		}
	}

	now := s.now()
	g := storage.Gig{
		ID:         s.newID(),
		AuthorID:   actor.UserID,
		CategoryID: categoryID,
		OriginID:   originChannel,
		CreatedAt:  now,
		ExpiresAt:  now.Add(v.ExpiryFor(originChannel, s.cfg.DefaultExpiry)),
		Status:     storage.GigApproved,
	}
	if cat.ApproveMode {
		g.Status = storage.GigPending
	}
	if err := s.store.InsertGig(ctx, g); err != nil {
		return SubmitResult{}, err
	}
	if err := s.limiter.Record(ctx, actor.UserID, originChannel); err != nil {
		s.log.Warn("rate limit record failed", logx.String("user", actor.UserID), logx.Err(err))
	}

	clean := in.sanitized()
	if err := s.store.PutPayload(ctx, storage.Payload{
		GigID: g.ID, Title: clean.Title, Description: clean.Description,
		Pay: clean.Pay, Timeline: clean.Timeline,
	}); err != nil {
		return SubmitResult{}, err
	}

	if cat.ApproveMode {
		prompt := approvalPrompt(g.ID, actor.UserID, clean)
		for _, ch := range v.Reports[categoryID] {
			if _, err := s.msgr.Send(ctx, ch, prompt); err != nil {
				s.log.Error("approval prompt failed", logx.String("gig", g.ID), logx.String("channel", ch), logx.Err(err))
			}
		}
		return SubmitResult{GigID: g.ID, Pending: true}, nil
	}

	results := s.postToTargets(ctx, g, clean, v)
	return SubmitResult{GigID: g.ID, Results: results}, nil
}

func (s *Service) payMeetsMinimum(pay string) bool {
	m := firstInt.FindString(pay)
	if m == "" {
		return false
	}
	n, err := strconv.Atoi(m)
	return err == nil && n >= s.cfg.MinPay
}

func (s *Service) postToTargets(ctx context.Context, g storage.Gig, p SubmitInput, v *snapshot.View) []replicate.Result {
	out := transport.Outgoing{
		Embed:   postingEmbed(p),
		Buttons: postingButtons("pending"),
	}
	return s.engine.FanOut(ctx, g.ID, g.OriginID, v.Targets[g.CategoryID], out,
		func(ref transport.MessageRef) transport.Outgoing {
			return transport.Outgoing{Embed: postingEmbed(p), Buttons: postingButtons(ref.MessageID)}
		})
}

// Accept approves a pending gig. The expiry clock starts at approval,
// not submission, using the origin channel's policy.
func (s *Service) Accept(ctx context.Context, actor access.Actor, gigID string) ([]replicate.Result, error) {
	if err := s.requireModerator(ctx, actor, "approve gigs"); err != nil {
		return nil, err
	}
	g, err := s.getGig(ctx, gigID)
	if err != nil {
		return nil, err
	}
	if err := transition(g.Status, storage.GigApproved); err != nil {
		return nil, err
	}
	p, err := s.store.GetPayload(ctx, gigID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{Msg: "Gig payload not found."}
		}
		return nil, err
	}
	v, err := s.cache.View(ctx)
	if err != nil {
		return nil, err
	}
	expires := s.now().Add(v.ExpiryFor(g.OriginID, s.cfg.DefaultExpiry))
	if err := s.store.ApproveGig(ctx, gigID, expires); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{Msg: "This gig is no longer available."}
		}
		return nil, err
	}
	g.Status = storage.GigApproved
	in := SubmitInput{Title: p.Title, Description: p.Description, Pay: p.Pay, Timeline: p.Timeline}
	return s.postToTargets(ctx, g, in, v), nil
}

// Reject removes a pending gig without posting it.
func (s *Service) Reject(ctx context.Context, actor access.Actor, gigID string) error {
	if err := s.requireModerator(ctx, actor, "reject gigs"); err != nil {
		return err
	}
	if _, err := s.getGig(ctx, gigID); err != nil {
		return err
	}
	s.retract(ctx, gigID)
	return nil
}

// Banish bans the author at both scopes and removes the gig.
func (s *Service) Banish(ctx context.Context, actor access.Actor, gigID, reason string) error {
	if err := s.requireModerator(ctx, actor, "banish users"); err != nil {
		return err
	}
	g, err := s.getGig(ctx, gigID)
	if err != nil {
		return err
	}
	now := s.now()
	ban := storage.Ban{UserID: g.AuthorID, BannedAt: now, BannedBy: actor.UserID, Reason: reason}
	if actor.GuildID != "" {
		ban.ScopeID = actor.GuildID
		if err := s.store.AddGuildBan(ctx, ban); err != nil {
			return err
		}
	}
	if g.CategoryID != "" {
		ban.ScopeID = g.CategoryID
		if err := s.store.AddCategoryBan(ctx, ban); err != nil {
			return err
		}
	}
	s.retract(ctx, gigID)
	return nil
}

// Delete removes a gig everywhere. Authors delete their own gigs
// freely. Moderators deleting someone else's gig must give a reason,
// which is sent to the author by direct message; a failed notification
// softens to dmFailed rather than an error, the deletion stands.
func (s *Service) Delete(ctx context.Context, actor access.Actor, gigID, reason string) (dmFailed bool, err error) {
	g, err := s.getGig(ctx, gigID)
	if err != nil {
		return false, err
	}
	if actor.UserID == g.AuthorID {
		s.retract(ctx, gigID)
		return false, nil
	}
	if err := s.requireModerator(ctx, actor, "delete this gig"); err != nil {
		return false, err
	}
	if strings.TrimSpace(reason) == "" {
		return false, &PermissionError{Op: "delete without a reason"}
	}

	link := "Unavailable"
	if instances, err := s.store.InstancesForGig(ctx, gigID); err == nil && len(instances) > 0 {
		in := instances[0]
		link = messageLink(transport.MessageRef{GuildID: in.GuildID, ChannelID: in.ChannelID, MessageID: in.MessageID})
	}
	s.retract(ctx, gigID)

	if err := s.msgr.SendDirect(ctx, g.AuthorID, removalDM(reason, link)); err != nil {
		s.log.Warn("removal notification failed", logx.String("gig", gigID), logx.String("author", g.AuthorID), logx.Err(err))
		return true, nil
	}
	return false, nil
}

// DeleteAllForUser retracts every gig the user authored. Users may
// purge their own gigs; purging someone else's requires a moderator.
func (s *Service) DeleteAllForUser(ctx context.Context, actor access.Actor, userID string) (int, error) {
	if actor.UserID != userID {
		if err := s.requireModerator(ctx, actor, "delete another user's gigs"); err != nil {
			return 0, err
		}
	}
	ids, err := s.store.GigIDsByAuthor(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.retract(ctx, id)
	}
	return len(ids), nil
}

// ApplyResult tells the router how to phrase the confirmation.
type ApplyResult struct {
	PosterName string
}

// Apply records an application and forwards it to the poster by direct
// message. The application is only recorded once the message is
// delivered, so a failed delivery can be retried.
func (s *Service) Apply(ctx context.Context, actor access.Actor, messageID string, in ApplyInput) (ApplyResult, error) {
	ok, err := s.acl.CanApply(ctx, actor)
	if err != nil {
		return ApplyResult{}, err
	}
	if !ok {
		return ApplyResult{}, &PermissionError{Op: "apply for gigs"}
	}

	inst, g, err := s.resolveInstance(ctx, messageID)
	if err != nil {
		return ApplyResult{}, err
	}
	if g.Status != storage.GigApproved {
		return ApplyResult{}, &NotFoundError{Msg: "This gig is not currently available."}
	}
	banned, err := s.acl.IsBanned(ctx, actor, g.CategoryID)
	if err != nil {
		return ApplyResult{}, err
	}
	if banned {
		return ApplyResult{}, &PermissionError{Op: "use this bot"}
	}

	posterName, nameErr := s.msgr.DisplayName(ctx, g.AuthorID)
	if nameErr != nil {
		posterName = g.AuthorID
	}

	applied, err := s.store.HasApplication(ctx, g.ID, actor.UserID)
	if err != nil {
		return ApplyResult{}, err
	}
	if applied {
		return ApplyResult{PosterName: posterName}, &ConflictError{Msg: "You have already applied for this gig."}
	}

	v, err := s.cache.View(ctx)
	if err != nil {
		return ApplyResult{}, err
	}
	categoryName := "Uncategorized"
	if cat, ok := v.Categories[g.CategoryID]; ok {
		categoryName = cat.Name
	}
	applicantTag, err := s.msgr.DisplayName(ctx, actor.UserID)
	if err != nil {
		applicantTag = actor.UserID
	}

	clean := ApplyInput{Name: Sanitize(in.Name), Message: Sanitize(in.Message), Resume: Sanitize(in.Resume)}
	link := messageLink(transport.MessageRef{GuildID: inst.GuildID, ChannelID: inst.ChannelID, MessageID: inst.MessageID})
	dm := applicationDM(categoryName, link, actor.UserID, applicantTag, clean, g.ID)
	if err := s.msgr.SendDirect(ctx, g.AuthorID, dm); err != nil {
		return ApplyResult{PosterName: posterName}, fmt.Errorf("deliver application: %w", err)
	}
	if err := s.store.InsertApplication(ctx, g.ID, actor.UserID); err != nil && !errors.Is(err, storage.ErrConflict) {
		return ApplyResult{}, err
	}
	return ApplyResult{PosterName: posterName}, nil
}

// Report records a report and notifies the category's report channels.
// Each reporter may report a gig once.
func (s *Service) Report(ctx context.Context, actor access.Actor, messageID, reason string) error {
	inst, g, err := s.resolveInstance(ctx, messageID)
	if err != nil {
		return err
	}
	banned, err := s.acl.IsBanned(ctx, actor, g.CategoryID)
	if err != nil {
		return err
	}
	if banned {
		return &PermissionError{Op: "use this bot"}
	}
	if err := s.store.InsertReport(ctx, g.ID, actor.UserID); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return &ConflictError{Msg: "You have already reported this gig."}
		}
		return err
	}

	v, err := s.cache.View(ctx)
	if err != nil {
		return err
	}
	categoryName := "Uncategorized"
	if cat, ok := v.Categories[g.CategoryID]; ok {
		categoryName = cat.Name
	}
	reporterTag, err := s.msgr.DisplayName(ctx, actor.UserID)
	if err != nil {
		reporterTag = actor.UserID
	}
	link := messageLink(transport.MessageRef{GuildID: inst.GuildID, ChannelID: inst.ChannelID, MessageID: inst.MessageID})
	out := reportEmbed(reporterTag, actor.UserID, g.AuthorID, categoryName, link, reason, g.ID)
	for _, ch := range v.Reports[g.CategoryID] {
		if _, err := s.msgr.Send(ctx, ch, out); err != nil {
			s.log.Error("report delivery failed", logx.String("gig", g.ID), logx.String("channel", ch), logx.Err(err))
		}
	}
	return nil
}

// GigByMessage resolves the posted copy a button lives on back to its
// gig record.
func (s *Service) GigByMessage(ctx context.Context, messageID string) (storage.Gig, error) {
	_, g, err := s.resolveInstance(ctx, messageID)
	return g, err
}

// RefreshPrompts re-establishes the standing prompt in every posting
// channel. Calls inside the debounce window are dropped by the engine.
func (s *Service) RefreshPrompts(ctx context.Context) {
	v, err := s.cache.View(ctx)
	if err != nil {
		s.log.Warn("prompt refresh skipped", logx.Err(err))
		return
	}
	seen := map[string]struct{}{}
	for _, channels := range v.Targets {
		for _, ch := range channels {
			if _, dup := seen[ch]; dup {
				continue
			}
			seen[ch] = struct{}{}
			if err := s.engine.EnsurePrompt(ctx, ch, PromptMessage()); err != nil {
				s.log.Warn("prompt upkeep failed", logx.String("channel", ch), logx.Err(err))
			}
		}
	}
}

// ContactApplicant tells an applicant the poster wants to follow up.
// Only the poster or a moderator may trigger it.
func (s *Service) ContactApplicant(ctx context.Context, actor access.Actor, gigID, applicantID string) error {
	g, err := s.getGig(ctx, gigID)
	if err != nil {
		return err
	}
	if err := s.requireAuthorOrModerator(ctx, actor, g.AuthorID, "use this action"); err != nil {
		return err
	}
	out := transport.Outgoing{
		Text: fmt.Sprintf("The gig poster is interested in your application. Please DM <@%s> to follow up.", g.AuthorID),
	}
	if err := s.msgr.SendDirect(ctx, applicantID, out); err != nil {
		return fmt.Errorf("notify applicant: %w", err)
	}
	return nil
}

// ReportApplicant escalates an application to the category's report
// channels.
func (s *Service) ReportApplicant(ctx context.Context, actor access.Actor, gigID, applicantID string) error {
	g, err := s.getGig(ctx, gigID)
	if err != nil {
		return err
	}
	if err := s.requireAuthorOrModerator(ctx, actor, g.AuthorID, "use this action"); err != nil {
		return err
	}
	v, err := s.cache.View(ctx)
	if err != nil {
		return err
	}
	channels := v.Reports[g.CategoryID]
	if len(channels) == 0 {
		return &NotFoundError{Msg: "No report channels are configured for this category."}
	}

	link := "Unavailable"
	if instances, err := s.store.InstancesForGig(ctx, gigID); err == nil && len(instances) > 0 {
		in := instances[0]
		link = messageLink(transport.MessageRef{GuildID: in.GuildID, ChannelID: in.ChannelID, MessageID: in.MessageID})
	}
	out := transport.Outgoing{
		Embed: &transport.Embed{
			Title: "Application Reported",
			Description: fmt.Sprintf(
				"**Reported by:** <@%s> (%s)\n**Applicant:** <@%s> (%s)\n**Gig ID:** %s\n**Context:** %s",
				actor.UserID, actor.UserID, applicantID, applicantID, gigID, link),
			Color:     colorAlert,
			Timestamp: true,
		},
	}
	for _, ch := range channels {
		if _, err := s.msgr.Send(ctx, ch, out); err != nil {
			s.log.Error("application report delivery failed", logx.String("gig", gigID), logx.String("channel", ch), logx.Err(err))
		}
	}
	return nil
}

func (s *Service) requireAuthorOrModerator(ctx context.Context, actor access.Actor, authorID, op string) error {
	if actor.UserID == authorID {
		return nil
	}
	return s.requireModerator(ctx, actor, op)
}

// IsModerator is exposed for the interaction layer, which decides
// whether to collect a deletion reason before calling Delete.
func (s *Service) IsModerator(ctx context.Context, actor access.Actor) (bool, error) {
	return s.acl.IsModerator(ctx, actor)
}

// IsBannedFrom is exposed for the interaction layer's category menu.
func (s *Service) IsBannedFrom(ctx context.Context, actor access.Actor, categoryID string) (bool, error) {
	return s.acl.IsBanned(ctx, actor, categoryID)
}

// View exposes the current configuration snapshot.
func (s *Service) View(ctx context.Context) (*snapshot.View, error) {
	return s.cache.View(ctx)
}

func (s *Service) requireModerator(ctx context.Context, actor access.Actor, op string) error {
	mod, err := s.acl.IsModerator(ctx, actor)
	if err != nil {
		return err
	}
	if !mod {
		return &PermissionError{Op: op}
	}
	return nil
}

func (s *Service) getGig(ctx context.Context, gigID string) (storage.Gig, error) {
	g, err := s.store.GetGig(ctx, gigID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Gig{}, &NotFoundError{Msg: "This gig is no longer available."}
	}
	return g, err
}

func (s *Service) resolveInstance(ctx context.Context, messageID string) (storage.Instance, storage.Gig, error) {
	inst, err := s.store.GetInstanceByMessage(ctx, messageID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Instance{}, storage.Gig{}, &NotFoundError{Msg: "This gig is no longer available."}
	}
	if err != nil {
		return storage.Instance{}, storage.Gig{}, err
	}
	g, err := s.getGig(ctx, inst.GigID)
	if err != nil {
		return storage.Instance{}, storage.Gig{}, err
	}
	return inst, g, nil
}

// retract tears down the posted copies and the record. Per-destination
// failures are logged; they never block the removal.
func (s *Service) retract(ctx context.Context, gigID string) {
	for _, err := range s.engine.Retract(ctx, gigID) {
		s.log.Warn("retraction incomplete", logx.String("gig", gigID), logx.Err(err))
	}
}
