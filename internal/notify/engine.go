package notify

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/safereport/safereport/internal/database"

	"gorm.io/gorm"
)

// messageSummaryLength is the maximum number of characters of a thread
// message included in a notification body.
const messageSummaryLength = 100

// Delivery is one notification resolved to a concrete recipient and channel
type Delivery struct {
	User         database.User
	Channel      database.NotificationChannel
	Title        string
	Body         string
	Kind         string
	ReferenceIDs database.IDList
	Metadata     database.JSONB
}

// Dispatcher records a notification and delivers it to one recipient
type Dispatcher interface {
	Dispatch(ctx context.Context, delivery Delivery) error
}

// Mirror posts a copy of oversight-pool notifications to a shared channel
type Mirror interface {
	Post(ctx context.Context, title, body string) error
}

// Engine selects notification recipients for lifecycle events and hands each
// qualifying (user, channel) pair to the dispatcher exactly once per event.
type Engine struct {
	db         *gorm.DB
	dispatcher Dispatcher
	mirror     Mirror
}

// NewEngine creates a targeting engine. mirror may be nil when no shared
// channel is configured.
func NewEngine(db *gorm.DB, dispatcher Dispatcher, mirror Mirror) *Engine {
	return &Engine{
		db:         db,
		dispatcher: dispatcher,
		mirror:     mirror,
	}
}

// Publish computes the recipient set for the event and dispatches to each
// recipient. All failures are logged per recipient and never propagated: the
// workflow action that triggered the event has already committed.
func (e *Engine) Publish(ctx context.Context, event Event) {
	var err error
	switch event.Kind {
	case EventOccurrenceCreated:
		err = e.handleCreated(ctx, event)
	case EventOccurrenceReferred:
		err = e.handleReferred(ctx, event)
	case EventThreadMessagePosted:
		err = e.handleMessagePosted(ctx, event)
	case EventDepartmentResponded:
		err = e.handleResponded(ctx, event)
	case EventOccurrenceResolved:
		err = e.handleResolved(ctx, event)
	default:
		err = fmt.Errorf("unknown event kind %q", event.Kind)
	}
	if err != nil {
		log.Printf("notify: failed to target %s for occurrence %s: %v", event.Kind, event.Occurrence.Number, err)
	}
}

// handleCreated notifies oversight-role users whose preference opts in to the
// occurrence's top-level incident category or its severity.
func (e *Engine) handleCreated(ctx context.Context, event Event) error {
	occ := event.Occurrence

	var leaf database.IncidentType
	if err := e.db.First(&leaf, occ.IncidentTypeID).Error; err != nil {
		return fmt.Errorf("failed to load incident type: %w", err)
	}
	top, err := database.TopLevelIncidentType(e.db, occ.IncidentTypeID)
	if err != nil {
		return fmt.Errorf("failed to resolve top-level incident type: %w", err)
	}

	candidates, err := e.oversightUsers()
	if err != nil {
		return err
	}
	prefs, err := e.preferencesFor(candidates)
	if err != nil {
		return err
	}

	recipients := newRecipientSet()
	for _, user := range candidates {
		pref := prefs[user.ID]
		if pref == nil || !pref.Enabled {
			continue
		}
		if !pref.MatchesIncident(top.ID) && !pref.MatchesSeverity(leaf.SeverityID) {
			continue
		}
		recipients.add(user)
	}

	title := fmt.Sprintf("New occurrence %s", occ.Number)
	body := fmt.Sprintf("A new occurrence was reported at %s: %s", occ.Location, summarize(occ.Description, messageSummaryLength))
	e.dispatchAll(ctx, recipients, prefs, Delivery{
		Title:        title,
		Body:         body,
		Kind:         string(event.Kind),
		ReferenceIDs: database.IDList{occ.ID},
	})
	e.mirrorPost(ctx, title, body)
	return nil
}

// handleReferred notifies members of each newly referred department. Only
// the enabled flag is consulted: referral is departmental routing, not a
// subscription, so the incident and severity interest sets do not apply.
func (e *Engine) handleReferred(ctx context.Context, event Event) error {
	if len(event.DepartmentIDs) == 0 {
		return nil
	}
	occ := event.Occurrence

	candidates, err := e.usersInDepartments(event.DepartmentIDs)
	if err != nil {
		return err
	}
	prefs, err := e.preferencesFor(candidates)
	if err != nil {
		return err
	}

	recipients := newRecipientSet()
	for _, user := range candidates {
		pref := prefs[user.ID]
		if pref == nil || !pref.Enabled {
			continue
		}
		recipients.add(user)
	}

	e.dispatchAll(ctx, recipients, prefs, Delivery{
		Title:        fmt.Sprintf("Occurrence %s referred to your department", occ.Number),
		Body:         fmt.Sprintf("Occurrence %s has been referred to your department for investigation.", occ.Number),
		Kind:         string(event.Kind),
		ReferenceIDs: database.IDList{occ.ID},
	})
	return nil
}

// handleMessagePosted notifies three disjoint groups, always excluding the
// sender: the reporter, oversight users with an enabled preference, and
// members of every other assigned department besides the sender's own.
func (e *Engine) handleMessagePosted(ctx context.Context, event Event) error {
	occ := event.Occurrence

	var sender database.User
	if err := e.db.First(&sender, event.SenderID).Error; err != nil {
		return fmt.Errorf("failed to load message sender: %w", err)
	}

	recipients := newRecipientSet()

	if occ.ReporterID != nil && *occ.ReporterID != event.SenderID {
		var reporter database.User
		if err := e.db.First(&reporter, *occ.ReporterID).Error; err != nil {
			return fmt.Errorf("failed to load reporter: %w", err)
		}
		recipients.add(reporter)
	}

	oversight, err := e.oversightUsers()
	if err != nil {
		return err
	}
	oversightPrefs, err := e.preferencesFor(oversight)
	if err != nil {
		return err
	}
	for _, user := range oversight {
		if user.ID == event.SenderID {
			continue
		}
		pref := oversightPrefs[user.ID]
		if pref == nil || !pref.Enabled {
			continue
		}
		recipients.add(user)
	}

	otherDepartments, err := e.assignedDepartments(occ.ID)
	if err != nil {
		return err
	}
	if sender.DepartmentID != nil {
		otherDepartments = removeID(otherDepartments, *sender.DepartmentID)
	}
	if len(otherDepartments) > 0 {
		members, err := e.usersInDepartments(otherDepartments)
		if err != nil {
			return err
		}
		for _, user := range members {
			if user.ID == event.SenderID {
				continue
			}
			recipients.add(user)
		}
	}

	prefs, err := e.preferencesFor(recipients.users())
	if err != nil {
		return err
	}
	e.dispatchAll(ctx, recipients, prefs, Delivery{
		Title:        fmt.Sprintf("New message on occurrence %s", occ.Number),
		Body:         summarize(event.MessageText, messageSummaryLength),
		Kind:         string(event.Kind),
		ReferenceIDs: database.IDList{occ.ID},
		Metadata:     database.JSONB{"sender_id": sender.ID},
	})
	return nil
}

// handleResponded notifies the reporter and oversight users with an enabled
// preference; the notification discloses the submitted root cause.
func (e *Engine) handleResponded(ctx context.Context, event Event) error {
	occ := event.Occurrence

	recipients := newRecipientSet()

	if occ.ReporterID != nil {
		var reporter database.User
		if err := e.db.First(&reporter, *occ.ReporterID).Error; err != nil {
			return fmt.Errorf("failed to load reporter: %w", err)
		}
		recipients.add(reporter)
	}

	oversight, err := e.oversightUsers()
	if err != nil {
		return err
	}
	oversightPrefs, err := e.preferencesFor(oversight)
	if err != nil {
		return err
	}
	for _, user := range oversight {
		pref := oversightPrefs[user.ID]
		if pref == nil || !pref.Enabled {
			continue
		}
		recipients.add(user)
	}

	prefs, err := e.preferencesFor(recipients.users())
	if err != nil {
		return err
	}
	title := fmt.Sprintf("Department response recorded for %s", occ.Number)
	body := fmt.Sprintf("A department submitted its response for occurrence %s. Root cause: %s", occ.Number, event.MessageText)
	e.dispatchAll(ctx, recipients, prefs, Delivery{
		Title:        title,
		Body:         body,
		Kind:         string(event.Kind),
		ReferenceIDs: database.IDList{occ.ID, event.AssignmentID},
	})
	e.mirrorPost(ctx, title, body)
	return nil
}

// handleResolved notifies the reporter and every member of every department
// that was ever assigned, the latter filtered to enabled preferences.
func (e *Engine) handleResolved(ctx context.Context, event Event) error {
	occ := event.Occurrence

	recipients := newRecipientSet()

	if occ.ReporterID != nil {
		var reporter database.User
		if err := e.db.First(&reporter, *occ.ReporterID).Error; err != nil {
			return fmt.Errorf("failed to load reporter: %w", err)
		}
		recipients.add(reporter)
	}

	departments, err := e.assignedDepartments(occ.ID)
	if err != nil {
		return err
	}
	if len(departments) > 0 {
		members, err := e.usersInDepartments(departments)
		if err != nil {
			return err
		}
		memberPrefs, err := e.preferencesFor(members)
		if err != nil {
			return err
		}
		for _, user := range members {
			pref := memberPrefs[user.ID]
			if pref == nil || !pref.Enabled {
				continue
			}
			recipients.add(user)
		}
	}

	prefs, err := e.preferencesFor(recipients.users())
	if err != nil {
		return err
	}
	e.dispatchAll(ctx, recipients, prefs, Delivery{
		Title:        fmt.Sprintf("Occurrence %s resolved", occ.Number),
		Body:         fmt.Sprintf("Occurrence %s has been reviewed and closed.", occ.Number),
		Kind:         string(event.Kind),
		ReferenceIDs: database.IDList{occ.ID},
	})
	return nil
}

// dispatchAll resolves each recipient's channel and dispatches, logging and
// skipping per-recipient failures so one unreachable recipient never blocks
// the rest.
func (e *Engine) dispatchAll(ctx context.Context, recipients *recipientSet, prefs map[uint]*database.NotificationPreference, template Delivery) {
	for _, user := range recipients.users() {
		delivery := template
		delivery.User = user
		delivery.Channel = channelFor(user, prefs[user.ID])
		if err := e.dispatcher.Dispatch(ctx, delivery); err != nil {
			log.Printf("notify: failed to dispatch %s to user %d: %v", template.Kind, user.ID, err)
		}
	}
}

func (e *Engine) mirrorPost(ctx context.Context, title, body string) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.Post(ctx, title, body); err != nil {
		log.Printf("notify: failed to mirror notification %q: %v", title, err)
	}
}

// channelFor returns the user's configured channel, defaulting to email when
// no preference row exists. BOTH degrades to email-only when the mobile
// number is not a well-formed 10-digit number, so the email half still goes
// out instead of the whole notification failing.
func channelFor(user database.User, pref *database.NotificationPreference) database.NotificationChannel {
	channel := database.ChannelEmail
	if pref != nil && pref.Channel != "" {
		channel = pref.Channel
	}
	if channel == database.ChannelBoth && !ValidMobileNumber(user.Mobile) {
		channel = database.ChannelEmail
	}
	return channel
}

// ========== candidate pool queries ==========

func (e *Engine) oversightUsers() ([]database.User, error) {
	var users []database.User
	err := e.db.Where("role IN ?", database.OversightRoles).Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query oversight users: %w", err)
	}
	return users, nil
}

func (e *Engine) usersInDepartments(departmentIDs []uint) ([]database.User, error) {
	var users []database.User
	err := e.db.Where("department_id IN ?", departmentIDs).Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query department users: %w", err)
	}
	return users, nil
}

func (e *Engine) assignedDepartments(occurrenceID uint) ([]uint, error) {
	var ids []uint
	err := e.db.Model(&database.OccurrenceAssignment{}).
		Where("occurrence_id = ?", occurrenceID).
		Pluck("department_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query assigned departments: %w", err)
	}
	return ids, nil
}

func (e *Engine) preferencesFor(users []database.User) (map[uint]*database.NotificationPreference, error) {
	result := make(map[uint]*database.NotificationPreference, len(users))
	if len(users) == 0 {
		return result, nil
	}
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	var prefs []database.NotificationPreference
	if err := e.db.Where("user_id IN ?", ids).Find(&prefs).Error; err != nil {
		return nil, fmt.Errorf("failed to query notification preferences: %w", err)
	}
	for i := range prefs {
		result[prefs[i].UserID] = &prefs[i]
	}
	return result, nil
}

// ========== recipient bookkeeping ==========

// recipientSet deduplicates recipients by user id so a user who qualifies
// through multiple rules still receives a single notification per event.
type recipientSet struct {
	byID map[uint]database.User
}

func newRecipientSet() *recipientSet {
	return &recipientSet{byID: make(map[uint]database.User)}
}

func (s *recipientSet) add(user database.User) {
	if _, exists := s.byID[user.ID]; !exists {
		s.byID[user.ID] = user
	}
}

// users returns the recipients ordered by user id
func (s *recipientSet) users() []database.User {
	users := make([]database.User, 0, len(s.byID))
	for _, u := range s.byID {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func removeID(ids []uint, exclude uint) []uint {
	result := ids[:0]
	for _, id := range ids {
		if id != exclude {
			result = append(result, id)
		}
	}
	return result
}

// summarize truncates s to at most max characters, appending an ellipsis
// when text was cut off.
func summarize(s string, max int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "..."
}
