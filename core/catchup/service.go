package catchup

import (
	"context"
	"sync"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo/attendance/core"
	"github.com/trezcool/masomo/attendance/core/clock"
)

// Deps are the collaborators shared by every session of a Service.
type Deps struct {
	Conf       core.CatchupConfig
	Clock      clock.Clock // defaults to clock.Real
	Attendance AttendanceService
	Publisher  EventPublisher // defaults to a no-op publisher
	Logger     core.Logger
	Validate   *validator.Validate // must have been set up by core.InitValidators; a new one is built if nil
	Translator ut.Translator
}

// Service holds the live sessions of the instance.
type Service struct {
	deps  Deps
	newID func() string

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewService(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Validate == nil {
		deps.Validate, deps.Translator = core.NewValidator()
	}
	InitValidators(deps.Validate, deps.Translator)

	return &Service{
		deps:     deps,
		newID:    func() string { return uuid.New().String() },
		sessions: make(map[string]*Session),
	}
}

// Start fetches a fresh playback token for the viewer and opens a session in Loading.
// Invalid token data fails here: no session is created.
func (svc *Service) Start(ctx context.Context, viewer Viewer, lessonID string) (*Session, error) {
	lessonID = core.CleanString(lessonID)
	token, err := svc.deps.Attendance.GetPlaybackToken(ContextWithViewer(ctx, viewer), lessonID)
	if err != nil {
		return nil, errors.Wrap(err, "fetching playback token")
	}
	if token.LessonID == "" {
		token.LessonID = lessonID
	}
	if token.LessonID != lessonID {
		return nil, core.NewValidationError(ErrInvalidToken, core.FieldError{Field: "lesson_id", Error: "token issued for another lesson"})
	}
	if err := ValidateToken(token, svc.deps.Validate, svc.deps.Translator); err != nil {
		svc.deps.Logger.Warn("catchup: invalid playback token", viewer, err, map[string]interface{}{"lesson": lessonID})
		return nil, err
	}

	sess := newSession(ctx, svc.newID(), viewer, token, svc.deps)
	svc.mu.Lock()
	svc.sessions[sess.ID()] = sess
	svc.mu.Unlock()

	sessionsStarted.Inc()
	sessionsLive.Inc()
	svc.deps.Logger.Info("catchup: session started", viewer, map[string]interface{}{"session": sess.ID(), "lesson": lessonID})
	return sess, nil
}

// Get returns the session with the given id.
func (svc *Service) Get(id string) (*Session, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	sess, ok := svc.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// GetForViewer returns the session only if it belongs to the viewer.
func (svc *Service) GetForViewer(id, viewerID string) (*Session, error) {
	sess, err := svc.Get(id)
	if err != nil {
		return nil, err
	}
	if sess.ViewerID() != viewerID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Discard closes the viewer's session and forgets it.
func (svc *Service) Discard(id, viewerID string) error {
	sess, err := svc.GetForViewer(id, viewerID)
	if err != nil {
		return err
	}
	svc.remove(sess)
	return nil
}

func (svc *Service) remove(sess *Session) {
	svc.mu.Lock()
	_, ok := svc.sessions[sess.ID()]
	delete(svc.sessions, sess.ID())
	svc.mu.Unlock()

	sess.Close()
	if ok {
		sessionsLive.Dec()
	}
}

// Len returns the number of sessions held.
func (svc *Service) Len() int {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return len(svc.sessions)
}

func (svc *Service) list() []*Session {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	list := make([]*Session, 0, len(svc.sessions))
	for _, sess := range svc.sessions {
		list = append(list, sess)
	}
	return list
}

// Shutdown discards every session.
func (svc *Service) Shutdown() {
	for _, sess := range svc.list() {
		svc.remove(sess)
	}
}
