package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo/attendance/core"
	"github.com/trezcool/masomo/attendance/core/catchup"
)

type catchupApi struct {
	svc        *catchup.Service
	history    HistoryReader
	validate   *validator.Validate
	translator ut.Translator
}

func registerCatchupAPI(g *echo.Group, jwt echo.MiddlewareFunc, api catchupApi) {
	cg := g.Group("/catchup", jwt)
	cg.POST("/lessons/:lessonId/sessions", api.start)

	// session endpoints
	sg := cg.Group("/sessions/:id", sessionMiddleware(api.svc))
	sg.GET("", api.retrieve)
	sg.DELETE("", api.discard)
	sg.GET("/events", api.events)
	sg.POST("/media", api.media)
	sg.POST("/play", api.play)
	sg.POST("/pause", api.pause)
	sg.POST("/seek", api.seek)
	sg.POST("/prompts/:promptId/ack", api.ackPrompt)
	sg.POST("/quiz", api.submitQuiz)
	sg.POST("/finalize", api.finalize)
}

// Handlers

func (api *catchupApi) start(ctx echo.Context) error {
	viewer, err := getContextViewer(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context viewer")
	}
	sess, err := api.svc.Start(ctx.Request().Context(), viewer, ctx.Param("lessonId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sess.Snapshot())
}

func (api *catchupApi) retrieve(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

// discard is called when the viewer navigates away.
func (api *catchupApi) discard(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Discard(sess.ID(), sess.ViewerID()); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *catchupApi) events(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if api.history == nil {
		return ctx.JSON(http.StatusOK, []catchup.Notification{})
	}
	hist, err := api.history.History(ctx.Request().Context(), sess.ID())
	if err != nil {
		return errors.Wrap(err, "reading session history")
	}
	return ctx.JSON(http.StatusOK, hist)
}

func (api *catchupApi) media(ctx echo.Context) error {
	var data MediaRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MediaRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	return api.tick(ctx, catchup.MediaReady{DurationSec: data.DurationSec})
}

func (api *catchupApi) play(ctx echo.Context) error {
	return api.tick(ctx, catchup.Play{})
}

func (api *catchupApi) pause(ctx echo.Context) error {
	return api.tick(ctx, catchup.Pause{})
}

func (api *catchupApi) seek(ctx echo.Context) error {
	var data SeekRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SeekRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	return api.tick(ctx, catchup.Seek{PositionSec: *data.Position})
}

func (api *catchupApi) tick(ctx echo.Context, ev catchup.Event) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if err := sess.Tick(ev); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

func (api *catchupApi) ackPrompt(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	promptID := core.CleanString(ctx.Param("promptId"))
	if err := sess.AckPrompt(ctx.Request().Context(), promptID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

func (api *catchupApi) submitQuiz(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data QuizRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	res, err := sess.SubmitQuiz(ctx.Request().Context(), data.Answers)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, QuizResponse{Result: res, Session: sess.Snapshot()})
}

// finalize re-requests the decision after a failed (timed out, unreachable) finalize.
func (api *catchupApi) finalize(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if _, err := sess.RetryFinalize(ctx.Request().Context()); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

type (
	MediaRequest struct {
		DurationSec float64 `json:"duration_sec" validate:"gte=0"`
	}

	SeekRequest struct {
		Position *float64 `json:"position" validate:"required"`
	}

	QuizRequest struct {
		Answers []catchup.QuizAnswer `json:"answers" validate:"required,dive"`
	}

	QuizResponse struct {
		Result  catchup.QuizResult `json:"result"`
		Session catchup.Snapshot   `json:"session"`
	}
)
