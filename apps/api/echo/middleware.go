package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo/attendance/core/catchup"
)

const contextSessionKey = "object"

// sessionMiddleware loads the `:id` session of the authenticated viewer into the context.
// Another viewer's session is reported as not found.
func sessionMiddleware(svc *catchup.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			viewer, err := getContextViewer(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context viewer")
			}
			sess, err := svc.GetForViewer(ctx.Param("id"), viewer.ID)
			if err != nil {
				return err
			}
			ctx.Set(contextSessionKey, sess)
			return next(ctx)
		}
	}
}

func getContextSession(ctx echo.Context) (*catchup.Session, error) {
	if sess, ok := ctx.Get(contextSessionKey).(*catchup.Session); ok {
		return sess, nil
	}
	return nil, catchup.ErrSessionNotFound
}
