package attendancesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/masomo/attendance/core"
	"github.com/trezcool/masomo/attendance/core/catchup"
)

// HTTPService talks to the attendance REST API on behalf of the viewer found in the request context.
type HTTPService struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

var _ catchup.AttendanceService = (*HTTPService)(nil)

func NewHTTPService(conf core.AttendanceConfig) *HTTPService {
	limit, burst := rate.Limit(conf.RateLimit), conf.RateLimitBurst
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &HTTPService{
		baseURL: strings.TrimRight(strings.TrimSpace(conf.BaseURL), "/"),
		client:  &http.Client{Timeout: conf.Timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (svc *HTTPService) GetPlaybackToken(ctx context.Context, lessonID string) (catchup.PlaybackToken, error) {
	var token catchup.PlaybackToken
	err := svc.do(ctx, http.MethodGet, lessonPath(lessonID, "playback-token"), nil, &token)
	return token, err
}

func (svc *HTTPService) PostWatchBeat(ctx context.Context, lessonID string, beat catchup.WatchBeat) error {
	return svc.do(ctx, http.MethodPost, lessonPath(lessonID, "watch-beats"), beat, nil)
}

func (svc *HTTPService) PostPromptAck(ctx context.Context, lessonID, promptID string) error {
	return svc.do(ctx, http.MethodPost, lessonPath(lessonID, "prompts", promptID, "ack"), nil, nil)
}

type quizSubmission struct {
	Answers []catchup.QuizAnswer `json:"answers"`
}

func (svc *HTTPService) SubmitQuiz(ctx context.Context, lessonID string, answers []catchup.QuizAnswer) (catchup.QuizResult, error) {
	var res catchup.QuizResult
	err := svc.do(ctx, http.MethodPost, lessonPath(lessonID, "quiz"), quizSubmission{Answers: answers}, &res)
	return res, err
}

func (svc *HTTPService) Finalize(ctx context.Context, lessonID string) (catchup.Decision, error) {
	var d catchup.Decision
	err := svc.do(ctx, http.MethodPost, lessonPath(lessonID, "finalize"), nil, &d)
	return d, err
}

func lessonPath(lessonID string, elems ...string) string {
	parts := []string{"lessons", url.PathEscape(lessonID)}
	for _, e := range elems {
		parts = append(parts, url.PathEscape(e))
	}
	return "/" + strings.Join(parts, "/")
}

type apiError struct {
	Error string `json:"error"`
}

func (svc *HTTPService) do(ctx context.Context, method, path string, in, out interface{}) error {
	if err := svc.limiter.Wait(ctx); err != nil {
		return errors.Wrap(catchup.ErrUnavailable, err.Error())
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, svc.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if v, ok := catchup.ViewerFromContext(ctx); ok && v.Token != "" {
		req.Header.Set("Authorization", "Bearer "+v.Token)
	}

	start := time.Now()
	resp, err := svc.client.Do(req)
	if err != nil {
		recordRequest(method, 0, time.Since(start))
		return errors.Wrapf(catchup.ErrUnavailable, "%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	recordRequest(method, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(catchup.ErrUnavailable, fmt.Sprintf("decoding %s response: %v", path, err))
	}
	return nil
}

// statusError maps an error response to the engine's error kinds:
// 404 is NotFound, other 4xx are rejections and the rest is an unavailable service.
func statusError(resp *http.Response) error {
	msg := http.StatusText(resp.StatusCode)
	var apiErr apiError
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&apiErr); err == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrap(catchup.ErrNotFound, msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.Wrap(catchup.ErrUnavailable, msg)
	case resp.StatusCode < http.StatusInternalServerError:
		return errors.Wrap(catchup.ErrRejected, msg)
	default:
		return errors.Wrap(catchup.ErrUnavailable, msg)
	}
}
