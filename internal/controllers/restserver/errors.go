package restserver

import (
	"errors"
	"net/http"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/internal/database"
	"github.com/chrissnell/fragsize/internal/extract"
	"github.com/chrissnell/fragsize/internal/formula"
	"github.com/chrissnell/fragsize/internal/ladder"
	"github.com/chrissnell/fragsize/internal/peaks"
	"github.com/chrissnell/fragsize/internal/session"
	"github.com/chrissnell/fragsize/internal/trace"
)

var (
	errArchiveDisabled = errors.New("run archive is not configured")
	errNoTraces        = errors.New("either directory or traces is required")
)

// badRequest marks an error caused by the request itself, such as an undecodable body
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

// statusFor maps an error to the HTTP status reported to the client
func statusFor(err error) int {
	var br badRequest
	var syntax *formula.SyntaxError

	switch {
	case errors.As(err, &br),
		errors.Is(err, errNoTraces),
		errors.Is(err, peaks.ErrInvalidParameter),
		errors.Is(err, calibration.ErrInsufficientPoints),
		errors.Is(err, calibration.ErrNonMonotonic),
		errors.Is(err, session.ErrNoSnapPeak),
		errors.Is(err, session.ErrUnknownPeak),
		errors.Is(err, session.ErrSizeNotInLadder),
		errors.Is(err, session.ErrSizeAssigned),
		errors.Is(err, session.ErrNoMarkerChannel),
		errors.As(err, &syntax),
		errors.Is(err, formula.ErrUnknownVariable),
		errors.Is(err, formula.ErrDivisionByZero):
		return http.StatusBadRequest

	case errors.Is(err, session.ErrNoActiveSample):
		return http.StatusConflict

	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrNotInSession),
		errors.Is(err, trace.ErrUnknownSample),
		errors.Is(err, trace.ErrMissingChannel),
		errors.Is(err, ladder.ErrUnknownLadder),
		errors.Is(err, extract.ErrNoCalibration),
		errors.Is(err, database.ErrRunNotFound):
		return http.StatusNotFound

	case errors.Is(err, errArchiveDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
