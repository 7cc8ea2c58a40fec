// Package dberrors translates data-access failures into the caller-facing
// error categories of the order service.
package dberrors

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"fruitorders/internal/models"
)

// Signal is the low-level failure recognised in a storage error.
type Signal int

const (
	SignalUnknown Signal = iota
	SignalSyntax
	SignalMissingColumn
	SignalAuth
	SignalTransport
	SignalUnreachable
)

func (s Signal) String() string {
	switch s {
	case SignalSyntax:
		return "syntax"
	case SignalMissingColumn:
		return "missing_column"
	case SignalAuth:
		return "auth"
	case SignalTransport:
		return "transport"
	case SignalUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

type category struct {
	kind    models.Kind
	message string
}

var categories = map[Signal]category{
	SignalSyntax: {
		kind:    models.KindClientRequest,
		message: "Error in SQL command syntax or the target table/database does not exist.",
	},
	SignalMissingColumn: {
		kind:    models.KindClientRequest,
		message: "Error in SQL command, probably the table does not contain the queried column.",
	},
	SignalAuth: {
		kind:    models.KindConnectivity,
		message: "Error in database connection, probably the username or password were incorrect.",
	},
	SignalTransport: {
		kind:    models.KindConnectivity,
		message: "Error in database connection, try again later. If repeated, check that the connection to the server is on.",
	},
	SignalUnreachable: {
		kind:    models.KindConnectivity,
		message: "Error in database connection, probably the server is down. If repeated, check that the server is up.",
	},
	SignalUnknown: {
		kind:    models.KindUnknownDataAccess,
		message: "Error in SQL command, probably the connection was closed.",
	},
}

// Detect inspects err and reports which failure it represents.
func Detect(err error) Signal {
	if err == nil {
		return SignalUnknown
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fromSQLState(pgErr.Code)
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return SignalUnreachable
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return SignalUnreachable
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return SignalUnreachable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return SignalUnreachable
		}
		return SignalTransport
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return SignalTransport
	}

	return SignalUnknown
}

func fromSQLState(code string) Signal {
	switch {
	case code == "42703":
		return SignalMissingColumn
	case code == "3D000", strings.HasPrefix(code, "42"):
		// 42601 syntax_error, 42P01 undefined_table, 3D000 invalid_catalog_name
		return SignalSyntax
	case code == "28000", code == "28P01":
		return SignalAuth
	case strings.HasPrefix(code, "08"):
		return SignalTransport
	case code == "57P03":
		// cannot_connect_now
		return SignalUnreachable
	}
	return SignalUnknown
}

// Classify wraps err into a *models.Error of the matching category, keeping the
// original diagnostic text in Detail. Errors that already carry a category are
// returned unchanged. Classify never retries and never drops an error.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var categorized *models.Error
	if errors.As(err, &categorized) {
		return err
	}

	c := categories[Detect(err)]
	return &models.Error{
		Kind:    c.kind,
		Message: c.message,
		Detail:  err.Error(),
		Err:     err,
	}
}
