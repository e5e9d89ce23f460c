package plugins

import (
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// neverSent reports whether err happened while connecting, before any bytes
// of the query reached the target
func neverSent(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
